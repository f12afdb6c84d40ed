package desk

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Additional-Code/orderdesk/internal/dto"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) FetchPage(ctx context.Context, page, pageSize int) (dto.Page, error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(dto.Page), args.Error(1)
}

func (m *MockBackend) FetchStatistics(ctx context.Context) (dto.Statistics, error) {
	args := m.Called(ctx)
	return args.Get(0).(dto.Statistics), args.Error(1)
}

func (m *MockBackend) CompleteOrder(ctx context.Context, id string) (dto.ActionResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(dto.ActionResult), args.Error(1)
}

func (m *MockBackend) CancelOrder(ctx context.Context, id string) (dto.ActionResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(dto.ActionResult), args.Error(1)
}

func (m *MockBackend) UpdateStatus(ctx context.Context, id, status string) (dto.ActionResult, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(dto.ActionResult), args.Error(1)
}

func order(id, status string, amount int64, createdAt string) dto.Order {
	return dto.Order{
		ID:          id,
		Status:      status,
		TotalAmount: amount,
		CreatedAt:   dto.ParseTimestamp(createdAt),
	}
}

func pageOf(page, size, total int, orders ...dto.Order) dto.Page {
	return dto.Page{
		Items:      orders,
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		TotalPages: dto.TotalPagesFor(total, size),
	}
}
