package desk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var ict = time.FixedZone("ICT", 7*3600)

func TestComputeStatistics_MixedStatuses(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 0, 0, 0, ict)
	today := "2024-06-15T09:00:00"
	orders := []dto.Order{
		order("a", "Pending", 100, today),
		order("b", "Paid", 200, today),
		order("c", "Completed", 300, today),
	}

	stats := ComputeStatistics(orders, now)

	assert.Equal(t, dto.Statistics{
		TotalOrders:       3,
		PendingOrders:     1,
		CompletedOrders:   1,
		CancelledOrders:   0,
		PaidOrders:        2,
		TodayRevenue:      500,
		MonthlyRevenue:    500,
		TotalRevenue:      500,
		AverageOrderValue: 250,
		CompletionRate:    33,
		PaymentRate:       67,
	}, stats)
}

func TestComputeStatistics_Empty(t *testing.T) {
	stats := ComputeStatistics(nil, time.Now())

	assert.Equal(t, dto.Statistics{}, stats)
}

func TestComputeStatistics_NoPaidOrders(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 0, 0, 0, ict)
	orders := []dto.Order{
		order("a", "Pending", 100000, "2024-06-15T09:00:00"),
		order("b", "Cancelled", 50000, "2024-06-15T09:00:00"),
		order("c", "Confirmed", 70000, "2024-06-01T09:00:00"),
	}

	stats := ComputeStatistics(orders, now)

	assert.Equal(t, 3, stats.TotalOrders)
	assert.Equal(t, 1, stats.CancelledOrders)
	assert.Zero(t, stats.PaidOrders)
	assert.Zero(t, stats.TotalRevenue)
	assert.Zero(t, stats.AverageOrderValue)
	assert.Zero(t, stats.PaymentRate)
	assert.Zero(t, stats.CompletionRate)
}

func TestComputeStatistics_DateBuckets(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 30, 0, 0, ict)
	orders := []dto.Order{
		order("today-early", "Paid", 1000, "2024-06-15T00:00:00"),
		order("today-utc", "Completed", 2000, "2024-06-14T17:10:00Z"),
		order("yesterday", "Paid", 4000, "2024-06-14T23:59:59"),
		order("month-start", "Completed", 8000, "2024-06-01T00:00:00+07:00"),
		order("last-month", "Paid", 16000, "2024-05-31T23:59:59"),
		order("broken", "Paid", 32000, "15/06/2024"),
		order("pending-today", "Pending", 64000, "2024-06-15T00:10:00"),
	}

	stats := ComputeStatistics(orders, now)

	assert.Equal(t, int64(3000), stats.TodayRevenue)
	assert.Equal(t, int64(15000), stats.MonthlyRevenue)
	assert.Equal(t, int64(63000), stats.TotalRevenue)
	assert.Equal(t, 6, stats.PaidOrders)
	assert.Equal(t, int64(10500), stats.AverageOrderValue)
}

func TestComputeStatistics_AverageRounds(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, ict)
	orders := []dto.Order{
		order("a", "Paid", 10, "2024-06-15T09:00:00"),
		order("b", "Paid", 10, "2024-06-15T09:00:00"),
		order("c", "Paid", 11, "2024-06-15T09:00:00"),
	}

	assert.Equal(t, int64(10), ComputeStatistics(orders, now).AverageOrderValue)

	orders = append(orders, order("d", "Paid", 12, "2024-06-15T09:00:00"))
	// 43 / 4 = 10.75
	assert.Equal(t, int64(11), ComputeStatistics(orders, now).AverageOrderValue)
}

func TestComputeStatistics_RatesStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, ict)

	for round := 0; round < 200; round++ {
		n := rng.Intn(25)
		orders := make([]dto.Order, n)
		for i := range orders {
			status := entity.Statuses[rng.Intn(len(entity.Statuses))]
			orders[i] = order("x", string(status), rng.Int63n(1_000_000), "2024-06-10T10:00:00")
		}

		stats := ComputeStatistics(orders, now)

		assert.Equal(t, n, stats.TotalOrders)
		assert.GreaterOrEqual(t, stats.CompletionRate, 0)
		assert.LessOrEqual(t, stats.CompletionRate, 100)
		assert.GreaterOrEqual(t, stats.PaymentRate, 0)
		assert.LessOrEqual(t, stats.PaymentRate, 100)
		if stats.PaidOrders == 0 {
			assert.Zero(t, stats.AverageOrderValue)
		}
	}
}
