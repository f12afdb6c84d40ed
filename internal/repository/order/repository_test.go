package order

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:orders_%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Order)(nil), (*entity.OrderItem)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return NewRepository(&database.Connections{Writer: db, Reader: db})
}

func sampleOrder(id string, status entity.Status, created time.Time, products ...string) *entity.Order {
	o := &entity.Order{
		ID:         id,
		Status:     status,
		BuyerID:    "buyer-" + id,
		BuyerName:  "Nguyễn Văn An",
		BuyerPhone: "0912000111",
		SellerName: "Cô Ba",
		CreatedAt:  created,
	}
	for _, name := range products {
		o.Items = append(o.Items, &entity.OrderItem{
			ProductID:       "p-" + name,
			ProductName:     name,
			ProductUnitName: "kg",
			Quantity:        2,
			PriceAtPurchase: 25000,
		})
	}
	o.TotalAmount = o.ComputeTotal()
	return o
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", entity.StatusPending, created, "Cà chua", "Rau muống")))

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Equal(t, int64(100000), got.TotalAmount)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "o-1", got.Items[0].OrderID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListOrdersNewestFirstWithCount(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", entity.StatusPending, base, "Cà chua")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-2", entity.StatusPaid, base.Add(time.Hour), "Hành lá")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-3", entity.StatusCompleted, base.Add(2*time.Hour), "Cá basa")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-0", entity.StatusCancelled, base.Add(2*time.Hour))))

	first, total, err := repo.List(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"o-0", "o-3", "o-2"}, []string{first[0].ID, first[1].ID, first[2].ID})
	require.Len(t, first[1].Items, 1)
	assert.Equal(t, "Cá basa", first[1].Items[0].ProductName)

	second, total, err := repo.List(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, second, 1)
	assert.Equal(t, "o-1", second[0].ID)

	empty, total, err := repo.List(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, empty)
}

func TestRepository_UpdateStatusGuardsOnCurrentStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", entity.StatusPending, time.Now().UTC(), "Cà chua")))

	require.NoError(t, repo.UpdateStatus(ctx, "o-1", entity.StatusPending, entity.StatusConfirmed))

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	err = repo.UpdateStatus(ctx, "o-1", entity.StatusPending, entity.StatusCancelled)
	assert.ErrorIs(t, err, ErrConflict)

	got, err = repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, got.Status)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", entity.StatusPending, entity.StatusConfirmed), ErrConflict)
}

func TestRepository_Summaries(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	summaries, err := repo.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", entity.StatusPaid, time.Now().UTC(), "Cà chua")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-2", entity.StatusCancelled, time.Now().UTC(), "Hành lá", "Tỏi")))

	summaries, err = repo.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]entity.Summary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.Equal(t, entity.StatusPaid, byID["o-1"].Status)
	assert.Equal(t, int64(100000), byID["o-2"].TotalAmount)
}
