package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var seedNamespace = uuid.MustParse("6f1d3c52-4b8e-4f7a-9a43-0d2c8e5b7a11")

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger, now: time.Now}
}

// Orders seeds example market orders if they are missing. Ids are derived
// from a fixed namespace so reseeding is idempotent.
func (s *Seeder) Orders(ctx context.Context) error {
	samples := SampleOrders(s.now().UTC())

	inserted := 0
	for _, order := range samples {
		exists, err := s.db.NewSelect().Model((*entity.Order)(nil)).Where("id = ?", order.ID).Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(&order.Items).Exec(ctx)
			return err
		})
		if err != nil {
			return err
		}
		inserted++
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", inserted), zap.Int("samples", len(samples)))
	}
	return nil
}

type line struct {
	product string
	unit    string
	qty     float64
	price   int64
}

type sample struct {
	key     string
	status  entity.Status
	buyer   string
	phone   string
	seller  string
	store   string
	address string
	age     time.Duration
	lines   []line
}

var samples = []sample{
	{
		key: "market-1", status: entity.StatusPending, buyer: "Nguyễn Văn An", phone: "0912345678",
		seller: "Cô Ba", store: "Sạp rau Cô Ba", address: "12 Lê Lợi, Quận 1, TP.HCM", age: 2 * time.Hour,
		lines: []line{{"Rau muống", "bó", 2, 15000}, {"Cà chua", "kg", 1.5, 30000}},
	},
	{
		key: "market-2", status: entity.StatusConfirmed, buyer: "Trần Thị Bình", phone: "0987654321",
		seller: "Chú Tư", store: "Thịt heo Chú Tư", address: "45 Nguyễn Trãi, Quận 5, TP.HCM", age: 5 * time.Hour,
		lines: []line{{"Thịt ba chỉ", "kg", 0.5, 160000}},
	},
	{
		key: "market-3", status: entity.StatusPaid, buyer: "Lê Văn Cường", phone: "0903111222",
		seller: "Dì Năm", store: "Hải sản Dì Năm", address: "8 Trần Hưng Đạo, Quận 1, TP.HCM", age: 26 * time.Hour,
		lines: []line{{"Tôm sú", "kg", 1, 350000}, {"Mực ống", "kg", 0.5, 280000}},
	},
	{
		key: "market-4", status: entity.StatusCompleted, buyer: "Phạm Thị Dung", phone: "0938777888",
		seller: "Cô Ba", store: "Sạp rau Cô Ba", address: "102 Hai Bà Trưng, Quận 3, TP.HCM", age: 72 * time.Hour,
		lines: []line{{"Bắp cải", "cái", 2, 18000}, {"Hành lá", "bó", 3, 5000}},
	},
	{
		key: "market-5", status: entity.StatusCancelled, buyer: "Hoàng Văn Em", phone: "0977000111",
		seller: "Anh Sáu", store: "Trái cây Anh Sáu", address: "7 Võ Văn Tần, Quận 3, TP.HCM", age: 40 * 24 * time.Hour,
		lines: []line{{"Xoài cát", "kg", 2, 65000}},
	},
	{
		key: "market-6", status: entity.StatusCompleted, buyer: "Võ Thị Giang", phone: "0909555666",
		seller: "Anh Sáu", store: "Trái cây Anh Sáu", address: "21 Pasteur, Quận 1, TP.HCM", age: 35 * 24 * time.Hour,
		lines: []line{{"Sầu riêng", "kg", 3, 120000}},
	},
}

// SampleOrders builds the seed orders relative to now.
func SampleOrders(now time.Time) []*entity.Order {
	orders := make([]*entity.Order, 0, len(samples))
	for _, sm := range samples {
		id := uuid.NewSHA1(seedNamespace, []byte(sm.key)).String()
		created := now.Add(-sm.age)
		order := &entity.Order{
			ID:              id,
			Status:          sm.status,
			BuyerID:         uuid.NewSHA1(seedNamespace, []byte(sm.phone)).String(),
			BuyerName:       sm.buyer,
			BuyerPhone:      sm.phone,
			SellerName:      sm.seller,
			StoreName:       sm.store,
			DeliveryAddress: sm.address,
			CreatedAt:       created,
			UpdatedAt:       created,
		}
		for _, l := range sm.lines {
			order.Items = append(order.Items, &entity.OrderItem{
				OrderID:         id,
				ProductID:       uuid.NewSHA1(seedNamespace, []byte(l.product)).String(),
				ProductName:     l.product,
				ProductUnitName: l.unit,
				Quantity:        l.qty,
				PriceAtPurchase: l.price,
			})
		}
		order.TotalAmount = order.ComputeTotal()
		orders = append(orders, order)
	}
	return orders
}
