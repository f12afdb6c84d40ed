package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order represents a marketplace order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string       `bun:"id,pk"`
	Status          Status       `bun:"status,notnull"`
	TotalAmount     int64        `bun:"total_amount,notnull"`
	BuyerID         string       `bun:"buyer_id,notnull"`
	BuyerName       string       `bun:"buyer_name,notnull" validate:"required,max=255"`
	BuyerPhone      string       `bun:"buyer_phone"`
	SellerName      string       `bun:"seller_name"`
	StoreName       string       `bun:"store_name"`
	DeliveryAddress string       `bun:"delivery_address"`
	Notes           string       `bun:"notes"`
	Items           []*OrderItem `bun:"rel:has-many,join:id=order_id" validate:"required,min=1,dive,required"`
	CreatedAt       time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `bun:"updated_at,nullzero"`
}

// OrderItem is a single line of an order, priced at purchase time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID              int64   `bun:",pk,autoincrement"`
	OrderID         string  `bun:"order_id,notnull"`
	ProductID       string  `bun:"product_id,notnull"`
	ProductName     string  `bun:"product_name,notnull" validate:"required,max=255"`
	ProductUnitName string  `bun:"product_unit_name"`
	Quantity        float64 `bun:"quantity,notnull" validate:"gt=0"`
	PriceAtPurchase int64   `bun:"price_at_purchase,notnull" validate:"gte=0"`
}

// Summary is the slice of an order needed for revenue aggregation.
type Summary struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string    `bun:"id"`
	Status      Status    `bun:"status"`
	TotalAmount int64     `bun:"total_amount"`
	CreatedAt   time.Time `bun:"created_at"`
}

// ComputeTotal sums the line items of the order.
func (o *Order) ComputeTotal() int64 {
	var total float64
	for _, item := range o.Items {
		if item == nil {
			continue
		}
		total += item.Quantity * float64(item.PriceAtPurchase)
	}
	return int64(total + 0.5)
}
