package dto

import "github.com/Additional-Code/orderdesk/internal/entity"

// OrderItem is a line item as exposed via transport layers.
type OrderItem struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	ProductUnitName string  `json:"productUnitName"`
	Quantity        float64 `json:"quantity"`
	PriceAtPurchase int64   `json:"priceAtPurchase"`
}

// Order represents an order as exposed via transport layers and consumed by the desk.
type Order struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	TotalAmount     int64       `json:"totalAmount"`
	CreatedAt       Timestamp   `json:"createdAt"`
	UpdatedAt       Timestamp   `json:"updatedAt"`
	BuyerID         string      `json:"buyerId"`
	BuyerName       string      `json:"buyerName"`
	BuyerPhone      string      `json:"buyerPhone"`
	SellerName      string      `json:"sellerName"`
	StoreName       string      `json:"storeName"`
	Items           []OrderItem `json:"items"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// Page is one fetched batch of orders plus pagination metadata.
type Page struct {
	Items      []Order `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalCount int     `json:"totalCount"`
	TotalPages int     `json:"totalPages"`
}

// TotalPagesFor returns ceil(totalCount / pageSize), or 0 for a non-positive size.
func TotalPagesFor(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

// ActionResult is the reply of an order mutation endpoint.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StatusUpdateRequest is the body of the update-status endpoint.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// Statistics are order counts and revenue derived from a set of orders.
type Statistics struct {
	TotalOrders       int   `json:"totalOrders"`
	PendingOrders     int   `json:"pendingOrders"`
	CompletedOrders   int   `json:"completedOrders"`
	CancelledOrders   int   `json:"cancelledOrders"`
	PaidOrders        int   `json:"paidOrders"`
	TodayRevenue      int64 `json:"todayRevenue"`
	MonthlyRevenue    int64 `json:"monthlyRevenue"`
	TotalRevenue      int64 `json:"totalRevenue"`
	AverageOrderValue int64 `json:"averageOrderValue"`
	CompletionRate    int   `json:"completionRate"`
	PaymentRate       int   `json:"paymentRate"`
}

// FromEntity maps a stored order onto its wire representation.
func FromEntity(o *entity.Order) Order {
	out := Order{
		ID:              o.ID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		CreatedAt:       NewTimestamp(o.CreatedAt),
		BuyerID:         o.BuyerID,
		BuyerName:       o.BuyerName,
		BuyerPhone:      o.BuyerPhone,
		SellerName:      o.SellerName,
		StoreName:       o.StoreName,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		Items:           make([]OrderItem, 0, len(o.Items)),
	}
	if !o.UpdatedAt.IsZero() {
		out.UpdatedAt = NewTimestamp(o.UpdatedAt)
	}
	for _, item := range o.Items {
		if item == nil {
			continue
		}
		out.Items = append(out.Items, OrderItem{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductUnitName: item.ProductUnitName,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}
	return out
}

// FromSummary maps an order summary onto a sparse wire order, enough for
// statistics.
func FromSummary(s entity.Summary) Order {
	return Order{
		ID:          s.ID,
		Status:      string(s.Status),
		TotalAmount: s.TotalAmount,
		CreatedAt:   NewTimestamp(s.CreatedAt),
		Items:       []OrderItem{},
	}
}
