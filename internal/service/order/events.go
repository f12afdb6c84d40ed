package order

import "time"

// Event types published on the order topic.
const (
	EventOrderCreated  = "order.created"
	EventStatusChanged = "order.status_changed"
)

// HeaderEventType carries Event.Type on the message so consumers can route
// without decoding the payload.
const HeaderEventType = "event-type"

// Event is emitted whenever an order is created or changes status.
type Event struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	TotalAmount    int64     `json:"totalAmount"`
	OccurredAt     time.Time `json:"occurredAt"`
}
