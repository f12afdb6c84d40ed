package entity

import "fmt"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusPaid      Status = "Paid"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusPaid, StatusCompleted, StatusCancelled}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusCompleted},
}

var labels = map[Status]string{
	StatusPending:   "Chờ xác nhận",
	StatusConfirmed: "Đã xác nhận",
	StatusPaid:      "Đã thanh toán",
	StatusCompleted: "Hoàn thành",
	StatusCancelled: "Đã hủy",
}

// ParseStatus validates a raw status value against the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Paid reports whether the order has received payment and counts toward revenue.
func (s Status) Paid() bool {
	return s == StatusPaid || s == StatusCompleted
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Label is the Vietnamese display label used in exports.
func (s Status) Label() string {
	if label, ok := labels[s]; ok {
		return label
	}
	return string(s)
}
