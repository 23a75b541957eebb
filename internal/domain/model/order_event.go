package model

import "time"

type OrderEventType string

const (
	OrderEventPaid   OrderEventType = "order.paid"
	OrderEventFailed OrderEventType = "order.failed"
)

// 決済確定後に外へ流すイベント
type OrderEvent struct {
	EventID       string         `json:"event_id"`
	Type          OrderEventType `json:"type"`
	OrderID       string         `json:"order_id"`
	Status        OrderStatus    `json:"status"`
	TotalMinor    int64          `json:"total_minor"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
	CustomerEmail string         `json:"customer_email"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
