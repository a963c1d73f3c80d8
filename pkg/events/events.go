package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange names
const (
	ExchangeOrders   = "orders.events"
	ExchangePayments = "payments.events"
)

// Routing keys
const (
	RoutingKeyOrderCreated   = "order.created"
	RoutingKeyOrderPaid      = "order.paid"
	RoutingKeyOrderShipped   = "order.shipped"
	RoutingKeyOrderDelivered = "order.delivered"
	RoutingKeyOrderCancelled = "order.cancelled"
	RoutingKeyOrderRefunded  = "order.refunded"
	RoutingKeyPaymentFailed  = "payment.failed"
)

// OrderEvent is the envelope for all order lifecycle events
type OrderEvent struct {
	Version   string       `json:"version"`
	EventType string       `json:"event_type"`
	Timestamp time.Time    `json:"timestamp"`
	TraceID   string       `json:"trace_id"`
	Payload   OrderPayload `json:"payload"`
}

// OrderPayload contains the order data carried by lifecycle events
type OrderPayload struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewOrderEvent creates a lifecycle event for an order
func NewOrderEvent(eventType, orderID, orderNumber, userID, status string, total decimal.Decimal, traceID string) *OrderEvent {
	return &OrderEvent{
		Version:   "1.0",
		EventType: eventType,
		Timestamp: time.Now(),
		TraceID:   traceID,
		Payload: OrderPayload{
			OrderID:     orderID,
			OrderNumber: orderNumber,
			UserID:      userID,
			Status:      status,
			Total:       total,
			OccurredAt:  time.Now(),
		},
	}
}

// PaymentFailedEvent is published when a payment attempt fails
type PaymentFailedEvent struct {
	Version   string               `json:"version"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	TraceID   string               `json:"trace_id"`
	Payload   PaymentFailedPayload `json:"payload"`
}

// PaymentFailedPayload contains the failure details
type PaymentFailedPayload struct {
	OrderID      string `json:"order_id"`
	UserID       string `json:"user_id"`
	IntentID     string `json:"intent_id"`
	Method       string `json:"method"`
	ErrorMessage string `json:"error_message"`
}

// NewPaymentFailedEvent creates a payment failure event
func NewPaymentFailedEvent(orderID, userID, intentID, method, errorMessage, traceID string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		Version:   "1.0",
		EventType: "payment.failed",
		Timestamp: time.Now(),
		TraceID:   traceID,
		Payload: PaymentFailedPayload{
			OrderID:      orderID,
			UserID:       userID,
			IntentID:     intentID,
			Method:       method,
			ErrorMessage: errorMessage,
		},
	}
}
