package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of an order. payment_failed is
// part of this enum; there is no separate payment status field.
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusProcessing    Status = "processing"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
	StatusPaymentFailed Status = "payment_failed"
)

// allowedTransitions is the legal-predecessor table for Transition.
// MarkDelivered bypasses it for non-terminal states: delivery is
// authoritative over intermediate processing/shipped states.
var allowedTransitions = map[Status][]Status{
	StatusPending:       {StatusConfirmed, StatusProcessing, StatusCancelled, StatusPaymentFailed},
	StatusPaymentFailed: {StatusPending, StatusConfirmed, StatusProcessing, StatusCancelled},
	StatusConfirmed:     {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusProcessing:    {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:       {StatusDelivered, StatusCancelled},
	StatusDelivered:     {StatusRefunded},
	StatusCancelled:     {StatusRefunded},
	StatusRefunded:      {},
}

// IsTerminal reports whether no further transitions are possible from s
// other than refund
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// PaymentMethod is the fixed enumeration of ways an order can be paid
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCOD    PaymentMethod = "cod"
)

// ParsePaymentMethod validates a payment method string
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(s)) {
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodPayPal:
		return PaymentMethodPayPal, nil
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	case PaymentMethodCOD:
		return PaymentMethodCOD, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// OrderItem is an immutable snapshot of a product at order-creation time.
// It is never re-read from the current catalog price.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
	SellerID  string
}

// ShippingAddress is the embedded delivery address, set once at creation.
// State drives tax-rate resolution and may be empty outside the US.
type ShippingAddress struct {
	FullName   string
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentResult is populated only by payment-confirmation paths. The
// webhook processor and confirm endpoint are its only writers.
type PaymentResult struct {
	TransactionID string
	Status        string
	PaidAt        time.Time
	ErrorMessage  string
}

// StatusEntry is one record in the append-only status history
type StatusEntry struct {
	Status    Status
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

// Order is the aggregate root. All status mutations go through the
// transition methods below; statusHistory has no other writer.
type Order struct {
	ID              uuid.UUID
	UserID          string
	OrderItems      []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentResult   *PaymentResult

	// Money fields are computed once at creation and never re-derived
	// from OrderItems afterwards. They are the source of truth for the
	// amount charged.
	ItemsPrice     decimal.Decimal
	TaxPrice       decimal.Decimal
	ShippingPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalPrice     decimal.Decimal
	CouponCode     string

	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time

	Status        Status
	StatusHistory []StatusEntry

	TrackingNumber string
	CancelReason   string
	RefundAmount   decimal.Decimal
	RefundReason   string

	// Version supports optimistic concurrency: the repository only
	// persists mutations against the version it read.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder creates a pending order from item snapshots and computed totals
func NewOrder(
	userID string,
	items []OrderItem,
	address ShippingAddress,
	method PaymentMethod,
	itemsPrice, taxPrice, shippingPrice, discountAmount, totalPrice decimal.Decimal,
	couponCode string,
) (*Order, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if len(items) == 0 {
		return nil, ErrNoOrderItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return nil, ErrInvalidUnitPrice
		}
	}
	if address.FullName == "" || address.Address == "" || address.City == "" ||
		address.PostalCode == "" || address.Country == "" {
		return nil, ErrIncompleteAddress
	}
	if totalPrice.IsNegative() {
		return nil, ErrNegativeTotal
	}

	now := time.Now()
	order := &Order{
		ID:              uuid.New(),
		UserID:          userID,
		OrderItems:      items,
		ShippingAddress: address,
		PaymentMethod:   method,
		ItemsPrice:      itemsPrice,
		TaxPrice:        taxPrice,
		ShippingPrice:   shippingPrice,
		DiscountAmount:  discountAmount,
		TotalPrice:      totalPrice,
		CouponCode:      couponCode,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.appendHistory(StatusPending, "order created", userID)

	return order, nil
}

// Number returns the human-facing order number derived from the id's
// trailing characters
func (o *Order) Number() string {
	compact := strings.ReplaceAll(o.ID.String(), "-", "")
	return "ORD-" + strings.ToUpper(compact[len(compact)-8:])
}

// Transition moves the order to a new status, validating against the
// legal-predecessor table and appending exactly one history entry.
// This is the only write path for Status and StatusHistory.
func (o *Order) Transition(to Status, note, updatedBy string) error {
	if !o.canTransition(to) {
		return NewInvalidTransition(o.Status, to)
	}
	o.applyTransition(to, note, updatedBy)
	return nil
}

func (o *Order) canTransition(to Status) bool {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (o *Order) applyTransition(to Status, note, updatedBy string) {
	o.Status = to
	o.UpdatedAt = time.Now()
	o.appendHistory(to, note, updatedBy)
}

func (o *Order) appendHistory(status Status, note, updatedBy string) {
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: time.Now(),
		Note:      note,
		UpdatedBy: updatedBy,
	})
}

// MarkPaid records a successful payment. Idempotent: a replay against an
// already-paid order is a no-op reported via the applied flag, leaving
// PaidAt and the history untouched.
func (o *Order) MarkPaid(result PaymentResult, updatedBy string) (applied bool, err error) {
	if o.IsPaid {
		return false, nil
	}
	if !o.canTransition(StatusConfirmed) {
		return false, NewInvalidTransition(o.Status, StatusConfirmed)
	}

	o.PaymentResult = &result
	o.IsPaid = true
	if o.PaidAt == nil {
		paidAt := result.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		o.PaidAt = &paidAt
	}
	o.applyTransition(StatusConfirmed, "payment received", updatedBy)

	return true, nil
}

// MarkPaymentFailed records a failed payment attempt. Does not touch
// IsPaid. A replay against an order already in payment_failed is a no-op.
func (o *Order) MarkPaymentFailed(errorMessage, updatedBy string) (applied bool, err error) {
	if o.Status == StatusPaymentFailed {
		return false, nil
	}
	if !o.canTransition(StatusPaymentFailed) {
		return false, NewInvalidTransition(o.Status, StatusPaymentFailed)
	}

	if o.PaymentResult == nil {
		o.PaymentResult = &PaymentResult{}
	}
	o.PaymentResult.Status = "failed"
	o.PaymentResult.ErrorMessage = errorMessage
	o.applyTransition(StatusPaymentFailed, "payment failed: "+errorMessage, updatedBy)

	return true, nil
}

// Cancel moves the order to cancelled. Legal from any non-terminal state.
func (o *Order) Cancel(reason, updatedBy string) error {
	if o.Status.IsTerminal() {
		return NewInvalidTransition(o.Status, StatusCancelled)
	}

	o.CancelReason = reason
	o.applyTransition(StatusCancelled, "cancelled: "+reason, updatedBy)
	return nil
}

// MarkShipped transitions to shipped and records the tracking number
func (o *Order) MarkShipped(trackingNumber, updatedBy string) error {
	if err := o.Transition(StatusShipped, "shipped with tracking "+trackingNumber, updatedBy); err != nil {
		return err
	}
	o.TrackingNumber = trackingNumber
	return nil
}

// MarkDelivered forces status to delivered from any non-terminal state
// and sets the delivery timestamp exactly once. Re-delivery is a no-op.
func (o *Order) MarkDelivered(updatedBy string) (applied bool, err error) {
	if o.Status == StatusDelivered {
		return false, nil
	}
	if o.Status.IsTerminal() {
		return false, NewInvalidTransition(o.Status, StatusDelivered)
	}

	o.IsDelivered = true
	if o.DeliveredAt == nil {
		deliveredAt := time.Now()
		o.DeliveredAt = &deliveredAt
	}
	o.applyTransition(StatusDelivered, "order delivered", updatedBy)

	return true, nil
}

// Refund moves the order to refunded. Legal only from delivered or
// cancelled.
func (o *Order) Refund(amount decimal.Decimal, reason, updatedBy string) error {
	if o.Status != StatusDelivered && o.Status != StatusCancelled {
		return NewInvalidTransition(o.Status, StatusRefunded)
	}
	if amount.IsNegative() || amount.IsZero() {
		return ErrInvalidRefundAmount
	}
	if amount.GreaterThan(o.TotalPrice) {
		return ErrRefundExceedsTotal
	}

	o.RefundAmount = amount
	o.RefundReason = reason
	o.applyTransition(StatusRefunded, "refunded: "+reason, updatedBy)
	return nil
}
