package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ordersdomain "storefront/internal/orders/domain"
	"storefront/internal/payments/domain"
	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

// UPIOrchestrator runs the poll-based UPI settlement flow. There is no
// provider webhook: the client creates an intent, pays out-of-band in a
// UPI app, polls status, and triggers verification against the external
// channel. Local intent records are never authoritative.
type UPIOrchestrator struct {
	repo        ports.UPIIntentRepository
	verifier    ports.UPIVerifier
	orders      ports.OrderService
	failures    ports.PaymentEventPublisher
	merchantVPA string
	payeeName   string
	log         *logger.Logger

	now func() time.Time
}

// NewUPIOrchestrator creates a UPI orchestrator. failures may be nil
// when no broker is available.
func NewUPIOrchestrator(
	repo ports.UPIIntentRepository,
	verifier ports.UPIVerifier,
	orders ports.OrderService,
	failures ports.PaymentEventPublisher,
	merchantVPA, payeeName string,
	log *logger.Logger,
) *UPIOrchestrator {
	return &UPIOrchestrator{
		repo:        repo,
		verifier:    verifier,
		orders:      orders,
		failures:    failures,
		merchantVPA: merchantVPA,
		payeeName:   payeeName,
		log:         log,
		now:         time.Now,
	}
}

// UPICreateIntentInput is the input for creating a UPI intent
type UPICreateIntentInput struct {
	OrderID        uuid.UUID
	UserID         string
	Description    string
	CustomerHandle string
}

// UPIIntentOutput is a created or queried intent plus its renderings
type UPIIntentOutput struct {
	Intent   *domain.UPIIntent
	DeepLink string
	// QRPayload is the QR-encodable string; same content as DeepLink.
	QRPayload string
	AppLinks  map[string]string
}

// CreateIntent synthesizes a pending UPI intent for an order. The amount
// always comes from the order's committed total, never from the client.
func (o *UPIOrchestrator) CreateIntent(ctx context.Context, input UPICreateIntentInput) (*UPIIntentOutput, error) {
	order, err := o.orders.GetOrder(ctx, input.OrderID, input.UserID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, errors.NewConflict("order is already paid")
	}
	if order.PaymentMethod != ordersdomain.PaymentMethodUPI {
		return nil, errors.NewValidation("order is not a UPI order", map[string]interface{}{
			"payment_method": string(order.PaymentMethod),
		})
	}

	description := input.Description
	if description == "" {
		description = "Payment for " + order.Number()
	}

	intent, err := domain.NewUPIIntent(order.ID.String(), order.TotalPrice, description, input.CustomerHandle, o.now())
	if err != nil {
		return nil, err
	}

	if err := o.repo.Create(ctx, intent); err != nil {
		return nil, err
	}

	o.log.WithContext(ctx).Info("UPI intent created",
		zap.String("transaction_id", intent.TransactionID),
		zap.String("order_id", intent.OrderID),
		zap.String("amount", intent.Amount.StringFixed(2)),
	)
	return o.output(intent), nil
}

// GetStatus reports the intent's current status. Safe to poll: reads
// apply lazy expiry but are otherwise free of side effects.
func (o *UPIOrchestrator) GetStatus(ctx context.Context, transactionID string) (*UPIIntentOutput, error) {
	intent, err := o.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if intent.Status == domain.UPIStatusPending && intent.EffectiveStatus(o.now()) == domain.UPIStatusExpired {
		intent.Status = domain.UPIStatusExpired
		// Best effort; a lost race means another reader already flipped it.
		if _, err := o.repo.TransitionStatus(ctx, intent, domain.UPIStatusPending); err != nil {
			o.log.WithContext(ctx).Error("failed to persist UPI intent expiry",
				zap.Error(err),
				zap.String("transaction_id", intent.TransactionID),
			)
		}
	}

	return o.output(intent), nil
}

// Verify runs one authoritative verification attempt against the
// external channel and settles the order on completion. Expired intents
// are never verified; a late out-of-band payment is not honored.
func (o *UPIOrchestrator) Verify(ctx context.Context, transactionID, providerTxnID string) (*UPIIntentOutput, error) {
	intent, err := o.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	switch intent.EffectiveStatus(o.now()) {
	case domain.UPIStatusPending:
	case domain.UPIStatusCompleted:
		// Verification replay; the earlier attempt already settled.
		return o.output(intent), nil
	case domain.UPIStatusExpired:
		intent.Status = domain.UPIStatusExpired
		if _, err := o.repo.TransitionStatus(ctx, intent, domain.UPIStatusPending); err != nil {
			o.log.WithContext(ctx).Error("failed to persist UPI intent expiry",
				zap.Error(err),
				zap.String("transaction_id", intent.TransactionID),
			)
		}
		return nil, errors.NewPaymentFailed("payment intent has expired", nil)
	default:
		return nil, errors.NewPaymentFailed("payment intent is not pending", nil)
	}

	result, err := o.verifier.Verify(ctx, transactionID, providerTxnID)
	if err != nil {
		return nil, err
	}

	if !result.Completed {
		if failErr := intent.Fail(o.now()); failErr != nil {
			return nil, failErr
		}
		if _, err := o.repo.TransitionStatus(ctx, intent, domain.UPIStatusPending); err != nil {
			return nil, err
		}
		o.recordOrderFailure(ctx, intent, result.FailureReason)
		return o.output(intent), nil
	}

	if err := intent.Complete(result.ProviderTxnID, o.now()); err != nil {
		return nil, err
	}

	won, err := o.repo.TransitionStatus(ctx, intent, domain.UPIStatusPending)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent verification settled first; re-read and report.
		return o.GetStatus(ctx, transactionID)
	}

	o.settleOrder(ctx, intent)
	return o.output(intent), nil
}

// settleOrder marks the order paid after a completed verification. The
// order-side idempotency makes a duplicate settlement a no-op.
func (o *UPIOrchestrator) settleOrder(ctx context.Context, intent *domain.UPIIntent) {
	orderID, err := uuid.Parse(intent.OrderID)
	if err != nil {
		o.log.WithContext(ctx).Error("UPI intent carries no usable order reference",
			zap.String("transaction_id", intent.TransactionID),
			zap.String("order_id", intent.OrderID),
		)
		return
	}

	paidAt := o.now()
	if intent.CompletedAt != nil {
		paidAt = *intent.CompletedAt
	}

	applied, err := o.orders.ConfirmPaid(ctx, orderID, "", ordersdomain.PaymentResult{
		TransactionID: intent.TransactionID,
		Status:        string(domain.UPIStatusCompleted),
		PaidAt:        paidAt,
	}, "upi")
	if err != nil {
		o.log.WithContext(ctx).Error("failed to settle order after UPI verification",
			zap.Error(err),
			zap.String("transaction_id", intent.TransactionID),
			zap.String("order_id", intent.OrderID),
		)
		return
	}
	if !applied {
		o.log.WithContext(ctx).Info("order already settled for UPI transaction",
			zap.String("transaction_id", intent.TransactionID),
			zap.String("order_id", intent.OrderID),
		)
	}
}

func (o *UPIOrchestrator) recordOrderFailure(ctx context.Context, intent *domain.UPIIntent, reason string) {
	orderID, err := uuid.Parse(intent.OrderID)
	if err != nil {
		return
	}
	if reason == "" {
		reason = "UPI verification failed"
	}
	if err := o.orders.RecordPaymentFailure(ctx, orderID, reason, "upi"); err != nil {
		o.log.WithContext(ctx).Error("failed to record UPI payment failure",
			zap.Error(err),
			zap.String("transaction_id", intent.TransactionID),
			zap.String("order_id", intent.OrderID),
		)
		return
	}

	if o.failures == nil {
		return
	}
	userID := ""
	if order, getErr := o.orders.GetOrder(ctx, orderID, ""); getErr == nil {
		userID = order.UserID
	}
	err = o.failures.PublishPaymentFailed(ctx, ports.PaymentFailure{
		OrderID:      intent.OrderID,
		UserID:       userID,
		IntentID:     intent.TransactionID,
		Method:       "upi",
		ErrorMessage: reason,
	})
	if err != nil {
		o.log.WithContext(ctx).Error("failed to publish payment failure event",
			zap.Error(err),
			zap.String("transaction_id", intent.TransactionID),
		)
	}
}

func (o *UPIOrchestrator) output(intent *domain.UPIIntent) *UPIIntentOutput {
	link := intent.DeepLink(o.merchantVPA, o.payeeName)
	return &UPIIntentOutput{
		Intent:    intent,
		DeepLink:  link,
		QRPayload: link,
		AppLinks:  intent.AppLinks(o.merchantVPA, o.payeeName),
	}
}
