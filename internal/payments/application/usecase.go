package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ordersdomain "storefront/internal/orders/domain"
	ordersports "storefront/internal/orders/ports"
	"storefront/internal/payments/domain"
	"storefront/internal/payments/ports"
	"storefront/internal/security"
	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

// PaymentUseCase drives the card/provider payment flow: intent creation
// ahead of client-side confirmation, and the synchronous confirm path
// that reconciles against the provider.
type PaymentUseCase struct {
	gateway             ports.Gateway
	orders              ports.OrderService
	users               ordersports.UserClient
	lockout             *security.Lockout
	risk                *security.RiskScorer
	attempts            security.Store
	supportedCurrencies []string
	log                 *logger.Logger
}

// NewPaymentUseCase creates a payment use case
func NewPaymentUseCase(
	gateway ports.Gateway,
	orders ports.OrderService,
	users ordersports.UserClient,
	lockout *security.Lockout,
	risk *security.RiskScorer,
	attempts security.Store,
	supportedCurrencies []string,
	log *logger.Logger,
) *PaymentUseCase {
	return &PaymentUseCase{
		gateway:             gateway,
		orders:              orders,
		users:               users,
		lockout:             lockout,
		risk:                risk,
		attempts:            attempts,
		supportedCurrencies: supportedCurrencies,
		log:                 log,
	}
}

// CreateIntentInput is the input for creating a payment intent
type CreateIntentInput struct {
	OrderID uuid.UUID
	UserID  string
	// Currency is the charge currency; it must be on the allowlist.
	Currency string
	// BillingCountry comes from the card billing details and feeds the
	// shipping/billing mismatch risk indicator.
	BillingCountry string
}

// CreateIntent creates a provider payment intent for an order. The
// decimal total converts to minor units here and nowhere else.
func (uc *PaymentUseCase) CreateIntent(ctx context.Context, input CreateIntentInput) (*domain.Intent, error) {
	if err := domain.ValidateCurrency(input.Currency, uc.supportedCurrencies); err != nil {
		return nil, err
	}

	if err := uc.checkLockout(ctx, input.UserID); err != nil {
		return nil, err
	}

	order, err := uc.orders.GetOrder(ctx, input.OrderID, input.UserID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, errors.NewConflict("order is already paid")
	}

	method, err := domain.MethodFor(string(order.PaymentMethod))
	if err != nil {
		return nil, err
	}
	if method.Settlement() != domain.SettleByWebhook {
		return nil, errors.NewValidation("order is not payable through the card provider", map[string]interface{}{
			"payment_method": method.Name(),
		})
	}

	uc.scoreAttempt(ctx, order, input.BillingCountry)

	intent, err := uc.gateway.CreateIntent(ctx, ports.CreateIntentParams{
		Amount:   domain.MinorUnits(order.TotalPrice),
		Currency: input.Currency,
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.Number(),
			"user_id":      order.UserID,
		},
	})
	if err != nil {
		uc.recordFailure(ctx, input.UserID)
		return nil, err
	}

	uc.log.WithContext(ctx).Info("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("order_id", order.ID.String()),
		zap.Int64("amount", intent.Amount),
		zap.String("currency", intent.Currency),
	)
	return intent, nil
}

// ConfirmPayment reconciles an intent against the provider and marks the
// order paid. The provider's view of the intent is authoritative; the
// client only supplies the intent id.
func (uc *PaymentUseCase) ConfirmPayment(ctx context.Context, userID, intentID string) (*ordersdomain.Order, error) {
	if err := uc.checkLockout(ctx, userID); err != nil {
		return nil, err
	}

	intent, err := uc.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	orderID, err := uuid.Parse(intent.OrderID())
	if err != nil {
		return nil, errors.NewValidation("intent carries no usable order reference", nil)
	}

	if intent.Status != domain.IntentStatusSucceeded {
		uc.recordFailure(ctx, userID)
		return nil, errors.NewPaymentFailed("payment has not succeeded", nil)
	}

	_, err = uc.orders.ConfirmPaid(ctx, orderID, userID, ordersdomain.PaymentResult{
		TransactionID: intent.ID,
		Status:        intent.Status,
		PaidAt:        time.Now(),
	}, userID)
	if err != nil {
		return nil, err
	}

	if uc.lockout != nil {
		if err := uc.lockout.Clear(ctx, userID); err != nil {
			uc.log.WithContext(ctx).Error("failed to clear lockout counter", zap.Error(err))
		}
	}

	return uc.orders.GetOrder(ctx, orderID, userID)
}

// CreateCustomer creates a provider customer record for saved payment
// methods, seeded from the user service's view of the user.
func (uc *PaymentUseCase) CreateCustomer(ctx context.Context, userID string) (string, error) {
	user, err := uc.users.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := uc.gateway.CreateCustomer(ctx, user.Email, user.Name)
	if err != nil {
		return "", err
	}

	uc.log.WithContext(ctx).Info("provider customer created",
		zap.String("customer_id", customerID),
		zap.String("user_id", userID),
	)
	return customerID, nil
}

// AttachPaymentMethod saves a payment method against a provider customer
func (uc *PaymentUseCase) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	return uc.gateway.AttachPaymentMethod(ctx, paymentMethodID, customerID)
}

// DetachPaymentMethod removes a saved payment method
func (uc *PaymentUseCase) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return uc.gateway.DetachPaymentMethod(ctx, paymentMethodID)
}

func (uc *PaymentUseCase) checkLockout(ctx context.Context, userID string) error {
	if uc.lockout == nil {
		return nil
	}
	locked, remaining, err := uc.lockout.IsLocked(ctx, userID)
	if err != nil {
		uc.log.WithContext(ctx).Error("lockout check failed", zap.Error(err))
		return nil
	}
	if locked {
		return errors.NewRateLimited("too many failed payment attempts", int(remaining.Seconds())+1)
	}
	return nil
}

func (uc *PaymentUseCase) recordFailure(ctx context.Context, userID string) {
	if uc.lockout == nil {
		return
	}
	if _, err := uc.lockout.RecordFailure(ctx, userID); err != nil {
		uc.log.WithContext(ctx).Error("failed to record payment failure", zap.Error(err))
	}
}

// scoreAttempt computes the advisory risk score for one payment attempt.
// The score is logged for operator review, never enforced here.
func (uc *PaymentUseCase) scoreAttempt(ctx context.Context, order *ordersdomain.Order, billingCountry string) {
	if uc.risk == nil {
		return
	}

	recentAttempts := 0
	if uc.attempts != nil {
		count, err := uc.attempts.Incr(ctx, "payment-attempts:"+order.UserID, time.Minute)
		if err != nil {
			uc.log.WithContext(ctx).Error("failed to count payment attempts", zap.Error(err))
		} else {
			recentAttempts = count
		}
	}

	score, reasons := uc.risk.Score(security.PaymentIndicators{
		Amount:          order.TotalPrice,
		RecentAttempts:  recentAttempts,
		ShippingCountry: order.ShippingAddress.Country,
		BillingCountry:  billingCountry,
	})
	if score > 0 {
		uc.log.WithContext(ctx).Warn("elevated payment risk score",
			zap.Int("score", score),
			zap.Strings("indicators", reasons),
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", order.UserID),
		)
	}
}
