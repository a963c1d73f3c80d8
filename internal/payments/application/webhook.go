package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/orders/domain"
	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

// Webhook event types dispatched by the processor
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// VerifySignature checks a provider webhook signature header against the
// raw request body. The signed payload is "{t}.{rawBody}" with HMAC-SHA256;
// the header carries a unix timestamp and one or more v1 candidates:
//
//	t=1712000000,v1=5257a8...,v1=old-key-sig...
//
// Comparison is constant-time. Signatures older than tolerance are
// rejected regardless of validity (replay protection).
func VerifySignature(secret string, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var timestamp int64 = -1
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.NewSignatureInvalid("malformed signature timestamp")
			}
			timestamp = parsed
		case "v1":
			candidates = append(candidates, v)
		}
	}

	if timestamp < 0 || len(candidates) == 0 {
		return errors.NewSignatureInvalid("malformed signature header")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return errors.NewSignatureInvalid("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return errors.NewSignatureInvalid("signature mismatch")
}

// webhookEvent is the provider's event envelope
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID        string            `json:"id"`
			Amount    int64             `json:"amount"`
			Currency  string            `json:"currency"`
			Status    string            `json:"status"`
			Metadata  map[string]string `json:"metadata"`
			LastError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
	Created int64 `json:"created"`
}

// WebhookProcessor verifies and dispatches provider webhook events
type WebhookProcessor struct {
	secret      string
	tolerance   time.Duration
	orders      ports.OrderService
	deadLetters ports.DeadLetterStore
	failures    ports.PaymentEventPublisher
	log         *logger.Logger

	// now is overridable in tests
	now func() time.Time
}

// NewWebhookProcessor creates a webhook processor. failures may be nil
// when no broker is available.
func NewWebhookProcessor(
	secret string,
	tolerance time.Duration,
	orders ports.OrderService,
	deadLetters ports.DeadLetterStore,
	failures ports.PaymentEventPublisher,
	log *logger.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		secret:      secret,
		tolerance:   tolerance,
		orders:      orders,
		deadLetters: deadLetters,
		failures:    failures,
		log:         log,
		now:         time.Now,
	}
}

// Process verifies the signature and applies the event to the matching
// order. A non-nil return means the caller must respond with an error;
// once the signature verifies and the event type is recognized, the
// event is acknowledged even if the order mutation fails. Such failures
// are dead-lettered for manual reconciliation instead of bouncing the
// delivery back to the provider.
func (p *WebhookProcessor) Process(ctx context.Context, body []byte, signatureHeader string) error {
	if err := VerifySignature(p.secret, signatureHeader, body, p.now(), p.tolerance); err != nil {
		p.log.WithContext(ctx).Error("webhook signature verification failed",
			zap.Error(err),
		)
		return err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return errors.NewValidation("malformed webhook payload", nil)
	}

	switch event.Type {
	case EventIntentSucceeded, EventIntentFailed, EventIntentCanceled:
	default:
		p.log.WithContext(ctx).Info("ignoring unhandled webhook event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	if err := p.apply(ctx, &event); err != nil {
		p.deadLetter(ctx, &event, body, err)
	}
	return nil
}

func (p *WebhookProcessor) apply(ctx context.Context, event *webhookEvent) error {
	orderIDRaw := event.Data.Object.Metadata["order_id"]
	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		// A local data inconsistency; the provider must not keep retrying.
		p.log.WithContext(ctx).Error("webhook intent carries no usable order reference",
			zap.String("event_id", event.ID),
			zap.String("intent_id", event.Data.Object.ID),
			zap.String("order_id", orderIDRaw),
		)
		return nil
	}

	switch event.Type {
	case EventIntentSucceeded:
		applied, err := p.orders.ConfirmPaid(ctx, orderID, "", domain.PaymentResult{
			TransactionID: event.Data.Object.ID,
			Status:        event.Data.Object.Status,
			PaidAt:        time.Unix(event.Created, 0),
		}, "webhook")
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				p.log.WithContext(ctx).Error("webhook references unknown order",
					zap.String("event_id", event.ID),
					zap.String("order_id", orderID.String()),
				)
				return nil
			}
			return err
		}
		if !applied {
			p.log.WithContext(ctx).Info("duplicate succeeded event ignored",
				zap.String("event_id", event.ID),
				zap.String("order_id", orderID.String()),
			)
		}
		return nil

	case EventIntentFailed:
		message := "payment failed"
		if event.Data.Object.LastError != nil && event.Data.Object.LastError.Message != "" {
			message = event.Data.Object.LastError.Message
		}
		err := p.orders.RecordPaymentFailure(ctx, orderID, message, "webhook")
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return nil
			}
			return err
		}
		p.publishFailure(ctx, orderID, event.Data.Object.ID, message)
		return nil

	case EventIntentCanceled:
		_, err := p.orders.CancelOrder(ctx, orderID, "", "payment canceled by provider")
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return nil
			}
			if errors.Is(err, errors.CodeInvalidTransition) {
				// Replayed cancellation of an already-cancelled order.
				if order, getErr := p.orders.GetOrder(ctx, orderID, ""); getErr == nil && order.Status == domain.StatusCancelled {
					p.log.WithContext(ctx).Info("duplicate canceled event ignored",
						zap.String("event_id", event.ID),
						zap.String("order_id", orderID.String()),
					)
					return nil
				}
			}
			return err
		}
		return nil
	}
	return nil
}

// publishFailure emits the failure for async consumers, most notably the
// lockout counter feed. Best effort.
func (p *WebhookProcessor) publishFailure(ctx context.Context, orderID uuid.UUID, intentID, message string) {
	if p.failures == nil {
		return
	}

	userID := ""
	if order, err := p.orders.GetOrder(ctx, orderID, ""); err == nil {
		userID = order.UserID
	}

	err := p.failures.PublishPaymentFailed(ctx, ports.PaymentFailure{
		OrderID:      orderID.String(),
		UserID:       userID,
		IntentID:     intentID,
		Method:       "card",
		ErrorMessage: message,
	})
	if err != nil {
		p.log.WithContext(ctx).Error("failed to publish payment failure event",
			zap.Error(err),
			zap.String("order_id", orderID.String()),
		)
	}
}

func (p *WebhookProcessor) deadLetter(ctx context.Context, event *webhookEvent, body []byte, cause error) {
	p.log.WithContext(ctx).Error("webhook mutation failed, dead-lettering event",
		zap.Error(cause),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	err := p.deadLetters.Store(ctx, ports.DeadLetter{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   event.Data.Object.Metadata["order_id"],
		Payload:   body,
		Reason:    cause.Error(),
	})
	if err != nil {
		p.log.WithContext(ctx).Error("failed to persist dead letter",
			zap.Error(err),
			zap.String("event_id", event.ID),
		)
	}
}
