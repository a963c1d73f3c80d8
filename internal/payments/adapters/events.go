package adapters

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"storefront/internal/payments/ports"
	"storefront/internal/security"
	"storefront/pkg/events"
	"storefront/pkg/logger"
	"storefront/pkg/rabbitmq"
)

// RabbitMQPaymentPublisher publishes payment events to the payments
// exchange
type RabbitMQPaymentPublisher struct {
	publisher *rabbitmq.Publisher
	log       *logger.Logger
}

// NewRabbitMQPaymentPublisher creates a new payment event publisher
func NewRabbitMQPaymentPublisher(publisher *rabbitmq.Publisher, log *logger.Logger) *RabbitMQPaymentPublisher {
	return &RabbitMQPaymentPublisher{
		publisher: publisher,
		log:       log,
	}
}

// PublishPaymentFailed publishes a payment failure event
func (p *RabbitMQPaymentPublisher) PublishPaymentFailed(ctx context.Context, failure ports.PaymentFailure) error {
	event := events.NewPaymentFailedEvent(
		failure.OrderID,
		failure.UserID,
		failure.IntentID,
		failure.Method,
		failure.ErrorMessage,
		logger.GetTraceID(ctx),
	)
	return p.publisher.Publish(ctx, events.RoutingKeyPaymentFailed, event)
}

// PaymentFailureConsumer feeds payment failure events into the lockout
// counter so failures reported asynchronously by the provider count
// against the same threshold as synchronous declines.
type PaymentFailureConsumer struct {
	consumer *rabbitmq.Consumer
	lockout  *security.Lockout
	log      *logger.Logger
}

// NewPaymentFailureConsumer creates a consumer for payment failure events
func NewPaymentFailureConsumer(conn *rabbitmq.Connection, lockout *security.Lockout, log *logger.Logger) (*PaymentFailureConsumer, error) {
	consumer, err := rabbitmq.NewConsumer(
		conn,
		"payments.failures",
		events.ExchangePayments,
		[]string{events.RoutingKeyPaymentFailed},
		log,
	)
	if err != nil {
		return nil, err
	}

	return &PaymentFailureConsumer{
		consumer: consumer,
		lockout:  lockout,
		log:      log,
	}, nil
}

// Start starts consuming payment failure events
func (c *PaymentFailureConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *PaymentFailureConsumer) handleMessage(ctx context.Context, body []byte) error {
	var event events.PaymentFailedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.log.WithContext(ctx).Error("failed to unmarshal PaymentFailedEvent",
			zap.Error(err),
		)
		return err
	}

	if event.Payload.UserID == "" {
		return nil
	}

	locked, err := c.lockout.RecordFailure(ctx, event.Payload.UserID)
	if err != nil {
		c.log.WithContext(ctx).Error("failed to record payment failure",
			zap.Error(err),
			zap.String("user_id", event.Payload.UserID),
		)
		return err
	}

	c.log.WithContext(ctx).Info("recorded payment failure",
		zap.String("order_id", event.Payload.OrderID),
		zap.String("user_id", event.Payload.UserID),
		zap.String("method", event.Payload.Method),
		zap.Bool("locked", locked),
	)
	return nil
}
