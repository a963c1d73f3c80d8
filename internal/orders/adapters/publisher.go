package adapters

import (
	"context"

	"storefront/internal/orders/domain"
	"storefront/pkg/events"
	"storefront/pkg/logger"
	"storefront/pkg/rabbitmq"
)

// RabbitMQPublisher implements EventPublisher using RabbitMQ
type RabbitMQPublisher struct {
	publisher *rabbitmq.Publisher
	log       *logger.Logger
}

// NewRabbitMQPublisher creates a new RabbitMQ event publisher
func NewRabbitMQPublisher(publisher *rabbitmq.Publisher, log *logger.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		publisher: publisher,
		log:       log,
	}
}

// PublishOrderEvent publishes an order lifecycle event
func (p *RabbitMQPublisher) PublishOrderEvent(ctx context.Context, routingKey string, order *domain.Order) error {
	traceID := logger.GetTraceID(ctx)

	event := events.NewOrderEvent(
		routingKey,
		order.ID.String(),
		order.Number(),
		order.UserID,
		string(order.Status),
		order.TotalPrice,
		traceID,
	)

	return p.publisher.Publish(ctx, routingKey, event)
}
