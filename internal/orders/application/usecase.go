package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/orders/domain"
	"storefront/internal/orders/ports"
	"storefront/internal/pricing"
	"storefront/pkg/errors"
	"storefront/pkg/events"
	"storefront/pkg/logger"
)

// OrderUseCase handles order business logic
type OrderUseCase struct {
	repo      ports.OrderRepository
	publisher ports.EventPublisher
	products  ports.ProductClient
	log       *logger.Logger
}

// NewOrderUseCase creates a new order use case
func NewOrderUseCase(
	repo ports.OrderRepository,
	publisher ports.EventPublisher,
	products ports.ProductClient,
	log *logger.Logger,
) *OrderUseCase {
	return &OrderUseCase{
		repo:      repo,
		publisher: publisher,
		products:  products,
		log:       log,
	}
}

// CreateOrderItemInput is one requested line in a new order
type CreateOrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput represents the input for creating an order
type CreateOrderInput struct {
	UserID          string
	Items           []CreateOrderItemInput
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	ShippingMethod  string
}

// CreateOrderOutput represents the output of creating an order
type CreateOrderOutput struct {
	Order *domain.Order
	// CouponError is set when the supplied coupon was rejected; the order
	// is still created without the discount.
	CouponError string
}

// CreateOrder snapshots catalog products into line items, computes totals
// once, and persists the order. The money fields written here are never
// re-derived afterwards.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderOutput, error) {
	method, err := domain.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, domain.ErrNoOrderItems
	}

	orderItems := make([]domain.OrderItem, 0, len(input.Items))
	lineItems := make([]pricing.LineItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}

		product, err := uc.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return nil, errors.NewValidation("product not found", map[string]interface{}{
					"product_id": item.ProductID,
				})
			}
			return nil, errors.Wrap(err, "failed to look up product")
		}

		orderItems = append(orderItems, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			SellerID:  product.SellerID,
		})
		lineItems = append(lineItems, pricing.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
	}

	totals := pricing.ComputeTotalsWithShipping(
		lineItems,
		pricing.Address{State: input.ShippingAddress.State, Country: input.ShippingAddress.Country},
		input.CouponCode,
		input.ShippingMethod,
	)

	order, err := domain.NewOrder(
		input.UserID,
		orderItems,
		input.ShippingAddress,
		method,
		totals.ItemsPrice,
		totals.TaxPrice,
		totals.ShippingPrice,
		totals.DiscountAmount,
		totals.TotalPrice,
		totals.CouponCode,
	)
	if err != nil {
		return nil, err
	}

	if err := uc.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	uc.publish(ctx, events.RoutingKeyOrderCreated, order)

	uc.log.WithContext(ctx).Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.Number()),
		zap.String("user_id", order.UserID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.String("total", order.TotalPrice.String()),
	)

	return &CreateOrderOutput{Order: order, CouponError: totals.CouponError}, nil
}

// GetOrder retrieves an order. When userID is non-empty the order must
// belong to that user.
func (uc *OrderUseCase) GetOrder(ctx context.Context, id uuid.UUID, userID string) (*domain.Order, error) {
	order, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, errors.NewForbidden("order does not belong to the requesting user")
	}
	return order, nil
}

// ListOrders retrieves a user's orders, newest first
func (uc *OrderUseCase) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return uc.repo.GetByUserID(ctx, userID)
}

// CancelOrder cancels an order on behalf of its owner
func (uc *OrderUseCase) CancelOrder(ctx context.Context, id uuid.UUID, userID, reason string) (*domain.Order, error) {
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		if userID != "" && o.UserID != userID {
			return errors.NewForbidden("order does not belong to the requesting user")
		}
		return o.Cancel(reason, userID)
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.RoutingKeyOrderCancelled, order)
	return order, nil
}

// MarkShipped transitions an order to shipped with a tracking number
func (uc *OrderUseCase) MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber, updatedBy string) (*domain.Order, error) {
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		return o.MarkShipped(trackingNumber, updatedBy)
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.RoutingKeyOrderShipped, order)
	return order, nil
}

// MarkDelivered marks an order delivered
func (uc *OrderUseCase) MarkDelivered(ctx context.Context, id uuid.UUID, updatedBy string) (*domain.Order, error) {
	var applied bool
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		var err error
		applied, err = o.MarkDelivered(updatedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		uc.publish(ctx, events.RoutingKeyOrderDelivered, order)
	}
	return order, nil
}

// RefundOrder refunds an order
func (uc *OrderUseCase) RefundOrder(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason, updatedBy string) (*domain.Order, error) {
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		return o.Refund(amount, reason, updatedBy)
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.RoutingKeyOrderRefunded, order)
	return order, nil
}

// ConfirmPaid records a successful payment against an order. Idempotent:
// a replayed confirmation reports applied=false and leaves the order
// untouched. Callers pass userID="" for provider-driven paths (webhooks).
func (uc *OrderUseCase) ConfirmPaid(ctx context.Context, id uuid.UUID, userID string, result domain.PaymentResult, updatedBy string) (applied bool, err error) {
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		if userID != "" && o.UserID != userID {
			return errors.NewForbidden("order does not belong to the requesting user")
		}
		var err error
		applied, err = o.MarkPaid(result, updatedBy)
		return err
	})
	if err != nil {
		return false, err
	}

	if applied {
		uc.publish(ctx, events.RoutingKeyOrderPaid, order)
		uc.log.WithContext(ctx).Info("order paid",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", result.TransactionID),
		)
	} else {
		uc.log.WithContext(ctx).Info("duplicate payment confirmation ignored",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", result.TransactionID),
		)
	}

	return applied, nil
}

// RecordPaymentFailure records a failed payment attempt against an order
func (uc *OrderUseCase) RecordPaymentFailure(ctx context.Context, id uuid.UUID, errorMessage, updatedBy string) error {
	order, err := uc.mutate(ctx, id, func(o *domain.Order) error {
		_, err := o.MarkPaymentFailed(errorMessage, updatedBy)
		return err
	})
	if err != nil {
		return err
	}

	uc.publish(ctx, events.RoutingKeyPaymentFailed, order)
	return nil
}

// mutate loads an order, applies fn, and persists with the optimistic
// version check. A single retry absorbs races with concurrent writers;
// the domain's idempotency rules make the retry safe.
func (uc *OrderUseCase) mutate(ctx context.Context, id uuid.UUID, fn func(*domain.Order) error) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		order, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(order); err != nil {
			return nil, err
		}

		err = uc.repo.Update(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, errors.CodeConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (uc *OrderUseCase) publish(ctx context.Context, routingKey string, order *domain.Order) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.PublishOrderEvent(ctx, routingKey, order); err != nil {
		uc.log.WithContext(ctx).Error("failed to publish order event",
			zap.Error(err),
			zap.String("routing_key", routingKey),
			zap.String("order_id", order.ID.String()),
		)
	}
}
