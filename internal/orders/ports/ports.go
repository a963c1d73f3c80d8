package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/orders/domain"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create persists a new order with its item snapshots and initial history
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// GetByUserID retrieves orders for a user, newest first
	GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error)

	// Update persists mutations against the version the order was read at.
	// Returns a CONFLICT error when a concurrent writer got there first;
	// item snapshots are never rewritten and history rows are only appended.
	Update(ctx context.Context, order *domain.Order) error
}

// EventPublisher defines the interface for publishing order lifecycle events
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, routingKey string, order *domain.Order) error
}

// ProductInfo is the read-only catalog snapshot used to build order items
type ProductInfo struct {
	ID       string
	Name     string
	Image    string
	Price    decimal.Decimal
	SellerID string
}

// ProductClient is the external catalog lookup collaborator
type ProductClient interface {
	GetProduct(ctx context.Context, id string) (*ProductInfo, error)
}

// UserInfo is the read-only user snapshot used for payment metadata
type UserInfo struct {
	ID    string
	Name  string
	Email string
}

// UserClient is the external user lookup collaborator
type UserClient interface {
	GetUser(ctx context.Context, id string) (*UserInfo, error)
}
