package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront/internal/orders/domain"
	apperrors "storefront/pkg/errors"
)

// OrderModel is the GORM model for orders (persistence layer)
type OrderModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID string    `gorm:"index;not null"`

	ShipFullName   string `gorm:"not null"`
	ShipAddress    string `gorm:"not null"`
	ShipCity       string `gorm:"not null"`
	ShipState      string
	ShipPostalCode string `gorm:"not null"`
	ShipCountry    string `gorm:"not null"`
	ShipPhone      string

	PaymentMethod string `gorm:"size:20;not null"`

	PaymentTransactionID string
	PaymentStatus        string
	PaymentPaidAt        *time.Time
	PaymentErrorMessage  string

	ItemsPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CouponCode     string

	IsPaid      bool `gorm:"not null;default:false"`
	PaidAt      *time.Time
	IsDelivered bool `gorm:"not null;default:false"`
	DeliveredAt *time.Time

	Status string `gorm:"size:20;not null;index"`

	TrackingNumber string
	CancelReason   string
	RefundAmount   decimal.Decimal `gorm:"type:decimal(12,2)"`
	RefundReason   string

	Version   int       `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Items   []OrderItemModel    `gorm:"foreignKey:OrderID"`
	History []OrderHistoryModel `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is the GORM model for line item snapshots. Rows are
// inserted at order creation and never updated.
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	ProductID string          `gorm:"not null"`
	Name      string          `gorm:"not null"`
	Image     string
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity  int             `gorm:"not null"`
	SellerID  string
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderHistoryModel is the GORM model for the append-only status history
type OrderHistoryModel struct {
	ID        uint      `gorm:"primaryKey"`
	OrderID   uuid.UUID `gorm:"type:uuid;index;not null"`
	Seq       int       `gorm:"not null"`
	Status    string    `gorm:"size:20;not null"`
	Timestamp time.Time `gorm:"not null"`
	Note      string
	UpdatedBy string
}

// TableName returns the table name for GORM
func (OrderHistoryModel) TableName() string {
	return "order_status_history"
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *gorm.DB
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository
func NewPostgresOrderRepository(db *gorm.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Migrate runs auto-migration for the order models
func (r *PostgresOrderRepository) Migrate() error {
	return r.db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &OrderHistoryModel{})
}

// Create persists a new order with items and initial history
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toModel(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		for _, item := range toItemModels(order) {
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}
		for _, entry := range toHistoryModels(order, 0) {
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternal("failed to create order", err)
	}

	order.Version = model.Version
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves an order by ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var model OrderModel

	result := r.db.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.NewOrderNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get order", result.Error)
	}

	return toDomain(&model), nil
}

// GetByUserID retrieves orders for a user, newest first
func (r *PostgresOrderRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel

	result := r.db.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, apperrors.NewInternal("failed to get orders by user", result.Error)
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = toDomain(&models[i])
	}

	return orders, nil
}

// Update persists mutations conditionally on the version the order was
// read at. Item snapshots are never rewritten; history rows are only
// appended. Returns CONFLICT when a concurrent writer won the race.
func (r *PostgresOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       string(order.Status),
			"is_paid":      order.IsPaid,
			"paid_at":      order.PaidAt,
			"is_delivered": order.IsDelivered,
			"delivered_at": order.DeliveredAt,

			"tracking_number": order.TrackingNumber,
			"cancel_reason":   order.CancelReason,
			"refund_amount":   order.RefundAmount,
			"refund_reason":   order.RefundReason,

			"version":    order.Version + 1,
			"updated_at": time.Now(),
		}
		if order.PaymentResult != nil {
			updates["payment_transaction_id"] = order.PaymentResult.TransactionID
			updates["payment_status"] = order.PaymentResult.Status
			updates["payment_error_message"] = order.PaymentResult.ErrorMessage
			if !order.PaymentResult.PaidAt.IsZero() {
				paidAt := order.PaymentResult.PaidAt
				updates["payment_paid_at"] = &paidAt
			}
		}

		result := tx.Model(&OrderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewConflict("order was modified concurrently")
		}

		// Append history entries not yet persisted
		var persisted int64
		if err := tx.Model(&OrderHistoryModel{}).
			Where("order_id = ?", order.ID).
			Count(&persisted).Error; err != nil {
			return err
		}
		for _, entry := range toHistoryModels(order, int(persisted)) {
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if apperrors.Is(err, apperrors.CodeConflict) {
			return err
		}
		return apperrors.NewInternal("failed to update order", err)
	}

	order.Version++
	return nil
}

// toModel converts a domain entity to a GORM model
func toModel(order *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:     order.ID,
		UserID: order.UserID,

		ShipFullName:   order.ShippingAddress.FullName,
		ShipAddress:    order.ShippingAddress.Address,
		ShipCity:       order.ShippingAddress.City,
		ShipState:      order.ShippingAddress.State,
		ShipPostalCode: order.ShippingAddress.PostalCode,
		ShipCountry:    order.ShippingAddress.Country,
		ShipPhone:      order.ShippingAddress.Phone,

		PaymentMethod: string(order.PaymentMethod),

		ItemsPrice:     order.ItemsPrice,
		TaxPrice:       order.TaxPrice,
		ShippingPrice:  order.ShippingPrice,
		DiscountAmount: order.DiscountAmount,
		TotalPrice:     order.TotalPrice,
		CouponCode:     order.CouponCode,

		IsPaid:      order.IsPaid,
		PaidAt:      order.PaidAt,
		IsDelivered: order.IsDelivered,
		DeliveredAt: order.DeliveredAt,

		Status: string(order.Status),

		TrackingNumber: order.TrackingNumber,
		CancelReason:   order.CancelReason,
		RefundAmount:   order.RefundAmount,
		RefundReason:   order.RefundReason,

		Version:   1,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}

	if order.PaymentResult != nil {
		model.PaymentTransactionID = order.PaymentResult.TransactionID
		model.PaymentStatus = order.PaymentResult.Status
		model.PaymentErrorMessage = order.PaymentResult.ErrorMessage
		if !order.PaymentResult.PaidAt.IsZero() {
			paidAt := order.PaymentResult.PaidAt
			model.PaymentPaidAt = &paidAt
		}
	}

	return model
}

func toItemModels(order *domain.Order) []OrderItemModel {
	items := make([]OrderItemModel, len(order.OrderItems))
	for i, item := range order.OrderItems {
		items[i] = OrderItemModel{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			SellerID:  item.SellerID,
		}
	}
	return items
}

func toHistoryModels(order *domain.Order, from int) []OrderHistoryModel {
	var entries []OrderHistoryModel
	for i := from; i < len(order.StatusHistory); i++ {
		entry := order.StatusHistory[i]
		entries = append(entries, OrderHistoryModel{
			OrderID:   order.ID,
			Seq:       i,
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	return entries
}

// toDomain converts a GORM model to a domain entity
func toDomain(model *OrderModel) *domain.Order {
	order := &domain.Order{
		ID:     model.ID,
		UserID: model.UserID,
		ShippingAddress: domain.ShippingAddress{
			FullName:   model.ShipFullName,
			Address:    model.ShipAddress,
			City:       model.ShipCity,
			State:      model.ShipState,
			PostalCode: model.ShipPostalCode,
			Country:    model.ShipCountry,
			Phone:      model.ShipPhone,
		},
		PaymentMethod: domain.PaymentMethod(model.PaymentMethod),

		ItemsPrice:     model.ItemsPrice,
		TaxPrice:       model.TaxPrice,
		ShippingPrice:  model.ShippingPrice,
		DiscountAmount: model.DiscountAmount,
		TotalPrice:     model.TotalPrice,
		CouponCode:     model.CouponCode,

		IsPaid:      model.IsPaid,
		PaidAt:      model.PaidAt,
		IsDelivered: model.IsDelivered,
		DeliveredAt: model.DeliveredAt,

		Status: domain.Status(model.Status),

		TrackingNumber: model.TrackingNumber,
		CancelReason:   model.CancelReason,
		RefundAmount:   model.RefundAmount,
		RefundReason:   model.RefundReason,

		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}

	if model.PaymentTransactionID != "" || model.PaymentStatus != "" || model.PaymentErrorMessage != "" {
		order.PaymentResult = &domain.PaymentResult{
			TransactionID: model.PaymentTransactionID,
			Status:        model.PaymentStatus,
			ErrorMessage:  model.PaymentErrorMessage,
		}
		if model.PaymentPaidAt != nil {
			order.PaymentResult.PaidAt = *model.PaymentPaidAt
		}
	}

	order.OrderItems = make([]domain.OrderItem, len(model.Items))
	for i, item := range model.Items {
		order.OrderItems[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			SellerID:  item.SellerID,
		}
	}

	order.StatusHistory = make([]domain.StatusEntry, len(model.History))
	for i, entry := range model.History {
		order.StatusHistory[i] = domain.StatusEntry{
			Status:    domain.Status(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		}
	}

	return order
}
