package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"

	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
)

// DeadLetterModel is the persistence model for unprocessable webhook
// events. Rows are written for manual reconciliation, never replayed
// automatically.
type DeadLetterModel struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"size:128;index;not null"`
	EventType string `gorm:"size:64;not null"`
	OrderID   string `gorm:"size:64;index"`
	Payload   []byte `gorm:"type:bytea"`
	Reason    string `gorm:"size:1024"`
	CreatedAt time.Time
}

// TableName specifies the table name
func (DeadLetterModel) TableName() string {
	return "webhook_dead_letters"
}

// PostgresDeadLetterStore implements DeadLetterStore with gorm
type PostgresDeadLetterStore struct {
	db *gorm.DB
}

// NewPostgresDeadLetterStore creates a new store
func NewPostgresDeadLetterStore(db *gorm.DB) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{db: db}
}

// Migrate runs the schema migration
func (s *PostgresDeadLetterStore) Migrate() error {
	return s.db.AutoMigrate(&DeadLetterModel{})
}

// Store durably records an acknowledged-but-unprocessed event
func (s *PostgresDeadLetterStore) Store(ctx context.Context, letter ports.DeadLetter) error {
	model := &DeadLetterModel{
		EventID:   letter.EventID,
		EventType: letter.EventType,
		OrderID:   letter.OrderID,
		Payload:   letter.Payload,
		Reason:    letter.Reason,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.NewInternal("failed to store dead letter", err)
	}
	return nil
}
