package adapters

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront/internal/payments/domain"
	"storefront/internal/security"
	"storefront/pkg/errors"
)

// UPIIntentModel is the persistence model for UPI intents. The customer
// handle is stored encrypted; it never reaches the database in the clear.
type UPIIntentModel struct {
	TransactionID   string          `gorm:"primaryKey;size:64"`
	OrderID         string          `gorm:"size:64;index;not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency        string          `gorm:"size:8;not null"`
	Description     string          `gorm:"size:255"`
	EncryptedHandle string          `gorm:"size:512"`
	Status          string          `gorm:"size:16;not null;index"`
	ProviderTxnID   string          `gorm:"size:128"`
	CreatedAt       time.Time       `gorm:"not null"`
	ExpiresAt       time.Time       `gorm:"not null"`
	CompletedAt     *time.Time
}

// TableName specifies the table name
func (UPIIntentModel) TableName() string {
	return "upi_intents"
}

// PostgresUPIIntentRepository implements UPIIntentRepository with gorm
type PostgresUPIIntentRepository struct {
	db        *gorm.DB
	encryptor *security.Encryptor
}

// NewPostgresUPIIntentRepository creates a new repository
func NewPostgresUPIIntentRepository(db *gorm.DB, encryptor *security.Encryptor) *PostgresUPIIntentRepository {
	return &PostgresUPIIntentRepository{db: db, encryptor: encryptor}
}

// Migrate runs the schema migration
func (r *PostgresUPIIntentRepository) Migrate() error {
	return r.db.AutoMigrate(&UPIIntentModel{})
}

// Create persists a new intent
func (r *PostgresUPIIntentRepository) Create(ctx context.Context, intent *domain.UPIIntent) error {
	model, err := r.toModel(intent)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.NewInternal("failed to create UPI intent", err)
	}
	return nil
}

// GetByTransactionID retrieves an intent by its transaction id
func (r *PostgresUPIIntentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.UPIIntent, error) {
	var model UPIIntentModel
	err := r.db.WithContext(ctx).First(&model, "transaction_id = ?", transactionID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFound("UPI intent", transactionID)
		}
		return nil, errors.NewInternal("failed to get UPI intent", err)
	}
	return r.toDomain(&model)
}

// TransitionStatus persists a status change conditionally on the stored
// status still being from. A false return means a concurrent writer
// transitioned the intent first.
func (r *PostgresUPIIntentRepository) TransitionStatus(ctx context.Context, intent *domain.UPIIntent, from domain.UPIStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&UPIIntentModel{}).
		Where("transaction_id = ? AND status = ?", intent.TransactionID, string(from)).
		Updates(map[string]interface{}{
			"status":          string(intent.Status),
			"provider_txn_id": intent.ProviderTxnID,
			"completed_at":    intent.CompletedAt,
		})
	if result.Error != nil {
		return false, errors.NewInternal("failed to update UPI intent", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *PostgresUPIIntentRepository) toModel(intent *domain.UPIIntent) (*UPIIntentModel, error) {
	model := &UPIIntentModel{
		TransactionID: intent.TransactionID,
		OrderID:       intent.OrderID,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Description:   intent.Description,
		Status:        string(intent.Status),
		ProviderTxnID: intent.ProviderTxnID,
		CreatedAt:     intent.CreatedAt,
		ExpiresAt:     intent.ExpiresAt,
		CompletedAt:   intent.CompletedAt,
	}
	if intent.CustomerHandle != "" {
		encrypted, err := r.encryptor.Encrypt(intent.CustomerHandle)
		if err != nil {
			return nil, errors.NewInternal("failed to encrypt customer handle", err)
		}
		model.EncryptedHandle = encrypted
	}
	return model, nil
}

func (r *PostgresUPIIntentRepository) toDomain(model *UPIIntentModel) (*domain.UPIIntent, error) {
	intent := &domain.UPIIntent{
		TransactionID: model.TransactionID,
		OrderID:       model.OrderID,
		Amount:        model.Amount,
		Currency:      model.Currency,
		Description:   model.Description,
		Status:        domain.UPIStatus(model.Status),
		ProviderTxnID: model.ProviderTxnID,
		CreatedAt:     model.CreatedAt,
		ExpiresAt:     model.ExpiresAt,
		CompletedAt:   model.CompletedAt,
	}
	if model.EncryptedHandle != "" {
		handle, err := r.encryptor.Decrypt(model.EncryptedHandle)
		if err != nil {
			return nil, errors.NewInternal("failed to decrypt customer handle", err)
		}
		intent.CustomerHandle = handle
	}
	return intent, nil
}
