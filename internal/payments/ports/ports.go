package ports

import (
	"context"

	"github.com/google/uuid"

	ordersdomain "storefront/internal/orders/domain"
	"storefront/internal/payments/domain"
)

// CreateIntentParams are the inputs to creating a provider payment intent
type CreateIntentParams struct {
	Amount     int64
	Currency   string
	CustomerID string
	Metadata   map[string]string
}

// Gateway is the payment provider's API. The provider is an external
// collaborator; this port is consumed, never reimplemented.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*domain.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*domain.Intent, error)
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
}

// UPIVerificationResult is the outcome of one verification call. The
// channel reports completed or failed, never a partial state.
type UPIVerificationResult struct {
	Completed     bool
	ProviderTxnID string
	FailureReason string
}

// UPIVerifier is the external UPI verification channel. One call is one
// authoritative verification attempt; callers rate-limit at the route
// layer rather than hammering it.
type UPIVerifier interface {
	Verify(ctx context.Context, transactionID, providerTxnID string) (*UPIVerificationResult, error)
}

// UPIIntentRepository persists locally synthesized UPI intents.
// Transition updates are conditional on the current status so concurrent
// verify and expiry writers cannot both win.
type UPIIntentRepository interface {
	Create(ctx context.Context, intent *domain.UPIIntent) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.UPIIntent, error)
	// TransitionStatus persists a status change only if the stored status
	// still matches from. Returns false when another writer got there first.
	TransitionStatus(ctx context.Context, intent *domain.UPIIntent, from domain.UPIStatus) (bool, error)
}

// DeadLetter is one webhook event whose downstream mutation failed after
// the event was acknowledged to the provider.
type DeadLetter struct {
	EventID   string
	EventType string
	OrderID   string
	Payload   []byte
	Reason    string
}

// DeadLetterStore durably records acknowledged-but-unprocessed events
// for manual reconciliation.
type DeadLetterStore interface {
	Store(ctx context.Context, letter DeadLetter) error
}

// PaymentFailure describes one failed payment attempt
type PaymentFailure struct {
	OrderID      string
	UserID       string
	IntentID     string
	Method       string
	ErrorMessage string
}

// PaymentEventPublisher publishes payment events for downstream
// consumers (failure counting, operator alerting).
type PaymentEventPublisher interface {
	PublishPaymentFailed(ctx context.Context, failure PaymentFailure) error
}

// OrderService is the slice of the orders application layer the payment
// flows drive.
type OrderService interface {
	GetOrder(ctx context.Context, id uuid.UUID, userID string) (*ordersdomain.Order, error)
	ConfirmPaid(ctx context.Context, id uuid.UUID, userID string, result ordersdomain.PaymentResult, updatedBy string) (bool, error)
	RecordPaymentFailure(ctx context.Context, id uuid.UUID, errorMessage, updatedBy string) error
	CancelOrder(ctx context.Context, id uuid.UUID, userID, reason string) (*ordersdomain.Order, error)
}
