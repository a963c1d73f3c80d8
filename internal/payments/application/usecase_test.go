package application

import (
	"context"
	"testing"
	"time"

	ordersdomain "storefront/internal/orders/domain"
	ordersports "storefront/internal/orders/ports"
	"storefront/internal/payments/domain"
	"storefront/internal/payments/ports"
	"storefront/internal/security"
	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	intents      map[string]*domain.Intent
	createParams *ports.CreateIntentParams
	createErr    error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{intents: make(map[string]*domain.Intent)}
}

func (m *MockGateway) CreateIntent(ctx context.Context, params ports.CreateIntentParams) (*domain.Intent, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createParams = &params
	intent := &domain.Intent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		Amount:       params.Amount,
		Currency:     params.Currency,
		Status:       domain.IntentStatusRequiresPayment,
		Metadata:     params.Metadata,
	}
	m.intents[intent.ID] = intent
	return intent, nil
}

func (m *MockGateway) RetrieveIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, errors.NewNotFound("payment intent", intentID)
	}
	return intent, nil
}

func (m *MockGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	return "cus_test", nil
}

func (m *MockGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	return nil
}

func (m *MockGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return nil
}

// MockUserClient is a mock implementation of UserClient
type MockUserClient struct {
	users map[string]*ordersports.UserInfo
}

func (m *MockUserClient) GetUser(ctx context.Context, id string) (*ordersports.UserInfo, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, errors.NewNotFound("user", id)
	}
	return user, nil
}

func newPaymentUseCase(gateway *MockGateway, orders *MockOrderService, store security.Store) *PaymentUseCase {
	users := &MockUserClient{users: map[string]*ordersports.UserInfo{
		"user-1": {ID: "user-1", Name: "Sam Carter", Email: "sam@example.com"},
	}}
	return NewPaymentUseCase(
		gateway,
		orders,
		users,
		security.NewLockout(store, 3, 15*time.Minute),
		security.NewRiskScorer([]string{"US", "IN"}),
		store,
		[]string{"usd", "eur", "inr"},
		logger.New("test", "debug", "json"),
	)
}

func cardOrder(t *testing.T, orders *MockOrderService) *ordersdomain.Order {
	t.Helper()
	order := orders.addOrder(t, "user-1")
	order.PaymentMethod = ordersdomain.PaymentMethodCard
	return order
}

func TestCreateIntent(t *testing.T) {
	// Arrange
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	gateway := NewMockGateway()
	uc := newPaymentUseCase(gateway, orders, security.NewMemoryStore())

	// Act
	intent, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "usd",
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent.Amount != 8800 {
		t.Errorf("expected 88.00 converted to 8800 minor units, got %d", intent.Amount)
	}
	if gateway.createParams.Metadata["order_id"] != order.ID.String() {
		t.Error("expected order reference in intent metadata")
	}
	if intent.ClientSecret == "" {
		t.Error("expected client secret for the client-side confirm step")
	}
}

func TestCreateIntent_UnsupportedCurrency(t *testing.T) {
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	uc := newPaymentUseCase(NewMockGateway(), orders, security.NewMemoryStore())

	_, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "jpy",
	})

	if !errors.Is(err, errors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateIntent_AlreadyPaid(t *testing.T) {
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	order.MarkPaid(ordersdomain.PaymentResult{TransactionID: "pi_old", PaidAt: time.Now()}, "webhook")
	uc := newPaymentUseCase(NewMockGateway(), orders, security.NewMemoryStore())

	_, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "usd",
	})

	if !errors.Is(err, errors.CodeConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestCreateIntent_UPIOrderRejected(t *testing.T) {
	// UPI orders settle through the polling flow, not the card provider
	orders := NewMockOrderService()
	order := orders.addOrder(t, "user-1")
	uc := newPaymentUseCase(NewMockGateway(), orders, security.NewMemoryStore())

	_, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "inr",
	})

	if !errors.Is(err, errors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestConfirmPayment(t *testing.T) {
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	gateway := NewMockGateway()
	uc := newPaymentUseCase(gateway, orders, security.NewMemoryStore())

	intent, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	gateway.intents[intent.ID].Status = domain.IntentStatusSucceeded

	confirmed, err := uc.ConfirmPayment(context.Background(), "user-1", intent.ID)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !confirmed.IsPaid {
		t.Error("expected order marked paid")
	}
}

func TestConfirmPayment_NotSucceededAtProvider(t *testing.T) {
	// The provider's view is authoritative; a client cannot confirm an
	// intent the provider still reports as unpaid.
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	gateway := NewMockGateway()
	uc := newPaymentUseCase(gateway, orders, security.NewMemoryStore())

	intent, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = uc.ConfirmPayment(context.Background(), "user-1", intent.ID)

	if !errors.Is(err, errors.CodePaymentFailed) {
		t.Errorf("expected payment failure, got %v", err)
	}
	if order.IsPaid {
		t.Error("order must stay unpaid")
	}
}

func TestConfirmPayment_OwnershipEnforced(t *testing.T) {
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	gateway := NewMockGateway()
	uc := newPaymentUseCase(gateway, orders, security.NewMemoryStore())

	intent, err := uc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  order.ID,
		UserID:   "user-1",
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	gateway.intents[intent.ID].Status = domain.IntentStatusSucceeded

	_, err = uc.ConfirmPayment(context.Background(), "someone-else", intent.ID)

	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestCreateCustomer(t *testing.T) {
	orders := NewMockOrderService()
	uc := newPaymentUseCase(NewMockGateway(), orders, security.NewMemoryStore())

	customerID, err := uc.CreateCustomer(context.Background(), "user-1")

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if customerID != "cus_test" {
		t.Errorf("unexpected customer id %s", customerID)
	}

	if _, err := uc.CreateCustomer(context.Background(), "unknown"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestLockout_AfterRepeatedFailures(t *testing.T) {
	orders := NewMockOrderService()
	order := cardOrder(t, orders)
	gateway := NewMockGateway()
	gateway.createErr = errors.NewPaymentFailed("card declined", nil)
	uc := newPaymentUseCase(gateway, orders, security.NewMemoryStore())

	input := CreateIntentInput{OrderID: order.ID, UserID: "user-1", Currency: "usd"}
	for i := 0; i < 3; i++ {
		if _, err := uc.CreateIntent(context.Background(), input); !errors.Is(err, errors.CodePaymentFailed) {
			t.Fatalf("attempt %d: expected payment failure, got %v", i, err)
		}
	}

	// The fourth attempt is blocked before reaching the gateway
	_, err := uc.CreateIntent(context.Background(), input)
	if !errors.Is(err, errors.CodeRateLimited) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if errors.RetryAfter(err) <= 0 {
		t.Error("expected retry-after in lockout error details")
	}
}
