package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ordersdomain "storefront/internal/orders/domain"
	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

const testSecret = "whsec_test"

func sign(secret string, body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	err := VerifySignature(testSecret, sign(testSecret, body, now), body, now, 5*time.Minute)

	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	err := VerifySignature(testSecret, sign("whsec_other", body, now), body, now, 5*time.Minute)

	if !errors.Is(err, errors.CodeSignatureInvalid) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := sign(testSecret, body, now)

	err := VerifySignature(testSecret, header, []byte(`{"id":"evt_2"}`), now, 5*time.Minute)

	if !errors.Is(err, errors.CodeSignatureInvalid) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifySignature_TooOld(t *testing.T) {
	// A 301-second-old signature must be rejected with a 300s tolerance
	// even though the HMAC itself is valid.
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	signedAt := now.Add(-301 * time.Second)

	err := VerifySignature(testSecret, sign(testSecret, body, signedAt), body, now, 300*time.Second)

	if !errors.Is(err, errors.CodeSignatureInvalid) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifySignature_MultipleCandidates(t *testing.T) {
	// During secret rotation the header carries signatures under both
	// keys; any one valid candidate passes.
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))
	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), valid)

	if err := VerifySignature(testSecret, header, body, now, 5*time.Minute); err != nil {
		t.Errorf("expected rotated-key header to verify, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	body := []byte(`{}`)
	now := time.Now()

	for _, header := range []string{"", "t=abc,v1=00", "v1=00", fmt.Sprintf("t=%d", now.Unix())} {
		if err := VerifySignature(testSecret, header, body, now, 5*time.Minute); err == nil {
			t.Errorf("expected error for header %q", header)
		}
	}
}

// MockOrderService is a mock implementation of OrderService
type MockOrderService struct {
	orders          map[uuid.UUID]*ordersdomain.Order
	confirmCalls    int
	failureCalls    int
	cancelCalls     int
	confirmErr      error
	lastResult      ordersdomain.PaymentResult
	lastFailureNote string
}

func NewMockOrderService() *MockOrderService {
	return &MockOrderService{orders: make(map[uuid.UUID]*ordersdomain.Order)}
}

func (m *MockOrderService) addOrder(t *testing.T, userID string) *ordersdomain.Order {
	t.Helper()
	order, err := ordersdomain.NewOrder(
		userID,
		[]ordersdomain.OrderItem{{ProductID: "p1", Name: "Widget", UnitPrice: decimal.NewFromInt(40), Quantity: 2}},
		ordersdomain.ShippingAddress{
			FullName: "Sam Carter", Address: "1 Main St", City: "Sacramento",
			State: "CA", PostalCode: "94203", Country: "US",
		},
		ordersdomain.PaymentMethodUPI,
		decimal.NewFromInt(80), decimal.NewFromInt(8), decimal.Zero, decimal.Zero,
		decimal.NewFromInt(88), "",
	)
	if err != nil {
		t.Fatalf("failed to build order: %v", err)
	}
	m.orders[order.ID] = order
	return order
}

func (m *MockOrderService) GetOrder(ctx context.Context, id uuid.UUID, userID string) (*ordersdomain.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, ordersdomain.NewOrderNotFound(id)
	}
	if userID != "" && order.UserID != userID {
		return nil, errors.NewForbidden("order does not belong to the requesting user")
	}
	return order, nil
}

func (m *MockOrderService) ConfirmPaid(ctx context.Context, id uuid.UUID, userID string, result ordersdomain.PaymentResult, updatedBy string) (bool, error) {
	m.confirmCalls++
	m.lastResult = result
	if m.confirmErr != nil {
		return false, m.confirmErr
	}
	order, ok := m.orders[id]
	if !ok {
		return false, ordersdomain.NewOrderNotFound(id)
	}
	if userID != "" && order.UserID != userID {
		return false, errors.NewForbidden("order does not belong to the requesting user")
	}
	return order.MarkPaid(result, updatedBy)
}

func (m *MockOrderService) RecordPaymentFailure(ctx context.Context, id uuid.UUID, errorMessage, updatedBy string) error {
	m.failureCalls++
	m.lastFailureNote = errorMessage
	order, ok := m.orders[id]
	if !ok {
		return ordersdomain.NewOrderNotFound(id)
	}
	_, err := order.MarkPaymentFailed(errorMessage, updatedBy)
	return err
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id uuid.UUID, userID, reason string) (*ordersdomain.Order, error) {
	m.cancelCalls++
	order, ok := m.orders[id]
	if !ok {
		return nil, ordersdomain.NewOrderNotFound(id)
	}
	if err := order.Cancel(reason, userID); err != nil {
		return nil, err
	}
	return order, nil
}

// MockDeadLetterStore is a mock implementation of DeadLetterStore
type MockDeadLetterStore struct {
	letters []ports.DeadLetter
}

func (m *MockDeadLetterStore) Store(ctx context.Context, letter ports.DeadLetter) error {
	m.letters = append(m.letters, letter)
	return nil
}

func newProcessor(orders *MockOrderService, deadLetters *MockDeadLetterStore) *WebhookProcessor {
	return NewWebhookProcessor(
		testSecret,
		5*time.Minute,
		orders,
		deadLetters,
		nil,
		logger.New("test", "debug", "json"),
	)
}

func succeededEvent(orderID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","created":%d,"data":{"object":{"id":"pi_1","amount":8800,"currency":"usd","status":"succeeded","metadata":{"order_id":"%s"}}}}`,
		time.Now().Unix(), orderID,
	))
}

func TestProcess_Succeeded(t *testing.T) {
	// Arrange
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	body := succeededEvent(order.ID)

	// Act
	err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now()))

	// Assert
	if err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if !order.IsPaid {
		t.Error("expected order marked paid")
	}
	if order.Status != ordersdomain.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", order.Status)
	}
	if orders.lastResult.TransactionID != "pi_1" {
		t.Errorf("expected payment result recorded, got %+v", orders.lastResult)
	}
}

func TestProcess_SucceededReplayIsNoOp(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	body := succeededEvent(order.ID)
	header := sign(testSecret, body, time.Now())

	if err := processor.Process(context.Background(), body, header); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	firstPaidAt := *order.PaidAt
	historyLen := len(order.StatusHistory)

	if err := processor.Process(context.Background(), body, header); err != nil {
		t.Fatalf("replay must ack, got %v", err)
	}

	if !order.PaidAt.Equal(firstPaidAt) {
		t.Error("replay must not change PaidAt")
	}
	if len(order.StatusHistory) != historyLen {
		t.Error("replay must not append history")
	}
	if len(deadLetters.letters) != 0 {
		t.Errorf("replay must not dead-letter, got %d letters", len(deadLetters.letters))
	}
}

func TestProcess_BadSignatureTouchesNothing(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	body := succeededEvent(order.ID)

	err := processor.Process(context.Background(), body, sign("whsec_wrong", body, time.Now()))

	if !errors.Is(err, errors.CodeSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if order.IsPaid || orders.confirmCalls != 0 {
		t.Error("a rejected event must not touch any order")
	}
}

func TestProcess_Failed(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	body := []byte(fmt.Sprintf(
		`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","metadata":{"order_id":"%s"},"last_payment_error":{"message":"card declined"}}}}`,
		order.ID,
	))

	err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now()))

	if err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if order.Status != ordersdomain.StatusPaymentFailed {
		t.Errorf("expected payment_failed, got %s", order.Status)
	}
	if order.IsPaid {
		t.Error("a failed payment must not set IsPaid")
	}
	if orders.lastFailureNote != "card declined" {
		t.Errorf("expected provider error message recorded, got %q", orders.lastFailureNote)
	}
}

func TestProcess_Canceled(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	body := []byte(fmt.Sprintf(
		`{"id":"evt_3","type":"payment_intent.canceled","data":{"object":{"id":"pi_3","metadata":{"order_id":"%s"}}}}`,
		order.ID,
	))

	err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now()))

	if err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if order.Status != ordersdomain.StatusCancelled {
		t.Errorf("expected cancelled, got %s", order.Status)
	}
}

func TestProcess_UnknownOrderAcks(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	body := succeededEvent(uuid.New())

	err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now()))

	if err != nil {
		t.Fatalf("an unknown order must ack so the provider stops retrying, got %v", err)
	}
	if len(deadLetters.letters) != 0 {
		t.Error("a local data inconsistency is logged, not dead-lettered")
	}
}

func TestProcess_UnhandledTypeAcks(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	body := []byte(`{"id":"evt_4","type":"charge.refund.updated","data":{"object":{"id":"re_1"}}}`)

	if err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now())); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if orders.confirmCalls+orders.failureCalls+orders.cancelCalls != 0 {
		t.Error("unhandled event types must not mutate orders")
	}
}

func TestProcess_MutationFailureAcksAndDeadLetters(t *testing.T) {
	orders := NewMockOrderService()
	deadLetters := &MockDeadLetterStore{}
	processor := newProcessor(orders, deadLetters)
	order := orders.addOrder(t, "user-1")
	orders.confirmErr = errors.NewInternal("database unavailable", nil)
	body := succeededEvent(order.ID)

	err := processor.Process(context.Background(), body, sign(testSecret, body, time.Now()))

	if err != nil {
		t.Fatalf("a downstream failure must still ack, got %v", err)
	}
	if len(deadLetters.letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(deadLetters.letters))
	}
	letter := deadLetters.letters[0]
	if letter.EventID != "evt_1" || letter.EventType != EventIntentSucceeded {
		t.Errorf("unexpected dead letter: %+v", letter)
	}
	if string(letter.Payload) != string(body) {
		t.Error("dead letter must carry the raw event payload")
	}
}
