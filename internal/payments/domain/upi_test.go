package domain

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront/pkg/errors"
)

func TestValidateUPIHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"valid", "samcarter@okaxis", false},
		{"minimum lengths", "ab@cd", false},
		{"missing at", "samcarter.okaxis", true},
		{"two ats", "sam@carter@okaxis", true},
		{"localpart too short", "a@okaxis", true},
		{"provider too short", "samcarter@x", true},
		{"localpart too long", strings.Repeat("a", 257) + "@okaxis", true},
		{"provider too long", "samcarter@" + strings.Repeat("b", 65), true},
		{"longest legal", strings.Repeat("a", 256) + "@" + strings.Repeat("b", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUPIHandle(tt.handle)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestNewUPIIntent(t *testing.T) {
	now := time.Now()

	intent, err := NewUPIIntent("order-1", decimal.NewFromInt(500), "Payment for ORD-1", "samcarter@okaxis", now)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent.Status != UPIStatusPending {
		t.Errorf("expected pending, got %s", intent.Status)
	}
	if intent.Currency != "INR" {
		t.Errorf("expected INR, got %s", intent.Currency)
	}
	if !intent.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected 15 minute expiry, got %s", intent.ExpiresAt.Sub(now))
	}
	if !strings.HasPrefix(intent.TransactionID, "UPI") {
		t.Errorf("expected UPI-prefixed transaction id, got %s", intent.TransactionID)
	}
}

func TestNewUPIIntent_Validation(t *testing.T) {
	now := time.Now()

	if _, err := NewUPIIntent("order-1", decimal.Zero, "", "", now); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := NewUPIIntent("order-1", decimal.NewFromInt(-5), "", "", now); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := NewUPIIntent("", decimal.NewFromInt(5), "", "", now); err == nil {
		t.Error("expected error for missing order id")
	}
	if _, err := NewUPIIntent("order-1", decimal.NewFromInt(5), "", "bad-handle", now); err == nil {
		t.Error("expected error for malformed handle")
	}
}

func TestTransactionIDsAreUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUPITransactionID(now)
		if seen[id] {
			t.Fatalf("duplicate transaction id %s", id)
		}
		seen[id] = true
	}
}

func TestDeepLink(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.RequireFromString("499.50"), "Payment for ORD-1", "", now)

	link := intent.DeepLink("storefront@axis", "Storefront")

	if !strings.HasPrefix(link, "upi://pay?") {
		t.Fatalf("expected upi://pay link, got %s", link)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link must parse as a URI: %v", err)
	}
	q := parsed.Query()
	if q.Get("pa") != "storefront@axis" || q.Get("pn") != "Storefront" {
		t.Errorf("unexpected payee params: %s", link)
	}
	if q.Get("am") != "499.50" || q.Get("cu") != "INR" {
		t.Errorf("unexpected amount params: %s", link)
	}
	if q.Get("tr") != intent.TransactionID {
		t.Errorf("expected transaction reference in link: %s", link)
	}
}

func TestAppLinks_DeriveFromCanonical(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.NewFromInt(500), "note", "", now)
	canonical := intent.DeepLink("storefront@axis", "Storefront")

	links := intent.AppLinks("storefront@axis", "Storefront")

	expected := map[string]string{"gpay": "tez", "phonepe": "phonepe", "paytm": "paytmmp"}
	for app, scheme := range expected {
		link, ok := links[app]
		if !ok {
			t.Fatalf("missing app link for %s", app)
		}
		if !strings.HasPrefix(link, scheme+"://pay?") {
			t.Errorf("expected %s scheme for %s, got %s", scheme, app, link)
		}
		if strings.TrimPrefix(link, scheme) != strings.TrimPrefix(canonical, "upi") {
			t.Errorf("app link must be a scheme rewrite of the canonical payload: %s", link)
		}
	}
}

func TestEffectiveStatus_LazyExpiry(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.NewFromInt(500), "", "", now)

	if got := intent.EffectiveStatus(now.Add(14 * time.Minute)); got != UPIStatusPending {
		t.Errorf("expected pending before expiry, got %s", got)
	}
	if got := intent.EffectiveStatus(now.Add(16 * time.Minute)); got != UPIStatusExpired {
		t.Errorf("expected expired after expiry, got %s", got)
	}
	// The stored status is untouched until a writer persists the flip.
	if intent.Status != UPIStatusPending {
		t.Errorf("EffectiveStatus must not mutate, got %s", intent.Status)
	}
}

func TestComplete(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.NewFromInt(500), "", "", now)

	if err := intent.Complete("UTR123", now.Add(time.Minute)); err != nil {
		t.Fatalf("expected completion, got %v", err)
	}
	if intent.Status != UPIStatusCompleted || intent.ProviderTxnID != "UTR123" {
		t.Errorf("unexpected state after completion: %+v", intent)
	}
	if intent.CompletedAt == nil {
		t.Error("expected CompletedAt set")
	}

	// Completing again is a no-op
	before := *intent.CompletedAt
	if err := intent.Complete("UTR999", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("replayed completion must not error, got %v", err)
	}
	if intent.ProviderTxnID != "UTR123" || !intent.CompletedAt.Equal(before) {
		t.Error("replayed completion must not overwrite the first")
	}
}

func TestComplete_PastExpiryNeverHonored(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.NewFromInt(500), "", "", now)

	err := intent.Complete("UTR123", now.Add(16*time.Minute))

	if !errors.Is(err, errors.CodePaymentFailed) {
		t.Fatalf("expected payment failure, got %v", err)
	}
	if intent.Status == UPIStatusCompleted {
		t.Error("a late completion must not be honored")
	}
}

func TestFail(t *testing.T) {
	now := time.Now()
	intent, _ := NewUPIIntent("order-1", decimal.NewFromInt(500), "", "", now)

	if err := intent.Fail(now.Add(time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent.Status != UPIStatusFailed {
		t.Errorf("expected failed, got %s", intent.Status)
	}
	if err := intent.Fail(now.Add(2 * time.Minute)); err == nil {
		t.Error("failing a non-pending intent must error")
	}
}
