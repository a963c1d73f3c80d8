package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMethodFor(t *testing.T) {
	tests := []struct {
		name       string
		settlement SettlementMode
	}{
		{"card", SettleByWebhook},
		{"paypal", SettleByWebhook},
		{"upi", SettleByPolling},
		{"cod", SettleOnDelivery},
	}

	for _, tt := range tests {
		method, err := MethodFor(tt.name)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", tt.name, err)
		}
		if method.Name() != tt.name {
			t.Errorf("%s: unexpected name %s", tt.name, method.Name())
		}
		if method.Settlement() != tt.settlement {
			t.Errorf("%s: expected %s settlement, got %s", tt.name, tt.settlement, method.Settlement())
		}
	}

	if _, err := MethodFor("barter"); err == nil {
		t.Error("expected error for unsupported method")
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"79.80", 7980},
		{"0.01", 1},
		{"100.00", 10000},
		{"0.00", 0},
	}

	for _, tt := range tests {
		if got := MinorUnits(decimal.RequireFromString(tt.amount)); got != tt.want {
			t.Errorf("MinorUnits(%s) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestValidateCurrency(t *testing.T) {
	supported := []string{"usd", "eur", "inr"}

	if err := ValidateCurrency("usd", supported); err != nil {
		t.Errorf("expected usd accepted, got %v", err)
	}
	if err := ValidateCurrency("jpy", supported); err == nil {
		t.Error("expected jpy rejected")
	}
}

func TestIntentOrderID(t *testing.T) {
	intent := &Intent{Metadata: map[string]string{"order_id": "abc"}}
	if intent.OrderID() != "abc" {
		t.Errorf("unexpected order id %s", intent.OrderID())
	}
	if (&Intent{}).OrderID() != "" {
		t.Error("expected empty order id without metadata")
	}
}
