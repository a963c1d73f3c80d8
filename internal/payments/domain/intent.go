package domain

import (
	"github.com/shopspring/decimal"

	"storefront/pkg/errors"
)

// Intent statuses as reported by the payment provider
const (
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusProcessing      = "processing"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusFailed          = "payment_failed"
	IntentStatusCanceled        = "canceled"
)

// Intent is the provider's payment-intent record as seen by this service.
// Amount is in minor units; the conversion from decimal money happens at
// the gateway boundary and nowhere else.
type Intent struct {
	ID            string
	ClientSecret  string
	Amount        int64
	Currency      string
	Status        string
	CustomerID    string
	PaymentMethod string
	Metadata      map[string]string
	ErrorMessage  string
}

// OrderID extracts the order reference carried in intent metadata
func (i *Intent) OrderID() string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata["order_id"]
}

// MinorUnits converts a decimal amount to the provider's integer minor
// units (cents, paise). The amount must already be rounded to 2 decimals.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// ValidateCurrency checks a currency code against the configured allowlist
func ValidateCurrency(currency string, supported []string) error {
	for _, s := range supported {
		if currency == s {
			return nil
		}
	}
	return errors.NewValidation("unsupported currency", map[string]interface{}{
		"currency": currency,
	})
}
