package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/pkg/errors"
)

// UPIStatus is the closed status enum for UPI intents
type UPIStatus string

const (
	UPIStatusPending   UPIStatus = "pending"
	UPIStatusCompleted UPIStatus = "completed"
	UPIStatusFailed    UPIStatus = "failed"
	UPIStatusExpired   UPIStatus = "expired"
	UPIStatusCancelled UPIStatus = "cancelled"
)

const (
	upiIntentTTL = 15 * time.Minute

	handleLocalMin    = 2
	handleLocalMax    = 256
	handleProviderMin = 2
	handleProviderMax = 64
)

// Schemes for app-specific deep-link variants. All are rewrites of the
// same canonical upi:// payload.
var upiAppSchemes = map[string]string{
	"gpay":    "tez",
	"phonepe": "phonepe",
	"paytm":   "paytmmp",
}

// UPIIntent is the locally synthesized payment-request record. It is not
// authoritative: the true status lives with the external UPI network and
// is reconciled by polling and verification, never taken from the client.
type UPIIntent struct {
	TransactionID  string
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	CustomerHandle string
	Status         UPIStatus
	ProviderTxnID  string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	CompletedAt    *time.Time
}

// ValidateUPIHandle checks the localpart@provider shape
func ValidateUPIHandle(handle string) error {
	at := strings.Index(handle, "@")
	if at < 0 || strings.Count(handle, "@") != 1 {
		return errors.NewValidation("invalid UPI handle format", map[string]interface{}{
			"field": "customer_upi_handle",
		})
	}
	local, provider := handle[:at], handle[at+1:]
	if len(local) < handleLocalMin || len(local) > handleLocalMax {
		return errors.NewValidation("invalid UPI handle format", map[string]interface{}{
			"field": "customer_upi_handle",
		})
	}
	if len(provider) < handleProviderMin || len(provider) > handleProviderMax {
		return errors.NewValidation("invalid UPI handle format", map[string]interface{}{
			"field": "customer_upi_handle",
		})
	}
	return nil
}

// NewUPITransactionID generates a transaction id of the form
// UPI<millis><8 hex chars>
func NewUPITransactionID(now time.Time) string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return fmt.Sprintf("UPI%d%s", now.UnixMilli(), hex.EncodeToString(buf))
}

// NewUPIIntent validates inputs and creates a pending intent
func NewUPIIntent(orderID string, amount decimal.Decimal, description, customerHandle string, now time.Time) (*UPIIntent, error) {
	if !amount.IsPositive() {
		return nil, errors.NewValidation("amount must be greater than zero", map[string]interface{}{
			"field": "amount",
		})
	}
	if orderID == "" {
		return nil, errors.NewValidation("order id is required", map[string]interface{}{
			"field": "order_id",
		})
	}
	if customerHandle != "" {
		if err := ValidateUPIHandle(customerHandle); err != nil {
			return nil, err
		}
	}

	return &UPIIntent{
		TransactionID:  NewUPITransactionID(now),
		OrderID:        orderID,
		Amount:         amount,
		Currency:       "INR",
		Description:    description,
		CustomerHandle: customerHandle,
		Status:         UPIStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(upiIntentTTL),
	}, nil
}

// DeepLink renders the canonical upi://pay payment-request URI. The QR
// payload is the same string.
func (i *UPIIntent) DeepLink(merchantVPA, payeeName string) string {
	q := url.Values{}
	q.Set("pa", merchantVPA)
	q.Set("pn", payeeName)
	q.Set("am", i.Amount.StringFixed(2))
	q.Set("cu", i.Currency)
	q.Set("tr", i.TransactionID)
	q.Set("tn", i.Description)
	return "upi://pay?" + q.Encode()
}

// AppLinks derives the per-app scheme variants from the canonical link.
// Single source of truth, multiple renderings.
func (i *UPIIntent) AppLinks(merchantVPA, payeeName string) map[string]string {
	canonical := i.DeepLink(merchantVPA, payeeName)
	links := make(map[string]string, len(upiAppSchemes))
	for app, scheme := range upiAppSchemes {
		links[app] = scheme + strings.TrimPrefix(canonical, "upi")
	}
	return links
}

// EffectiveStatus applies lazy expiry: a pending intent past its expiry
// reports expired. Callers that observe the flip persist it.
func (i *UPIIntent) EffectiveStatus(now time.Time) UPIStatus {
	if i.Status == UPIStatusPending && now.After(i.ExpiresAt) {
		return UPIStatusExpired
	}
	return i.Status
}

// Complete marks the intent completed. It fails on anything but a live
// pending intent; a payment is never honored past its expiry even if the
// user completed it out-of-band late.
func (i *UPIIntent) Complete(providerTxnID string, now time.Time) error {
	switch i.EffectiveStatus(now) {
	case UPIStatusPending:
	case UPIStatusCompleted:
		return nil
	case UPIStatusExpired:
		return errors.NewPaymentFailed("payment intent has expired", nil)
	default:
		return errors.NewPaymentFailed("payment intent is not pending", nil)
	}

	i.Status = UPIStatusCompleted
	i.ProviderTxnID = providerTxnID
	completedAt := now
	i.CompletedAt = &completedAt
	return nil
}

// Fail marks a pending intent failed
func (i *UPIIntent) Fail(now time.Time) error {
	if i.EffectiveStatus(now) != UPIStatusPending {
		return errors.NewPaymentFailed("payment intent is not pending", nil)
	}
	i.Status = UPIStatusFailed
	return nil
}
