package domain

import "storefront/pkg/errors"

// SettlementMode says how a payment method reaches its terminal state:
// a provider webhook, client-driven polling, or settlement on delivery.
type SettlementMode string

const (
	SettleByWebhook  SettlementMode = "webhook"
	SettleByPolling  SettlementMode = "poll"
	SettleOnDelivery SettlementMode = "on_delivery"
)

// Method is the tagged payment-method variant. The settlement mode is
// part of the type so handlers branch on it explicitly instead of
// inspecting which request fields happen to be populated.
type Method interface {
	Name() string
	Settlement() SettlementMode
}

type Card struct{}

func (Card) Name() string               { return "card" }
func (Card) Settlement() SettlementMode { return SettleByWebhook }

type PayPal struct{}

func (PayPal) Name() string               { return "paypal" }
func (PayPal) Settlement() SettlementMode { return SettleByWebhook }

type UPI struct{}

func (UPI) Name() string               { return "upi" }
func (UPI) Settlement() SettlementMode { return SettleByPolling }

type CashOnDelivery struct{}

func (CashOnDelivery) Name() string               { return "cod" }
func (CashOnDelivery) Settlement() SettlementMode { return SettleOnDelivery }

// MethodFor resolves a method name to its variant
func MethodFor(name string) (Method, error) {
	switch name {
	case "card":
		return Card{}, nil
	case "paypal":
		return PayPal{}, nil
	case "upi":
		return UPI{}, nil
	case "cod", "cash_on_delivery":
		return CashOnDelivery{}, nil
	default:
		return nil, errors.NewValidation("unsupported payment method", map[string]interface{}{
			"method": name,
		})
	}
}
