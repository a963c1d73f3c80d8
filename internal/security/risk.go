package security

import (
	"github.com/shopspring/decimal"
)

// Indicator weights. Each contributes a fixed amount to the risk score.
const (
	weightHighAmount      = 30
	weightRapidRepeats    = 25
	weightCountryMismatch = 20
	weightBlockedCountry  = 25

	rapidRepeatThreshold = 3
)

var highAmountThreshold = decimal.NewFromInt(10000)

// PaymentIndicators are the inputs to risk scoring for one payment attempt
type PaymentIndicators struct {
	Amount          decimal.Decimal
	RecentAttempts  int
	ShippingCountry string
	BillingCountry  string
}

// RiskScorer produces an advisory 0-100 risk score. The score is logged,
// not enforced; blocking is a policy decision made elsewhere.
type RiskScorer struct {
	allowedCountries map[string]bool
}

// NewRiskScorer creates a scorer with a country allowlist
func NewRiskScorer(allowedCountries []string) *RiskScorer {
	allowed := make(map[string]bool, len(allowedCountries))
	for _, c := range allowedCountries {
		allowed[c] = true
	}
	return &RiskScorer{allowedCountries: allowed}
}

// Score computes the risk score and the list of triggered indicators
func (s *RiskScorer) Score(ind PaymentIndicators) (int, []string) {
	score := 0
	var reasons []string

	if ind.Amount.GreaterThan(highAmountThreshold) {
		score += weightHighAmount
		reasons = append(reasons, "unusually_high_amount")
	}

	if ind.RecentAttempts >= rapidRepeatThreshold {
		score += weightRapidRepeats
		reasons = append(reasons, "rapid_repeated_payments")
	}

	if ind.ShippingCountry != "" && ind.BillingCountry != "" &&
		ind.ShippingCountry != ind.BillingCountry {
		score += weightCountryMismatch
		reasons = append(reasons, "country_mismatch")
	}

	if ind.ShippingCountry != "" && !s.allowedCountries[ind.ShippingCountry] {
		score += weightBlockedCountry
		reasons = append(reasons, "country_not_allowlisted")
	}

	if score > 100 {
		score = 100
	}

	return score, reasons
}
