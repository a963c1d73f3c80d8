package pricing

import (
	"github.com/shopspring/decimal"
)

// Shipping methods
const (
	ShippingStandard  = "standard"
	ShippingExpress   = "express"
	ShippingOvernight = "overnight"
)

var (
	freeShippingThreshold = decimal.NewFromInt(50)
	standardShippingRate  = decimal.RequireFromString("5.99")
	expressShippingRate   = decimal.RequireFromString("12.99")
	overnightShippingRate = decimal.RequireFromString("24.99")

	defaultTaxRate = decimal.RequireFromString("0.08")

	// Tax rates by shipping-address state. Unknown states fall back to
	// the default rate.
	stateTaxRates = map[string]decimal.Decimal{
		"CA": decimal.RequireFromString("0.0975"),
		"NY": decimal.RequireFromString("0.08875"),
		"TX": decimal.RequireFromString("0.0625"),
		"FL": decimal.RequireFromString("0.06"),
		"WA": decimal.RequireFromString("0.065"),
		"IL": decimal.RequireFromString("0.0625"),
		"OR": decimal.Zero,
		"MT": decimal.Zero,
		"NH": decimal.Zero,
		"DE": decimal.Zero,
	}
)

// LineItem is a priced order line
type LineItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Address carries the pieces of a shipping address that pricing needs
type Address struct {
	State   string
	Country string
}

// Totals is the full price breakdown for an order
type Totals struct {
	ItemsPrice     decimal.Decimal
	TaxPrice       decimal.Decimal
	ShippingPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalPrice     decimal.Decimal
	CouponCode     string
	// CouponError is set when a supplied coupon was rejected. The totals
	// are still valid; an invalid coupon degrades to a zero discount
	// rather than failing the computation.
	CouponError string
}

// ComputeTotals produces the price breakdown for a set of line items with
// standard shipping. Pure and deterministic: identical input yields
// identical output.
func ComputeTotals(items []LineItem, addr Address, couponCode string) Totals {
	return ComputeTotalsWithShipping(items, addr, couponCode, ShippingStandard)
}

// ComputeTotalsWithShipping is ComputeTotals with an explicit shipping
// method. Express and overnight are flat fees independent of the items
// price; the free-shipping threshold and free_shipping coupons only
// waive the standard rate.
func ComputeTotalsWithShipping(items []LineItem, addr Address, couponCode, shippingMethod string) Totals {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	itemsPrice = itemsPrice.Round(2)

	totals := Totals{ItemsPrice: itemsPrice, DiscountAmount: decimal.Zero}

	var coupon *Coupon
	if couponCode != "" {
		discount, c, err := ApplyCoupon(itemsPrice, couponCode)
		if err != nil {
			totals.CouponError = err.Error()
		} else {
			totals.DiscountAmount = discount
			totals.CouponCode = c.Code
			coupon = c
		}
	}

	totals.TaxPrice = itemsPrice.Mul(TaxRate(addr.State)).Round(2)
	totals.ShippingPrice = shippingPrice(itemsPrice, coupon, shippingMethod)

	total := itemsPrice.
		Add(totals.TaxPrice).
		Add(totals.ShippingPrice).
		Sub(totals.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	totals.TotalPrice = total.Round(2)

	return totals
}

// TaxRate resolves the tax rate for a state, falling back to the default
// rate when the state is absent or unknown
func TaxRate(state string) decimal.Decimal {
	if rate, ok := stateTaxRates[state]; ok {
		return rate
	}
	return defaultTaxRate
}

// ShippingRate returns the flat fee for a shipping method. Express and
// overnight rates are independent of the items price.
func ShippingRate(method string) decimal.Decimal {
	switch method {
	case ShippingExpress:
		return expressShippingRate
	case ShippingOvernight:
		return overnightShippingRate
	default:
		return standardShippingRate
	}
}

func shippingPrice(itemsPrice decimal.Decimal, coupon *Coupon, method string) decimal.Decimal {
	switch method {
	case ShippingExpress, ShippingOvernight:
		return ShippingRate(method)
	}
	if coupon != nil && coupon.Type == CouponFreeShipping {
		return decimal.Zero
	}
	if itemsPrice.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	return standardShippingRate
}
