package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func item(price string, qty int) LineItem {
	return LineItem{
		ProductID: "p1",
		Name:      "widget",
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestComputeTotals_EndToEnd(t *testing.T) {
	// Arrange: 2 x $40.00 shipped to CA with SAVE10 (10%, min $25, max $50)
	items := []LineItem{item("40.00", 2)}
	addr := Address{State: "CA", Country: "US"}

	// Act
	totals := ComputeTotals(items, addr, "SAVE10")

	// Assert
	if !totals.ItemsPrice.Equal(decimal.RequireFromString("80.00")) {
		t.Errorf("expected items price 80.00, got %s", totals.ItemsPrice)
	}
	if !totals.DiscountAmount.Equal(decimal.RequireFromString("8.00")) {
		t.Errorf("expected discount 8.00, got %s", totals.DiscountAmount)
	}
	if !totals.TaxPrice.Equal(decimal.RequireFromString("7.80")) {
		t.Errorf("expected tax 7.80, got %s", totals.TaxPrice)
	}
	if !totals.ShippingPrice.IsZero() {
		t.Errorf("expected free shipping above threshold, got %s", totals.ShippingPrice)
	}
	if !totals.TotalPrice.Equal(decimal.RequireFromString("79.80")) {
		t.Errorf("expected total 79.80, got %s", totals.TotalPrice)
	}
	if totals.CouponError != "" {
		t.Errorf("expected no coupon error, got %q", totals.CouponError)
	}
}

func TestComputeTotals_Deterministic(t *testing.T) {
	items := []LineItem{item("19.99", 3), item("4.50", 1)}
	addr := Address{State: "NY", Country: "US"}

	first := ComputeTotals(items, addr, "SAVE10")
	second := ComputeTotals(items, addr, "SAVE10")

	if !first.TotalPrice.Equal(second.TotalPrice) ||
		!first.TaxPrice.Equal(second.TaxPrice) ||
		!first.DiscountAmount.Equal(second.DiscountAmount) {
		t.Errorf("expected identical totals for identical input: %+v vs %+v", first, second)
	}
}

func TestComputeTotals_FreeShippingThreshold(t *testing.T) {
	addr := Address{State: "TX", Country: "US"}

	// Exactly at the threshold: free
	atThreshold := ComputeTotals([]LineItem{item("50.00", 1)}, addr, "")
	if !atThreshold.ShippingPrice.IsZero() {
		t.Errorf("expected free shipping at threshold, got %s", atThreshold.ShippingPrice)
	}

	// One cent below: standard rate
	below := ComputeTotals([]LineItem{item("49.99", 1)}, addr, "")
	if !below.ShippingPrice.Equal(decimal.RequireFromString("5.99")) {
		t.Errorf("expected standard shipping below threshold, got %s", below.ShippingPrice)
	}
}

func TestComputeTotals_InvalidCouponDegrades(t *testing.T) {
	items := []LineItem{item("30.00", 1)}
	addr := Address{State: "FL", Country: "US"}

	totals := ComputeTotals(items, addr, "BOGUS")

	if !totals.DiscountAmount.IsZero() {
		t.Errorf("expected zero discount for unknown coupon, got %s", totals.DiscountAmount)
	}
	if totals.CouponError == "" {
		t.Error("expected coupon error to be surfaced")
	}
	// The rest of the computation still went through
	if totals.TotalPrice.IsZero() {
		t.Error("expected a valid total despite the invalid coupon")
	}
}

func TestComputeTotals_MinimumNotMet(t *testing.T) {
	// WELCOME20 requires a $50 minimum; $40 of items must not discount
	items := []LineItem{item("40.00", 1)}
	addr := Address{State: "CA", Country: "US"}

	totals := ComputeTotals(items, addr, "WELCOME20")

	if !totals.DiscountAmount.IsZero() {
		t.Errorf("expected zero discount below minimum, got %s", totals.DiscountAmount)
	}
	if totals.CouponError == "" {
		t.Error("expected minimum-not-met error")
	}
}

func TestComputeTotals_NeverNegative(t *testing.T) {
	// FLAT5 against a tiny order in a zero-tax state
	items := []LineItem{item("0.01", 1)}
	addr := Address{State: "OR", Country: "US"}

	totals := ComputeTotals(items, addr, "FLAT5")

	if totals.TotalPrice.IsNegative() {
		t.Errorf("total must never be negative, got %s", totals.TotalPrice)
	}
}

func TestComputeTotals_FreeShippingCoupon(t *testing.T) {
	// Below the threshold, FREESHIP zeroes shipping without any discount
	items := []LineItem{item("30.00", 1)}
	addr := Address{State: "WA", Country: "US"}

	totals := ComputeTotals(items, addr, "FREESHIP")

	if !totals.ShippingPrice.IsZero() {
		t.Errorf("expected zero shipping with FREESHIP, got %s", totals.ShippingPrice)
	}
	if !totals.DiscountAmount.IsZero() {
		t.Errorf("free_shipping coupon must not produce a money discount, got %s", totals.DiscountAmount)
	}
}

func TestComputeTotals_UnknownStateDefaultRate(t *testing.T) {
	items := []LineItem{item("100.00", 1)}

	totals := ComputeTotals(items, Address{State: "ZZ", Country: "US"}, "")

	if !totals.TaxPrice.Equal(decimal.RequireFromString("8.00")) {
		t.Errorf("expected default 8%% tax, got %s", totals.TaxPrice)
	}
}

func TestComputeTotalsWithShipping_ExpressIgnoresThreshold(t *testing.T) {
	// Express is a flat fee even when the items price qualifies for free
	// standard shipping
	items := []LineItem{item("100.00", 1)}
	addr := Address{State: "TX", Country: "US"}

	totals := ComputeTotalsWithShipping(items, addr, "", ShippingExpress)

	if !totals.ShippingPrice.Equal(decimal.RequireFromString("12.99")) {
		t.Errorf("expected express flat fee, got %s", totals.ShippingPrice)
	}
}

func TestShippingRate_FlatFees(t *testing.T) {
	if !ShippingRate(ShippingExpress).Equal(decimal.RequireFromString("12.99")) {
		t.Errorf("unexpected express rate %s", ShippingRate(ShippingExpress))
	}
	if !ShippingRate(ShippingOvernight).Equal(decimal.RequireFromString("24.99")) {
		t.Errorf("unexpected overnight rate %s", ShippingRate(ShippingOvernight))
	}
}
