package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/pkg/errors"
)

// CouponType classifies how a coupon discounts an order
type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixed        CouponType = "fixed"
	CouponFreeShipping CouponType = "free_shipping"
)

// Coupon is a static catalog entry
type Coupon struct {
	Code        string
	Type        CouponType
	Value       decimal.Decimal
	MinAmount   decimal.Decimal
	MaxDiscount decimal.Decimal // zero means no cap
}

var couponCatalog = map[string]Coupon{
	"SAVE10": {
		Code:        "SAVE10",
		Type:        CouponPercentage,
		Value:       decimal.NewFromInt(10),
		MinAmount:   decimal.NewFromInt(25),
		MaxDiscount: decimal.NewFromInt(50),
	},
	"WELCOME20": {
		Code:        "WELCOME20",
		Type:        CouponPercentage,
		Value:       decimal.NewFromInt(20),
		MinAmount:   decimal.NewFromInt(50),
		MaxDiscount: decimal.NewFromInt(100),
	},
	"FLAT5": {
		Code:      "FLAT5",
		Type:      CouponFixed,
		Value:     decimal.NewFromInt(5),
		MinAmount: decimal.NewFromInt(15),
	},
	"FREESHIP": {
		Code:      "FREESHIP",
		Type:      CouponFreeShipping,
		MinAmount: decimal.NewFromInt(25),
	},
}

// LookupCoupon returns the catalog entry for a code
func LookupCoupon(code string) (Coupon, bool) {
	c, ok := couponCatalog[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// ApplyCoupon validates a coupon code against the items price and returns
// the discount amount. free_shipping coupons return a zero discount; the
// shipping effect is applied by the totals calculator, not here.
func ApplyCoupon(itemsPrice decimal.Decimal, code string) (decimal.Decimal, *Coupon, error) {
	coupon, ok := LookupCoupon(code)
	if !ok {
		return decimal.Zero, nil, errors.NewValidation("invalid coupon code", nil)
	}

	if itemsPrice.LessThan(coupon.MinAmount) {
		return decimal.Zero, nil, errors.NewValidation(
			fmt.Sprintf("minimum order amount of $%s required", coupon.MinAmount.StringFixed(0)),
			map[string]interface{}{"min_amount": coupon.MinAmount},
		)
	}

	switch coupon.Type {
	case CouponPercentage:
		discount := itemsPrice.Mul(coupon.Value).Div(decimal.NewFromInt(100)).Round(2)
		if !coupon.MaxDiscount.IsZero() && discount.GreaterThan(coupon.MaxDiscount) {
			discount = coupon.MaxDiscount
		}
		return discount, &coupon, nil

	case CouponFixed:
		discount := coupon.Value
		// A fixed coupon never discounts more than the items themselves
		if discount.GreaterThan(itemsPrice) {
			discount = itemsPrice
		}
		return discount.Round(2), &coupon, nil

	case CouponFreeShipping:
		return decimal.Zero, &coupon, nil

	default:
		return decimal.Zero, nil, errors.NewValidation("invalid coupon code", nil)
	}
}
