package domain

import "github.com/shopspring/decimal"

var (
	TaxRate               = decimal.RequireFromString("0.18")
	FreeShippingThreshold = decimal.NewFromInt(999)
	FlatShippingCharge    = decimal.NewFromInt(99)
)

// Quote is the display-only price breakdown. The backend computes the amount actually charged.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	ShippingCharge decimal.Decimal `json:"shippingCharge"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
}

func ShippingCharge(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(FreeShippingThreshold) {
		return FlatShippingCharge
	}
	return decimal.Zero
}

func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(TaxRate).Round(2)
}

// NewQuote applies tax on the undiscounted subtotal, then shipping, then the discount.
func NewQuote(subtotal, discount decimal.Decimal) Quote {
	q := Quote{
		Subtotal:       subtotal,
		Tax:            Tax(subtotal),
		ShippingCharge: ShippingCharge(subtotal),
		Discount:       discount,
	}
	q.Total = q.Subtotal.Add(q.Tax).Add(q.ShippingCharge).Sub(q.Discount)
	if q.Total.IsNegative() {
		q.Total = decimal.Zero
	}
	return q
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
