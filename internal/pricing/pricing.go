// Package pricing computes order totals.  It is pure: no I/O, no clock,
// no catalog access.  All amounts are decimals rounded half-up to cents.
// The member discount is taken per unit, so the sale prices locked into
// line items always add up to SubtotalAfterDiscount.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line is one priced entry of a cart.  Discountable marks lines a
// membership discount applies to (gift shop and cafeteria goods); tickets,
// donations and membership fees are never discountable.
type Line struct {
	UnitPrice    decimal.Decimal
	Quantity     int
	Discountable bool
}

// Extended returns the rounded UnitPrice times Quantity.
func (l Line) Extended() decimal.Decimal {
	return Round(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SalePrice is the unit price the line sells for under discountPercent.
func (l Line) SalePrice(discountPercent decimal.Decimal) decimal.Decimal {
	if !l.Discountable {
		return Round(l.UnitPrice)
	}
	return DiscountedUnitPrice(l.UnitPrice, discountPercent)
}

// Totals is the authoritative pricing of an order.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	Tax                   decimal.Decimal `json:"tax"`
	Total                 decimal.Decimal `json:"total"`
}

// Compute prices lines with discountPercent (0-100) applied to the
// discountable ones and taxRate (a fraction, 0.0825 for 8.25%) applied
// after the discount.  DiscountAmount is the sum over discountable lines
// of (price - SalePrice) * quantity.
func Compute(lines []Line, discountPercent, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	after := decimal.Zero
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		subtotal = subtotal.Add(l.Extended())
		after = after.Add(l.SalePrice(discountPercent).Mul(qty))
	}
	tax := Round(after.Mul(taxRate))
	return Totals{
		Subtotal:              subtotal,
		DiscountAmount:        subtotal.Sub(after),
		SubtotalAfterDiscount: after,
		Tax:                   tax,
		Total:                 after.Add(tax),
	}
}

// DiscountedUnitPrice is the price a discountable item sells for under a
// membership discount, rounded to cents.  It is what gets locked into the
// line item at the moment of sale.
func DiscountedUnitPrice(catalogPrice, discountPercent decimal.Decimal) decimal.Decimal {
	if discountPercent.IsZero() {
		return Round(catalogPrice)
	}
	factor := hundred.Sub(discountPercent).Div(hundred)
	return Round(catalogPrice.Mul(factor))
}

// Round rounds half-up to two decimals.  decimal.Round rounds half away
// from zero, which is half-up for the non-negative amounts priced here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
