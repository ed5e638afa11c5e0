// Package portfolio tracks positions, P&L and pre-trade risk limits.
//
// Quantities and prices are carried as shopspring/decimal values so that
// repeated fills of fractional crypto quantities do not accumulate float error.
package portfolio

import "github.com/shopspring/decimal"

// Position represents the holding in a single symbol.
type Position struct {
	Symbol   string          `json:"symbol"`
	Qty      decimal.Decimal `json:"qty"`       // positive = long, negative = short
	AvgPrice decimal.Decimal `json:"avg_price"` // average entry price of the open quantity
}

// IsFlat reports whether there is no open quantity.
func (p Position) IsFlat() bool { return p.Qty.IsZero() }

// UnrealizedPnL returns the mark-to-market P&L of the open quantity at price.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return price.Sub(p.AvgPrice).Mul(p.Qty)
}

// apply books a signed quantity delta at price and returns the P&L realized
// by the part of the delta that closes existing exposure.
func (p *Position) apply(delta, price decimal.Decimal) decimal.Decimal {
	if delta.IsZero() {
		return decimal.Zero
	}

	// Opening or adding in the same direction: weighted average price
	if p.Qty.IsZero() || p.Qty.Sign() == delta.Sign() {
		total := p.Qty.Abs().Add(delta.Abs())
		p.AvgPrice = p.AvgPrice.Mul(p.Qty.Abs()).Add(price.Mul(delta.Abs())).Div(total)
		p.Qty = p.Qty.Add(delta)
		return decimal.Zero
	}

	// Reducing, closing or flipping
	closing := decimal.Min(delta.Abs(), p.Qty.Abs())
	realized := price.Sub(p.AvgPrice).Mul(closing)
	if p.Qty.IsNegative() {
		realized = realized.Neg()
	}

	prevSign := p.Qty.Sign()
	p.Qty = p.Qty.Add(delta)
	switch {
	case p.Qty.IsZero():
		p.AvgPrice = decimal.Zero
	case p.Qty.Sign() != prevSign:
		// Flipped: the remainder opens at the trade price
		p.AvgPrice = price
	}
	return realized
}
