// Package product contains the product catalog and the pricing rules that turn
// a product and a reservation span into a price.
package product

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/respa-payments/internal/domain/reservation"
)

// pricePlaces is the number of decimal places prices are rounded to.
const pricePlaces = 2

var (
	hundred     = decimal.NewFromInt(100)
	secondsHour = decimal.NewFromInt(int64(time.Hour / time.Second))
)

// PretaxPriceForReservation returns the price of one unit of p for r without
// tax, rounded to cents.
func PretaxPriceForReservation(p *Product, r *reservation.Reservation) decimal.Decimal {
	return pretax(p, r).Round(pricePlaces)
}

// PriceForReservation returns the price of one unit of p for r including tax,
// rounded to cents. Tax is applied to the unrounded pretax amount so that the
// result does not depend on intermediate rounding.
func PriceForReservation(p *Product, r *reservation.Reservation) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(p.TaxPercentage.Div(hundred))
	return pretax(p, r).Mul(multiplier).Round(pricePlaces)
}

func pretax(p *Product, r *reservation.Reservation) decimal.Decimal {
	if p.PriceType != PricePerHour {
		return p.PretaxPrice
	}
	return p.PretaxPrice.Mul(hours(r.Duration()))
}

// hours converts d to a decimal number of hours. Whole seconds are enough
// precision for reservation spans.
func hours(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	seconds := decimal.NewFromInt(int64(d / time.Second))
	return seconds.Div(secondsHour)
}

// SubUnits converts a price to integer minor currency units (cents).
func SubUnits(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}
