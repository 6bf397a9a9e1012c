package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency is the only currency the service prices in.
const Currency = "EUR"

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Type tells what the product is sold as.
type Type string

const (
	// TypeRent is the rental of the reserved resource itself.
	TypeRent Type = "rent"
	// TypeExtra is an add-on sold together with a reservation.
	TypeExtra Type = "extra"
)

// PriceType selects how a product's price relates to the reservation span.
type PriceType string

const (
	// PriceFixed charges the same amount regardless of the reservation length.
	PriceFixed PriceType = "fixed"
	// PricePerHour charges the price once per (possibly partial) hour reserved.
	PricePerHour PriceType = "per_hour"
)

// allowedTaxPercentages is the closed set of VAT rates a product may carry.
var allowedTaxPercentages = []decimal.Decimal{
	decimal.NewFromInt(0),
	decimal.NewFromInt(10),
	decimal.NewFromInt(14),
	decimal.NewFromInt(24),
}

// Product represents a sellable item attached to a reservable resource.
type Product struct {
	ID            string
	SKU           string
	Type          Type
	Name          string
	PretaxPrice   decimal.Decimal
	TaxPercentage decimal.Decimal
	PriceType     PriceType
}

// Validate checks the product against the catalog constraints.
func (p *Product) Validate() error {
	switch p.Type {
	case TypeRent, TypeExtra:
	default:
		return errors.Errorf("product %s: unknown type %q", p.ID, p.Type)
	}
	switch p.PriceType {
	case PriceFixed, PricePerHour:
	default:
		return errors.Errorf("product %s: unknown price type %q", p.ID, p.PriceType)
	}
	if p.PretaxPrice.IsNegative() {
		return errors.Errorf("product %s: negative pretax price", p.ID)
	}
	if !AllowedTax(p.TaxPercentage) {
		return errors.Errorf("product %s: tax percentage %s not allowed", p.ID, p.TaxPercentage)
	}
	return nil
}

// AllowedTax reports whether tax is one of the supported VAT rates.
func AllowedTax(tax decimal.Decimal) bool {
	for _, t := range allowedTaxPercentages {
		if t.Equal(tax) {
			return true
		}
	}
	return false
}

// WholeTax returns the tax percentage as an integer, failing when it has a
// fractional part.
func (p *Product) WholeTax() (int64, error) {
	if !p.TaxPercentage.Equal(p.TaxPercentage.Truncate(0)) {
		return 0, errors.Errorf("product %s: tax percentage %s is not a whole number", p.ID, p.TaxPercentage)
	}
	return p.TaxPercentage.IntPart(), nil
}

// Repository defines read and seed operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Upsert(ctx context.Context, p *Product) error
}
