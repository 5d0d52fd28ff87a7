// Package pricing checks negotiated prices against a product's discount ceiling.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Candidate is a price typed by the rep for one unit of the selected kind.
type Candidate struct {
	Price decimal.Decimal
	Unit  enums.UnitKind
}

// Verdict is the outcome of Validate. MinPrice is nil when the product has
// no discount ceiling.
type Verdict struct {
	Valid           bool
	MainUnitPrice   decimal.Decimal
	DiscountPercent decimal.Decimal
	MinPrice        *decimal.Decimal
}

// Validate compares the candidate against the product sale price after
// converting it to its main-unit equivalent.
func Validate(product models.Product, c Candidate) (Verdict, error) {
	ratio, err := unitRatio(product, c.Unit)
	if err != nil {
		return Verdict{}, err
	}
	if c.Price.IsNegative() {
		return Verdict{}, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative").
			WithDetails(map[string]any{"product_id": product.ID.String(), "price": c.Price.String()})
	}

	equiv := c.Price.Mul(ratio)
	v := Verdict{
		Valid:           true,
		MainUnitPrice:   equiv,
		DiscountPercent: DiscountPercent(product.SalePrice, equiv),
	}
	if product.MaxDiscountPercent == nil {
		return v, nil
	}

	ceiling := *product.MaxDiscountPercent
	if ceiling.IsNegative() || ceiling.GreaterThan(hundred) {
		return Verdict{}, pkgerrors.New(pkgerrors.CodeValidation, "product discount ceiling must be between 0 and 100").
			WithDetails(map[string]any{"product_id": product.ID.String(), "max_discount_percent": ceiling.String()})
	}
	floor := product.SalePrice.Mul(hundred.Sub(ceiling)).Div(hundred)
	minPrice := floor.Div(ratio)
	v.MinPrice = &minPrice
	v.Valid = v.DiscountPercent.LessThanOrEqual(ceiling)
	return v, nil
}

// DiscountPercent is (sale - price) / sale * 100, never below zero.
func DiscountPercent(sale, price decimal.Decimal) decimal.Decimal {
	if !sale.IsPositive() {
		return decimal.Zero
	}
	d := sale.Sub(price).Div(sale).Mul(hundred)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// UnitPrice is the list price for one unit of the given kind.
func UnitPrice(product models.Product, unit enums.UnitKind) (decimal.Decimal, error) {
	ratio, err := unitRatio(product, unit)
	if err != nil {
		return decimal.Zero, err
	}
	return product.SalePrice.Div(ratio), nil
}

// UnitLabel returns the display name of the selected unit.
func UnitLabel(product models.Product, unit enums.UnitKind) string {
	if unit == enums.UnitKindSub && product.HasSubUnit() {
		return *product.SubUnit
	}
	return product.MainUnit
}

func unitRatio(product models.Product, unit enums.UnitKind) (decimal.Decimal, error) {
	switch unit {
	case enums.UnitKindMain:
		return decimal.NewFromInt(1), nil
	case enums.UnitKindSub:
		if !product.HasSubUnit() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "product has no sub unit").
				WithDetails(map[string]any{"product_id": product.ID.String(), "unit": unit.String()})
		}
		return decimal.NewFromInt(int64(*product.SubUnitRatio)), nil
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unit must be main or sub").
		WithDetails(map[string]any{"unit": unit.String()})
}
