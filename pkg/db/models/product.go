package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalogue entry. Prices are per main unit.
type Product struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id" validate:"required"`
	Code               int              `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Name               string           `gorm:"column:name;not null" json:"name" validate:"required"`
	SalePrice          decimal.Decimal  `gorm:"column:sale_price;not null" json:"sale_price"`
	Cost               *decimal.Decimal `gorm:"column:cost" json:"cost,omitempty"`
	Stock              int              `gorm:"column:stock;not null" json:"stock"`
	MainUnit           string           `gorm:"column:main_unit;not null" json:"main_unit" validate:"required"`
	SubUnit            *string          `gorm:"column:sub_unit" json:"sub_unit,omitempty"`
	SubUnitRatio       *int             `gorm:"column:sub_unit_ratio" json:"sub_unit_ratio,omitempty"`
	MaxDiscountPercent *decimal.Decimal `gorm:"column:max_discount_percent" json:"max_discount_percent,omitempty"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

var maxDiscountCeiling = decimal.NewFromInt(100)

// Check enforces the catalogue invariants the struct tags cannot express.
// A declared sub unit needs a ratio above 1 and the discount ceiling is a
// percentage in [0,100].
func (p Product) Check() error {
	if p.SalePrice.IsNegative() {
		return errors.New("sale price must not be negative")
	}
	if p.SubUnit != nil && strings.TrimSpace(*p.SubUnit) != "" {
		if p.SubUnitRatio == nil || *p.SubUnitRatio <= 1 {
			return fmt.Errorf("sub unit %q needs a ratio greater than 1", *p.SubUnit)
		}
	}
	if d := p.MaxDiscountPercent; d != nil && (d.IsNegative() || d.GreaterThan(maxDiscountCeiling)) {
		return fmt.Errorf("max discount percent %s is outside [0,100]", d.String())
	}
	return nil
}

// HasSubUnit reports whether the product can be sold by a fractional unit.
func (p Product) HasSubUnit() bool {
	return p.SubUnit != nil && *p.SubUnit != "" && p.SubUnitRatio != nil && *p.SubUnitRatio > 1
}
