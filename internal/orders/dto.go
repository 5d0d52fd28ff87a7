package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// ItemInput is one line typed by the rep. A nil UnitPrice means the list
// price of the selected unit.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	Unit      enums.UnitKind
	UnitPrice *decimal.Decimal
}

// Input captures a new sale.
type Input struct {
	RepID          string
	CustomerID     uuid.UUID
	Items          []ItemInput
	Notes          string
	PaymentMethod  string
	PaymentTableID *uuid.UUID
}

// NegationInput records a visit that produced no sale.
type NegationInput struct {
	RepID      string
	CustomerID uuid.UUID
	Reason     string
	Notes      string
}

// ItemViolation explains why one line was refused.
type ItemViolation struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason"`
	MinPrice  string `json:"min_price,omitempty"`
}
