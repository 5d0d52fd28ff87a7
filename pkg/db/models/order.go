package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/fieldsync/pkg/db/types"
	"github.com/angelmondragon/fieldsync/pkg/enums"
)

const (
	OrderIDPrefix    = "ORD-"
	NegationIDPrefix = "NEG-"
)

// OrderItem is one line of an order, priced in the unit it was sold in.
type OrderItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        enums.UnitKind  `json:"unit"`
	UnitLabel   string          `json:"unit_label,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Order is created on the device and owned by it until transmitted.
type Order struct {
	ID             string                      `gorm:"column:id;primaryKey" json:"id"`
	SalesRepID     string                      `gorm:"column:sales_rep_id;not null" json:"sales_rep_id"`
	CustomerID     uuid.UUID                   `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	CustomerName   string                      `gorm:"column:customer_name" json:"customer_name"`
	Items          dbtypes.JSONList[OrderItem] `gorm:"column:items;type:text;not null" json:"items"`
	Total          decimal.Decimal             `gorm:"column:total;not null" json:"total"`
	Status         enums.OrderStatus           `gorm:"column:status;not null" json:"status"`
	SyncStatus     enums.SyncStatus            `gorm:"column:sync_status;not null" json:"sync_status"`
	Reason         *string                     `gorm:"column:reason" json:"reason,omitempty"`
	Notes          string                      `gorm:"column:notes" json:"notes"`
	PaymentMethod  string                      `gorm:"column:payment_method" json:"payment_method"`
	PaymentTableID *uuid.UUID                  `gorm:"column:payment_table_id;type:uuid" json:"payment_table_id,omitempty"`
	LastError      *string                     `gorm:"column:last_error" json:"last_error,omitempty"`
	TransmittedAt  *time.Time                  `gorm:"column:transmitted_at" json:"transmitted_at,omitempty"`
	CreatedAt      time.Time                   `gorm:"column:created_at;not null" json:"created_at"`
}

func (Order) TableName() string { return "orders" }

// IsNegation reports whether the order records a refused visit.
func (o Order) IsNegation() bool {
	return strings.HasPrefix(o.ID, NegationIDPrefix)
}

// ComputeTotal sums every line total.
func (o Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}
