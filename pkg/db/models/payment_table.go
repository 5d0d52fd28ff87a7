package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentTable is a named set of payment terms a client can be billed under.
type PaymentTable struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id" validate:"required"`
	Name        string    `gorm:"column:name;not null" json:"name" validate:"required"`
	Description string    `gorm:"column:description" json:"description"`
	Type        string    `gorm:"column:type" json:"type"`
	Location    string    `gorm:"column:location" json:"location"`
	Active      bool      `gorm:"column:active;not null" json:"active"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PaymentTable) TableName() string { return "payment_tables" }
