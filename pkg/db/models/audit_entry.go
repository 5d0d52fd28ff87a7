package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// AuditEntry is one persisted order lifecycle event.
type AuditEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Kind       enums.AuditKind `gorm:"column:kind;not null"`
	OrderID    string          `gorm:"column:order_id;not null"`
	Metadata   string          `gorm:"column:metadata"`
	OccurredAt time.Time       `gorm:"column:occurred_at;not null"`
}

func (AuditEntry) TableName() string { return "audit_log" }
