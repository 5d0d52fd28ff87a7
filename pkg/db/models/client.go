package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/fieldsync/pkg/db/types"
	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// Client is a customer account visited by a sales rep.
type Client struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id" validate:"required"`
	Name          string              `gorm:"column:name;not null" json:"name" validate:"required"`
	CompanyName   string              `gorm:"column:company_name" json:"company_name"`
	Code          int                 `gorm:"column:code;not null" json:"code"`
	Active        bool                `gorm:"column:active;not null" json:"active"`
	Phone         string              `gorm:"column:phone" json:"phone"`
	Address       string              `gorm:"column:address" json:"address"`
	City          string              `gorm:"column:city" json:"city"`
	SalesRepID    string              `gorm:"column:sales_rep_id;not null" json:"sales_rep_id" validate:"required"`
	VisitDays     dbtypes.WeekdayList `gorm:"column:visit_days;type:text" json:"visit_days,omitempty"`
	VisitSequence *int                `gorm:"column:visit_sequence" json:"visit_sequence,omitempty"`
	Status        enums.ClientStatus  `gorm:"column:status" json:"status"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

// EffectiveStatus treats an unset status as pending.
func (c Client) EffectiveStatus() enums.ClientStatus {
	if c.Status == "" {
		return enums.ClientStatusPending
	}
	return c.Status
}
