// Package domain contains the audit trail model. Every operator-facing
// mutation records who did what to which resource.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions.
const (
	ActionAlertDismissed  = "alert.dismissed"
	ActionSettingsPatched = "customer_settings.patched"
	ActionStateUpserted   = "customer_state.upserted"
	ActionToggleEnabled   = "debug_toggle.enabled"
	ActionToggleDisabled  = "debug_toggle.disabled"
)

// Log is one audit trail row.
type Log struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID      `gorm:"not null;index;default:0" json:"customer_id"`
	Actor      string            `gorm:"type:text;not null" json:"actor"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	Resource   string            `gorm:"type:text;not null" json:"resource"`
	Detail     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"detail"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (Log) TableName() string { return "audit_logs" }

// Entry is the write-side shape.
type Entry struct {
	CustomerID snowflake.ID
	Actor      string
	Action     string
	Resource   string
	Detail     map[string]any
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, log *Log) error
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]*Log, error)
}
