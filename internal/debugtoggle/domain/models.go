// Package domain contains the debug override model. An override forces
// a mirror row into a known-bad state so a detector can be exercised
// end to end; the original row state is snapshotted so disabling the
// toggle restores reality exactly.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Toggle names.
const (
	ToggleForceMissedPayment  = "force_missed_payment"
	ToggleForceOverdueInvoice = "force_overdue_invoice"
	ToggleForceWorkspaceStale = "force_workspace_stale"
)

// Override is one live forced state, at most one per (toggle, customer).
type Override struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Toggle     string       `gorm:"type:text;not null;uniqueIndex:ux_debug_overrides_key,priority:1" json:"toggle"`
	CustomerID snowflake.ID `gorm:"not null;uniqueIndex:ux_debug_overrides_key,priority:2;index" json:"customer_id"`

	Table  string `gorm:"column:table_name;type:text;not null;index" json:"table_name"`
	RowKey string `gorm:"type:text;not null" json:"row_key"`
	// RowExisted distinguishes "row was snapshotted" from "the toggle
	// had to invent the row"; disabling deletes invented rows.
	RowExisted bool              `gorm:"not null;default:false" json:"row_existed"`
	Original   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"original"`
	Mutated    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"mutated"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Override) TableName() string { return "debug_overrides" }

var ErrUnknownToggle = errors.New("unknown_toggle")
