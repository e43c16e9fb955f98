// Package domain contains persistence models for detector alerts.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status tracks where an alert is in its lifecycle. Closed and resolved
// are both terminal: closed means manually dismissed, resolved means the
// underlying condition cleared on its own.
type Status string

const (
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusResolved Status = "resolved"
)

// Confidence grades how sure a detector is about a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Category is the static urgency class of a detector type.
type Category string

const (
	CategoryCritical Category = "critical"
	CategoryHigh     Category = "high"
	CategoryMedium   Category = "medium"
)

// TypeIntegrationError is the provider-scoped outage alert type. Rows of
// this type are keyed by provider name, not by customer.
const TypeIntegrationError = "integration_error"

// Alert is one open-or-terminal issue instance. At most one row may be
// open per (customer_id, type, primary_entity_id) at any time; aggregate
// detectors use a NULL primary_entity_id.
type Alert struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID      snowflake.ID `gorm:"not null;index:ix_alerts_dedup,priority:1" json:"customer_id"`
	Type            string       `gorm:"type:text;not null;index:ix_alerts_dedup,priority:2" json:"type"`
	SourceSystem    string       `gorm:"type:text;not null" json:"source_system"`
	PrimaryEntityID *string      `gorm:"type:text;index:ix_alerts_dedup,priority:3" json:"primary_entity_id,omitempty"`

	Status  Status `gorm:"type:text;not null;default:'open';index" json:"status"`
	Message string `gorm:"type:text;not null" json:"message"`

	Confidence       *Confidence `gorm:"type:text" json:"confidence,omitempty"`
	ConfidenceReason *string     `gorm:"type:text" json:"confidence_reason,omitempty"`

	AmountAtRiskCents   *int64     `gorm:"" json:"amount_at_risk_cents,omitempty"`
	ExpectedAmountCents *int64     `gorm:"" json:"expected_amount_cents,omitempty"`
	ObservedAmountCents *int64     `gorm:"" json:"observed_amount_cents,omitempty"`
	ExpectedAt          *time.Time `gorm:"" json:"expected_at,omitempty"`
	ObservedAt          *time.Time `gorm:"" json:"observed_at,omitempty"`

	// Context keeps the evidence behind the finding and any suppression
	// decision so a closed row still explains itself.
	Context datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"context"`

	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	ClosedAt  *time.Time `gorm:"" json:"closed_at,omitempty"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }

// EntityKey normalizes the dedup entity component (empty for aggregate rows).
func (a *Alert) EntityKey() string {
	if a == nil || a.PrimaryEntityID == nil {
		return ""
	}
	return *a.PrimaryEntityID
}

var (
	ErrInvalidAlertID  = errors.New("invalid_alert_id")
	ErrAlertNotFound   = errors.New("alert_not_found")
	ErrAlertNotOpen    = errors.New("alert_not_open")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidType     = errors.New("invalid_alert_type")
)
