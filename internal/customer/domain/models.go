// Package domain contains persistence models for monitored customers.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CustomerStatus drives suppression: anything other than active forces
// detector alerts closed for that customer.
type CustomerStatus string

const (
	StatusActive     CustomerStatus = "active"
	StatusOnboarding CustomerStatus = "onboarding"
	StatusPaused     CustomerStatus = "paused"
	StatusInactive   CustomerStatus = "inactive"
)

// CustomerState is mutated only by settings management, never by detectors.
type CustomerState struct {
	CustomerID snowflake.ID   `gorm:"primaryKey" json:"customer_id"`
	Name       string         `gorm:"type:text;not null" json:"name"`
	Status     CustomerStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	Reason     *string        `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CustomerState) TableName() string { return "customer_states" }

// CustomerSettings carries per-customer detector tunables. Rows are
// created lazily with defaults the first time a customer is seen and are
// never silently overwritten afterwards.
type CustomerSettings struct {
	CustomerID          snowflake.ID `gorm:"primaryKey" json:"customer_id"`
	GraceDays           int          `gorm:"not null;default:5" json:"grace_days"`
	DriftThresholdPct   float64      `gorm:"not null;default:20" json:"drift_threshold_pct"`
	LookbackDays        int          `gorm:"not null;default:90" json:"lookback_days"`
	LowConfidenceCutoff float64      `gorm:"not null;default:0.5" json:"low_confidence_cutoff"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CustomerSettings) TableName() string { return "customer_settings" }

// DefaultSettings returns the tunables a new customer starts with.
func DefaultSettings(customerID snowflake.ID, now time.Time) CustomerSettings {
	return CustomerSettings{
		CustomerID:          customerID,
		GraceDays:           5,
		DriftThresholdPct:   20,
		LookbackDays:        90,
		LowConfidenceCutoff: 0.5,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

var (
	ErrInvalidCustomerID = errors.New("invalid_customer_id")
	ErrCustomerNotFound  = errors.New("customer_not_found")
	ErrInvalidStatus     = errors.New("invalid_customer_status")
	ErrInvalidSettings   = errors.New("invalid_customer_settings")
)

// ValidStatus reports whether the given status is one of the known states.
func ValidStatus(status CustomerStatus) bool {
	switch status {
	case StatusActive, StatusOnboarding, StatusPaused, StatusInactive:
		return true
	default:
		return false
	}
}
