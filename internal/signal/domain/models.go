// Package domain contains the local mirror of upstream signal data.
// External sync plumbing and the provider clients keep these rows fresh;
// detectors only ever read them.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider names label the originating systems.
const (
	ProviderPayments  = "payments"
	ProviderInvoices  = "invoices"
	ProviderWorkspace = "workspace"
)

// PaymentExpectation is the payment-cadence expectation record for a
// customer. BaselineConfidence is the provider's 0.0-1.0 grade of how
// settled the cadence pattern is.
type PaymentExpectation struct {
	CustomerID          snowflake.ID `gorm:"primaryKey" json:"customer_id"`
	CadenceDays         int          `gorm:"not null" json:"cadence_days"`
	LastPaidAt          *time.Time   `gorm:"" json:"last_paid_at,omitempty"`
	ExpectedAmountCents int64        `gorm:"not null" json:"expected_amount_cents"`
	BaselineConfidence  float64      `gorm:"not null;default:0" json:"baseline_confidence"`
	HistoryCount        int          `gorm:"not null;default:0" json:"history_count"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PaymentExpectation) TableName() string { return "payment_expectations" }

// InvoiceRecord mirrors one upstream invoice with an outstanding balance.
type InvoiceRecord struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID   snowflake.ID `gorm:"not null;index" json:"customer_id"`
	InvoiceID    string       `gorm:"type:text;not null;uniqueIndex:ux_invoice_records_invoice" json:"invoice_id"`
	BalanceCents int64        `gorm:"not null" json:"balance_cents"`
	DueAt        *time.Time   `gorm:"" json:"due_at,omitempty"`
	IssuedAt     *time.Time   `gorm:"" json:"issued_at,omitempty"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceRecord) TableName() string { return "invoice_records" }

// WorkspaceActivity mirrors upstream workspace edit recency. A customer
// with TotalEdits == 0 has no historical baseline at all.
type WorkspaceActivity struct {
	CustomerID   snowflake.ID `gorm:"primaryKey" json:"customer_id"`
	LastEditedAt *time.Time   `gorm:"" json:"last_edited_at,omitempty"`
	TotalEdits   int64        `gorm:"not null;default:0" json:"total_edits"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WorkspaceActivity) TableName() string { return "workspace_activity" }

// HealthStatus records whether the last provider contact succeeded.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthError HealthStatus = "error"
)

// ProviderHealth is one row per provider, updated after every sync attempt.
type ProviderHealth struct {
	Provider      string       `gorm:"primaryKey;type:text" json:"provider"`
	Status        HealthStatus `gorm:"type:text;not null;default:'ok'" json:"status"`
	LastSuccessAt *time.Time   `gorm:"" json:"last_success_at,omitempty"`
	LastError     *string      `gorm:"type:text" json:"last_error,omitempty"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ProviderHealth) TableName() string { return "provider_health" }

var (
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrMissingConfig       = errors.New("missing_provider_config")
	ErrUnknownProvider     = errors.New("unknown_provider")
)
