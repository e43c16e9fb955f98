// Package domain defines the detector capability surface. A detector
// describes one class of issue and knows how to fetch the current signal
// for a customer; the reconciliation engine owns everything after that.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
)

// Detector types.
const (
	TypeMissedExpectedPayment = "missed_expected_payment"
	TypeOverdueInvoices       = "overdue_invoices"
	TypeWorkspaceStale        = "workspace_stale"
)

// Detector is the capability a signal class plugs into the shared engine.
type Detector interface {
	// Type is the stable alert type string.
	Type() string
	// Category is the static urgency class of this alert type.
	Category() alertdomain.Category
	// SourceSystem names the upstream provider the signal comes from.
	SourceSystem() string
	// PerEntity reports whether findings carry a primary entity id.
	// Aggregate detectors produce at most one finding with a nil entity.
	PerEntity() bool
	// FetchSignal syncs and reads the current signal for a customer.
	FetchSignal(ctx context.Context, customerID snowflake.ID, settings customerdomain.CustomerSettings) (Signal, error)
}

// Signal is the detector's view of a customer at one point in time.
type Signal struct {
	// Absent means the monitored data stream does not exist for this
	// customer at all (no cadence, no invoices). Every open alert of the
	// detector's type gets closed when the signal is absent.
	Absent bool
	// NoBaseline means the customer has no historical activity to judge
	// against; the suppression layer turns this into a suppressed pass.
	NoBaseline bool
	Findings   []Finding
}

// Finding is one issue instance the detector currently observes.
type Finding struct {
	// EntityID is nil for aggregate detectors.
	EntityID *string

	Message          string
	Confidence       *alertdomain.Confidence
	ConfidenceReason string
	// BaselineConfidence is the provider's 0.0-1.0 pattern grade, used
	// as a scoring fallback when categorical confidence is unset.
	BaselineConfidence *float64

	AmountAtRiskCents   *int64
	ExpectedAmountCents *int64
	ObservedAmountCents *int64
	ExpectedAt          *time.Time
	ObservedAt          *time.Time

	// OverdueDays feeds the urgency scorer's overdue component.
	OverdueDays int

	// Context is free-form evidence persisted onto the alert row.
	Context map[string]any
}

var (
	ErrUnknownDetector = errors.New("unknown_detector")
)
