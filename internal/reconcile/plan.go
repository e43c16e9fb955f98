// Package reconcile turns a fetched signal into the minimal set of
// alert operations: insert what is newly wrong, update what changed,
// close what cleared. Running the same signal twice produces zero
// operations the second time.
package reconcile

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	"github.com/smallbiznis/signalway/internal/suppression"
	"gorm.io/datatypes"
)

// Close reasons stamped onto auto-resolved rows.
const (
	CloseReasonCleared    = "condition_cleared"
	CloseReasonAbsent     = "signal_absent"
	CloseReasonSuperseded = "superseded_by_per_entity"
	CloseReasonDuplicate  = "duplicate_open"
)

// Meta is the static shape of the detector a plan is built for.
type Meta struct {
	Type         string
	Category     alertdomain.Category
	SourceSystem string
	PerEntity    bool
}

// CloseOp pairs the row being closed with its terminal update so the
// applier can emit a complete event without re-reading.
type CloseOp struct {
	Alert  *alertdomain.Alert
	Update alertdomain.CloseUpdate
}

// Plan is the full set of operations one pass will apply.
type Plan struct {
	Creates []*alertdomain.Alert
	Updates []*alertdomain.Alert
	Closes  []CloseOp
}

// Empty reports whether the pass has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Closes) == 0
}

// Counts summarizes an applied plan.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Closed  int `json:"closed"`
}

// BuildPlan diffs the desired findings against the currently open rows.
// Suppression wins over everything: a suppressed pass ignores findings
// and closes every open row with the suppression reason attached. An
// absent signal likewise closes everything.
func BuildPlan(
	meta Meta,
	customerID snowflake.ID,
	signal detectordomain.Signal,
	verdict suppression.Verdict,
	open []*alertdomain.Alert,
	now time.Time,
	nextID func() snowflake.ID,
) Plan {
	var plan Plan

	if verdict.Suppressed {
		closeContext := map[string]any{"suppression_reason": verdict.Reason}
		if verdict.Detail != "" {
			closeContext["suppression_detail"] = verdict.Detail
		}
		for _, alert := range open {
			plan.Closes = append(plan.Closes, CloseOp{
				Alert: alert,
				Update: alertdomain.CloseUpdate{
					ID:       alert.ID,
					Status:   alertdomain.StatusResolved,
					Reason:   verdict.Reason,
					Context:  closeContext,
					ClosedAt: now,
				},
			})
		}
		return plan
	}

	if signal.Absent {
		for _, alert := range open {
			plan.Closes = append(plan.Closes, CloseOp{
				Alert: alert,
				Update: alertdomain.CloseUpdate{
					ID:       alert.ID,
					Status:   alertdomain.StatusResolved,
					Reason:   CloseReasonAbsent,
					ClosedAt: now,
				},
			})
		}
		return plan
	}

	desired := make(map[string]detectordomain.Finding, len(signal.Findings))
	order := make([]string, 0, len(signal.Findings))
	for _, finding := range signal.Findings {
		key := entityKey(finding.EntityID)
		if _, seen := desired[key]; !seen {
			order = append(order, key)
		}
		desired[key] = finding
	}

	// Index open rows per entity key, self-healing any duplicate opens
	// down to the oldest row, and retiring legacy aggregate rows that a
	// per-entity detector has since superseded.
	current := make(map[string]*alertdomain.Alert, len(open))
	for _, alert := range open {
		key := alert.EntityKey()

		if meta.PerEntity && key == "" {
			plan.Closes = append(plan.Closes, CloseOp{
				Alert: alert,
				Update: alertdomain.CloseUpdate{
					ID:       alert.ID,
					Status:   alertdomain.StatusResolved,
					Reason:   CloseReasonSuperseded,
					ClosedAt: now,
				},
			})
			continue
		}

		if kept, dup := current[key]; dup {
			loser := alert
			if alert.ID < kept.ID {
				loser = kept
				current[key] = alert
			}
			plan.Closes = append(plan.Closes, CloseOp{
				Alert: loser,
				Update: alertdomain.CloseUpdate{
					ID:       loser.ID,
					Status:   alertdomain.StatusResolved,
					Reason:   CloseReasonDuplicate,
					ClosedAt: now,
				},
			})
			continue
		}
		current[key] = alert
	}

	for _, key := range order {
		finding := desired[key]
		want := materialize(meta, customerID, finding, now)

		existing, ok := current[key]
		if !ok {
			want.ID = nextID()
			plan.Creates = append(plan.Creates, want)
			continue
		}
		if payloadEqual(existing, want) {
			continue
		}
		want.ID = existing.ID
		want.CreatedAt = existing.CreatedAt
		plan.Updates = append(plan.Updates, want)
	}

	for _, alert := range open {
		key := alert.EntityKey()
		if current[key] != alert {
			continue // already closed as duplicate or superseded
		}
		if _, stillWanted := desired[key]; stillWanted {
			continue
		}
		plan.Closes = append(plan.Closes, CloseOp{
			Alert: alert,
			Update: alertdomain.CloseUpdate{
				ID:       alert.ID,
				Status:   alertdomain.StatusResolved,
				Reason:   CloseReasonCleared,
				ClosedAt: now,
			},
		})
	}

	return plan
}

func entityKey(entityID *string) string {
	if entityID == nil {
		return ""
	}
	return *entityID
}

// materialize builds the row a finding should persist as. The caller
// assigns identity afterwards.
func materialize(meta Meta, customerID snowflake.ID, finding detectordomain.Finding, now time.Time) *alertdomain.Alert {
	context := datatypes.JSONMap{}
	for key, value := range finding.Context {
		context[key] = value
	}
	if finding.BaselineConfidence != nil {
		context["baseline_confidence"] = *finding.BaselineConfidence
	}

	var reason *string
	if finding.ConfidenceReason != "" {
		value := finding.ConfidenceReason
		reason = &value
	}

	return &alertdomain.Alert{
		CustomerID:          customerID,
		Type:                meta.Type,
		SourceSystem:        meta.SourceSystem,
		PrimaryEntityID:     finding.EntityID,
		Status:              alertdomain.StatusOpen,
		Message:             finding.Message,
		Confidence:          finding.Confidence,
		ConfidenceReason:    reason,
		AmountAtRiskCents:   finding.AmountAtRiskCents,
		ExpectedAmountCents: finding.ExpectedAmountCents,
		ObservedAmountCents: finding.ObservedAmountCents,
		ExpectedAt:          finding.ExpectedAt,
		ObservedAt:          finding.ObservedAt,
		Context:             context,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// payloadEqual compares the mutable payload of two rows. Context maps
// are compared through canonical JSON so numeric types that round-trip
// through the database still match.
func payloadEqual(existing, want *alertdomain.Alert) bool {
	return existing.Message == want.Message &&
		confidenceEqual(existing.Confidence, want.Confidence) &&
		stringPtrEqual(existing.ConfidenceReason, want.ConfidenceReason) &&
		int64PtrEqual(existing.AmountAtRiskCents, want.AmountAtRiskCents) &&
		int64PtrEqual(existing.ExpectedAmountCents, want.ExpectedAmountCents) &&
		int64PtrEqual(existing.ObservedAmountCents, want.ObservedAmountCents) &&
		timePtrEqual(existing.ExpectedAt, want.ExpectedAt) &&
		timePtrEqual(existing.ObservedAt, want.ObservedAt) &&
		contextEqual(existing.Context, want.Context)
}

func confidenceEqual(a, b *alertdomain.Confidence) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func contextEqual(a, b datatypes.JSONMap) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(left) == string(right)
}
