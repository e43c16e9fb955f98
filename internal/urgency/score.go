// Package urgency maps alert attributes to a comparable 0-100 score.
package urgency

import (
	"math"
	"time"

	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
)

// Severity is the product-visible bucket for a score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Category base weights on the raw scale.
const (
	baseCritical = 300
	baseHigh     = 220
	baseMedium   = 140
)

// Input carries everything the scorer consumes. The raw composition runs
// on a 0-300+ scale and is normalized down to 0-100 at the end.
type Input struct {
	Category alertdomain.Category

	// Confidence is the explicit detector grade; BaselineConfidence is the
	// 0.0-1.0 fallback from the upstream expectation record when no explicit
	// grade was assigned.
	Confidence         *alertdomain.Confidence
	BaselineConfidence *float64

	AmountAtRiskCents *int64
	OverdueDays       int

	CreatedAt time.Time
	Now       time.Time
}

// Score composes category weight, confidence, financial impact, time
// overdue and creation recency into a single 0-100 urgency value.
func Score(in Input) int {
	raw := categoryBase(in.Category)
	raw += confidenceContribution(in.Confidence, in.BaselineConfidence)
	raw += impactContribution(in.AmountAtRiskCents)
	raw += timeRiskContribution(in.OverdueDays)
	raw += recencyContribution(in.CreatedAt, in.Now)

	score := int(math.Round(raw / 3))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ToSeverity buckets a score. The 80/60/40 table is the canonical one and
// must not be recomputed by presentation layers.
func ToSeverity(score int) Severity {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 60:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func categoryBase(category alertdomain.Category) float64 {
	switch category {
	case alertdomain.CategoryCritical:
		return baseCritical
	case alertdomain.CategoryHigh:
		return baseHigh
	default:
		return baseMedium
	}
}

func confidenceContribution(confidence *alertdomain.Confidence, baseline *float64) float64 {
	if confidence != nil {
		switch *confidence {
		case alertdomain.ConfidenceHigh:
			return 30
		case alertdomain.ConfidenceMedium:
			return 15
		default:
			return 0
		}
	}
	if baseline != nil {
		switch {
		case *baseline >= 0.8:
			return 25
		case *baseline >= 0.5:
			return 12
		}
	}
	return 0
}

// impactContribution compresses large amounts so a single outsized invoice
// does not permanently dominate ranking.
func impactContribution(amountAtRiskCents *int64) float64 {
	if amountAtRiskCents == nil || *amountAtRiskCents <= 0 {
		return 0
	}
	dollars := float64(*amountAtRiskCents) / 100
	return math.Round(math.Log10(dollars+1) * 20)
}

// timeRiskContribution ramps steeply and saturates at 80.
func timeRiskContribution(overdueDays int) float64 {
	if overdueDays < 0 {
		overdueDays = 0
	}
	contribution := float64(overdueDays) * 6
	if contribution > 80 {
		return 80
	}
	return contribution
}

// recencyContribution decays linearly to zero over 72 hours so fresh
// alerts get a small display nudge without overriding severity.
func recencyContribution(createdAt, now time.Time) float64 {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 30
	}
	ageHours := now.Sub(createdAt).Hours()
	contribution := math.Round(30 - ageHours*30/72)
	if contribution < 0 {
		return 0
	}
	return contribution
}
