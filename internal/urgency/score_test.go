package urgency

import (
	"testing"
	"time"

	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
)

func TestScoreMonotonicInOverdueDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confidence := alertdomain.ConfidenceMedium
	amount := int64(250_000)

	prev := -1
	for days := 0; days <= 20; days++ {
		score := Score(Input{
			Category:          alertdomain.CategoryHigh,
			Confidence:        &confidence,
			AmountAtRiskCents: &amount,
			OverdueDays:       days,
			CreatedAt:         now.Add(-48 * time.Hour),
			Now:               now,
		})
		if score < prev {
			t.Fatalf("score decreased at %d overdue days: %d < %d", days, score, prev)
		}
		if score < 0 || score > 100 {
			t.Fatalf("score out of range at %d overdue days: %d", days, score)
		}
		prev = score
	}
}

func TestScoreClampedAtHundred(t *testing.T) {
	confidence := alertdomain.ConfidenceHigh
	amount := int64(10_000_000_000)
	score := Score(Input{
		Category:          alertdomain.CategoryCritical,
		Confidence:        &confidence,
		AmountAtRiskCents: &amount,
		OverdueDays:       400,
		CreatedAt:         time.Now().UTC(),
		Now:               time.Now().UTC(),
	})
	if score != 100 {
		t.Fatalf("expected clamped score 100, got %d", score)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	score := Score(Input{
		Category:    alertdomain.CategoryMedium,
		OverdueDays: -10,
		CreatedAt:   time.Now().UTC().Add(-30 * 24 * time.Hour),
		Now:         time.Now().UTC(),
	})
	if score < 0 {
		t.Fatalf("expected non-negative score, got %d", score)
	}
}

func TestBaselineConfidenceFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	strong := 0.9
	weak := 0.2

	base := Input{
		Category:    alertdomain.CategoryMedium,
		OverdueDays: 3,
		CreatedAt:   now.Add(-100 * time.Hour),
		Now:         now,
	}

	withStrong := base
	withStrong.BaselineConfidence = &strong
	withWeak := base
	withWeak.BaselineConfidence = &weak

	if Score(withStrong) <= Score(withWeak) {
		t.Fatalf("expected strong baseline to outscore weak baseline")
	}
}

func TestRecencyDecaysToZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := Score(Input{
		Category:  alertdomain.CategoryMedium,
		CreatedAt: now,
		Now:       now,
	})
	stale := Score(Input{
		Category:  alertdomain.CategoryMedium,
		CreatedAt: now.Add(-96 * time.Hour),
		Now:       now,
	})
	if fresh <= stale {
		t.Fatalf("expected fresh alert to outscore stale alert: fresh=%d stale=%d", fresh, stale)
	}
}

func TestToSeverityBuckets(t *testing.T) {
	cases := []struct {
		score int
		want  Severity
	}{
		{100, SeverityCritical},
		{80, SeverityCritical},
		{79, SeverityHigh},
		{60, SeverityHigh},
		{59, SeverityMedium},
		{40, SeverityMedium},
		{39, SeverityLow},
		{0, SeverityLow},
	}
	for _, tc := range cases {
		if got := ToSeverity(tc.score); got != tc.want {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}
