package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	"github.com/smallbiznis/signalway/internal/clock"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	"github.com/smallbiznis/signalway/internal/detector/domain"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/smallbiznis/signalway/internal/signal/providers"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MissedPaymentDetector flags customers whose expected payment is past
// the cadence date by more than their grace window. It is an aggregate
// detector: one customer has at most one open alert of this type.
type MissedPaymentDetector struct {
	db       *gorm.DB
	registry *providers.Registry
	clock    clock.Clock
	log      *zap.Logger
}

func NewMissedPaymentDetector(db *gorm.DB, registry *providers.Registry, clk clock.Clock, log *zap.Logger) *MissedPaymentDetector {
	return &MissedPaymentDetector{
		db:       db,
		registry: registry,
		clock:    clk,
		log:      log.Named("detector.missed_payment"),
	}
}

func (d *MissedPaymentDetector) Type() string { return domain.TypeMissedExpectedPayment }

func (d *MissedPaymentDetector) Category() alertdomain.Category { return alertdomain.CategoryCritical }

func (d *MissedPaymentDetector) SourceSystem() string { return signaldomain.ProviderPayments }

func (d *MissedPaymentDetector) PerEntity() bool { return false }

func (d *MissedPaymentDetector) FetchSignal(ctx context.Context, customerID snowflake.ID, settings customerdomain.CustomerSettings) (domain.Signal, error) {
	now := d.clock.Now()
	if err := d.registry.Sync(ctx, d.db, signaldomain.ProviderPayments, customerID, now); err != nil {
		return domain.Signal{}, err
	}

	var expectation signaldomain.PaymentExpectation
	err := d.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&expectation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Signal{Absent: true}, nil
		}
		return domain.Signal{}, err
	}
	if expectation.CadenceDays <= 0 || expectation.LastPaidAt == nil {
		return domain.Signal{Absent: true}, nil
	}
	if expectation.HistoryCount == 0 {
		return domain.Signal{NoBaseline: true}, nil
	}

	expectedAt := expectation.LastPaidAt.Add(time.Duration(expectation.CadenceDays) * 24 * time.Hour)
	daysPastDue := int(now.Sub(expectedAt).Hours() / 24)
	if daysPastDue < settings.GraceDays {
		return domain.Signal{}, nil
	}

	confidence, reason := gradeBaseline(expectation.BaselineConfidence, settings.LowConfidenceCutoff)
	baseline := expectation.BaselineConfidence
	amount := expectation.ExpectedAmountCents
	finding := domain.Finding{
		Message:             fmt.Sprintf("expected payment is %d days past its cadence date", daysPastDue),
		Confidence:          &confidence,
		ConfidenceReason:    reason,
		BaselineConfidence:  &baseline,
		AmountAtRiskCents:   &amount,
		ExpectedAmountCents: &amount,
		ExpectedAt:          &expectedAt,
		ObservedAt:          expectation.LastPaidAt,
		OverdueDays:         daysPastDue,
		Context: map[string]any{
			"cadence_days":  expectation.CadenceDays,
			"last_paid_at":  expectation.LastPaidAt.UTC().Format(time.RFC3339),
			"days_past_due": daysPastDue,
			"history_count": expectation.HistoryCount,
		},
	}
	return domain.Signal{Findings: []domain.Finding{finding}}, nil
}

// gradeBaseline maps the provider's numeric pattern grade onto the
// categorical confidence carried by the alert row.
func gradeBaseline(baseline, lowCutoff float64) (alertdomain.Confidence, string) {
	switch {
	case baseline >= 0.8:
		return alertdomain.ConfidenceHigh, fmt.Sprintf("cadence baseline confidence %.2f", baseline)
	case baseline >= lowCutoff:
		return alertdomain.ConfidenceMedium, fmt.Sprintf("cadence baseline confidence %.2f", baseline)
	default:
		return alertdomain.ConfidenceLow, fmt.Sprintf("cadence baseline confidence %.2f below cutoff %.2f", baseline, lowCutoff)
	}
}
