package detector

import (
	"context"
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

// OverdueInvoicesDetector flags each open invoice whose balance is still
// outstanding past due date plus grace. It is per-entity: every overdue
// invoice carries its own alert keyed by invoice id.
type OverdueInvoicesDetector struct {
	db       *gorm.DB
	registry *providers.Registry
	clock    clock.Clock
	log      *zap.Logger
}

func NewOverdueInvoicesDetector(db *gorm.DB, registry *providers.Registry, clk clock.Clock, log *zap.Logger) *OverdueInvoicesDetector {
	return &OverdueInvoicesDetector{
		db:       db,
		registry: registry,
		clock:    clk,
		log:      log.Named("detector.overdue_invoices"),
	}
}

func (d *OverdueInvoicesDetector) Type() string { return domain.TypeOverdueInvoices }

func (d *OverdueInvoicesDetector) Category() alertdomain.Category { return alertdomain.CategoryHigh }

func (d *OverdueInvoicesDetector) SourceSystem() string { return signaldomain.ProviderInvoices }

func (d *OverdueInvoicesDetector) PerEntity() bool { return true }

func (d *OverdueInvoicesDetector) FetchSignal(ctx context.Context, customerID snowflake.ID, settings customerdomain.CustomerSettings) (domain.Signal, error) {
	now := d.clock.Now()
	if err := d.registry.Sync(ctx, d.db, signaldomain.ProviderInvoices, customerID, now); err != nil {
		return domain.Signal{}, err
	}

	var invoices []signaldomain.InvoiceRecord
	err := d.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("invoice_id ASC").
		Find(&invoices).Error
	if err != nil {
		return domain.Signal{}, err
	}

	// An empty invoice set is a healthy signal, not an absent one: the
	// engine closes any leftovers through the normal set diff.
	var findings []domain.Finding
	confidence := alertdomain.ConfidenceHigh
	for _, invoice := range invoices {
		if invoice.BalanceCents <= 0 || invoice.DueAt == nil {
			continue
		}
		overdueDays := int(now.Sub(*invoice.DueAt).Hours() / 24)
		if overdueDays < settings.GraceDays {
			continue
		}

		invoiceID := invoice.InvoiceID
		balance := invoice.BalanceCents
		dueAt := *invoice.DueAt
		findings = append(findings, domain.Finding{
			EntityID:            &invoiceID,
			Message:             fmt.Sprintf("invoice %s is %d days overdue with an open balance", invoiceID, overdueDays),
			Confidence:          &confidence,
			ConfidenceReason:    "balance reported directly by the invoicing provider",
			AmountAtRiskCents:   &balance,
			ObservedAmountCents: &balance,
			ExpectedAt:          &dueAt,
			ObservedAt:          invoice.IssuedAt,
			OverdueDays:         overdueDays,
			Context: map[string]any{
				"invoice_id":    invoiceID,
				"balance_cents": balance,
				"due_at":        dueAt.UTC().Format(time.RFC3339),
				"overdue_days":  overdueDays,
			},
		})
	}
	return domain.Signal{Findings: findings}, nil
}
