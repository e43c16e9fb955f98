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

// WorkspaceStaleDetector flags customers whose workspace has gone quiet
// for longer than their lookback window. Customers with no edit history
// at all have no baseline to judge against and are left to the
// suppression layer.
type WorkspaceStaleDetector struct {
	db       *gorm.DB
	registry *providers.Registry
	clock    clock.Clock
	log      *zap.Logger
}

func NewWorkspaceStaleDetector(db *gorm.DB, registry *providers.Registry, clk clock.Clock, log *zap.Logger) *WorkspaceStaleDetector {
	return &WorkspaceStaleDetector{
		db:       db,
		registry: registry,
		clock:    clk,
		log:      log.Named("detector.workspace_stale"),
	}
}

func (d *WorkspaceStaleDetector) Type() string { return domain.TypeWorkspaceStale }

func (d *WorkspaceStaleDetector) Category() alertdomain.Category { return alertdomain.CategoryMedium }

func (d *WorkspaceStaleDetector) SourceSystem() string { return signaldomain.ProviderWorkspace }

func (d *WorkspaceStaleDetector) PerEntity() bool { return false }

func (d *WorkspaceStaleDetector) FetchSignal(ctx context.Context, customerID snowflake.ID, settings customerdomain.CustomerSettings) (domain.Signal, error) {
	now := d.clock.Now()
	if err := d.registry.Sync(ctx, d.db, signaldomain.ProviderWorkspace, customerID, now); err != nil {
		return domain.Signal{}, err
	}

	var activity signaldomain.WorkspaceActivity
	err := d.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Signal{Absent: true}, nil
		}
		return domain.Signal{}, err
	}
	if activity.TotalEdits == 0 {
		return domain.Signal{NoBaseline: true}, nil
	}
	if activity.LastEditedAt == nil {
		return domain.Signal{NoBaseline: true}, nil
	}

	idleDays := int(now.Sub(*activity.LastEditedAt).Hours() / 24)
	if idleDays < settings.LookbackDays {
		return domain.Signal{}, nil
	}

	confidence := alertdomain.ConfidenceMedium
	staleDays := idleDays - settings.LookbackDays
	finding := domain.Finding{
		Message:          fmt.Sprintf("workspace has had no edits for %d days", idleDays),
		Confidence:       &confidence,
		ConfidenceReason: "edit recency is a soft engagement proxy",
		ObservedAt:       activity.LastEditedAt,
		OverdueDays:      staleDays,
		Context: map[string]any{
			"last_edited_at": activity.LastEditedAt.UTC().Format(time.RFC3339),
			"total_edits":    activity.TotalEdits,
			"idle_days":      idleDays,
			"lookback_days":  settings.LookbackDays,
		},
	}
	return domain.Signal{Findings: []domain.Finding{finding}}, nil
}
