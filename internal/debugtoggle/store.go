// Package debugtoggle implements the operator-facing debug overrides.
// Enabling a toggle snapshots the targeted mirror row, forces it into a
// state the detector must flag, and immediately runs a reconciliation
// pass so the resulting alert is real, not simulated. Disabling restores
// the snapshot and runs another pass, which closes the forced alert
// through the ordinary lifecycle.
package debugtoggle

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	auditservice "github.com/smallbiznis/signalway/internal/audit/service"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/debugtoggle/domain"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	obslogger "github.com/smallbiznis/signalway/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PassRunner triggers a real detector pass after a toggle flips.
type PassRunner interface {
	RunDetectorPass(ctx context.Context, customerID snowflake.ID, detectorType string) error
}

type toggleSpec struct {
	table        string
	pkColumn     string
	detectorType string
	mutate       func(customerID snowflake.ID, now time.Time, genID func() snowflake.ID) (rowKey string, values map[string]any, insert map[string]any)
}

// Forced states are deliberately far past every default threshold so
// the toggle works regardless of the customer's settings.
var toggleSpecs = map[string]toggleSpec{
	domain.ToggleForceMissedPayment: {
		table:        "payment_expectations",
		pkColumn:     "customer_id",
		detectorType: detectordomain.TypeMissedExpectedPayment,
		mutate: func(customerID snowflake.ID, now time.Time, _ func() snowflake.ID) (string, map[string]any, map[string]any) {
			lastPaid := now.Add(-40 * 24 * time.Hour).UTC().Format(time.RFC3339)
			values := map[string]any{
				"cadence_days":          30,
				"last_paid_at":          lastPaid,
				"expected_amount_cents": int64(250000),
				"baseline_confidence":   0.9,
				"history_count":         12,
				"updated_at":            now.UTC().Format(time.RFC3339),
			}
			insert := map[string]any{"customer_id": customerID.Int64()}
			for key, value := range values {
				insert[key] = value
			}
			return customerID.String(), values, insert
		},
	},
	domain.ToggleForceOverdueInvoice: {
		table:        "invoice_records",
		pkColumn:     "invoice_id",
		detectorType: detectordomain.TypeOverdueInvoices,
		mutate: func(customerID snowflake.ID, now time.Time, genID func() snowflake.ID) (string, map[string]any, map[string]any) {
			rowKey := "debug-" + customerID.String()
			dueAt := now.Add(-30 * 24 * time.Hour).UTC().Format(time.RFC3339)
			values := map[string]any{
				"balance_cents": int64(50000),
				"due_at":        dueAt,
				"updated_at":    now.UTC().Format(time.RFC3339),
			}
			insert := map[string]any{
				"id":          genID().Int64(),
				"customer_id": customerID.Int64(),
				"invoice_id":  rowKey,
				"issued_at":   now.Add(-60 * 24 * time.Hour).UTC().Format(time.RFC3339),
			}
			for key, value := range values {
				insert[key] = value
			}
			return rowKey, values, insert
		},
	},
	domain.ToggleForceWorkspaceStale: {
		table:        "workspace_activity",
		pkColumn:     "customer_id",
		detectorType: detectordomain.TypeWorkspaceStale,
		mutate: func(customerID snowflake.ID, now time.Time, _ func() snowflake.ID) (string, map[string]any, map[string]any) {
			lastEdited := now.Add(-180 * 24 * time.Hour).UTC().Format(time.RFC3339)
			values := map[string]any{
				"last_edited_at": lastEdited,
				"total_edits":    int64(42),
				"updated_at":     now.UTC().Format(time.RFC3339),
			}
			insert := map[string]any{"customer_id": customerID.Int64()}
			for key, value := range values {
				insert[key] = value
			}
			return customerID.String(), values, insert
		},
	},
}

// Toggles lists the known toggle names.
func Toggles() []string {
	return []string{
		domain.ToggleForceMissedPayment,
		domain.ToggleForceOverdueInvoice,
		domain.ToggleForceWorkspaceStale,
	}
}

// Store owns override rows and the snapshot/restore cycle.
type Store struct {
	db     *gorm.DB
	runner PassRunner
	audit  *auditservice.Service
	clock  clock.Clock
	genID  func() snowflake.ID
	log    *zap.Logger
}

func NewStore(db *gorm.DB, runner PassRunner, audit *auditservice.Service, clk clock.Clock, node *snowflake.Node, log *zap.Logger) *Store {
	return &Store{
		db:     db,
		runner: runner,
		audit:  audit,
		clock:  clk,
		genID:  node.Generate,
		log:    log.Named("debugtoggle"),
	}
}

// Enable forces the toggle's mirror row for a customer. Enabling an
// already-enabled toggle reapplies the forced state but never replaces
// the original snapshot, so disable always restores pre-toggle reality.
func (s *Store) Enable(ctx context.Context, toggle string, customerID snowflake.ID, actor string) (*domain.Override, error) {
	spec, ok := toggleSpecs[toggle]
	if !ok {
		return nil, domain.ErrUnknownToggle
	}
	now := s.clock.Now()

	var override *domain.Override
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(ctx, tx, toggle, customerID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Idempotent re-enable: reapply the forced state, keep the
			// original snapshot untouched.
			override = existing
			mutated := map[string]any(existing.Mutated)
			return s.applyState(ctx, tx, spec, existing.RowKey, mutated, mutated)
		}

		rowKey, values, insert := spec.mutate(customerID, now, s.genID)
		original, found, err := s.snapshot(ctx, tx, spec, rowKey)
		if err != nil {
			return err
		}

		mutated := values
		if !found {
			mutated = insert
		}
		if err := s.applyState(ctx, tx, spec, rowKey, values, insert); err != nil {
			return err
		}

		override = &domain.Override{
			ID:         s.genID(),
			Toggle:     toggle,
			CustomerID: customerID,
			Table:      spec.table,
			RowKey:     rowKey,
			RowExisted: found,
			Original:   datatypes.JSONMap(original),
			Mutated:    datatypes.JSONMap(mutated),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.WithContext(ctx).Create(override).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("debug override enabled",
		zap.String("toggle", toggle),
		zap.String("customer_id", customerID.String()),
		zap.Any("forced_state", obslogger.MaskJSON(map[string]any(override.Mutated))),
	)
	s.audit.Record(ctx, auditdomain.Entry{
		CustomerID: customerID,
		Actor:      actor,
		Action:     auditdomain.ActionToggleEnabled,
		Resource:   toggle,
		Detail:     map[string]any{"table_name": spec.table, "row_key": override.RowKey},
	})
	s.runPass(ctx, customerID, spec.detectorType, toggle)
	return override, nil
}

// Disable restores the snapshotted row state, deletes the override, and
// runs a pass so the forced alert closes through the normal lifecycle.
// Disabling a toggle that is not enabled is a no-op; the pass still runs,
// so repeated disables always converge on unforced reality.
func (s *Store) Disable(ctx context.Context, toggle string, customerID snowflake.ID, actor string) error {
	spec, ok := toggleSpecs[toggle]
	if !ok {
		return domain.ErrUnknownToggle
	}

	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		override, err := s.find(ctx, tx, toggle, customerID)
		if err != nil {
			return err
		}
		if override == nil {
			return nil
		}
		removed = true

		if override.RowExisted {
			restore := make(map[string]any, len(override.Original))
			for key, value := range override.Original {
				restore[key] = value
			}
			delete(restore, spec.pkColumn)
			if len(restore) > 0 {
				if err := tx.WithContext(ctx).Table(spec.table).
					Where(spec.pkColumn+" = ?", override.RowKey).
					Updates(restore).Error; err != nil {
					return err
				}
			}
		} else {
			if err := tx.WithContext(ctx).
				Exec("DELETE FROM "+spec.table+" WHERE "+spec.pkColumn+" = ?", override.RowKey).Error; err != nil {
				return err
			}
		}

		return tx.WithContext(ctx).Delete(&domain.Override{}, "id = ?", override.ID).Error
	})
	if err != nil {
		return err
	}

	if removed {
		s.audit.Record(ctx, auditdomain.Entry{
			CustomerID: customerID,
			Actor:      actor,
			Action:     auditdomain.ActionToggleDisabled,
			Resource:   toggle,
			Detail:     map[string]any{"table_name": spec.table},
		})
	}
	s.runPass(ctx, customerID, spec.detectorType, toggle)
	return nil
}

// List returns live overrides, optionally scoped to one customer.
func (s *Store) List(ctx context.Context, customerID snowflake.ID) ([]*domain.Override, error) {
	query := s.db.WithContext(ctx).Model(&domain.Override{})
	if customerID != 0 {
		query = query.Where("customer_id = ?", customerID)
	}
	var overrides []*domain.Override
	if err := query.Order("id").Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}

func (s *Store) find(ctx context.Context, tx *gorm.DB, toggle string, customerID snowflake.ID) (*domain.Override, error) {
	var override domain.Override
	err := tx.WithContext(ctx).
		Where("toggle = ? AND customer_id = ?", toggle, customerID).
		First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &override, nil
}

func (s *Store) snapshot(ctx context.Context, tx *gorm.DB, spec toggleSpec, rowKey string) (map[string]any, bool, error) {
	row := map[string]any{}
	err := tx.WithContext(ctx).Table(spec.table).
		Where(spec.pkColumn+" = ?", rowKey).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]any{}, false, nil
		}
		return nil, false, err
	}
	return row, true, nil
}

// applyState updates the target row if present, inserting it otherwise.
func (s *Store) applyState(ctx context.Context, tx *gorm.DB, spec toggleSpec, rowKey string, values map[string]any, insert map[string]any) error {
	update := make(map[string]any, len(values))
	for key, value := range values {
		update[key] = value
	}
	delete(update, spec.pkColumn)

	result := tx.WithContext(ctx).Table(spec.table).
		Where(spec.pkColumn+" = ?", rowKey).
		Updates(update)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 && insert != nil {
		// Create gets its own copy: gorm writes bookkeeping keys back
		// into the map it is handed, and the caller's map is persisted
		// as the override snapshot.
		row := make(map[string]any, len(insert))
		for key, value := range insert {
			row[key] = value
		}
		return tx.WithContext(ctx).Table(spec.table).Create(row).Error
	}
	return nil
}

// runPass failures are logged, not returned: the override is already
// committed and the scheduled worker will reconcile it shortly anyway.
func (s *Store) runPass(ctx context.Context, customerID snowflake.ID, detectorType, toggle string) {
	if s.runner == nil {
		return
	}
	if err := s.runner.RunDetectorPass(ctx, customerID, detectorType); err != nil {
		s.log.Warn("post-toggle pass failed",
			zap.String("toggle", toggle),
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
	}
}
