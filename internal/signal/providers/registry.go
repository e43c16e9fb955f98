package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/config"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Syncer refreshes one provider's mirror rows for a customer.
type Syncer interface {
	Provider() string
	MirrorTable() string
	Sync(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) error
}

// Registry holds the configured syncers and records provider health
// after every attempt.
type Registry struct {
	log     *zap.Logger
	syncers map[string]Syncer
}

func NewRegistry(log *zap.Logger, syncers ...Syncer) *Registry {
	byName := make(map[string]Syncer, len(syncers))
	for _, syncer := range syncers {
		if syncer == nil {
			continue
		}
		byName[syncer.Provider()] = syncer
	}
	return &Registry{
		log:     log.Named("signal.providers"),
		syncers: byName,
	}
}

// FromConfig builds syncers for every provider with a configured base URL.
// Providers without config are simply absent; detectors depending on them
// report a configuration error instead.
func FromConfig(cfg config.Config, log *zap.Logger) *Registry {
	timeout := cfg.Providers.TimeoutOrDefault()

	var syncers []Syncer
	if payments, err := NewPaymentsSyncer(cfg.Providers.PaymentsBaseURL, cfg.Providers.PaymentsToken, timeout); err == nil {
		syncers = append(syncers, payments)
	}
	if invoices, err := NewInvoicesSyncer(cfg.Providers.InvoicesBaseURL, cfg.Providers.InvoicesToken, timeout); err == nil {
		syncers = append(syncers, invoices)
	}
	if workspace, err := NewWorkspaceSyncer(cfg.Providers.WorkspaceBaseURL, cfg.Providers.WorkspaceToken, timeout); err == nil {
		syncers = append(syncers, workspace)
	}
	return NewRegistry(log, syncers...)
}

// Sync refreshes the mirror for (provider, customer) and records health.
// While a live debug override targets the provider's mirror table for the
// customer, the remote refresh is skipped so the forced state stays
// authoritative until the override is disabled.
func (r *Registry) Sync(ctx context.Context, db *gorm.DB, provider string, customerID snowflake.ID, now time.Time) error {
	syncer, ok := r.syncers[strings.TrimSpace(provider)]
	if !ok {
		return signaldomain.ErrMissingConfig
	}

	overridden, err := r.hasLiveOverride(ctx, db, customerID, syncer.MirrorTable())
	if err != nil {
		return err
	}
	if overridden {
		r.log.Debug("skipping provider sync under debug override",
			zap.String("provider", provider),
			zap.String("customer_id", customerID.String()),
		)
		return nil
	}

	if err := syncer.Sync(ctx, db, customerID, now); err != nil {
		r.recordHealth(ctx, db, provider, err, now)
		return err
	}
	r.recordHealth(ctx, db, provider, nil, now)
	return nil
}

// Health loads the recorded health row for a provider; a missing row
// counts as healthy (never contacted yet is not an outage).
func (r *Registry) Health(ctx context.Context, db *gorm.DB, provider string) (*signaldomain.ProviderHealth, error) {
	var health signaldomain.ProviderHealth
	err := db.WithContext(ctx).Where("provider = ?", strings.TrimSpace(provider)).First(&health).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &health, nil
}

// Configured reports whether a syncer exists for the provider.
func (r *Registry) Configured(provider string) bool {
	_, ok := r.syncers[strings.TrimSpace(provider)]
	return ok
}

func (r *Registry) hasLiveOverride(ctx context.Context, db *gorm.DB, customerID snowflake.ID, table string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM debug_overrides WHERE customer_id = ? AND table_name = ?`,
		customerID,
		table,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Registry) recordHealth(ctx context.Context, db *gorm.DB, provider string, syncErr error, now time.Time) {
	status := signaldomain.HealthOK
	var lastError *string
	values := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if syncErr != nil {
		status = signaldomain.HealthError
		message := syncErr.Error()
		lastError = &message
		values["status"] = status
		values["last_error"] = lastError
	} else {
		values["last_success_at"] = now
		values["last_error"] = nil
	}

	result := db.WithContext(ctx).Model(&signaldomain.ProviderHealth{}).
		Where("provider = ?", provider).
		Updates(values)
	if result.Error != nil {
		r.log.Warn("failed to record provider health", zap.String("provider", provider), zap.Error(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		health := signaldomain.ProviderHealth{
			Provider:  provider,
			Status:    status,
			LastError: lastError,
			UpdatedAt: now,
		}
		if syncErr == nil {
			successAt := now
			health.LastSuccessAt = &successAt
		}
		if err := db.WithContext(ctx).Create(&health).Error; err != nil {
			r.log.Warn("failed to insert provider health", zap.String("provider", provider), zap.Error(err))
		}
	}
}
