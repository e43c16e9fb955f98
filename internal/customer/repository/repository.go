// Package repository implements customer state and settings persistence.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/cache"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	"gorm.io/gorm"
)

const settingsCacheTTL = 5 * time.Minute

type Repository struct {
	settings cache.Cache[snowflake.ID, customerdomain.CustomerSettings]
}

// Provide constructs the customer repository with a settings cache.
func Provide() customerdomain.Repository {
	return &Repository{
		settings: cache.NewTTLCache[snowflake.ID, customerdomain.CustomerSettings](),
	}
}

func (r *Repository) GetState(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*customerdomain.CustomerState, error) {
	if customerID == 0 {
		return nil, customerdomain.ErrInvalidCustomerID
	}
	var state customerdomain.CustomerState
	err := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customerdomain.ErrCustomerNotFound
		}
		return nil, err
	}
	return &state, nil
}

func (r *Repository) ListStates(ctx context.Context, db *gorm.DB) ([]*customerdomain.CustomerState, error) {
	var states []*customerdomain.CustomerState
	if err := db.WithContext(ctx).Order("customer_id").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *Repository) UpsertState(ctx context.Context, db *gorm.DB, state *customerdomain.CustomerState) error {
	if state == nil || state.CustomerID == 0 {
		return customerdomain.ErrInvalidCustomerID
	}
	if !customerdomain.ValidStatus(state.Status) {
		return customerdomain.ErrInvalidStatus
	}
	existing, err := r.GetState(ctx, db, state.CustomerID)
	if err != nil {
		if !errors.Is(err, customerdomain.ErrCustomerNotFound) {
			return err
		}
		return db.WithContext(ctx).Create(state).Error
	}
	return db.WithContext(ctx).Model(&customerdomain.CustomerState{}).
		Where("customer_id = ?", existing.CustomerID).
		Updates(map[string]any{
			"name":       state.Name,
			"status":     state.Status,
			"reason":     state.Reason,
			"updated_at": state.UpdatedAt,
		}).Error
}

func (r *Repository) EnsureSettings(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) (*customerdomain.CustomerSettings, error) {
	if customerID == 0 {
		return nil, customerdomain.ErrInvalidCustomerID
	}

	if cached, ok := r.settings.Get(customerID); ok {
		copied := cached
		return &copied, nil
	}

	var settings customerdomain.CustomerSettings
	err := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&settings).Error
	if err == nil {
		r.settings.Set(customerID, settings, settingsCacheTTL)
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = customerdomain.DefaultSettings(customerID, now)
	if err := db.WithContext(ctx).Create(&settings).Error; err != nil {
		// A concurrent pass may have created the row first; re-read wins.
		var raced customerdomain.CustomerSettings
		if readErr := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&raced).Error; readErr == nil {
			r.settings.Set(customerID, raced, settingsCacheTTL)
			return &raced, nil
		}
		return nil, err
	}
	r.settings.Set(customerID, settings, settingsCacheTTL)
	return &settings, nil
}

func (r *Repository) PatchSettings(ctx context.Context, db *gorm.DB, customerID snowflake.ID, patch customerdomain.SettingsPatch, now time.Time) (*customerdomain.CustomerSettings, error) {
	settings, err := r.EnsureSettings(ctx, db, customerID, now)
	if err != nil {
		return nil, err
	}

	values := map[string]any{"updated_at": now}
	if patch.GraceDays != nil {
		if *patch.GraceDays < 0 {
			return nil, customerdomain.ErrInvalidSettings
		}
		values["grace_days"] = *patch.GraceDays
		settings.GraceDays = *patch.GraceDays
	}
	if patch.DriftThresholdPct != nil {
		if *patch.DriftThresholdPct < 0 {
			return nil, customerdomain.ErrInvalidSettings
		}
		values["drift_threshold_pct"] = *patch.DriftThresholdPct
		settings.DriftThresholdPct = *patch.DriftThresholdPct
	}
	if patch.LookbackDays != nil {
		if *patch.LookbackDays <= 0 {
			return nil, customerdomain.ErrInvalidSettings
		}
		values["lookback_days"] = *patch.LookbackDays
		settings.LookbackDays = *patch.LookbackDays
	}
	if patch.LowConfidenceCutoff != nil {
		if *patch.LowConfidenceCutoff < 0 || *patch.LowConfidenceCutoff > 1 {
			return nil, customerdomain.ErrInvalidSettings
		}
		values["low_confidence_cutoff"] = *patch.LowConfidenceCutoff
		settings.LowConfidenceCutoff = *patch.LowConfidenceCutoff
	}

	if err := db.WithContext(ctx).Model(&customerdomain.CustomerSettings{}).
		Where("customer_id = ?", customerID).
		Updates(values).Error; err != nil {
		return nil, err
	}
	settings.UpdatedAt = now
	r.settings.Delete(customerID)
	return settings, nil
}
