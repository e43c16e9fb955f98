package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SettingsPatch updates only the fields the caller supplied.
type SettingsPatch struct {
	GraceDays           *int
	DriftThresholdPct   *float64
	LookbackDays        *int
	LowConfidenceCutoff *float64
}

type Repository interface {
	GetState(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*CustomerState, error)
	ListStates(ctx context.Context, db *gorm.DB) ([]*CustomerState, error)
	UpsertState(ctx context.Context, db *gorm.DB, state *CustomerState) error

	// EnsureSettings returns existing settings or creates defaults once.
	EnsureSettings(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) (*CustomerSettings, error)
	PatchSettings(ctx context.Context, db *gorm.DB, customerID snowflake.ID, patch SettingsPatch, now time.Time) (*CustomerSettings, error)
}
