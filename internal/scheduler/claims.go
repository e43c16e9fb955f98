package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPassInProgress means another worker holds the claim for this
// (customer, detector) pair.
var ErrPassInProgress = errors.New("pass_in_progress")

// PassClaim serializes passes: at most one worker reconciles a given
// (customer, detector) pair at a time. Claims expire after the TTL so a
// crashed worker cannot wedge a pair forever.
type PassClaim struct {
	CustomerID   snowflake.ID `gorm:"not null;uniqueIndex:ux_pass_claims,priority:1"`
	DetectorType string       `gorm:"type:text;not null;uniqueIndex:ux_pass_claims,priority:2"`
	ClaimedAt    *time.Time   `gorm:""`
	ClaimedBy    string       `gorm:"type:text;not null;default:''"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PassClaim) TableName() string { return "detector_pass_claims" }

// acquireClaim takes the claim or returns ErrPassInProgress. The row is
// seeded with an open claim on first contact so the subsequent UPDATE is
// the single arbiter on every backend.
func acquireClaim(ctx context.Context, db *gorm.DB, customerID snowflake.ID, detectorType, owner string, ttl time.Duration, now time.Time) error {
	seed := PassClaim{
		CustomerID:   customerID,
		DetectorType: detectorType,
		UpdatedAt:    now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return err
	}

	cutoff := now.Add(-ttl)
	result := db.WithContext(ctx).Model(&PassClaim{}).
		Where("customer_id = ? AND detector_type = ? AND (claimed_at IS NULL OR claimed_at < ?)",
			customerID, detectorType, cutoff).
		Updates(map[string]any{
			"claimed_at": now,
			"claimed_by": owner,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPassInProgress
	}
	return nil
}

func releaseClaim(ctx context.Context, db *gorm.DB, customerID snowflake.ID, detectorType, owner string, now time.Time) error {
	return db.WithContext(ctx).Model(&PassClaim{}).
		Where("customer_id = ? AND detector_type = ? AND claimed_by = ?", customerID, detectorType, owner).
		Updates(map[string]any{
			"claimed_at": nil,
			"updated_at": now,
		}).Error
}
