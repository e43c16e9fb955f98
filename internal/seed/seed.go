// Package seed loads demo data outside production so the API and the
// detectors have something to chew on immediately after startup.
package seed

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/config"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	obslogger "github.com/smallbiznis/signalway/internal/observability/logger"
	"github.com/smallbiznis/signalway/internal/server"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevAPIKey is the plaintext development credential.
const DevAPIKey = "dev-local-key"

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

// Run inserts demo rows idempotently. Production is never seeded.
func Run(db *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
	if cfg.IsProduction() {
		return nil
	}
	log = log.Named("seed")
	now := time.Now().UTC()

	key := server.APIKey{
		ID:        node.Generate(),
		Name:      "dev",
		KeyHash:   server.HashAPIKey(DevAPIKey),
		CreatedAt: now,
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&key).Error
	if err != nil {
		return err
	}

	healthy := customerdomain.CustomerState{
		CustomerID: 1001,
		Name:       "Evergreen Landscaping",
		Status:     customerdomain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	late := customerdomain.CustomerState{
		CustomerID: 1002,
		Name:       "Harbor Print Co",
		Status:     customerdomain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	paused := customerdomain.CustomerState{
		CustomerID: 1003,
		Name:       "Quiet Mill Books",
		Status:     customerdomain.StatusPaused,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, state := range []customerdomain.CustomerState{healthy, late, paused} {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error; err != nil {
			return err
		}
	}

	recentPaid := now.Add(-10 * 24 * time.Hour)
	missedPaid := now.Add(-45 * 24 * time.Hour)
	expectations := []signaldomain.PaymentExpectation{
		{
			CustomerID:          healthy.CustomerID,
			CadenceDays:         30,
			LastPaidAt:          &recentPaid,
			ExpectedAmountCents: 180000,
			BaselineConfidence:  0.85,
			HistoryCount:        18,
			UpdatedAt:           now,
		},
		{
			CustomerID:          late.CustomerID,
			CadenceDays:         30,
			LastPaidAt:          &missedPaid,
			ExpectedAmountCents: 250000,
			BaselineConfidence:  0.92,
			HistoryCount:        24,
			UpdatedAt:           now,
		},
	}
	for _, expectation := range expectations {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&expectation).Error; err != nil {
			return err
		}
	}

	dueAt := now.Add(-20 * 24 * time.Hour)
	issuedAt := now.Add(-50 * 24 * time.Hour)
	invoice := signaldomain.InvoiceRecord{
		ID:           node.Generate(),
		CustomerID:   late.CustomerID,
		InvoiceID:    "INV-2041",
		BalanceCents: 84500,
		DueAt:        &dueAt,
		IssuedAt:     &issuedAt,
		UpdatedAt:    now,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&invoice).Error; err != nil {
		return err
	}

	lastEdited := now.Add(-3 * 24 * time.Hour)
	activity := signaldomain.WorkspaceActivity{
		CustomerID:   healthy.CustomerID,
		LastEditedAt: &lastEdited,
		TotalEdits:   412,
		UpdatedAt:    now,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&activity).Error; err != nil {
		return err
	}

	log.Info("seeded demo data",
		zap.Int("customers", 3),
		zap.String("api_key", obslogger.MaskAPIKey(DevAPIKey)),
	)
	return nil
}
