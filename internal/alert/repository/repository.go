// Package repository implements alert persistence over gorm.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

// Provide constructs the alert repository.
func Provide() alertdomain.Repository {
	return &Repository{}
}

func (r *Repository) ListOpen(ctx context.Context, db *gorm.DB, customerID snowflake.ID, alertType string) ([]*alertdomain.Alert, error) {
	alertType = strings.TrimSpace(alertType)
	if alertType == "" {
		return nil, alertdomain.ErrInvalidType
	}
	var alerts []*alertdomain.Alert
	err := db.WithContext(ctx).
		Where("customer_id = ? AND type = ? AND status = ?", customerID, alertType, alertdomain.StatusOpen).
		Order("id").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, filter alertdomain.ListFilter) ([]*alertdomain.Alert, error) {
	query := db.WithContext(ctx).Model(&alertdomain.Alert{})
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if alertType := strings.TrimSpace(filter.Type); alertType != "" {
		query = query.Where("type = ?", alertType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var alerts []*alertdomain.Alert
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *Repository) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*alertdomain.Alert, error) {
	if id == 0 {
		return nil, alertdomain.ErrInvalidAlertID
	}
	var alert alertdomain.Alert
	err := db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, alertdomain.ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, alert *alertdomain.Alert) error {
	if alert == nil || alert.ID == 0 {
		return alertdomain.ErrInvalidAlertID
	}
	if alert.Context == nil {
		alert.Context = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Create(alert).Error
}

// Update replaces the mutable payload of a row. Identity and created_at
// never change.
func (r *Repository) Update(ctx context.Context, db *gorm.DB, alert *alertdomain.Alert) error {
	if alert == nil || alert.ID == 0 {
		return alertdomain.ErrInvalidAlertID
	}
	if alert.Context == nil {
		alert.Context = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("id = ?", alert.ID).
		Updates(map[string]any{
			"status":                alert.Status,
			"message":               alert.Message,
			"confidence":            alert.Confidence,
			"confidence_reason":     alert.ConfidenceReason,
			"amount_at_risk_cents":  alert.AmountAtRiskCents,
			"expected_amount_cents": alert.ExpectedAmountCents,
			"observed_amount_cents": alert.ObservedAmountCents,
			"expected_at":           alert.ExpectedAt,
			"observed_at":           alert.ObservedAt,
			"context":               alert.Context,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *Repository) Close(ctx context.Context, db *gorm.DB, update alertdomain.CloseUpdate) error {
	if update.ID == 0 {
		return alertdomain.ErrInvalidAlertID
	}
	status := update.Status
	if status != alertdomain.StatusClosed && status != alertdomain.StatusResolved {
		status = alertdomain.StatusResolved
	}

	values := map[string]any{
		"status":     status,
		"closed_at":  update.ClosedAt,
		"updated_at": update.ClosedAt,
	}
	if reason := strings.TrimSpace(update.Reason); reason != "" {
		values["confidence_reason"] = reason
	}
	if len(update.Context) > 0 {
		existing, err := r.GetByID(ctx, db, update.ID)
		if err != nil {
			return err
		}
		merged := datatypes.JSONMap{}
		for key, value := range existing.Context {
			merged[key] = value
		}
		for key, value := range update.Context {
			merged[key] = value
		}
		values["context"] = merged
	}

	result := db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("id = ? AND status = ?", update.ID, alertdomain.StatusOpen).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return alertdomain.ErrAlertNotOpen
	}
	return nil
}

func (r *Repository) CountOpenByType(ctx context.Context, db *gorm.DB, alertType string) (int, error) {
	var count int64
	err := db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("type = ? AND status = ?", strings.TrimSpace(alertType), alertdomain.StatusOpen).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Repository) FindOpenIntegration(ctx context.Context, db *gorm.DB, provider string) (*alertdomain.Alert, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, alertdomain.ErrInvalidType
	}
	var alert alertdomain.Alert
	err := db.WithContext(ctx).
		Where("type = ? AND primary_entity_id = ? AND status = ?", alertdomain.TypeIntegrationError, provider, alertdomain.StatusOpen).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *Repository) ResolveIntegration(ctx context.Context, db *gorm.DB, provider string, at time.Time) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return alertdomain.ErrInvalidType
	}
	return db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("type = ? AND primary_entity_id = ? AND status = ?", alertdomain.TypeIntegrationError, provider, alertdomain.StatusOpen).
		Updates(map[string]any{
			"status":     alertdomain.StatusResolved,
			"closed_at":  at,
			"updated_at": at,
		}).Error
}
