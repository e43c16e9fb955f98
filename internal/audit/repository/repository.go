// Package repository implements audit trail persistence over gorm.
package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

// Provide constructs the audit repository.
func Provide() auditdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, log *auditdomain.Log) error {
	if log.Detail == nil {
		log.Detail = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Create(log).Error
}

func (r *Repository) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]*auditdomain.Log, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []*auditdomain.Log
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
