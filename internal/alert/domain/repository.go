package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows alert queries for the read API.
type ListFilter struct {
	CustomerID snowflake.ID
	Type       string
	Status     Status
	Limit      int
}

// CloseUpdate stamps a terminal status onto an open row, recording why.
type CloseUpdate struct {
	ID       snowflake.ID
	Status   Status
	Reason   string
	Context  map[string]any
	ClosedAt time.Time
}

type Repository interface {
	ListOpen(ctx context.Context, db *gorm.DB, customerID snowflake.ID, alertType string) ([]*Alert, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Alert, error)
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Alert, error)
	Insert(ctx context.Context, db *gorm.DB, alert *Alert) error
	Update(ctx context.Context, db *gorm.DB, alert *Alert) error
	Close(ctx context.Context, db *gorm.DB, update CloseUpdate) error
	CountOpenByType(ctx context.Context, db *gorm.DB, alertType string) (int, error)

	// Provider-scoped outage rows (TypeIntegrationError).
	FindOpenIntegration(ctx context.Context, db *gorm.DB, provider string) (*Alert, error)
	ResolveIntegration(ctx context.Context, db *gorm.DB, provider string, at time.Time) error
}
