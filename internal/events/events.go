// Package events records alert lifecycle events in a transactional
// outbox table so downstream consumers can tail them without coupling
// to the reconciliation write path.
package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Alert lifecycle event types.
const (
	AlertOpened   = "alert.opened"
	AlertUpdated  = "alert.updated"
	AlertClosed   = "alert.closed"
	AlertResolved = "alert.resolved"
)

// Event is one outbox row.
type Event struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType   string            `gorm:"type:text;not null;index" json:"event_type"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	PublishedAt *time.Time        `gorm:"" json:"published_at,omitempty"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "signal_events" }

// Outbox writes events inside the caller's transaction.
type Outbox struct {
	genID func() snowflake.ID
}

func NewOutbox(node *snowflake.Node) *Outbox {
	return &Outbox{genID: node.Generate}
}

// Publish appends one event row. Passing the caller's db handle keeps
// the event atomic with the state change it describes.
func (o *Outbox) Publish(ctx context.Context, db *gorm.DB, eventType string, payload map[string]any) error {
	event := Event{
		ID:        o.genID(),
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
	}
	if event.Payload == nil {
		event.Payload = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Create(&event).Error
}

// ListUnpublished returns pending events oldest first.
func (o *Outbox) ListUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var pending []*Event
	err := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// MarkPublished stamps a batch of events as handed off.
func (o *Outbox) MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&Event{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
}
