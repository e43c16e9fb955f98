package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newOutboxTestDB(t *testing.T) (*gorm.DB, *Outbox) {
	t.Helper()
	dsn := fmt.Sprintf("file:events_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return db, NewOutbox(node)
}

func TestDrainMarksEventsPublished(t *testing.T) {
	db, outbox := newOutboxTestDB(t)
	ctx := context.Background()

	if err := outbox.Publish(ctx, db, AlertOpened, map[string]any{"alert_id": "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := outbox.Publish(ctx, db, AlertResolved, map[string]any{"alert_id": "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	dispatcher := NewDispatcher(db, outbox, zap.NewNop())
	drained, err := dispatcher.DrainOnce(ctx, 100)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained != 2 {
		t.Fatalf("drained = %d, want 2", drained)
	}

	var unpublished int64
	if err := db.Model(&Event{}).Where("published_at IS NULL").Count(&unpublished).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if unpublished != 0 {
		t.Fatalf("unpublished events = %d, want 0", unpublished)
	}

	// Drained events stay drained across sweeps.
	drained, err = dispatcher.DrainOnce(ctx, 100)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if drained != 0 {
		t.Fatalf("second drain = %d, want 0", drained)
	}
}

func TestDrainRespectsBatchSize(t *testing.T) {
	db, outbox := newOutboxTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		payload := map[string]any{"alert_id": fmt.Sprint(i)}
		if err := outbox.Publish(ctx, db, AlertUpdated, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	dispatcher := NewDispatcher(db, outbox, zap.NewNop())
	drained, err := dispatcher.DrainOnce(ctx, 3)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained != 3 {
		t.Fatalf("drained = %d, want batch of 3", drained)
	}

	drained, err = dispatcher.DrainOnce(ctx, 3)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if drained != 2 {
		t.Fatalf("second drain = %d, want the remaining 2", drained)
	}
}
