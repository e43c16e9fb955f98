package reconcile

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	"github.com/smallbiznis/signalway/internal/events"
	"github.com/smallbiznis/signalway/internal/suppression"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher records lifecycle events inside the pass transaction.
type Publisher interface {
	Publish(ctx context.Context, db *gorm.DB, eventType string, payload map[string]any) error
}

// Engine applies reconciliation plans. It owns no detector logic: the
// caller fetches the signal and evaluates suppression, the engine diffs
// and persists.
type Engine struct {
	db        *gorm.DB
	repo      alertdomain.Repository
	publisher Publisher
	node      *snowflake.Node
	log       *zap.Logger
}

func NewEngine(db *gorm.DB, repo alertdomain.Repository, publisher Publisher, node *snowflake.Node, log *zap.Logger) *Engine {
	return &Engine{
		db:        db,
		repo:      repo,
		publisher: publisher,
		node:      node,
		log:       log.Named("reconcile"),
	}
}

// Reconcile diffs the signal against the customer's open alerts of the
// detector's type and applies the result in one transaction. The first
// failed operation aborts the pass; the transaction rolls back so a
// retry starts from a consistent state.
func (e *Engine) Reconcile(
	ctx context.Context,
	meta Meta,
	customerID snowflake.ID,
	signal detectordomain.Signal,
	verdict suppression.Verdict,
	now time.Time,
) (Counts, error) {
	var counts Counts
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := e.repo.ListOpen(ctx, tx, customerID, meta.Type)
		if err != nil {
			return err
		}

		plan := BuildPlan(meta, customerID, signal, verdict, open, now, e.node.Generate)
		if plan.Empty() {
			return nil
		}

		applied, err := e.apply(ctx, tx, plan)
		counts = applied
		return err
	})
	if err != nil {
		return Counts{}, err
	}

	e.log.Info("reconciled",
		zap.String("type", meta.Type),
		zap.String("customer_id", customerID.String()),
		zap.Int("created", counts.Created),
		zap.Int("updated", counts.Updated),
		zap.Int("closed", counts.Closed),
	)
	return counts, nil
}

func (e *Engine) apply(ctx context.Context, tx *gorm.DB, plan Plan) (Counts, error) {
	var counts Counts

	for _, alert := range plan.Creates {
		if err := e.repo.Insert(ctx, tx, alert); err != nil {
			return counts, err
		}
		if err := e.publish(ctx, tx, events.AlertOpened, alert, ""); err != nil {
			return counts, err
		}
		counts.Created++
	}

	for _, alert := range plan.Updates {
		if err := e.repo.Update(ctx, tx, alert); err != nil {
			return counts, err
		}
		if err := e.publish(ctx, tx, events.AlertUpdated, alert, ""); err != nil {
			return counts, err
		}
		counts.Updated++
	}

	for _, op := range plan.Closes {
		if err := e.repo.Close(ctx, tx, op.Update); err != nil {
			return counts, err
		}
		eventType := events.AlertResolved
		if op.Update.Status == alertdomain.StatusClosed {
			eventType = events.AlertClosed
		}
		if err := e.publish(ctx, tx, eventType, op.Alert, op.Update.Reason); err != nil {
			return counts, err
		}
		counts.Closed++
	}

	return counts, nil
}

func (e *Engine) publish(ctx context.Context, tx *gorm.DB, eventType string, alert *alertdomain.Alert, reason string) error {
	if e.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"alert_id":    alert.ID.String(),
		"customer_id": alert.CustomerID.String(),
		"type":        alert.Type,
	}
	if alert.PrimaryEntityID != nil {
		payload["primary_entity_id"] = *alert.PrimaryEntityID
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return e.publisher.Publish(ctx, tx, eventType, payload)
}
