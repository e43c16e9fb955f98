package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher drains the outbox. Delivery is the structured event log
// stream; downstream consumers tail it, and drained rows are stamped
// published so a restart never replays them.
type Dispatcher struct {
	db     *gorm.DB
	outbox *Outbox
	log    *zap.Logger
}

func NewDispatcher(db *gorm.DB, outbox *Outbox, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		outbox: outbox,
		log:    log.Named("events.dispatcher"),
	}
}

// DrainOnce hands off one batch of pending events and marks them
// published. Returns how many events were drained.
func (d *Dispatcher) DrainOnce(ctx context.Context, batchSize int) (int, error) {
	pending, err := d.outbox.ListUnpublished(ctx, d.db, batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]snowflake.ID, 0, len(pending))
	for _, event := range pending {
		d.log.Info("event published",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Any("payload", map[string]any(event.Payload)),
		)
		ids = append(ids, event.ID)
	}

	if err := d.outbox.MarkPublished(ctx, d.db, ids, time.Now().UTC()); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DrainWorker polls the outbox on the configured interval.
type DrainWorker struct {
	dispatcher *Dispatcher
	cfg        config.Config
	log        *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewDrainWorker(lc fx.Lifecycle, dispatcher *Dispatcher, cfg config.Config, log *zap.Logger) *DrainWorker {
	w := &DrainWorker{
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.Named("events.worker"),
		done:       make(chan struct{}),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			go w.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if w.cancel != nil {
				w.cancel()
			}
			select {
			case <-w.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return w
}

func (w *DrainWorker) run(ctx context.Context) {
	defer close(w.done)

	interval := w.cfg.Events.DrainIntervalOrDefault()
	batch := w.cfg.Events.BatchSizeOrDefault()
	w.log.Info("outbox drain started", zap.Duration("interval", interval), zap.Int("batch_size", batch))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("outbox drain stopped")
			return
		case <-ticker.C:
			if _, err := w.dispatcher.DrainOnce(ctx, batch); err != nil && ctx.Err() == nil {
				w.log.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}
