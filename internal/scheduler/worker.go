package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/signalway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker drives full sweeps on the configured poll interval.
type Worker struct {
	svc    *Service
	cfg    config.Config
	log    *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(lc fx.Lifecycle, svc *Service, cfg config.Config, log *zap.Logger) *Worker {
	w := &Worker{
		svc:  svc,
		cfg:  cfg,
		log:  log.Named("scheduler.worker"),
		done: make(chan struct{}),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.Scheduler.Enabled {
				w.log.Info("scheduler disabled")
				close(w.done)
				return nil
			}
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

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	interval := w.cfg.Scheduler.PollIntervalOrDefault()
	w.log.Info("scheduler started", zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if _, err := w.svc.RunAllOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.Error("sweep failed", zap.Error(err))
	}
}
