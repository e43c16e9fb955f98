// Package scheduler runs detector passes: one-off on demand, or across
// every known customer on a polling loop. It owns pass serialization,
// the suppression decision and the provider outage alert; the diffing
// itself lives in the reconciliation engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/config"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	"github.com/smallbiznis/signalway/internal/detector"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	obscontext "github.com/smallbiznis/signalway/internal/observability/context"
	"github.com/smallbiznis/signalway/internal/observability/metrics"
	"github.com/smallbiznis/signalway/internal/reconcile"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/smallbiznis/signalway/internal/suppression"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pass outcome labels.
const (
	outcomeOK            = "ok"
	outcomeSuppressed    = "suppressed"
	outcomeProviderError = "provider_error"
	outcomeConfigError   = "config_error"
	outcomeStorageError  = "storage_error"
)

// Report is the result of one detector pass for one customer.
type Report struct {
	CustomerID        snowflake.ID     `json:"customer_id"`
	Detector          string           `json:"detector"`
	Counts            reconcile.Counts `json:"counts"`
	Suppressed        bool             `json:"suppressed"`
	SuppressionReason string           `json:"suppression_reason,omitempty"`
}

// Summary aggregates a full sweep.
type Summary struct {
	Passes   int              `json:"passes"`
	Skipped  int              `json:"skipped"`
	Failures int              `json:"failures"`
	Counts   reconcile.Counts `json:"counts"`
}

type Service struct {
	db        *gorm.DB
	set       *detector.Set
	engine    *reconcile.Engine
	customers customerdomain.Repository
	alerts    alertdomain.Repository
	metrics   *metrics.PassMetrics
	clock     clock.Clock
	node      *snowflake.Node
	cfg       config.Config
	owner     string
	log       *zap.Logger
}

func New(
	db *gorm.DB,
	set *detector.Set,
	engine *reconcile.Engine,
	customers customerdomain.Repository,
	alerts alertdomain.Repository,
	passMetrics *metrics.PassMetrics,
	clk clock.Clock,
	node *snowflake.Node,
	cfg config.Config,
	log *zap.Logger,
) *Service {
	hostname, _ := os.Hostname()
	return &Service{
		db:        db,
		set:       set,
		engine:    engine,
		customers: customers,
		alerts:    alerts,
		metrics:   passMetrics,
		clock:     clk,
		node:      node,
		cfg:       cfg,
		owner:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		log:       log.Named("scheduler"),
	}
}

// RunDetectorPass satisfies the debug toggle's pass trigger.
func (s *Service) RunDetectorPass(ctx context.Context, customerID snowflake.ID, detectorType string) error {
	_, err := s.Run(ctx, customerID, detectorType)
	return err
}

// Run executes one pass for (customer, detector) under a claim. Two
// concurrent calls for the same pair: one runs, the other gets
// ErrPassInProgress.
func (s *Service) Run(ctx context.Context, customerID snowflake.ID, detectorType string) (Report, error) {
	det, err := s.set.ByType(detectorType)
	if err != nil {
		return Report{}, err
	}
	if customerID == 0 {
		return Report{}, alertdomain.ErrInvalidCustomer
	}
	ctx = obscontext.WithCustomerID(ctx, customerID.String())

	start := s.clock.Now()
	ttl := s.cfg.Scheduler.ClaimTTLOrDefault()
	if err := acquireClaim(ctx, s.db, customerID, detectorType, s.owner, ttl, start); err != nil {
		return Report{}, err
	}
	defer func() {
		if err := releaseClaim(context.WithoutCancel(ctx), s.db, customerID, detectorType, s.owner, s.clock.Now()); err != nil {
			s.log.Warn("failed to release pass claim",
				zap.String("detector", detectorType),
				zap.String("customer_id", customerID.String()),
				zap.Error(err),
			)
		}
	}()

	report, outcome, err := s.runClaimed(ctx, det, customerID)
	s.metrics.ObservePassDuration(detectorType, s.clock.Now().Sub(start))
	s.metrics.IncPassOutcome(detectorType, outcome)
	if err != nil {
		return Report{}, err
	}

	s.metrics.AddAlertOperations(detectorType, "created", report.Counts.Created)
	s.metrics.AddAlertOperations(detectorType, "updated", report.Counts.Updated)
	s.metrics.AddAlertOperations(detectorType, "closed", report.Counts.Closed)
	if open, err := s.alerts.CountOpenByType(ctx, s.db, detectorType); err == nil {
		s.metrics.SetOpenAlerts(detectorType, open)
	}
	return report, nil
}

func (s *Service) runClaimed(ctx context.Context, det detectordomain.Detector, customerID snowflake.ID) (Report, string, error) {
	detectorType := det.Type()
	report := Report{CustomerID: customerID, Detector: detectorType}
	meta := reconcile.Meta{
		Type:         detectorType,
		Category:     det.Category(),
		SourceSystem: det.SourceSystem(),
		PerEntity:    det.PerEntity(),
	}
	now := s.clock.Now()

	// Customer-status suppression is decided before paying for a
	// provider round trip.
	state, err := s.customers.GetState(ctx, s.db, customerID)
	if err != nil && !errors.Is(err, customerdomain.ErrCustomerNotFound) {
		return report, outcomeStorageError, err
	}
	if verdict := suppression.EvaluateCustomer(state); verdict.Suppressed {
		counts, err := s.engine.Reconcile(ctx, meta, customerID, detectordomain.Signal{}, verdict, now)
		if err != nil {
			return report, outcomeStorageError, err
		}
		report.Counts = counts
		report.Suppressed = true
		report.SuppressionReason = verdict.Reason
		return report, outcomeSuppressed, nil
	}

	settings, err := s.customers.EnsureSettings(ctx, s.db, customerID, now)
	if err != nil {
		return report, outcomeStorageError, err
	}

	signal, err := det.FetchSignal(ctx, customerID, *settings)
	if err != nil {
		if errors.Is(err, signaldomain.ErrMissingConfig) {
			return report, outcomeConfigError, err
		}
		if errors.Is(err, signaldomain.ErrProviderUnavailable) {
			return s.handleProviderError(ctx, meta, customerID, err, report)
		}
		return report, outcomeStorageError, err
	}

	// A successful fetch clears any standing outage alert for the provider.
	if err := s.alerts.ResolveIntegration(ctx, s.db, meta.SourceSystem, now); err != nil {
		s.log.Warn("failed to resolve integration alert",
			zap.String("provider", meta.SourceSystem),
			zap.Error(err),
		)
	}

	verdict := suppression.EvaluateSignal(signal)
	counts, err := s.engine.Reconcile(ctx, meta, customerID, signal, verdict, now)
	if err != nil {
		return report, outcomeStorageError, err
	}
	report.Counts = counts
	if verdict.Suppressed {
		report.Suppressed = true
		report.SuppressionReason = verdict.Reason
		return report, outcomeSuppressed, nil
	}
	return report, outcomeOK, nil
}

// handleProviderError suppresses the customer pass and raises (or keeps)
// one provider-scoped outage alert. No customer alert is ever created
// from a failed fetch.
func (s *Service) handleProviderError(
	ctx context.Context,
	meta reconcile.Meta,
	customerID snowflake.ID,
	fetchErr error,
	report Report,
) (Report, string, error) {
	passNow := s.clock.Now()
	s.metrics.IncProviderError(meta.SourceSystem)

	if err := s.ensureIntegrationAlert(ctx, meta.SourceSystem, fetchErr); err != nil {
		return report, outcomeStorageError, err
	}

	verdict := suppression.ForProviderError(meta.SourceSystem, fetchErr)
	counts, err := s.engine.Reconcile(ctx, meta, customerID, detectordomain.Signal{}, verdict, passNow)
	if err != nil {
		return report, outcomeStorageError, err
	}
	report.Counts = counts
	report.Suppressed = true
	report.SuppressionReason = verdict.Reason
	return report, outcomeProviderError, nil
}

func (s *Service) ensureIntegrationAlert(ctx context.Context, provider string, fetchErr error) error {
	existing, err := s.alerts.FindOpenIntegration(ctx, s.db, provider)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := s.clock.Now()
	providerKey := provider
	alert := &alertdomain.Alert{
		ID:              s.node.Generate(),
		CustomerID:      0,
		Type:            alertdomain.TypeIntegrationError,
		SourceSystem:    provider,
		PrimaryEntityID: &providerKey,
		Status:          alertdomain.StatusOpen,
		Message:         fmt.Sprintf("signal provider %s is unavailable", provider),
		Context: datatypes.JSONMap{
			"provider": provider,
			"error":    fetchErr.Error(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.alerts.Insert(ctx, s.db, alert)
}

// RunAllOnce sweeps every known customer across every detector. Failures
// are isolated: one customer's bad pass never blocks the rest.
func (s *Service) RunAllOnce(ctx context.Context) (Summary, error) {
	states, err := s.customers.ListStates(ctx, s.db)
	if err != nil {
		return Summary{}, err
	}

	concurrency := s.cfg.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, state := range states {
		for _, det := range s.set.All() {
			customerID := state.CustomerID
			detectorType := det.Type()
			group.Go(func() error {
				report, err := s.Run(groupCtx, customerID, detectorType)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, ErrPassInProgress):
					summary.Skipped++
				case err != nil:
					summary.Failures++
					s.log.Warn("detector pass failed",
						zap.String("detector", detectorType),
						zap.String("customer_id", customerID.String()),
						zap.Error(err),
					)
				default:
					summary.Passes++
					summary.Counts.Created += report.Counts.Created
					summary.Counts.Updated += report.Counts.Updated
					summary.Counts.Closed += report.Counts.Closed
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}
	s.log.Info("sweep finished",
		zap.Int("passes", summary.Passes),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", summary.Failures),
		zap.Int("created", summary.Counts.Created),
		zap.Int("updated", summary.Counts.Updated),
		zap.Int("closed", summary.Counts.Closed),
	)
	return summary, nil
}
