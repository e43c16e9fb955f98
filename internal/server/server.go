// Package server exposes the operator HTTP API: alert queries and
// dismissal, customer settings, on-demand detector passes and the debug
// toggles.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	auditservice "github.com/smallbiznis/signalway/internal/audit/service"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/config"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	"github.com/smallbiznis/signalway/internal/debugtoggle"
	"github.com/smallbiznis/signalway/internal/detector"
	"github.com/smallbiznis/signalway/internal/events"
	obscontext "github.com/smallbiznis/signalway/internal/observability/context"
	"github.com/smallbiznis/signalway/internal/observability/metrics"
	"github.com/smallbiznis/signalway/internal/observability/tracing"
	"github.com/smallbiznis/signalway/internal/scheduler"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/smallbiznis/signalway/internal/signal/providers"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	alerts      alertdomain.Repository
	customers   customerdomain.Repository
	scheduler   *scheduler.Service
	toggles     *debugtoggle.Store
	audit       *auditservice.Service
	outbox      *events.Outbox
	detectors   *detector.Set
	registry    *providers.Registry
	clock       clock.Clock
	node        *snowflake.Node
	httpMetrics *metrics.HTTPMetrics
}

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Alerts      alertdomain.Repository
	Customers   customerdomain.Repository
	Scheduler   *scheduler.Service
	Toggles     *debugtoggle.Store
	Audit       *auditservice.Service
	Outbox      *events.Outbox
	Detectors   *detector.Set
	Registry    *providers.Registry
	Clock       clock.Clock
	Node        *snowflake.Node
	HTTPMetrics *metrics.HTTPMetrics
}

func New(p Params) *Server {
	return &Server{
		cfg:         p.Config,
		db:          p.DB,
		log:         p.Log.Named("server"),
		alerts:      p.Alerts,
		customers:   p.Customers,
		scheduler:   p.Scheduler,
		toggles:     p.Toggles,
		audit:       p.Audit,
		outbox:      p.Outbox,
		detectors:   p.Detectors,
		registry:    p.Registry,
		clock:       p.Clock,
		node:        p.Node,
		httpMetrics: p.HTTPMetrics,
	}
}

// Engine builds the router.
func (s *Server) Engine() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestID())
	engine.Use(tracing.GinMiddleware())
	engine.Use(metrics.GinMiddleware(s.httpMetrics))

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := newRateLimiter(s.cfg.HTTP.RateLimit, s.cfg.HTTP.RateLimitWindowOrDefault())

	v1 := engine.Group("/v1")
	v1.Use(apiKeyAuth(s.db))
	v1.Use(limiter.middleware())
	{
		v1.GET("/alerts", s.handleListAlerts)
		v1.POST("/alerts/:id/dismiss", s.handleDismissAlert)

		v1.GET("/customers/:id/settings", s.handleGetSettings)
		v1.PATCH("/customers/:id/settings", s.handlePatchSettings)
		v1.GET("/customers/:id/state", s.handleGetState)
		v1.PUT("/customers/:id/state", s.handlePutState)
		v1.GET("/customers/:id/audit", s.handleListAudit)

		v1.GET("/detectors", s.handleListDetectors)
		v1.POST("/detectors/:type/run", s.handleRunDetector)

		v1.GET("/debug/toggles", s.handleListToggles)
		v1.POST("/debug/toggles", s.handleEnableToggle)
		v1.DELETE("/debug/toggles/:toggle", s.handleDisableToggle)
	}
	return engine
}

// requestID honors an inbound X-Request-ID or assigns one, and echoes it
// back so operators can correlate responses with logs and traces.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = s.node.Generate().String()
		}
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}

	providerHealth := gin.H{}
	for _, provider := range []string{
		signaldomain.ProviderPayments,
		signaldomain.ProviderInvoices,
		signaldomain.ProviderWorkspace,
	} {
		if !s.registry.Configured(provider) {
			providerHealth[provider] = "unconfigured"
			continue
		}
		health, err := s.registry.Health(ctx, s.db, provider)
		switch {
		case err != nil:
			providerHealth[provider] = "unknown"
		case health == nil:
			providerHealth[provider] = "ok"
		default:
			providerHealth[provider] = string(health.Status)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "providers": providerHealth})
}

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(RunHTTP),
)
