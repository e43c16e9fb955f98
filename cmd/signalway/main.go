package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/alert"
	"github.com/smallbiznis/signalway/internal/audit"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/config"
	"github.com/smallbiznis/signalway/internal/customer"
	"github.com/smallbiznis/signalway/internal/debugtoggle"
	"github.com/smallbiznis/signalway/internal/detector"
	"github.com/smallbiznis/signalway/internal/events"
	"github.com/smallbiznis/signalway/internal/logger"
	"github.com/smallbiznis/signalway/internal/migration"
	"github.com/smallbiznis/signalway/internal/observability"
	"github.com/smallbiznis/signalway/internal/reconcile"
	"github.com/smallbiznis/signalway/internal/scheduler"
	"github.com/smallbiznis/signalway/internal/seed"
	"github.com/smallbiznis/signalway/internal/server"
	"github.com/smallbiznis/signalway/internal/signal"
	"github.com/smallbiznis/signalway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		db.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		events.Module,
		alert.Module,
		customer.Module,
		audit.Module,
		signal.Module,
		detector.Module,
		reconcile.Module,
		fx.Provide(func(s *scheduler.Service) debugtoggle.PassRunner { return s }),
		debugtoggle.Module,
		migration.Module,
		seed.Module,
		scheduler.Module,
		server.Module,
	).Run()
}

// newSnowflakeNode derives the worker id from SIGNALWAY_NODE_ID so
// multi-instance deployments generate disjoint ids.
func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SIGNALWAY_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
