package reconcile

import (
	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	"github.com/smallbiznis/signalway/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("reconcile",
	fx.Provide(
		func(db *gorm.DB, repo alertdomain.Repository, outbox *events.Outbox, node *snowflake.Node, log *zap.Logger) *Engine {
			return NewEngine(db, repo, outbox, node, log)
		},
	),
)
