// Package service records audit trail entries. Recording failures are
// logged and swallowed: the audit trail must never fail the operation
// it describes.
package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	obscontext "github.com/smallbiznis/signalway/internal/observability/context"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go.uber.org/zap"
)

type Service struct {
	db    *gorm.DB
	repo  auditdomain.Repository
	genID func() snowflake.ID
	log   *zap.Logger
}

func New(db *gorm.DB, repo auditdomain.Repository, node *snowflake.Node, log *zap.Logger) *Service {
	return &Service{
		db:    db,
		repo:  repo,
		genID: node.Generate,
		log:   log.Named("audit"),
	}
}

// Record writes one audit entry best-effort. When no actor is given the
// authenticated actor from the request context is used, falling back to
// "system" for scheduler-driven mutations.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) {
	actor := entry.Actor
	if actor == "" {
		if actorType, actorID := obscontext.ActorFromContext(ctx); actorID != "" {
			actor = actorType + ":" + actorID
		}
	}
	if actor == "" {
		actor = "system"
	}
	row := &auditdomain.Log{
		ID:         s.genID(),
		CustomerID: entry.CustomerID,
		Actor:      actor,
		Action:     entry.Action,
		Resource:   entry.Resource,
		Detail:     datatypes.JSONMap(entry.Detail),
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		s.log.Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err),
		)
	}
}

// ListByCustomer returns recent entries for one customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID, limit int) ([]*auditdomain.Log, error) {
	return s.repo.ListByCustomer(ctx, s.db, customerID, limit)
}
