package audit

import (
	"github.com/smallbiznis/signalway/internal/audit/repository"
	"github.com/smallbiznis/signalway/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
