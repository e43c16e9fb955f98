package alert

import (
	"github.com/smallbiznis/signalway/internal/alert/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("alert",
	fx.Provide(repository.Provide),
)
