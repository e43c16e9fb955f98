package signal

import (
	"github.com/smallbiznis/signalway/internal/signal/providers"
	"go.uber.org/fx"
)

var Module = fx.Module("signal",
	fx.Provide(providers.FromConfig),
)
