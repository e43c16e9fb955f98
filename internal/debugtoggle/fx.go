package debugtoggle

import "go.uber.org/fx"

var Module = fx.Module("debugtoggle",
	fx.Provide(NewStore),
)
