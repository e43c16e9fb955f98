package detector

import "go.uber.org/fx"

var Module = fx.Module("detector",
	fx.Provide(
		NewMissedPaymentDetector,
		NewOverdueInvoicesDetector,
		NewWorkspaceStaleDetector,
		NewSet,
	),
)
