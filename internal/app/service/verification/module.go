package verification

import "go.uber.org/fx"

// Module exposes the verification service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
