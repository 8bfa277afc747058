package sweeper

import "go.uber.org/fx"

// Module exposes the sweeper service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(NewRunner),
)
