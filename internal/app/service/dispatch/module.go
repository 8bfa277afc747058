package dispatch

import "go.uber.org/fx"

// Module exposes the dispatch service via Fx.
var Module = fx.Options(
	fx.Provide(NewMailer),
	fx.Provide(NewService),
	fx.Provide(NewRunner),
)
