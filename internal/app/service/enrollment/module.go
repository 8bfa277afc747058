package enrollment

import "go.uber.org/fx"

// Module exposes the enrollment service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
