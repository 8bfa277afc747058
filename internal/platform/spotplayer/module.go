package spotplayer

import (
	"go.uber.org/fx"

	"github.com/parsalearn/enrollpay/pkg/config"
)

func NewFromConfig(cfg *config.Config) Client {
	return NewClient(Options{
		BaseURL: cfg.SpotPlayer.BaseURL,
		APIKey:  cfg.SpotPlayer.APIKey,
		Timeout: cfg.SpotPlayer.Timeout,
	})
}

var Module = fx.Options(
	fx.Provide(NewFromConfig),
)
