package zarinpal

import (
	"go.uber.org/fx"

	"github.com/parsalearn/enrollpay/pkg/config"
)

func NewFromConfig(cfg *config.Config) Client {
	return NewClient(Options{
		BaseURL:    cfg.Zarinpal.BaseURL,
		PayURL:     cfg.Zarinpal.PayURL,
		MerchantID: cfg.Zarinpal.MerchantID,
		Timeout:    cfg.Zarinpal.Timeout,
	})
}

var Module = fx.Options(
	fx.Provide(NewFromConfig),
)
