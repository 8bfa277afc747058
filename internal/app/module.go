package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/parsalearn/enrollpay/internal/app/api/server"
	"github.com/parsalearn/enrollpay/internal/app/service/dispatch"
	"github.com/parsalearn/enrollpay/internal/app/service/enrollment"
	notificationlog "github.com/parsalearn/enrollpay/internal/app/service/notification_log"
	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/app/service/sweeper"
	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	"github.com/parsalearn/enrollpay/internal/platform/db"
	"github.com/parsalearn/enrollpay/internal/platform/spotplayer"
	"github.com/parsalearn/enrollpay/internal/platform/zarinpal"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/logger"
	"github.com/parsalearn/enrollpay/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

func newMetrics(log *zap.SugaredLogger) *metrics.Prometheus {
	return metrics.NewPrometheus(metrics.NewPrometheusOptions{
		URLLabelFn: func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		},
		Logger: log,
	})
}

// Core wires everything both binaries share.
var Core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	fx.Provide(newMetrics),
	zarinpal.Module,
	spotplayer.Module,
	outbox.Module,
	notificationlog.Module,
	enrollment.Module,
	verification.Module,
	sweeper.Module,
	dispatch.Module,
)

// Module is the API server application.
var Module = fx.Options(
	Core,
	server.Module,
)
