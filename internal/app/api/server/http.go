package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/parsalearn/enrollpay/internal/app/api/handlers"
	enrsvc "github.com/parsalearn/enrollpay/internal/app/service/enrollment"
	sweepsvc "github.com/parsalearn/enrollpay/internal/app/service/sweeper"
	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	cfgpkg "github.com/parsalearn/enrollpay/pkg/config"

	mw "github.com/parsalearn/enrollpay/internal/app/api/middleware"

	metrics "github.com/parsalearn/enrollpay/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request tracing only; request logger & access log are attached per group
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, p *metrics.Prometheus, enr *enrsvc.Service, verifier *verification.Service, sweep *sweepsvc.Service) {
	if cfg != nil && cfg.MetricsAddr != "" {
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)

	// Payment APIs: payment request from the storefront, callback from the gateway
	payment := r.Group("/api/v1/payment")
	payment.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterPaymentRoutes(payment, enr, verifier)

	// Admin APIs behind operator auth
	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AdminAuthMiddleware(cfg.AdminAuth.JWTSecret))
	handlers.RegisterAdminRoutes(admin, enr, sweep)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
