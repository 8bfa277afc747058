package main

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/parsalearn/enrollpay/internal/app"
	"github.com/parsalearn/enrollpay/internal/app/service/dispatch"
	"github.com/parsalearn/enrollpay/internal/app/service/sweeper"
)

// runLoops starts the sweeper and outbox dispatcher as long-lived loops tied
// to the fx lifecycle.
func runLoops(lc fx.Lifecycle, log *zap.SugaredLogger, sweep *sweeper.Runner, drain *dispatch.Runner) {
	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting worker loops")
			go func() { _ = sweep.Run(loopCtx) }()
			go func() { _ = drain.Run(loopCtx) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping worker loops")
			cancel()
			return nil
		},
	})
}

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	a := fx.New(
		app.Core,
		fx.Invoke(runLoops),
	)
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to start worker: %v", err)
		exitCode = 1
		return
	}

	<-a.Done()

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop worker: %v", err)
		exitCode = 1
		return
	}
}
