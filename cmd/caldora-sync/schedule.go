package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
)

// cronLogger routes scheduler messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// runScheduled runs job immediately and then on every tick of spec until
// ctx is done or the process is interrupted. A run still in progress when
// the next tick fires is not overlapped.
func runScheduled(ctx context.Context, spec string, logger *slog.Logger, job func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	run := func() {
		if err := job(ctx); err != nil {
			logger.Error("scheduled sync failed", "error", err)
		}
	}
	id, err := c.AddFunc(spec, run)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info("starting scheduled sync", "schedule", spec)
	run()
	c.Start()
	logger.Info("next sync", "at", c.Entry(id).Next)

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}
