package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Task func(ctx context.Context) error

// Every runs task now and then once per interval until ctx is done.
// Runs never overlap: a tick that fires during a run is dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task, log *zap.Logger) error {
	if interval <= 0 {
		return errors.New("scheduler: interval must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler").With(zap.String("task", name))

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("run failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		log.Info("run finished", zap.Duration("took", time.Since(start)), zap.Time("next", time.Now().Add(interval)))
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	// run immediately
	run()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			run()
		}
	}
}
