package worker

import (
	"context"
	"time"

	"outreachly/config"
	"outreachly/engine"

	"github.com/sirupsen/logrus"
)

// SequenceWorker drives the executor on a fixed tick. Each tick picks up
// every execution whose next message is due and advances it.
type SequenceWorker struct {
	Executor *engine.Executor
	Interval time.Duration
	Logger   *logrus.Entry
}

func NewSequenceWorker(executor *engine.Executor, cfg config.EngineConfig, logger *logrus.Entry) *SequenceWorker {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &SequenceWorker{
		Executor: executor,
		Interval: interval,
		Logger:   logger,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(5 * time.Second)

	sw.Logger.Info("sequence worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Info("sequence worker shutting down")
			return
		case <-ticker.C:
			advanced := sw.Executor.ProcessDue(ctx)
			if advanced > 0 {
				sw.Logger.WithField("advanced", advanced).Info("scheduler pass finished")
			}
		}
	}
}
