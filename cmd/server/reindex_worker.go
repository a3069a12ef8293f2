package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type reindexer interface {
	Reindex(ctx context.Context) error
}

type reindexTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) reindexTicker

func startReindexWorker(ctx context.Context, logger *slog.Logger, library reindexer, interval time.Duration) func() {
	return startReindexWorkerWithTicker(ctx, logger, library, interval, func(d time.Duration) reindexTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

// startReindexWorkerWithTicker rebuilds the index once straight away and
// then on every tick. A non-positive interval disables the periodic pass.
// The returned stop function cancels any rebuild in flight and waits for
// the worker to exit.
func startReindexWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	library reindexer,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if library == nil {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var ticks <-chan time.Time
	var ticker reindexTicker
	if interval > 0 {
		ticker = newTicker(interval)
		ticks = ticker.C()
	}

	go func() {
		defer func() {
			if ticker != nil {
				ticker.Stop()
			}
			close(done)
		}()
		reindex(workerCtx, logger, library)
		if ticks == nil {
			return
		}
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticks:
				reindex(workerCtx, logger, library)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func reindex(ctx context.Context, logger *slog.Logger, library reindexer) {
	err := library.Reindex(ctx)
	if err == nil || logger == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("index rebuild cancelled")
		return
	}
	logger.Error("failed to rebuild index", "error", err)
}
