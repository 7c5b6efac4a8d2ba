package watcher

import (
	"context"
	"time"

	"odinwatch/internal/odin/processor"

	"go.uber.org/zap"
)

const sweepEvery = time.Hour

type ControlPoller interface {
	Poll(ctx context.Context) (int, error)
}

type TradePoller interface {
	Poll(ctx context.Context) (processor.PollStats, error)
}

// Sweeper deletes journaled alerts older than a cutoff.
type Sweeper interface {
	DeleteAlertsBefore(ctx context.Context, before time.Time) error
}

// Loop drives one control drain and one trade poll per iteration, then
// idles for interval. A failing or panicking step never stops the loop.
type Loop struct {
	control  ControlPoller
	trades   TradePoller
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	sweeper   Sweeper
	retention time.Duration
	lastSweep time.Time
}

func NewLoop(control ControlPoller, trades TradePoller, interval time.Duration, logger *zap.Logger) *Loop {
	return &Loop{
		control:  control,
		trades:   trades,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// WithRetention enables an hourly sweep of alerts older than retention.
func (l *Loop) WithRetention(s Sweeper, retention time.Duration) *Loop {
	if retention > 0 {
		l.sweeper = s
		l.retention = retention
	}
	return l
}

// Run iterates until ctx is done. Cancellation is observed between iterations.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("watch loop started", zap.Duration("interval", l.interval))
	for {
		if ctx.Err() != nil {
			break
		}
		l.RunOnce(ctx)

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	l.logger.Info("watch loop stopped")
}

// RunOnce performs a single iteration.
func (l *Loop) RunOnce(ctx context.Context) {
	l.guard("control", func() {
		n, err := l.control.Poll(ctx)
		if err != nil {
			l.logger.Warn("control poll failed", zap.Error(err))
			return
		}
		if n > 0 {
			l.logger.Debug("handled control updates", zap.Int("count", n))
		}
	})

	l.guard("trades", func() {
		stats, err := l.trades.Poll(ctx)
		if err != nil {
			l.logger.Warn("trade poll failed", zap.Error(err))
			return
		}
		if stats.Alerts > 0 {
			l.logger.Info("poll complete",
				zap.Int("fetched", stats.Fetched),
				zap.Int("buys", stats.Buys),
				zap.Int("alerts", stats.Alerts),
			)
		}
	})

	if l.sweeper != nil && l.now().Sub(l.lastSweep) >= sweepEvery {
		l.guard("sweep", func() {
			l.lastSweep = l.now()
			cutoff := l.lastSweep.Add(-l.retention)
			if err := l.sweeper.DeleteAlertsBefore(ctx, cutoff); err != nil {
				l.logger.Warn("alert retention sweep failed", zap.Error(err))
				return
			}
			l.logger.Debug("alert retention sweep done", zap.Time("cutoff", cutoff))
		})
	}
}

func (l *Loop) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in watch loop",
				zap.String("step", step),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}
