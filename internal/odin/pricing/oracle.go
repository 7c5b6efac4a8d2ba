package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source fetches a fresh reference price.
type Source interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Oracle caches a reference price and refreshes it at most once per interval.
// Failed refreshes keep the cached value; the first value is the fallback.
type Oracle struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	price       decimal.Decimal
	lastRefresh time.Time
}

func NewOracle(source Source, fallback decimal.Decimal, interval, timeout time.Duration, logger *zap.Logger) *Oracle {
	return &Oracle{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		price:    fallback,
	}
}

// Price returns the cached price, refreshing it first when older than the
// interval. It never fails and never returns the zero value unless the
// fallback itself was zero.
func (o *Oracle) Price(ctx context.Context) decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if !o.lastRefresh.IsZero() && now.Sub(o.lastRefresh) < o.interval {
		return o.price
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	price, err := o.source.Price(ctx)
	if err != nil {
		o.logger.Warn("reference price refresh failed, keeping cached value",
			zap.String("cached", o.price.String()), zap.Error(err))
		return o.price
	}
	if !price.IsPositive() {
		o.logger.Warn("reference price source returned non-positive value, keeping cached value",
			zap.String("received", price.String()))
		return o.price
	}

	o.price = price
	o.lastRefresh = now
	o.logger.Info("reference price updated", zap.String("price", price.StringFixed(2)))
	return o.price
}

// Cached returns the cached price and its refresh time without refreshing.
// The time is zero while the fallback is still in use.
func (o *Oracle) Cached() (decimal.Decimal, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.lastRefresh
}
