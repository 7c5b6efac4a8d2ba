package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"odinwatch/internal/odin/dispatch"
	"odinwatch/internal/odin/memorystore"
	"odinwatch/internal/odin/pricing"
	"odinwatch/pkg/odin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TradeFeed fetches trades newer than a lower bound.
type TradeFeed interface {
	GetTrades(ctx context.Context, tokenID string, since time.Time, page, limit int) ([]odin.Trade, error)
}

// PriceOracle returns the batch reference price; it never fails.
type PriceOracle interface {
	Price(ctx context.Context) decimal.Decimal
}

type OrderStore interface {
	IsNew(fp memorystore.Fingerprint) bool
	MarkSeen(fp memorystore.Fingerprint)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, text string) dispatch.Result
}

// Journal records emitted alerts. Optional.
type Journal interface {
	RecordAlert(ctx context.Context, alert Alert, res dispatch.Result) error
}

type Options struct {
	TokenID      string
	TokenName    string
	TokenURL     string
	PageSize     int
	Threshold    decimal.Decimal
	FetchTimeout time.Duration
}

// Alert is one buy order that passed dedup and the threshold.
type Alert struct {
	ID             uuid.UUID
	Trade          odin.Trade
	Fingerprint    memorystore.Fingerprint
	ReferencePrice decimal.Decimal
	FiatTotal      decimal.Decimal
	TokenAmount    decimal.Decimal
	UnitPrice      decimal.Decimal
	Text           string
}

// PollStats describes the outcome of one poll.
type PollStats struct {
	At             time.Time `json:"at"`
	Fetched        int       `json:"fetched"`
	Buys           int       `json:"buys"`
	Duplicates     int       `json:"duplicates"`
	BelowThreshold int       `json:"below_threshold"`
	Alerts         int       `json:"alerts"`
	Error          string    `json:"error,omitempty"`
}

// Processor turns trade feed polls into alerts. The watermark only moves
// forward, to the completion time of each successful fetch.
type Processor struct {
	feed        TradeFeed
	oracle      PriceOracle
	seen        OrderStore
	broadcaster Broadcaster
	journal     Journal
	opts        Options
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.RWMutex
	watermark time.Time
	lastPoll  PollStats
}

func New(feed TradeFeed, oracle PriceOracle, seen OrderStore, broadcaster Broadcaster, opts Options, logger *zap.Logger) *Processor {
	if opts.PageSize <= 0 {
		opts.PageSize = odin.DefaultPageSize
	}
	return &Processor{
		feed:        feed,
		oracle:      oracle,
		seen:        seen,
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// WithJournal attaches an alert journal.
func (p *Processor) WithJournal(j Journal) *Processor {
	p.journal = j
	return p
}

func (p *Processor) Watermark() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.watermark
}

func (p *Processor) LastPoll() PollStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

// Poll runs one cycle: fetch trades since the watermark, advance it, then
// alert on new buy orders at or above the threshold, in feed order.
func (p *Processor) Poll(ctx context.Context) (PollStats, error) {
	stats := PollStats{At: p.now()}

	p.mu.Lock()
	if p.watermark.IsZero() {
		p.watermark = stats.At
	}
	since := p.watermark
	p.mu.Unlock()

	var (
		price  decimal.Decimal
		trades []odin.Trade
		g      errgroup.Group
	)
	g.Go(func() error {
		price = p.oracle.Price(ctx)
		return nil
	})
	g.Go(func() error {
		fetchCtx := ctx
		if p.opts.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()
		}
		var err error
		trades, err = p.feed.GetTrades(fetchCtx, p.opts.TokenID, since, 1, p.opts.PageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		stats.Error = err.Error()
		p.setLastPoll(stats)
		return stats, fmt.Errorf("fetch trades: %w", err)
	}
	p.advance(p.now())

	stats.Fetched = len(trades)
	p.logger.Debug("fetched trades", zap.Int("count", len(trades)), zap.Time("since", since))
	if len(trades) >= p.opts.PageSize {
		p.logger.Warn("trade page is full, later trades in this window may be missed",
			zap.Int("page_size", p.opts.PageSize))
	}

	for _, t := range trades {
		if !t.Buy {
			continue
		}
		stats.Buys++

		fp := memorystore.FingerprintOf(t)
		if !p.seen.IsNew(fp) {
			stats.Duplicates++
			continue
		}
		p.seen.MarkSeen(fp)

		total := pricing.Estimate(t.Price, t.AmountToken, price)
		p.logger.Info("new buy order",
			zap.String("id", string(t.ID)),
			zap.String("price", t.Price.String()),
			zap.String("amount_token", t.AmountToken.String()),
			zap.String("user", t.User),
			zap.String("username", t.TraderName()),
			zap.String("fiat_total", total.StringFixed(2)),
		)

		// below-threshold orders stay marked seen and never alert later
		if total.LessThan(p.opts.Threshold) {
			stats.BelowThreshold++
			continue
		}

		alert := p.newAlert(t, fp, price, total)
		res := p.broadcaster.Broadcast(ctx, alert.Text)
		stats.Alerts++
		p.logger.Info("alert broadcast",
			zap.String("alert_id", alert.ID.String()),
			zap.String("trade_id", string(t.ID)),
			zap.Int("delivered", res.Delivered),
			zap.Int("failed", res.Failed),
			zap.Int("removed", res.Removed),
			zap.Int("migrated", res.Migrated),
		)

		if p.journal != nil {
			if err := p.journal.RecordAlert(ctx, alert, res); err != nil {
				p.logger.Warn("failed to journal alert", zap.String("alert_id", alert.ID.String()), zap.Error(err))
			}
		}
	}

	p.setLastPoll(stats)
	return stats, nil
}

func (p *Processor) newAlert(t odin.Trade, fp memorystore.Fingerprint, price, total decimal.Decimal) Alert {
	a := Alert{
		ID:             uuid.New(),
		Trade:          t,
		Fingerprint:    fp,
		ReferencePrice: price,
		FiatTotal:      total,
		TokenAmount:    pricing.TokenAmount(t.AmountToken),
		UnitPrice:      pricing.UnitPrice(t.Price),
	}
	a.Text = FormatAlert(AlertFields{
		TokenName:   p.opts.TokenName,
		FiatTotal:   a.FiatTotal,
		TokenAmount: a.TokenAmount,
		UnitPrice:   a.UnitPrice,
		Trader:      t.TraderName(),
		Link:        p.opts.TokenURL,
	})
	return a
}

// advance moves the watermark to at, never backward.
func (p *Processor) advance(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at.After(p.watermark) {
		p.watermark = at
	}
}

func (p *Processor) setLastPoll(stats PollStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = stats
}
