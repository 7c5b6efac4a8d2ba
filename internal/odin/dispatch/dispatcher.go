package dispatch

import (
	"context"
	"sync"
	"time"

	"odinwatch/pkg/telegram"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Transport delivers alerts to a chat.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendVideo(ctx context.Context, chatID int64, video telegram.Video, caption string) error
}

// Registry is the subscriber set the dispatcher reads, prunes and re-keys.
type Registry interface {
	Snapshot() []int64
	Add(ctx context.Context, id int64) (bool, error)
	Remove(ctx context.Context, id int64) (bool, error)
}

type Options struct {
	// Concurrency bounds parallel sends; values < 1 mean 1.
	Concurrency int
	// SendTimeout bounds each single delivery.
	SendTimeout time.Duration
	// Media, when set, is sent with the alert as its caption.
	Media *telegram.Video
}

// Result summarizes one broadcast.
type Result struct {
	Attempted int
	Delivered int
	Failed    int
	Removed   int
	Migrated  int
}

type Dispatcher struct {
	transport Transport
	registry  Registry
	opts      Options
	logger    *zap.Logger
}

func NewDispatcher(transport Transport, registry Registry, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Dispatcher{
		transport: transport,
		registry:  registry,
		opts:      opts,
		logger:    logger,
	}
}

// Broadcast sends text to every registered chat. A failing chat never stops
// delivery to the others; chats reporting a permanent failure are removed.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) Result {
	chats := d.registry.Snapshot()
	res := Result{Attempted: len(chats)}
	if len(chats) == 0 {
		d.logger.Info("no active chats, alert not sent")
		return res
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for _, chatID := range chats {
		g.Go(func() error {
			err := d.send(ctx, chatID, text)

			var removed, migrated bool
			if newID, ok := telegram.MigratedTo(err); ok {
				migrated = true
				err = d.migrate(ctx, chatID, newID, text)
				chatID = newID
			}

			switch {
			case err == nil:
				d.logger.Info("alert delivered", zap.Int64("chat_id", chatID))
			case telegram.IsPermanent(err):
				d.logger.Warn("chat unreachable, removing", zap.Int64("chat_id", chatID), zap.Error(err))
				var rmErr error
				removed, rmErr = d.registry.Remove(ctx, chatID)
				if rmErr != nil {
					d.logger.Error("failed to persist chat removal", zap.Int64("chat_id", chatID), zap.Error(rmErr))
				}
			default:
				d.logger.Warn("alert delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Delivered++
			} else {
				res.Failed++
			}
			if removed {
				res.Removed++
			}
			if migrated {
				res.Migrated++
			}
			return nil
		})
	}
	_ = g.Wait()

	return res
}

// migrate moves a chat upgraded to a supergroup onto its new id and
// retries the delivery there once.
func (d *Dispatcher) migrate(ctx context.Context, oldID, newID int64, text string) error {
	d.logger.Info("chat migrated, re-keying subscriber",
		zap.Int64("chat_id", oldID), zap.Int64("new_chat_id", newID))

	if _, err := d.registry.Remove(ctx, oldID); err != nil {
		d.logger.Error("failed to persist chat removal", zap.Int64("chat_id", oldID), zap.Error(err))
	}
	if _, err := d.registry.Add(ctx, newID); err != nil {
		d.logger.Error("failed to persist migrated chat", zap.Int64("chat_id", newID), zap.Error(err))
	}
	return d.send(ctx, newID, text)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) error {
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}
	if d.opts.Media != nil {
		return d.transport.SendVideo(ctx, chatID, *d.opts.Media, text)
	}
	return d.transport.SendMessage(ctx, chatID, text)
}
