package control

import (
	"context"
	"fmt"
	"time"

	"odinwatch/pkg/telegram"

	"go.uber.org/zap"
)

// Bot is the messaging side of the control channel.
type Bot interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Registry is the subscriber set mutated by commands.
type Registry interface {
	Add(ctx context.Context, id int64) (bool, error)
	Remove(ctx context.Context, id int64) (bool, error)
}

// Channel consumes /start and /stop commands. Each update is consumed
// exactly once: the offset moves past it whether or not handling succeeds.
type Channel struct {
	bot          Bot
	registry     Registry
	wait         time.Duration
	replyTimeout time.Duration
	logger       *zap.Logger

	offset int64
}

func NewChannel(bot Bot, registry Registry, wait, replyTimeout time.Duration, logger *zap.Logger) *Channel {
	return &Channel{
		bot:          bot,
		registry:     registry,
		wait:         wait,
		replyTimeout: replyTimeout,
		logger:       logger,
	}
}

// Offset returns the next update id to request.
func (c *Channel) Offset() int64 {
	return c.offset
}

// Poll fetches pending updates and applies their commands.
// It returns the number of recognized commands handled.
func (c *Channel) Poll(ctx context.Context) (int, error) {
	updates, err := c.bot.GetUpdates(ctx, c.offset, c.wait)
	if err != nil {
		return 0, fmt.Errorf("get updates: %w", err)
	}

	handled := 0
	for _, u := range updates {
		if u.Message != nil && u.Message.Text != "" {
			if cmd := ParseCommand(u.Message.Text); cmd != CommandUnknown {
				c.handle(ctx, cmd, u.Message.Chat)
				handled++
			}
		}
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
	}
	return handled, nil
}

func (c *Channel) handle(ctx context.Context, cmd Command, chat telegram.Chat) {
	log := c.logger.With(
		zap.Int64("chat_id", chat.ID),
		zap.String("chat_title", chatTitle(chat)),
		zap.Stringer("command", cmd),
	)

	var reply string
	switch cmd {
	case CommandStart:
		added, err := c.registry.Add(ctx, chat.ID)
		if err != nil {
			log.Error("failed to persist subscription", zap.Error(err))
		}
		if added {
			reply = ReplyStarted
			log.Info("chat activated")
		} else {
			reply = ReplyAlreadyRunning
		}
	case CommandStop:
		removed, err := c.registry.Remove(ctx, chat.ID)
		if err != nil {
			log.Error("failed to persist unsubscription", zap.Error(err))
		}
		if removed {
			reply = ReplyStopped
			log.Info("chat deactivated")
		} else {
			reply = ReplyNotRunning
		}
	default:
		return
	}

	if c.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.replyTimeout)
		defer cancel()
	}
	if err := c.bot.SendMessage(ctx, chat.ID, reply); err != nil {
		log.Warn("failed to send command reply", zap.Error(err))
	}
}

func chatTitle(chat telegram.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return "private chat"
}
