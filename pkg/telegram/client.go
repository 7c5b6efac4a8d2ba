package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client is a Bot API client. Requests carry the caller's context, and
// transport errors never include the bot token.
type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
	token      string

	// uploadMu serializes first uploads so each video is uploaded once.
	uploadMu sync.Mutex
	mu       sync.RWMutex
	fileIDs  map[string]string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Buffer: 100,
		Client: httpClient,
	}
	bot.SetAPIEndpoint(strings.TrimRight(baseURL, "/") + "/bot%s/%s")

	return &Client{
		bot:        bot,
		httpClient: httpClient,
		token:      token,
		fileIDs:    make(map[string]string),
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// GetUpdates returns message updates with update_id >= offset, waiting up to wait.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(wait / time.Second)
	cfg.AllowedUpdates = []string{"message"}

	raw, err := c.api(ctx).GetUpdates(cfg)
	if err != nil {
		return nil, c.wrap("getUpdates", err)
	}

	updates := make([]Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, toUpdate(u))
	}
	return updates, nil
}

// SendMessage sends an HTML formatted text message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	_, err := c.api(ctx).Send(msg)
	return c.wrap("sendMessage", err)
}

// SendVideo sends video with an HTML caption. The file is uploaded once;
// later sends reuse the file_id Telegram returned for it.
func (c *Client) SendVideo(ctx context.Context, chatID int64, video Video, caption string) error {
	if id, ok := c.fileID(video.Path); ok {
		return c.sendCachedVideo(ctx, chatID, id, video, caption)
	}

	c.uploadMu.Lock()
	defer c.uploadMu.Unlock()

	// another sender may have finished the upload while we waited
	if id, ok := c.fileID(video.Path); ok {
		return c.sendCachedVideo(ctx, chatID, id, video, caption)
	}

	msg, err := c.sendVideo(ctx, chatID, tgbotapi.FilePath(video.Path), video, caption)
	if err != nil {
		return err
	}
	if msg.Video != nil && msg.Video.FileID != "" {
		c.mu.Lock()
		c.fileIDs[video.Path] = msg.Video.FileID
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) sendCachedVideo(ctx context.Context, chatID int64, fileID string, video Video, caption string) error {
	_, err := c.sendVideo(ctx, chatID, tgbotapi.FileID(fileID), video, caption)

	// a rejected file_id is dropped so the next send uploads again
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest && !IsPermanent(err) && apiErr.MigrateToChatID == 0 {
		c.mu.Lock()
		delete(c.fileIDs, video.Path)
		c.mu.Unlock()
	}
	return err
}

func (c *Client) sendVideo(ctx context.Context, chatID int64, file tgbotapi.RequestFileData, video Video, caption string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewVideo(chatID, file)
	cfg.Caption = caption
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.Duration = video.Duration
	cfg.SupportsStreaming = true

	msg, err := c.api(ctx).Send(cfg)
	return msg, c.wrap("sendVideo", err)
}

func (c *Client) fileID(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.fileIDs[path]
	return id, ok
}

// api returns a shallow copy of the bot whose requests carry ctx.
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := *c.bot
	bot.Client = contextClient{ctx: ctx, client: c.httpClient}
	return &bot
}

type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// wrap maps library errors onto APIError and strips the token from transport errors.
func (c *Client) wrap(method string, err error) error {
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{
			Method:          method,
			Code:            tgErr.Code,
			Description:     tgErr.Message,
			RetryAfter:      tgErr.RetryAfter,
			MigrateToChatID: tgErr.MigrateToChatID,
		}
	}

	var urlErr *url.Error
	if c.token != "" && errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.token, "<token>")
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

func toUpdate(u tgbotapi.Update) Update {
	out := Update{UpdateID: int64(u.UpdateID)}
	m := u.Message
	if m == nil {
		return out
	}

	msg := &Message{
		MessageID: int64(m.MessageID),
		Date:      int64(m.Date),
		Text:      m.Text,
	}
	if m.Chat != nil {
		msg.Chat = Chat{ID: m.Chat.ID, Type: m.Chat.Type, Title: m.Chat.Title}
	}
	if m.From != nil {
		msg.From = &User{ID: m.From.ID, Username: m.From.UserName}
	}
	out.Message = msg
	return out
}
