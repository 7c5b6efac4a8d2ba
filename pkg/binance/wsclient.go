package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoPrice    = errors.New("binance: no price received yet")
	ErrStalePrice = errors.New("binance: price is stale")

	errNotConnected = errors.New("binance: not connected")
)

const defaultReconnectDelay = 3 * time.Second

// WSClient keeps the latest mini-ticker price of one symbol.
type WSClient struct {
	url          string
	symbol       string
	maxStaleness time.Duration
	logger       *zap.Logger
	now          func() time.Time

	// reconnectDelay is the pause between reconnect attempts.
	reconnectDelay time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.RWMutex
	price     decimal.Decimal
	updatedAt time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

// NewWSClient creates a ticker client for symbol (e.g. "BTCUSDT").
// Prices older than maxStaleness are reported as stale, and a stream
// silent for that long is dropped and redialed.
func NewWSClient(url, symbol string, maxStaleness time.Duration, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:          url,
		symbol:       strings.ToUpper(symbol),
		maxStaleness: maxStaleness,
		logger:       logger,
		now:          time.Now,
		closed:       make(chan struct{}),

		reconnectDelay: defaultReconnectDelay,
	}
}

func (c *WSClient) topic() string {
	return strings.ToLower(c.symbol) + "@miniTicker"
}

// Connect dials the stream and subscribes to the symbol's mini-ticker.
// It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to websocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	// pings from the server count as liveness
	conn.SetPingHandler(func(data string) error {
		c.extendDeadline(conn)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: []string{c.topic()}, ID: 1}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("websocket connected", zap.String("url", c.url), zap.String("topic", c.topic()))
	return nil
}

// Listen reads ticker frames until Close, reconnecting on read errors.
func (c *WSClient) Listen() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var (
			msg []byte
			err = errNotConnected
		)
		if conn != nil {
			c.extendDeadline(conn)
			_, msg, err = conn.ReadMessage()
		}
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("websocket read error", zap.Error(err))

			for {
				select {
				case <-c.closed:
					return
				case <-time.After(c.reconnectDelay):
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err := c.Connect(ctx)
				cancel()
				if err != nil {
					c.logger.Warn("retrying reconnect...")
					continue
				}
				c.logger.Info("reconnected successfully")
				break
			}
			continue
		}

		c.HandleMessage(msg)
	}
}

// extendDeadline makes a stream silent for longer than maxStaleness fail
// its pending read, which sends Listen into the reconnect loop.
func (c *WSClient) extendDeadline(conn *websocket.Conn) {
	if c.maxStaleness > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.maxStaleness))
	}
}

// HandleMessage applies one stream frame. Non-ticker frames such as
// subscription acks are ignored.
func (c *WSClient) HandleMessage(msg []byte) {
	var ticker MiniTicker
	if err := json.Unmarshal(msg, &ticker); err != nil {
		c.logger.Debug("failed to parse ticker frame", zap.Error(err))
		return
	}
	if ticker.EventType != "24hrMiniTicker" || !strings.EqualFold(ticker.Symbol, c.symbol) {
		return
	}

	price, err := decimal.NewFromString(ticker.ClosePrice)
	if err != nil || !price.IsPositive() {
		c.logger.Warn("invalid ticker price", zap.String("price", ticker.ClosePrice))
		return
	}

	c.mu.Lock()
	c.price = price
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Price returns the latest streamed price if it is fresh enough.
func (c *WSClient) Price(_ context.Context) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.updatedAt.IsZero() {
		return decimal.Zero, ErrNoPrice
	}
	if age := c.now().Sub(c.updatedAt); c.maxStaleness > 0 && age > c.maxStaleness {
		return decimal.Zero, fmt.Errorf("%w: last update %s ago", ErrStalePrice, age.Truncate(time.Second))
	}
	return c.price, nil
}

// Close stops Listen and closes the connection.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *WSClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
