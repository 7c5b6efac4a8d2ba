package watcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"odinwatch/config"
	"odinwatch/internal/odin/dispatch"
	"odinwatch/internal/odin/memorystore"
	"odinwatch/internal/odin/processor"
	"odinwatch/pkg/odin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []sentMessage
	startOut atomic.Bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		result := "[]"
		if f.startOut.CompareAndSwap(false, true) {
			result = `[{"update_id":1,"message":{"message_id":1,"chat":{"id":555,"type":"private"},"text":"/start"}}]`
		}
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		chatID, _ := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		msg := sentMessage{ChatID: chatID, Text: r.FormValue("text")}
		f.mu.Lock()
		f.sent = append(f.sent, msg)
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTelegram) alerts() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if strings.Contains(m.Text, "BUY! BUY! BUY!") {
			out = append(out, m)
		}
	}
	return out
}

func testConfig(dir, tgURL, odinURL, cgURL string) *config.Config {
	return &config.Config{
		Odin: config.OdinConfig{
			BaseURL:   odinURL,
			TokenID:   "229u",
			TokenName: "Spark",
			SiteURL:   "https://odin.fun",
			PageSize:  100,
			Timeout:   time.Second,
		},
		Price: config.PriceConfig{
			Source:          "coingecko",
			CoinGeckoURL:    cgURL,
			CoinID:          "bitcoin",
			VsCurrency:      "usd",
			Fallback:        90000,
			RefreshInterval: time.Minute,
			Timeout:         time.Second,
		},
		Telegram: config.TelegramConfig{
			BaseURL: tgURL,
			Token:   "TEST:TOKEN",
			Timeout: time.Second,
		},
		Alert: config.AlertConfig{
			Threshold:   500,
			Concurrency: 2,
			SendTimeout: time.Second,
		},
		Subscribers: config.SubscribersConfig{
			Backend: "file",
			Path:    filepath.Join(dir, "active_chats.json"),
		},
		Poll: config.PollConfig{Interval: 10 * time.Millisecond},
	}
}

// go test -v --run TestRunEndToEnd
func TestRunEndToEnd(t *testing.T) {
	tg := &fakeTelegram{}
	tgSrv := httptest.NewServer(tg)
	defer tgSrv.Close()

	odinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token/229u/trades" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"id":1,"buy":true,"price":1000000,"amount_token":100000000000000,"user":"p1","user_username":"whale"},
			{"id":2,"buy":false,"price":1000000,"amount_token":100000000000000,"user":"p2"},
			{"id":3,"buy":true,"price":50000,"amount_token":200000000000,"user":"p3"}
		]}`)
	}))
	defer odinSrv.Close()

	cgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":90000}}`)
	}))
	defer cgSrv.Close()

	dir := t.TempDir()
	cfg := testConfig(dir, tgSrv.URL, odinSrv.URL, cgSrv.URL)

	core, logs := observer.New(zap.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, zap.New(core)) }()

	deadline := time.After(5 * time.Second)
	for len(tg.alerts()) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("no alert delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// let a few more polls re-deliver the same trades
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	alerts := tg.alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].ChatID != 555 || !strings.Contains(alerts[0].Text, "whale") {
		t.Errorf("unexpected alert: %+v", alerts[0])
	}

	raw, err := os.ReadFile(cfg.Subscribers.Path)
	if err != nil {
		t.Fatalf("read subscribers: %v", err)
	}
	if !strings.Contains(string(raw), "555") {
		t.Errorf("subscriber not persisted: %s", raw)
	}

	named := map[string]string{
		"loaded subscribers": "subscriber",
		"new buy order":      "processor",
		"alert delivered":    "dispatch",
	}
	for msg, name := range named {
		entries := logs.FilterMessage(msg).All()
		if len(entries) == 0 {
			t.Errorf("no %q log entry", msg)
			continue
		}
		if entries[0].LoggerName != name {
			t.Errorf("%q logged by %q, want %q", msg, entries[0].LoggerName, name)
		}
	}
}

// go test -v --run TestRunUnknownBackend
func TestRunUnknownBackend(t *testing.T) {
	cfg := testConfig(t.TempDir(), "http://127.0.0.1:0", "http://127.0.0.1:0", "http://127.0.0.1:0")
	cfg.Subscribers.Backend = "etcd"

	if err := Run(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// go test -v --run TestMediaFor
func TestMediaFor(t *testing.T) {
	if v := mediaFor(config.TelegramConfig{}, zap.NewNop()); v != nil {
		t.Errorf("expected no media without a path")
	}
	if v := mediaFor(config.TelegramConfig{MediaPath: "/does/not/exist.mp4"}, zap.NewNop()); v != nil {
		t.Errorf("expected no media for a missing file")
	}

	path := filepath.Join(t.TempDir(), "alert.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := mediaFor(config.TelegramConfig{MediaPath: path, MediaDuration: 10}, zap.NewNop())
	if v == nil || v.Path != path || v.Duration != 10 {
		t.Errorf("unexpected media: %+v", v)
	}
}

// go test -v --run TestToAlertRecord
func TestToAlertRecord(t *testing.T) {
	name := "whale"
	trade := odin.Trade{
		ID:           "42",
		Buy:          true,
		Price:        decimal.RequireFromString("1000000"),
		AmountToken:  decimal.RequireFromString("100000000000000"),
		User:         "p1",
		UserUsername: &name,
	}
	alert := processor.Alert{
		ID:             uuid.New(),
		Trade:          trade,
		Fingerprint:    memorystore.FingerprintOf(trade),
		ReferencePrice: decimal.RequireFromString("90000"),
		FiatTotal:      decimal.RequireFromString("900.004"),
	}
	res := dispatch.Result{Attempted: 3, Delivered: 2, Failed: 1, Removed: 1}

	rec := toAlertRecord("229u", alert, res)
	if rec.ID != alert.ID || rec.TradeID != "42" || rec.TokenID != "229u" {
		t.Errorf("unexpected identity fields: %+v", rec)
	}
	if rec.Fingerprint != "42_1000000_100000000000000_p1" {
		t.Errorf("unexpected fingerprint %q", rec.Fingerprint)
	}
	if rec.TraderName != "whale" || !rec.FiatTotal.Equal(decimal.RequireFromString("900")) {
		t.Errorf("unexpected trader/total: %+v", rec)
	}
	if rec.Delivered != 2 || rec.Removed != 1 {
		t.Errorf("unexpected counts: %+v", rec)
	}
}
