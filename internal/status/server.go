package status

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"odinwatch/internal/odin/processor"
	"odinwatch/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 200
)

type PollState interface {
	Watermark() time.Time
	LastPoll() processor.PollStats
}

type Counter interface {
	Count() int
}

type OrderCounter interface {
	CountAll() int
}

type PriceCache interface {
	Cached() (decimal.Decimal, time.Time)
}

type AlertLister interface {
	RecentAlerts(ctx context.Context, limit int) ([]postgres.AlertRecord, error)
}

type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// Sources are the read-only views the status routes report on.
// Alerts and Journal are optional; /alerts is only registered with Alerts,
// and /health checks Journal when it is set.
type Sources struct {
	Poll        PollState
	Subscribers Counter
	Orders      OrderCounter
	Price       PriceCache
	Alerts      AlertLister
	Journal     HealthChecker
}

type Response struct {
	Watermark     time.Time           `json:"watermark"`
	Subscribers   int                 `json:"subscribers"`
	SeenOrders    int                 `json:"seen_orders"`
	Price         string              `json:"reference_price"`
	PriceAgeSec   float64             `json:"reference_price_age_sec"`
	LastPoll      processor.PollStats `json:"last_poll"`
	JournalActive bool                `json:"journal_active"`
}

func NewServer(addr string, src Sources) (*gin.Engine, *http.Server) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleHealth(src.Journal))
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, snapshot(src))
	})
	if src.Alerts != nil {
		r.GET("/alerts", handleAlerts(src.Alerts))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return r, srv
}

func handleHealth(journal HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if journal == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if !journal.IsHealthy(ctx) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "journal": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "journal": "ok"})
	}
}

func snapshot(src Sources) Response {
	price, at := src.Price.Cached()
	resp := Response{
		Watermark:     src.Poll.Watermark(),
		Subscribers:   src.Subscribers.Count(),
		SeenOrders:    src.Orders.CountAll(),
		Price:         price.StringFixed(2),
		LastPoll:      src.Poll.LastPoll(),
		JournalActive: src.Alerts != nil,
	}
	if !at.IsZero() {
		resp.PriceAgeSec = time.Since(at).Seconds()
	}
	return resp
}

func handleAlerts(alerts AlertLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultAlertLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxAlertLimit)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		records, err := alerts.RecentAlerts(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
	}
}
