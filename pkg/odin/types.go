package odin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMalformedResponse marks a payload that could not be decoded into trades.
var ErrMalformedResponse = errors.New("odin: malformed response")

// StatusError is returned for any non-200 reply from the feed.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odin error: status %d: %s", e.Code, e.Body)
}

// TradesResponse is the envelope of GET /token/{id}/trades.
type TradesResponse struct {
	Data  json.RawMessage `json:"data"` // Delay decoding so a missing list is detectable
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Count int             `json:"count"`
}

// Trade is a single trade record from the feed. Price and AmountToken are
// native fixed-point integers; amounts routinely exceed int64.
type Trade struct {
	ID           TradeID         `json:"id"`
	Buy          bool            `json:"buy"`
	Price        decimal.Decimal `json:"price"`
	AmountToken  decimal.Decimal `json:"amount_token"`
	User         string          `json:"user"`         // trader principal
	UserUsername *string         `json:"user_username"`
	Time         string          `json:"time"`
}

// TraderName returns the trader's display name, or "unknown" when absent.
func (t Trade) TraderName() string {
	if t.UserUsername == nil || *t.UserUsername == "" {
		return "unknown"
	}
	return *t.UserUsername
}

// TradeID accepts both numeric and string identifiers.
type TradeID string

func (id *TradeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = TradeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("trade id: %w", err)
	}
	*id = TradeID(n.String())
	return nil
}
