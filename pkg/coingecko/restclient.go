package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when the reply lacks a usable price.
var ErrPriceUnavailable = errors.New("coingecko: price unavailable")

// SimplePriceResponse is the body of /simple/price, e.g. {"bitcoin":{"usd":90000.5}}.
type SimplePriceResponse map[string]map[string]json.Number

type RESTClient struct {
	baseURL    string
	coinID     string
	vsCurrency string
	httpClient *http.Client
}

func NewRESTClient(baseURL, coinID, vsCurrency string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coinID:     coinID,
		vsCurrency: vsCurrency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// Price fetches the current coinID price in vsCurrency.
// A zero or negative quote is rejected.
func (c *RESTClient) Price(ctx context.Context) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("ids", c.coinID)
	params.Set("vs_currencies", c.vsCurrency)
	endpoint := c.baseURL + "/simple/price?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko error: HTTP %d: %s", resp.StatusCode, body)
	}

	var result SimplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}

	raw, ok := result[c.coinID][c.vsCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s missing", ErrPriceUnavailable, c.coinID, c.vsCurrency)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive quote %s", ErrPriceUnavailable, price)
	}
	return price, nil
}
