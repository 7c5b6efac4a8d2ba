package odin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBodySnippet = 500

type RESTClient struct {
	baseURL    string
	siteURL    string
	httpClient *http.Client
}

// NewRESTClient creates a feed client. siteURL is sent as Referer/Origin.
func NewRESTClient(baseURL, siteURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		siteURL:    strings.TrimRight(siteURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Close releases idle connections held by the client.
func (c *RESTClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// GetTrades fetches one page of trades for tokenID newer than since.
// since is truncated to the second, so consecutive windows overlap slightly.
func (c *RESTClient) GetTrades(ctx context.Context, tokenID string, since time.Time, page, limit int) ([]Trade, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("time_min", FormatTime(since))

	endpoint := fmt.Sprintf("%s/token/%s/trades?%s", c.baseURL, url.PathEscape(tokenID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, tokenID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}

	trades, err := ParseTrades(body)
	if err != nil {
		return nil, fmt.Errorf("%w (body: %s)", err, snippet(body))
	}
	return trades, nil
}

// ParseTrades decodes a trades envelope. A missing or non-list data field
// is a malformed response, not an empty one.
func ParseTrades(body []byte) ([]Trade, error) {
	var rawResp TradesResponse
	if err := json.Unmarshal(body, &rawResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}

	data := bytes.TrimSpace(rawResp.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: missing data list", ErrMalformedResponse)
	}

	var trades []Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", ErrMalformedResponse, err)
	}
	return trades, nil
}

// FormatTime renders t as the feed's UTC lower-bound timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

func (c *RESTClient) setHeaders(req *http.Request, tokenID string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if c.siteURL != "" {
		req.Header.Set("Referer", c.siteURL+"/token/"+tokenID)
		req.Header.Set("Origin", c.siteURL)
	}
}

func snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet]
	}
	return string(body)
}
