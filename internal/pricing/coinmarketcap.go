package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://pro-api.coinmarketcap.com"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// CoinMarketCapSource implements Source against the CoinMarketCap
// historical quotes API, keyed by symbol and calendar day.
type CoinMarketCapSource struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// CMCOption configures CoinMarketCapSource.
type CMCOption func(*CoinMarketCapSource)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) CMCOption {
	return func(s *CoinMarketCapSource) {
		s.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) CMCOption {
	return func(s *CoinMarketCapSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) CMCOption {
	return func(s *CoinMarketCapSource) {
		s.maxRetries = n
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) CMCOption {
	return func(s *CoinMarketCapSource) {
		s.client = client
	}
}

// NewCoinMarketCapSource creates a price source using the given API key.
func NewCoinMarketCapSource(apiKey string, opts ...CMCOption) *CoinMarketCapSource {
	s := &CoinMarketCapSource{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// historicalResponse is the raw API response for quotes/historical.
type historicalResponse struct {
	Data map[string][]historicalEntry `json:"data"`
}

type historicalEntry struct {
	Quotes []historicalQuote `json:"quotes"`
}

type historicalQuote struct {
	Quote map[string]struct {
		Price *float64 `json:"price"`
	} `json:"quote"`
}

// Lookup returns the USD price for symbol on the given day.
// Returns ErrPriceNotFound when the API has no quote for the pair.
func (s *CoinMarketCapSource) Lookup(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	start := day.UTC()
	end := start.Add(24 * time.Hour)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("time_start", start.Format("2006-01-02T15:04:05"))
	params.Set("time_end", end.Format("2006-01-02T15:04:05"))
	params.Set("interval", "daily")
	params.Set("convert", "USD")
	params.Set("count", "1")

	endpoint := s.baseURL + "/v2/cryptocurrency/quotes/historical?" + params.Encode()

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return decimal.Zero, err
	}

	var resp historicalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal price response: %w", err)
	}

	for _, entries := range resp.Data {
		for _, entry := range entries {
			for _, q := range entry.Quotes {
				usd, ok := q.Quote["USD"]
				if !ok || usd.Price == nil {
					continue
				}
				return decimal.NewFromFloat(*usd.Price), nil
			}
		}
	}

	return decimal.Zero, fmt.Errorf("%w: %s on %s", ErrPriceNotFound, symbol, start.Format("2006-01-02"))
}

// get performs a GET with retries and exponential backoff.
// 404 is a terminal miss and maps to ErrPriceNotFound.
func (s *CoinMarketCapSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-CMC_PRO_API_KEY", s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: status 404", ErrPriceNotFound)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

var _ Source = (*CoinMarketCapSource)(nil)
