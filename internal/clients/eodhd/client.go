// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = flexFloat64(math.NaN())
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = flexFloat64(math.NaN())
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

const providerName = "eodhd"

// Client implements SymbolProvider and MarketDataProvider against EODHD
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	location   *time.Location
	metrics    *metrics.Metrics
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLocation sets the exchange zone that EOD dates are expressed in
func WithLocation(loc *time.Location) ClientOption {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithMetrics records request outcomes
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithNow overrides the clock used to compute lookback windows
func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:   common.NewSilentLogger(),
		location: time.UTC,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) (err error) {
	defer func() { c.metrics.ObserveProviderRequest(providerName, endpoint, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetExchangeSymbols retrieves all symbols for an exchange
func (c *Client) GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error) {
	path := fmt.Sprintf("/exchange-symbol-list/%s", exchange)

	var symbols []models.Symbol
	if err := c.get(ctx, "exchange-symbol-list", path, nil, &symbols); err != nil {
		return nil, err
	}

	result := make([]*models.Symbol, len(symbols))
	for i := range symbols {
		result[i] = &symbols[i]
	}

	return result, nil
}

// eodBarResponse represents the API response for EOD data. Close is a
// pointer so that a null close decodes as missing rather than zero.
type eodBarResponse struct {
	Date  string       `json:"date"`
	Close *flexFloat64 `json:"close"`
}

// GetHistory retrieves daily closes. EOD rows carry a bare date which is
// the exchange-local trading day, so bars are stamped at local midnight.
func (c *Client) GetHistory(ctx context.Context, symbol string, lookback models.Lookback) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	if lookback == models.Lookback1Mo {
		params.Set("from", c.now().AddDate(0, -1, 0).Format(models.DateLayout))
	}

	path := fmt.Sprintf("/eod/%s", symbol)

	var rows []eodBarResponse
	if err := c.get(ctx, "eod", path, params, &rows); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		date, err := time.ParseInLocation(models.DateLayout, row.Date, c.location)
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Str("date", row.Date).Msg("Skipping EOD row with bad date")
			continue
		}
		price := math.NaN()
		if row.Close != nil {
			price = float64(*row.Close)
		}
		bars = append(bars, models.Bar{Time: date, Close: price})
	}

	return bars, nil
}

// generalResponse is the General section of the fundamentals endpoint
type generalResponse struct {
	Code         string `json:"Code"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
}

// GetInstrument retrieves the General section of the fundamentals endpoint.
// EODHD answers unknown tickers with an empty array or object, which maps to
// an empty instrument rather than an error.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	path := fmt.Sprintf("/fundamentals/%s", symbol)
	params := url.Values{}
	params.Set("filter", "General")

	var raw json.RawMessage
	if err := c.get(ctx, "fundamentals", path, params, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &models.Instrument{}, nil
	}

	var general generalResponse
	if err := json.Unmarshal(trimmed, &general); err != nil {
		return nil, fmt.Errorf("failed to decode fundamentals: %w", err)
	}

	inst := &models.Instrument{
		Name:     general.Name,
		Currency: general.CurrencyCode,
		Exchange: general.Exchange,
		Timezone: c.location.String(),
	}
	if general.Code != "" {
		inst.Symbol = symbol
	}
	return inst, nil
}
