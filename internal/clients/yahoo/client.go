// Package yahoo provides a client for the Yahoo Finance chart API
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
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

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 4 // requests per second
	DefaultUserAgent = "Mozilla/5.0 (compatible; b3cast/1.0)"
)

const providerName = "yahoo"

// earliestPeriod1 is the chart window start used for LookbackMax
// (1900-01-01). Explicit bounds keep Yahoo on daily bars; range=max
// coarsens long histories.
const earliestPeriod1 int64 = -2208994789

// errNotFound marks a chart response for a symbol Yahoo does not know.
var errNotFound = errors.New("symbol not found")

// Client implements MarketDataProvider against the v8 chart endpoint
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
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

// WithUserAgent sets the User-Agent header; Yahoo rejects empty agents
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMetrics records request outcomes
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new Yahoo chart client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a chart API error
type APIError struct {
	StatusCode  int
	Code        string
	Description string
	Symbol      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo chart error: %s: %s (status: %d, symbol: %s)", e.Code, e.Description, e.StatusCode, e.Symbol)
}

func (e *APIError) Unwrap() error {
	if e.Code == "Not Found" || e.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartMeta struct {
	Currency             string `json:"currency"`
	Symbol               string `json:"symbol"`
	ExchangeName         string `json:"exchangeName"`
	LongName             string `json:"longName"`
	ShortName            string `json:"shortName"`
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
}

// chart fetches one chart document
func (c *Client) chart(ctx context.Context, symbol string, lookback models.Lookback) (result *chartResult, err error) {
	defer func() { c.metrics.ObserveProviderRequest(providerName, "chart", err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	if lookback == models.LookbackMax {
		params.Set("period1", strconv.FormatInt(earliestPeriod1, 10))
		params.Set("period2", strconv.FormatInt(c.now().Unix(), 10))
	} else {
		params.Set("range", string(lookback))
	}
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")
	params.Set("events", "div,splits")

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("symbol", symbol).Str("range", string(lookback)).Msg("Yahoo chart request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var doc chartResponse
	decodeErr := json.Unmarshal(body, &doc)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Description: string(body), Symbol: symbol}
		if decodeErr == nil && doc.Chart.Error != nil {
			apiErr.Code = doc.Chart.Error.Code
			apiErr.Description = doc.Chart.Error.Description
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if doc.Chart.Error != nil {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Code:        doc.Chart.Error.Code,
			Description: doc.Chart.Error.Description,
			Symbol:      symbol,
		}
	}
	if len(doc.Chart.Result) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: "Not Found", Description: "empty result", Symbol: symbol}
	}

	return &doc.Chart.Result[0], nil
}

// GetInstrument retrieves the chart meta block for the symbol. Unknown
// symbols yield an empty instrument.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	res, err := c.chart(ctx, symbol, models.Lookback1Mo)
	if errors.Is(err, errNotFound) {
		return &models.Instrument{}, nil
	}
	if err != nil {
		return nil, err
	}

	name := res.Meta.LongName
	if name == "" {
		name = res.Meta.ShortName
	}
	return &models.Instrument{
		Symbol:   res.Meta.Symbol,
		Name:     name,
		Currency: res.Meta.Currency,
		Exchange: res.Meta.ExchangeName,
		Timezone: res.Meta.ExchangeTimezoneName,
	}, nil
}

// GetHistory retrieves daily closes with timestamps in the exchange's
// native zone. Unknown or delisted symbols yield zero bars.
func (c *Client) GetHistory(ctx context.Context, symbol string, lookback models.Lookback) ([]models.Bar, error) {
	res, err := c.chart(ctx, symbol, lookback)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if res.Meta.ExchangeTimezoneName != "" {
		if l, err := time.LoadLocation(res.Meta.ExchangeTimezoneName); err == nil {
			loc = l
		}
	}

	var closes []*float64
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}

	bars := make([]models.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		price := math.NaN()
		if i < len(closes) && closes[i] != nil {
			price = *closes[i]
		}
		bars = append(bars, models.Bar{Time: time.Unix(ts, 0).In(loc), Close: price})
	}

	return bars, nil
}
