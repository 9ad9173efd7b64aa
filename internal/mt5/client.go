package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tradeinsight/internal/logger"
	"tradeinsight/internal/market"
)

// Client talks to the MT5 terminal gateway over HTTP. The gateway is the
// sidecar service that holds the actual terminal connection; this client
// never speaks the terminal protocol itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *RetryConfig
}

// Config represents gateway client configuration
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
}

// NewClient creates a new gateway client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	retryCfg := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		retryCfg.InitialWait = cfg.RetryBaseDelay
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		retry:      retryCfg,
	}, nil
}

// ConnectRequest carries MT5 terminal credentials
type ConnectRequest struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// ConnectResponse is the gateway's connect result
type ConnectResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message,omitempty"`
	Error       string              `json:"error,omitempty"`
	AccountInfo *market.AccountInfo `json:"account_info,omitempty"`
}

// HistoryResponse wraps the deal history payload
type HistoryResponse struct {
	Trades    []market.Deal `json:"trades"`
	Count     int           `json:"count"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
}

// Connect validates credentials against the terminal and returns the
// account snapshot on success.
func (c *Client) Connect(ctx context.Context, req *ConnectRequest) (*market.AccountInfo, error) {
	var resp ConnectResponse
	if err := c.post(ctx, "/api/connect", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "connection rejected by gateway"
		}
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: msg}
	}
	return resp.AccountInfo, nil
}

// Disconnect releases the terminal session
func (c *Client) Disconnect(ctx context.Context) error {
	var resp ConnectResponse
	return c.post(ctx, "/api/disconnect", struct{}{}, &resp)
}

// AccountInfo fetches the current account snapshot
func (c *Client) AccountInfo(ctx context.Context) (*market.AccountInfo, error) {
	return RetryWithResult(ctx, func(ctx context.Context) (*market.AccountInfo, error) {
		var info market.AccountInfo
		if err := c.get(ctx, "/api/account", nil, &info); err != nil {
			return nil, err
		}
		return &info, nil
	}, c.retry)
}

// Positions fetches open positions
func (c *Client) Positions(ctx context.Context) ([]market.Position, error) {
	return RetryWithResult(ctx, func(ctx context.Context) ([]market.Position, error) {
		var positions []market.Position
		if err := c.get(ctx, "/api/positions", nil, &positions); err != nil {
			return nil, err
		}
		return positions, nil
	}, c.retry)
}

// Quote fetches symbol info with the current tick
func (c *Client) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	return RetryWithResult(ctx, func(ctx context.Context) (*market.Quote, error) {
		var quote market.Quote
		if err := c.get(ctx, "/api/symbol-info/"+url.PathEscape(symbol), nil, &quote); err != nil {
			return nil, err
		}
		return &quote, nil
	}, c.retry)
}

// Rates fetches historical candles
func (c *Client) Rates(ctx context.Context, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error) {
	if count <= 0 {
		count = 100
	}
	params := url.Values{}
	params.Set("timeframe", string(timeframe))
	params.Set("count", strconv.Itoa(count))

	return RetryWithResult(ctx, func(ctx context.Context) ([]market.Candle, error) {
		var candles []market.Candle
		if err := c.get(ctx, "/api/rates/"+url.PathEscape(symbol), params, &candles); err != nil {
			return nil, err
		}
		return candles, nil
	}, c.retry)
}

// Symbols fetches the available instruments
func (c *Client) Symbols(ctx context.Context) ([]market.Symbol, error) {
	return RetryWithResult(ctx, func(ctx context.Context) ([]market.Symbol, error) {
		var symbols []market.Symbol
		if err := c.get(ctx, "/api/symbols", nil, &symbols); err != nil {
			return nil, err
		}
		return symbols, nil
	}, c.retry)
}

// TradeHistory fetches completed deals in the date range. Zero times are
// omitted and the gateway applies its defaults (last year, 1000 deals).
func (c *Client) TradeHistory(ctx context.Context, start, end time.Time, maxTrades int) ([]market.Deal, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start_date", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end_date", end.UTC().Format(time.RFC3339))
	}
	if maxTrades > 0 {
		params.Set("max_trades", strconv.Itoa(maxTrades))
	}

	return RetryWithResult(ctx, func(ctx context.Context) ([]market.Deal, error) {
		var resp HistoryResponse
		if err := c.get(ctx, "/api/trades/history", params, &resp); err != nil {
			return nil, err
		}
		return resp.Trades, nil
	}, c.retry)
}

// HealthCheck verifies the gateway is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	var status map[string]interface{}
	return c.get(ctx, "/health", nil, &status)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	logger.Debug("gateway request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"latency", time.Since(start).String(),
	)

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errBody)
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
