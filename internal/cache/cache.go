package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeinsight/internal/logger"
	"tradeinsight/internal/market"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cacher is the cache interface used by the API and the alert evaluator
type Cacher interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config represents cache configuration
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCacher returns a Redis-backed cache when enabled and reachable and
// falls back to the in-process cache otherwise.
func NewCacher(cfg *Config) Cacher {
	if cfg != nil && cfg.Enabled {
		redis, err := NewRedisCache(cfg)
		if err == nil {
			return redis
		}
		logger.Warn("redis unavailable, falling back to memory cache", "error", err.Error())
	}
	return NewMemoryCache(0)
}

// Quote cache helpers. Quotes go stale in seconds; candles survive a bit
// longer.

const (
	QuoteTTL   = 2 * time.Second
	CandlesTTL = 30 * time.Second
)

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

func candlesKey(symbol string, timeframe market.Timeframe, count int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, timeframe, count)
}

// SetQuote caches a quote snapshot
func SetQuote(ctx context.Context, c Cacher, quote *market.Quote) error {
	return c.Set(ctx, quoteKey(quote.Symbol), quote, QuoteTTL)
}

// GetQuote retrieves a cached quote
func GetQuote(ctx context.Context, c Cacher, symbol string) (*market.Quote, error) {
	var quote market.Quote
	if err := c.Get(ctx, quoteKey(symbol), &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// SetCandles caches a candle series
func SetCandles(ctx context.Context, c Cacher, symbol string, timeframe market.Timeframe, count int, candles []market.Candle) error {
	return c.Set(ctx, candlesKey(symbol, timeframe, count), candles, CandlesTTL)
}

// GetCandles retrieves a cached candle series
func GetCandles(ctx context.Context, c Cacher, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error) {
	var candles []market.Candle
	if err := c.Get(ctx, candlesKey(symbol, timeframe, count), &candles); err != nil {
		return nil, err
	}
	return candles, nil
}
