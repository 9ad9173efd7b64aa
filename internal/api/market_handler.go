package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/cache"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/market"
	"tradeinsight/internal/middleware"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
)

// MarketHandler serves quotes, candles, and the symbol list, reading
// through the cache so repeated polling does not hammer the gateway.
type MarketHandler struct {
	gateway *mt5.Client
	cache   cache.Cacher
	metrics *monitoring.Metrics
}

// NewMarketHandler creates a new market data handler
func NewMarketHandler(gateway *mt5.Client, cacher cache.Cacher, metrics *monitoring.Metrics) *MarketHandler {
	return &MarketHandler{
		gateway: gateway,
		cache:   cacher,
		metrics: metrics,
	}
}

// Quote returns the current quote for a symbol, cache-through. Also
// satisfies the alert evaluator's quote source.
func (h *MarketHandler) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	if quote, err := cache.GetQuote(ctx, h.cache, symbol); err == nil {
		h.metrics.RecordCacheRequest("quote", "hit")
		return quote, nil
	}
	h.metrics.RecordCacheRequest("quote", "miss")

	quote, err := h.gateway.Quote(ctx, symbol)
	if err != nil {
		h.metrics.RecordGatewayRequest("quote", "error")
		return nil, err
	}
	h.metrics.RecordGatewayRequest("quote", "success")
	h.metrics.RecordMarketDataUpdate(symbol, "quote")

	if err := cache.SetQuote(ctx, h.cache, quote); err != nil {
		logger.Warn("failed to cache quote", "symbol", symbol, "error", err.Error())
	}
	return quote, nil
}

// Candles returns a candle series, cache-through
func (h *MarketHandler) Candles(ctx context.Context, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error) {
	if count <= 0 {
		count = 100
	}

	if candles, err := cache.GetCandles(ctx, h.cache, symbol, timeframe, count); err == nil {
		h.metrics.RecordCacheRequest("candles", "hit")
		return candles, nil
	}
	h.metrics.RecordCacheRequest("candles", "miss")

	candles, err := h.gateway.Rates(ctx, symbol, timeframe, count)
	if err != nil {
		h.metrics.RecordGatewayRequest("rates", "error")
		return nil, err
	}
	h.metrics.RecordGatewayRequest("rates", "success")
	h.metrics.RecordMarketDataUpdate(symbol, "candles")

	if err := cache.SetCandles(ctx, h.cache, symbol, timeframe, count, candles); err != nil {
		logger.Warn("failed to cache candles", "symbol", symbol, "error", err.Error())
	}
	return candles, nil
}

// GetQuote returns the current quote for a symbol
// @Summary Get a symbol quote
// @Tags market
// @Produce json
// @Security BearerAuth
// @Param symbol path string true "Symbol"
// @Success 200 {object} Response
// @Router /api/v1/market/quote/{symbol} [get]
func (h *MarketHandler) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")

	quote, err := h.Quote(c.Request.Context(), symbol)
	if err != nil {
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// GetCandles returns historical candles for a symbol
// @Summary Get symbol candles
// @Tags market
// @Produce json
// @Security BearerAuth
// @Param symbol path string true "Symbol"
// @Param timeframe query string false "Timeframe (1M..1D, default 1H)"
// @Param count query int false "Number of candles (default 100)"
// @Success 200 {object} Response
// @Router /api/v1/market/candles/{symbol} [get]
func (h *MarketHandler) GetCandles(c *gin.Context) {
	symbol := c.Param("symbol")

	timeframe, err := market.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	count := 100
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 5000 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid count parameter"})
			return
		}
		count = parsed
	}

	candles, err := h.Candles(c.Request.Context(), symbol, timeframe, count)
	if err != nil {
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	if candles == nil {
		candles = []market.Candle{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: CandlesResponse{
			Symbol:    symbol,
			Timeframe: string(timeframe),
			Candles:   candles,
		},
	})
}

// GetSymbols returns the instruments offered by the connected broker
// @Summary List available symbols
// @Tags market
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/v1/market/symbols [get]
func (h *MarketHandler) GetSymbols(c *gin.Context) {
	symbols, err := h.gateway.Symbols(c.Request.Context())
	if err != nil {
		h.metrics.RecordGatewayRequest("symbols", "error")
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	h.metrics.RecordGatewayRequest("symbols", "success")
	if symbols == nil {
		symbols = []market.Symbol{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: symbols})
}
