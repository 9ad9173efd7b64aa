package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/analytics"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/middleware"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// TradeHandler syncs and serves deal history with its analytics
type TradeHandler struct {
	accounts  *store.AccountStore
	trades    *store.TradeStore
	gateway   *mt5.Client
	encryptor *security.Encryptor
	metrics   *monitoring.Metrics
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(accounts *store.AccountStore, trades *store.TradeStore, gateway *mt5.Client, encryptor *security.Encryptor, metrics *monitoring.Metrics) *TradeHandler {
	return &TradeHandler{
		accounts:  accounts,
		trades:    trades,
		gateway:   gateway,
		encryptor: encryptor,
		metrics:   metrics,
	}
}

// Sync pulls deal history from the terminal and upserts it. Re-running a
// sync over the same window is safe; existing deals are refreshed.
// @Summary Sync trade history from MT5
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body SyncTradesRequest false "Sync window"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/trades/sync [post]
func (h *TradeHandler) Sync(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	var req SyncTradesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
	}

	start, end, err := parseSyncWindow(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	if _, err := connectLinked(c, h.gateway, h.encryptor, h.metrics, account); err != nil {
		h.metrics.RecordTradeSync("error")
		return
	}

	deals, err := h.gateway.TradeHistory(ctx, start, end, req.MaxTrades)
	if err != nil {
		h.metrics.RecordGatewayRequest("trade_history", "error")
		h.metrics.RecordTradeSync("error")
		logger.Error("trade history fetch failed",
			"account_id", account.ID.String(), "error", err.Error())
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	h.metrics.RecordGatewayRequest("trade_history", "success")

	stored, err := h.trades.Upsert(ctx, account.ID, deals)
	if err != nil {
		h.metrics.RecordTradeSync("error")
		logger.Error("trade sync store failed",
			"account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to store trade history"})
		return
	}
	h.metrics.RecordTradeSync("success")

	logger.Info("trades synced",
		"account_id", account.ID.String(),
		"fetched", len(deals),
		"stored", stored,
	)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    SyncTradesResponse{Fetched: len(deals), Stored: stored},
	})
}

// List returns stored trades for the account, newest first
// @Summary List synced trades
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param symbol query string false "Filter by symbol"
// @Param from query string false "RFC3339 start time"
// @Param to query string false "RFC3339 end time"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/trades [get]
func (h *TradeHandler) List(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	filter, err := parseTradeFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	trades, total, err := h.trades.List(c.Request.Context(), account.ID, filter)
	if err != nil {
		logger.Error("failed to list trades", "account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to list trades"})
		return
	}
	if trades == nil {
		trades = []*store.Trade{}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TradeListResponse{
			Trades: trades,
			Total:  total,
			Limit:  limit,
			Offset: filter.Offset,
		},
	})
}

// Get returns a single stored trade by ticket
// @Summary Get a trade
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param ticket path int true "Deal ticket"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/trades/{ticket} [get]
func (h *TradeHandler) Get(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid ticket parameter"})
		return
	}

	trade, err := h.trades.GetByTicket(c.Request.Context(), account.ID, ticket)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Trade not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: trade})
}

// Analytics computes the performance view from stored trade history
// @Summary Account performance analytics
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/analytics [get]
func (h *TradeHandler) Analytics(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	trades, err := h.trades.ListAll(c.Request.Context(), account.ID)
	if err != nil {
		logger.Error("failed to load trades for analytics",
			"account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to load trade history"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: AnalyticsResponse{
			Summary:      analytics.Summarize(trades),
			EquityCurve:  analytics.EquityCurve(trades),
			BySymbol:     analytics.BySymbol(trades),
			DailyReturns: analytics.DailyReturns(trades),
		},
	})
}

func (h *TradeHandler) ownedAccount(c *gin.Context) (*store.Account, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return nil, false
	}

	account, err := h.accounts.GetByID(c.Request.Context(), userID, accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Account not found"})
		return nil, false
	}
	return account, true
}

// parseSyncWindow resolves the sync window, defaulting to the last 30
// days ending now.
func parseSyncWindow(req SyncTradesRequest) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if req.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	if req.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}
	return start, end, nil
}

func parseTradeFilter(c *gin.Context) (store.TradeFilter, error) {
	filter := store.TradeFilter{Symbol: c.Query("symbol")}

	if from := c.Query("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, err
		}
		filter.From = parsed
	}
	if to := c.Query("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, err
		}
		filter.To = parsed
	}
	if limit := c.Query("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			return filter, err
		}
		filter.Limit = parsed
	}
	if offset := c.Query("offset"); offset != "" {
		parsed, err := strconv.Atoi(offset)
		if err != nil {
			return filter, err
		}
		filter.Offset = parsed
	}
	return filter, nil
}
