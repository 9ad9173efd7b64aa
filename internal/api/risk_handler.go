package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/logger"
	"tradeinsight/internal/middleware"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
	"tradeinsight/internal/risk"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// RiskHandler computes portfolio risk from live positions
type RiskHandler struct {
	accounts  *store.AccountStore
	gateway   *mt5.Client
	encryptor *security.Encryptor
	metrics   *monitoring.Metrics
	calc      *risk.Calculator
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(accounts *store.AccountStore, gateway *mt5.Client, encryptor *security.Encryptor, metrics *monitoring.Metrics) *RiskHandler {
	return &RiskHandler{
		accounts:  accounts,
		gateway:   gateway,
		encryptor: encryptor,
		metrics:   metrics,
		calc:      risk.NewCalculator(),
	}
}

// Overview returns the full VaR and risk-ratio report for the
// account's open positions.
// @Summary Portfolio risk report
// @Tags risk
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param horizon query string false "Risk horizon (1d, 5d, 10d, 1w, 2w, 1m, 3m, 6m, 1y)"
// @Param confidence query number false "VaR confidence level (default 0.95)"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/risk [get]
func (h *RiskHandler) Overview(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	horizonDays := risk.ParseHorizon(c.Query("horizon"))

	confidence := 0.95
	if raw := c.Query("confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed >= 1 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid confidence parameter"})
			return
		}
		confidence = parsed
	}

	ctx := c.Request.Context()

	info, err := connectLinked(c, h.gateway, h.encryptor, h.metrics, account)
	if err != nil {
		return
	}

	positions, err := h.gateway.Positions(ctx)
	if err != nil {
		h.metrics.RecordGatewayRequest("positions", "error")
		logger.Error("positions fetch failed",
			"account_id", account.ID.String(), "error", err.Error())
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	h.metrics.RecordGatewayRequest("positions", "success")

	report := h.calc.PortfolioRisk(positions, info.Balance, horizonDays, confidence)
	h.metrics.RecordRiskReport()

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// Scenarios stress-tests the open positions. With no scenario names in
// the body, all known scenarios are run.
// @Summary Portfolio stress scenarios
// @Tags risk
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body ScenarioRequest false "Scenario names"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/risk/scenarios [post]
func (h *RiskHandler) Scenarios(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	var req ScenarioRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
	}
	if len(req.Scenarios) == 0 {
		req.Scenarios = risk.KnownScenarios
	}

	ctx := c.Request.Context()

	info, err := connectLinked(c, h.gateway, h.encryptor, h.metrics, account)
	if err != nil {
		return
	}

	positions, err := h.gateway.Positions(ctx)
	if err != nil {
		h.metrics.RecordGatewayRequest("positions", "error")
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	h.metrics.RecordGatewayRequest("positions", "success")

	results := risk.RunScenarios(positions, info.Balance, req.Scenarios)
	h.metrics.RecordRiskReport()

	c.JSON(http.StatusOK, Response{Success: true, Data: results})
}

func (h *RiskHandler) ownedAccount(c *gin.Context) (*store.Account, bool) {
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
