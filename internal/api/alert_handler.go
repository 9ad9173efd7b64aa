package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/logger"
	"tradeinsight/internal/store"
)

// AlertHandler manages price alert rules and the fired-event feed
type AlertHandler struct {
	alerts *store.AlertStore
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *store.AlertStore) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// CreateRule creates a price alert rule
// @Summary Create an alert rule
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AlertRuleRequest true "Rule definition"
// @Success 201 {object} Response
// @Router /api/v1/alerts/rules [post]
func (h *AlertHandler) CreateRule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &store.AlertRule{
		UserID:    userID,
		Symbol:    req.Symbol,
		Condition: req.Condition,
		Threshold: req.Threshold,
		Enabled:   enabled,
	}

	if err := h.alerts.CreateRule(c.Request.Context(), rule); err != nil {
		logger.Error("failed to create alert rule", "user_id", userID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to create alert rule"})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// ListRules returns the user's alert rules
// @Summary List alert rules
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/v1/alerts/rules [get]
func (h *AlertHandler) ListRules(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	rules, err := h.alerts.ListRulesByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error("failed to list alert rules", "user_id", userID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to list alert rules"})
		return
	}
	if rules == nil {
		rules = []*store.AlertRule{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// GetRule returns one alert rule
// @Summary Get an alert rule
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} Response
// @Router /api/v1/alerts/rules/{id} [get]
func (h *AlertHandler) GetRule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	rule, err := h.alerts.GetRule(c.Request.Context(), userID, ruleID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Alert rule not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// UpdateRule replaces an alert rule's definition. Editing a rule
// re-arms it.
// @Summary Update an alert rule
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Param request body AlertRuleRequest true "Rule definition"
// @Success 200 {object} Response
// @Router /api/v1/alerts/rules/{id} [put]
func (h *AlertHandler) UpdateRule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	rule, err := h.alerts.GetRule(c.Request.Context(), userID, ruleID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Alert rule not found"})
		return
	}

	rule.Symbol = req.Symbol
	rule.Condition = req.Condition
	rule.Threshold = req.Threshold
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	rule.Triggered = false

	if err := h.alerts.UpdateRule(c.Request.Context(), rule); err != nil {
		logger.Error("failed to update alert rule", "rule_id", ruleID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to update alert rule"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// DeleteRule removes an alert rule
// @Summary Delete an alert rule
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} Response
// @Router /api/v1/alerts/rules/{id} [delete]
func (h *AlertHandler) DeleteRule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.alerts.DeleteRule(c.Request.Context(), userID, ruleID); err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Alert rule not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Message: "Alert rule deleted"})
}

// ListEvents returns the user's recent fired alerts, newest first
// @Summary List alert events
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max events (default 100)"
// @Success 200 {object} Response
// @Router /api/v1/alerts/events [get]
func (h *AlertHandler) ListEvents(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	events, err := h.alerts.ListEventsByUser(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Error("failed to list alert events", "user_id", userID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to list alert events"})
		return
	}
	if events == nil {
		events = []*store.AlertEvent{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}
