package api

import (
	"time"

	"tradeinsight/internal/analytics"
	"tradeinsight/internal/market"
	"tradeinsight/internal/store"
)

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8"`
	Email    string `json:"email" binding:"required,email"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
}

// LinkAccountRequest links an MT5 account
type LinkAccountRequest struct {
	Login    int64  `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
	Server   string `json:"server" binding:"required"`
	Label    string `json:"label"`
}

// SyncTradesRequest bounds a trade history sync
type SyncTradesRequest struct {
	StartDate string `json:"start_date"` // RFC3339, default 30 days back
	EndDate   string `json:"end_date"`
	MaxTrades int    `json:"max_trades"`
}

// SyncTradesResponse reports a completed sync
type SyncTradesResponse struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

// TradeListResponse is a paged trade listing
type TradeListResponse struct {
	Trades []*store.Trade `json:"trades"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// AnalyticsResponse bundles the account performance view
type AnalyticsResponse struct {
	Summary      *analytics.Summary      `json:"summary"`
	EquityCurve  []analytics.EquityPoint `json:"equity_curve"`
	BySymbol     []analytics.SymbolStats `json:"by_symbol"`
	DailyReturns []float64               `json:"daily_returns"`
}

// CandlesResponse is a candle series for one symbol and timeframe
type CandlesResponse struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []market.Candle `json:"candles"`
}

// ScenarioRequest names the stress scenarios to run
type ScenarioRequest struct {
	Scenarios []string `json:"scenarios"`
}

// AlertRuleRequest creates or updates a price alert rule
type AlertRuleRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Condition string  `json:"condition" binding:"required,oneof=above below"`
	Threshold float64 `json:"threshold" binding:"required,gt=0"`
	Enabled   *bool   `json:"enabled"`
}
