package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeinsight/internal/auth"
	"tradeinsight/internal/cache"
	"tradeinsight/internal/database"
	"tradeinsight/internal/market"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// Prometheus collectors register against the default registry, so one
// Metrics instance is shared across the test binary.
var (
	testMetrics     *monitoring.Metrics
	testMetricsOnce sync.Once
)

func metricsForTest() *monitoring.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = monitoring.NewMetrics()
	})
	return testMetrics
}

const apiTestSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	status TEXT NOT NULL DEFAULT 'active',
	last_login TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE user_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	refresh_token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE mt5_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	login INTEGER NOT NULL,
	server TEXT NOT NULL,
	password_enc TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	balance REAL NOT NULL DEFAULT 0,
	equity REAL NOT NULL DEFAULT 0,
	margin REAL NOT NULL DEFAULT 0,
	free_margin REAL NOT NULL DEFAULT 0,
	margin_level REAL NOT NULL DEFAULT 0,
	company TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'disconnected',
	connected_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, login, server)
);

CREATE TABLE trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL REFERENCES mt5_accounts(id),
	ticket INTEGER NOT NULL,
	order_id INTEGER NOT NULL DEFAULT 0,
	deal_time TIMESTAMP NOT NULL,
	type TEXT NOT NULL,
	entry TEXT NOT NULL DEFAULT '',
	volume REAL NOT NULL DEFAULT 0,
	price REAL NOT NULL DEFAULT 0,
	commission REAL NOT NULL DEFAULT 0,
	swap REAL NOT NULL DEFAULT 0,
	profit REAL NOT NULL DEFAULT 0,
	symbol TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	magic INTEGER NOT NULL DEFAULT 0,
	UNIQUE(account_id, ticket)
);

CREATE TABLE alert_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	condition TEXT NOT NULL,
	threshold REAL NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	triggered INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE alert_events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	rule_id TEXT REFERENCES alert_rules(id),
	level TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	value REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
`

// fakeGateway simulates the MT5 terminal gateway sidecar
type fakeGateway struct {
	mu           sync.Mutex
	connects     int
	quoteFetches int

	rejectConnect bool
	info          market.AccountInfo
	deals         []market.Deal
	positions     []market.Position
	quote         market.Quote
	candles       []market.Candle
	symbols       []market.Symbol
}

func defaultFakeGateway() *fakeGateway {
	return &fakeGateway{
		info: market.AccountInfo{
			Login:       12345678,
			Balance:     10000,
			Equity:      10250,
			Margin:      500,
			FreeMargin:  9750,
			MarginLevel: 2050,
			Currency:    "USD",
			Server:      "Demo-Server",
			Company:     "Test Broker",
		},
		quote: market.Quote{
			Symbol: "EURUSD",
			Bid:    1.0850,
			Ask:    1.0852,
			Time:   time.Now().Unix(),
			Digits: 5,
		},
	}
}

func (g *fakeGateway) start(t *testing.T) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/connect", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.connects++
		reject := g.rejectConnect
		info := g.info
		g.mu.Unlock()

		if reject {
			writeJSON(w, mt5.ConnectResponse{Success: false, Error: "invalid account credentials"})
			return
		}
		writeJSON(w, mt5.ConnectResponse{Success: true, AccountInfo: &info})
	})
	mux.HandleFunc("/api/disconnect", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mt5.ConnectResponse{Success: true})
	})
	mux.HandleFunc("/api/account", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		info := g.info
		g.mu.Unlock()
		writeJSON(w, info)
	})
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		positions := g.positions
		g.mu.Unlock()
		writeJSON(w, positions)
	})
	mux.HandleFunc("/api/symbol-info/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.quoteFetches++
		quote := g.quote
		g.mu.Unlock()
		writeJSON(w, quote)
	})
	mux.HandleFunc("/api/rates/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		candles := g.candles
		g.mu.Unlock()
		writeJSON(w, candles)
	})
	mux.HandleFunc("/api/symbols", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		symbols := g.symbols
		g.mu.Unlock()
		writeJSON(w, symbols)
	})
	mux.HandleFunc("/api/trades/history", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		deals := g.deals
		g.mu.Unlock()
		writeJSON(w, mt5.HistoryResponse{Trades: deals, Count: len(deals)})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testAPI struct {
	router  *gin.Engine
	db      *database.DB
	gateway *fakeGateway
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewConnection(&database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(apiTestSchema)
	require.NoError(t, err)

	gw := defaultFakeGateway()
	gwServer := gw.start(t)

	client, err := mt5.NewClient(&mt5.Config{
		BaseURL:           gwServer.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	encryptor, err := security.NewEncryptor("test-passphrase")
	require.NoError(t, err)

	jwtManager := auth.NewJWTManager("test-secret", 15*time.Minute)
	metrics := metricsForTest()
	cacher := cache.NewMemoryCache(0)
	t.Cleanup(func() { cacher.Close() })

	accounts := store.NewAccountStore(db)
	trades := store.NewTradeStore(db)
	alerts := store.NewAlertStore(db)

	marketHandler := NewMarketHandler(client, cacher, metrics)

	authHandler := NewAuthHandler(jwtManager, db, 24*time.Hour)
	accountHandler := NewAccountHandler(accounts, client, encryptor, metrics)
	tradeHandler := NewTradeHandler(accounts, trades, client, encryptor, metrics)
	riskHandler := NewRiskHandler(accounts, client, encryptor, metrics)
	alertHandler := NewAlertHandler(alerts)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/refresh", authHandler.RefreshToken)
	v1.POST("/auth/logout", authHandler.Logout)

	protected := v1.Group("")
	protected.Use(jwtManager.AuthMiddleware())
	protected.GET("/auth/profile", authHandler.GetProfile)
	protected.POST("/accounts", accountHandler.Link)
	protected.GET("/accounts", accountHandler.List)
	protected.GET("/accounts/:id", accountHandler.Get)
	protected.POST("/accounts/:id/refresh", accountHandler.Refresh)
	protected.POST("/accounts/:id/disconnect", accountHandler.Disconnect)
	protected.DELETE("/accounts/:id", accountHandler.Unlink)
	protected.POST("/accounts/:id/trades/sync", tradeHandler.Sync)
	protected.GET("/accounts/:id/trades", tradeHandler.List)
	protected.GET("/accounts/:id/trades/:ticket", tradeHandler.Get)
	protected.GET("/accounts/:id/analytics", tradeHandler.Analytics)
	protected.GET("/accounts/:id/risk", riskHandler.Overview)
	protected.POST("/accounts/:id/risk/scenarios", riskHandler.Scenarios)
	protected.GET("/market/quote/:symbol", marketHandler.GetQuote)
	protected.GET("/market/candles/:symbol", marketHandler.GetCandles)
	protected.GET("/market/symbols", marketHandler.GetSymbols)
	protected.POST("/alerts/rules", alertHandler.CreateRule)
	protected.GET("/alerts/rules", alertHandler.ListRules)
	protected.GET("/alerts/rules/:id", alertHandler.GetRule)
	protected.PUT("/alerts/rules/:id", alertHandler.UpdateRule)
	protected.DELETE("/alerts/rules/:id", alertHandler.DeleteRule)
	protected.GET("/alerts/events", alertHandler.ListEvents)

	adminHandler := NewAdminHandler(db)
	admin := protected.Group("/admin")
	admin.Use(auth.RequireRole("admin"))
	admin.GET("/stats", adminHandler.Stats)

	return &testAPI{router: router, db: db, gateway: gw}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// registerAndLogin creates a user and returns the token pair
func (a *testAPI) registerAndLogin(t *testing.T, username string) AuthResponse {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"password": "secret-password",
		"email":    username + "@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": username,
		"password": "secret-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool         `json:"success"`
		Data    AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AccessToken)
	require.NotEmpty(t, resp.Data.RefreshToken)
	return resp.Data
}

func (a *testAPI) linkAccount(t *testing.T, token string) string {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/api/v1/accounts", token, gin.H{
		"login":    12345678,
		"password": "investor-pass",
		"server":   "Demo-Server",
		"label":    "demo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data store.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.ID.String()
}

func TestRegisterLoginProfile(t *testing.T) {
	api := setupAPI(t)

	tokens := api.registerAndLogin(t, "alice")

	// Duplicate registration is rejected.
	rec := api.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"password": "secret-password",
		"email":    "alice@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Wrong password.
	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/auth/profile", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	// No token.
	rec = api.do(t, http.MethodGet, "/api/v1/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotatesSession(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "bob")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The old refresh token is single-use.
	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "carol")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/logout", "", gin.H{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLinkAccountLifecycle(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "dave")

	accountID := api.linkAccount(t, tokens.AccessToken)

	rec := api.do(t, http.MethodGet, "/api/v1/accounts", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), accountID)
	// The encrypted password never appears in responses.
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":10000`)

	rec = api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/refresh", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/disconnect", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/accounts/"+accountID, tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLinkAccountRejectedCredentials(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "erin")
	api.gateway.rejectConnect = true

	rec := api.do(t, http.MethodPost, "/api/v1/accounts", tokens.AccessToken, gin.H{
		"login":    12345678,
		"password": "wrong-pass",
		"server":   "Demo-Server",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "MT5 credentials rejected")
}

func TestAccountIsolationBetweenUsers(t *testing.T) {
	api := setupAPI(t)
	owner := api.registerAndLogin(t, "frank")
	other := api.registerAndLogin(t, "grace")

	accountID := api.linkAccount(t, owner.AccessToken)

	rec := api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, other.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/accounts/"+accountID, other.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradeSyncListAnalytics(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "heidi")
	accountID := api.linkAccount(t, tokens.AccessToken)

	// Deal payloads use the gateway wire format: uppercase type/entry.
	// Ticket 1000 opens a position and must stay out of the analytics.
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	api.gateway.deals = []market.Deal{
		{Ticket: 1000, Time: base.Add(-time.Hour).Unix(), Type: "BUY", Entry: "IN", Volume: 0.1, Price: 1.0790, Commission: -0.5, Symbol: "EURUSD"},
		{Ticket: 1001, Time: base.Unix(), Type: "BUY", Entry: "OUT", Volume: 0.1, Price: 1.0800, Profit: 100, Commission: -1, Symbol: "EURUSD"},
		{Ticket: 1002, Time: base.Add(24 * time.Hour).Unix(), Type: "SELL", Entry: "OUT", Volume: 0.2, Price: 1.2700, Profit: -50, Symbol: "GBPUSD"},
		{Ticket: 1003, Time: base.Add(48 * time.Hour).Unix(), Type: "BUY", Entry: "OUT", Volume: 0.1, Price: 1.0900, Profit: 30, Symbol: "EURUSD"},
	}

	rec := api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/trades/sync", tokens.AccessToken, gin.H{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"fetched":4`)
	assert.Contains(t, rec.Body.String(), `"stored":4`)

	// Re-sync is idempotent on the trade count.
	rec = api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/trades/sync", tokens.AccessToken, gin.H{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/trades", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":4`)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/trades?symbol=EURUSD", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/trades/1002", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"GBPUSD"`)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/trades/9999", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/analytics", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data AnalyticsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Summary)
	// The opening deal is stored but excluded from closed-trade stats.
	assert.Equal(t, 3, resp.Data.Summary.TotalTrades)
	assert.Equal(t, 2, resp.Data.Summary.WinningTrades)
	assert.Equal(t, 1, resp.Data.Summary.LosingTrades)
	assert.Len(t, resp.Data.EquityCurve, 3)
	assert.Len(t, resp.Data.BySymbol, 2)
	assert.Len(t, resp.Data.DailyReturns, 3)
}

func TestRiskOverview(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "ivan")
	accountID := api.linkAccount(t, tokens.AccessToken)

	api.gateway.positions = []market.Position{
		{Ticket: 1, Symbol: "EURUSD", Type: "BUY", Volume: 0.1, PriceOpen: 1.0800, PriceCurrent: 1.0850, Profit: 50},
		{Ticket: 2, Symbol: "GBPUSD", Type: "SELL", Volume: 0.1, PriceOpen: 1.2700, PriceCurrent: 1.2650, Profit: 50},
	}

	rec := api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/risk?horizon=1d&confidence=0.95", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			GrossExposure float64 `json:"gross_exposure"`
			Leverage      float64 `json:"leverage"`
			VaR           float64 `json:"var"`
			Positions     []struct {
				Symbol string `json:"symbol"`
			} `json:"positions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.1*100000*1.0850+0.1*100000*1.2650, resp.Data.GrossExposure, 0.01)
	assert.Greater(t, resp.Data.VaR, 0.0)
	assert.Len(t, resp.Data.Positions, 2)

	rec = api.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/risk?confidence=2", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskScenarios(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "judy")
	accountID := api.linkAccount(t, tokens.AccessToken)

	api.gateway.positions = []market.Position{
		{Ticket: 1, Symbol: "EURUSD", Type: "BUY", Volume: 0.1, PriceCurrent: 1.0850},
	}

	// Default body runs every scenario.
	rec := api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/risk/scenarios", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, name := range []string{"market_crash", "high_volatility", "trend_reversal", "correlation_breakdown"} {
		assert.Contains(t, rec.Body.String(), name)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/risk/scenarios", tokens.AccessToken, gin.H{
		"scenarios": []string{"market_crash"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "market_crash")
	assert.NotContains(t, rec.Body.String(), "trend_reversal")
}

func TestMarketQuoteCaching(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "mallory")

	rec := api.do(t, http.MethodGet, "/api/v1/market/quote/EURUSD", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bid":1.085`)

	rec = api.do(t, http.MethodGet, "/api/v1/market/quote/EURUSD", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	api.gateway.mu.Lock()
	fetches := api.gateway.quoteFetches
	api.gateway.mu.Unlock()
	assert.Equal(t, 1, fetches, "second request should hit the cache")
}

func TestMarketCandles(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "nick")

	api.gateway.candles = []market.Candle{
		{Time: 1700000000, Open: 1.08, High: 1.09, Low: 1.07, Close: 1.085, Volume: 1200},
	}

	rec := api.do(t, http.MethodGet, "/api/v1/market/candles/EURUSD?timeframe=4H&count=50", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timeframe":"4H"`)
	assert.Contains(t, rec.Body.String(), `"close":1.085`)

	rec = api.do(t, http.MethodGet, "/api/v1/market/candles/EURUSD?timeframe=7H", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertRulesCRUD(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "oscar")

	rec := api.do(t, http.MethodPost, "/api/v1/alerts/rules", tokens.AccessToken, gin.H{
		"symbol":    "EURUSD",
		"condition": "above",
		"threshold": 1.10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data store.AlertRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	ruleID := created.Data.ID.String()
	assert.True(t, created.Data.Enabled)

	// Invalid condition is rejected by validation.
	rec = api.do(t, http.MethodPost, "/api/v1/alerts/rules", tokens.AccessToken, gin.H{
		"symbol":    "EURUSD",
		"condition": "crosses",
		"threshold": 1.10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/alerts/rules", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ruleID)

	rec = api.do(t, http.MethodPut, "/api/v1/alerts/rules/"+ruleID, tokens.AccessToken, gin.H{
		"symbol":    "EURUSD",
		"condition": "below",
		"threshold": 1.05,
		"enabled":   false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"condition":"below"`)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = api.do(t, http.MethodGet, "/api/v1/alerts/events", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	rec = api.do(t, http.MethodDelete, "/api/v1/alerts/rules/"+ruleID, tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/alerts/rules/"+ruleID, tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStatsRequiresAdminRole(t *testing.T) {
	api := setupAPI(t)
	user := api.registerAndLogin(t, "quinn")

	rec := api.do(t, http.MethodGet, "/api/v1/admin/stats", user.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := api.db.CreateUser(context.Background(), "root", "root@example.com", "secret-password", "admin")
	require.NoError(t, err)

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "root",
		"password": "secret-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = api.do(t, http.MethodGet, "/api/v1/admin/stats", resp.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "db_pool")
}

func TestSyncWindowValidation(t *testing.T) {
	api := setupAPI(t)
	tokens := api.registerAndLogin(t, "peggy")
	accountID := api.linkAccount(t, tokens.AccessToken)

	rec := api.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/trades/sync", tokens.AccessToken, gin.H{
		"start_date": "06/02/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/trades/sync", accountID), tokens.AccessToken, gin.H{
		"start_date": "2025-06-01T00:00:00Z",
		"end_date":   "2025-06-30T00:00:00Z",
		"max_trades": 100,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
