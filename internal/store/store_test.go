package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeinsight/internal/database"
	"tradeinsight/internal/market"
)

const testSchema = `
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

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(&database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func createTestUser(t *testing.T, db *database.DB) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID.String(), "trader-"+userID.String()[:8],
		userID.String()[:8]+"@example.com", "x", now, now)
	require.NoError(t, err)
	return userID
}

func createTestAccount(t *testing.T, db *database.DB, userID uuid.UUID) *Account {
	t.Helper()

	account := &Account{
		UserID:      userID,
		Login:       12345678,
		Server:      "Demo-Server",
		PasswordEnc: "enc",
		Label:       "demo",
		Currency:    "USD",
		Balance:     10000,
		Equity:      10250,
		Margin:      500,
		FreeMargin:  9750,
		MarginLevel: 2050,
		Company:     "Test Broker",
		Status:      "connected",
		ConnectedAt: time.Now().UTC(),
	}
	require.NoError(t, NewAccountStore(db).Create(context.Background(), account))
	return account
}

func TestAccountStoreCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)

	store := NewAccountStore(db)
	got, err := store.GetByID(context.Background(), userID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12345678), got.Login)
	assert.Equal(t, "Demo-Server", got.Server)
	assert.Equal(t, 10250.0, got.Equity)
	assert.Equal(t, "connected", got.Status)
}

func TestAccountStoreGetWrongUser(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)

	otherID := createTestUser(t, db)
	_, err := NewAccountStore(db).GetByID(context.Background(), otherID, account.ID)
	assert.Error(t, err)
}

func TestAccountStoreUpdateSnapshot(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)

	store := NewAccountStore(db)
	info := &market.AccountInfo{
		Balance: 11000, Equity: 11200, Margin: 600, FreeMargin: 10600,
		MarginLevel: 1866.7, Currency: "USD", Company: "Test Broker",
	}
	require.NoError(t, store.UpdateSnapshot(context.Background(), account.ID, info))

	got, err := store.GetByID(context.Background(), userID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 11000.0, got.Balance)
	assert.Equal(t, 11200.0, got.Equity)
}

func TestAccountStoreListConnected(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)

	store := NewAccountStore(db)
	connected, err := store.ListConnected(context.Background())
	require.NoError(t, err)
	require.Len(t, connected, 1)

	require.NoError(t, store.SetStatus(context.Background(), account.ID, "disconnected"))

	connected, err = store.ListConnected(context.Background())
	require.NoError(t, err)
	assert.Empty(t, connected)
}

func TestAccountStoreDeleteCascadesTrades(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)
	ctx := context.Background()

	trades := NewTradeStore(db)
	_, err := trades.Upsert(ctx, account.ID, []market.Deal{
		{Ticket: 1, Time: 1700000000, Type: "BUY", Symbol: "EURUSD", Profit: 25},
	})
	require.NoError(t, err)

	store := NewAccountStore(db)
	require.NoError(t, store.Delete(ctx, userID, account.ID))

	_, err = store.GetByID(ctx, userID, account.ID)
	assert.Error(t, err)

	all, err := trades.ListAll(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAccountStoreDeleteNotFound(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)

	err := NewAccountStore(db).Delete(context.Background(), userID, uuid.New())
	assert.Error(t, err)
}

func TestTradeStoreUpsertIdempotent(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)
	ctx := context.Background()

	store := NewTradeStore(db)
	deals := []market.Deal{
		{Ticket: 100, Time: 1700000000, Type: "BUY", Entry: "OUT", Symbol: "EURUSD", Volume: 0.1, Price: 1.085, Profit: 42.5, Swap: -1.2},
		{Ticket: 101, Time: 1700003600, Type: "SELL", Entry: "OUT", Symbol: "GBPUSD", Volume: 0.2, Price: 1.265, Profit: -15.0},
	}

	n, err := store.Upsert(ctx, account.ID, deals)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-sync the same range with a refreshed profit.
	deals[0].Profit = 43.0
	_, err = store.Upsert(ctx, account.ID, deals)
	require.NoError(t, err)

	got, err := store.GetByTicket(ctx, account.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 43.0, got.Profit)
	assert.InDelta(t, 41.8, got.NetProfit(), 1e-9)

	all, err := store.ListAll(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTradeStoreListFilters(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	account := createTestAccount(t, db, userID)
	ctx := context.Background()

	store := NewTradeStore(db)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var deals []market.Deal
	for i := 0; i < 5; i++ {
		symbol := "EURUSD"
		if i%2 == 1 {
			symbol = "XAUUSD"
		}
		deals = append(deals, market.Deal{
			Ticket: int64(200 + i),
			Time:   base.Add(time.Duration(i) * time.Hour).Unix(),
			Type:   "BUY", Entry: "OUT", Symbol: symbol, Profit: float64(i),
		})
	}
	_, err := store.Upsert(ctx, account.ID, deals)
	require.NoError(t, err)

	got, total, err := store.List(ctx, account.ID, TradeFilter{Symbol: "XAUUSD"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, int64(203), got[0].Ticket)

	got, total, err = store.List(ctx, account.ID, TradeFilter{
		From:  base.Add(90 * time.Minute),
		To:    base.Add(4 * time.Hour),
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, got, 2)
}

func TestAlertStoreRuleLifecycle(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	ctx := context.Background()

	store := NewAlertStore(db)
	rule := &AlertRule{
		UserID:    userID,
		Symbol:    "EURUSD",
		Condition: ConditionAbove,
		Threshold: 1.10,
		Enabled:   true,
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	got, err := store.GetRule(ctx, userID, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.10, got.Threshold)
	assert.False(t, got.Triggered)

	// Fire, then re-arm.
	require.NoError(t, store.SetRuleTriggered(ctx, rule.ID, true))
	got, err = store.GetRule(ctx, userID, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.Triggered)

	require.NoError(t, store.SetRuleTriggered(ctx, rule.ID, false))
	got, err = store.GetRule(ctx, userID, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Triggered)

	got.Threshold = 1.12
	got.Enabled = false
	require.NoError(t, store.UpdateRule(ctx, got))

	enabled, err := store.ListEnabledRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, store.DeleteRule(ctx, userID, rule.ID))
	_, err = store.GetRule(ctx, userID, rule.ID)
	assert.Error(t, err)
}

func TestAlertStoreDeleteRuleWrongUser(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	ctx := context.Background()

	store := NewAlertStore(db)
	rule := &AlertRule{UserID: userID, Symbol: "EURUSD", Condition: ConditionBelow, Threshold: 1.05, Enabled: true}
	require.NoError(t, store.CreateRule(ctx, rule))

	otherID := createTestUser(t, db)
	assert.Error(t, store.DeleteRule(ctx, otherID, rule.ID))
}

func TestAlertStoreEvents(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	ctx := context.Background()

	store := NewAlertStore(db)
	rule := &AlertRule{UserID: userID, Symbol: "EURUSD", Condition: ConditionAbove, Threshold: 1.10, Enabled: true}
	require.NoError(t, store.CreateRule(ctx, rule))

	require.NoError(t, store.CreateEvent(ctx, &AlertEvent{
		UserID: userID, RuleID: &rule.ID, Level: LevelWarning,
		Title: "EURUSD above 1.1000", Message: "price crossed threshold",
		Symbol: "EURUSD", Value: 1.1012,
	}))
	require.NoError(t, store.CreateEvent(ctx, &AlertEvent{
		UserID: userID, Level: LevelCritical,
		Title: "margin level low", Message: "margin level below floor",
		Value: 145.2,
	}))

	events, err := store.ListEventsByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var withRule, withoutRule int
	for _, e := range events {
		if e.RuleID != nil {
			withRule++
			assert.Equal(t, rule.ID, *e.RuleID)
		} else {
			withoutRule++
		}
	}
	assert.Equal(t, 1, withRule)
	assert.Equal(t, 1, withoutRule)
}
