package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradeinsight/internal/database"
	"tradeinsight/internal/market"
)

// Trade is a stored MT5 deal, keyed by (account, ticket)
type Trade struct {
	ID         int64     `json:"id" db:"id"`
	AccountID  uuid.UUID `json:"account_id" db:"account_id"`
	Ticket     int64     `json:"ticket" db:"ticket"`
	Order      int64     `json:"order" db:"order_id"`
	DealTime   time.Time `json:"time" db:"deal_time"`
	Type       string    `json:"type" db:"type"`
	Entry      string    `json:"entry" db:"entry"`
	Volume     float64   `json:"volume" db:"volume"`
	Price      float64   `json:"price" db:"price"`
	Commission float64   `json:"commission" db:"commission"`
	Swap       float64   `json:"swap" db:"swap"`
	Profit     float64   `json:"profit" db:"profit"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Comment    string    `json:"comment" db:"comment"`
	Magic      int64     `json:"magic" db:"magic"`
}

// NetProfit is the trade profit including swap and commission
func (t Trade) NetProfit() float64 {
	return t.Profit + t.Swap + t.Commission
}

// TradeFilter narrows trade listings
type TradeFilter struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// TradeStore persists synced deal history
type TradeStore struct {
	db *database.DB
}

// NewTradeStore creates a new trade store
func NewTradeStore(db *database.DB) *TradeStore {
	return &TradeStore{db: db}
}

// Upsert inserts or refreshes deals from a history sync. Returns the
// number of rows written.
func (s *TradeStore) Upsert(ctx context.Context, accountID uuid.UUID, deals []market.Deal) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (
			account_id, ticket, order_id, deal_time, type, entry,
			volume, price, commission, swap, profit, symbol, comment, magic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, ticket) DO UPDATE SET
			commission = excluded.commission,
			swap = excluded.swap,
			profit = excluded.profit,
			comment = excluded.comment
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, deal := range deals {
		res, err := stmt.ExecContext(ctx,
			accountID.String(), deal.Ticket, deal.Order, deal.DealTime(),
			deal.Type, deal.Entry, deal.Volume, deal.Price,
			deal.Commission, deal.Swap, deal.Profit, deal.Symbol,
			deal.Comment, deal.Magic)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert trade %d: %w", deal.Ticket, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			written += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade sync: %w", err)
	}
	return written, nil
}

const tradeColumns = `
	id, account_id, ticket, order_id, deal_time, type, entry,
	volume, price, commission, swap, profit, symbol, comment, magic
`

func scanTrade(scanner interface {
	Scan(dest ...interface{}) error
}) (*Trade, error) {
	var accountIDStr string
	trade := &Trade{}
	err := scanner.Scan(
		&trade.ID, &accountIDStr, &trade.Ticket, &trade.Order,
		&trade.DealTime, &trade.Type, &trade.Entry, &trade.Volume,
		&trade.Price, &trade.Commission, &trade.Swap, &trade.Profit,
		&trade.Symbol, &trade.Comment, &trade.Magic)
	if err != nil {
		return nil, err
	}

	trade.AccountID, err = uuid.Parse(accountIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	return trade, nil
}

// List returns trades for an account, newest first, with paging and filters
func (s *TradeStore) List(ctx context.Context, accountID uuid.UUID, filter TradeFilter) ([]*Trade, int, error) {
	conditions := []string{"account_id = ?"}
	args := []interface{}{accountID.String()}

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "deal_time >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "deal_time <= ?")
		args = append(args, filter.To.UTC())
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM trades WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE ` + where +
		` ORDER BY deal_time DESC, ticket DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, total, rows.Err()
}

// GetByTicket retrieves a single trade
func (s *TradeStore) GetByTicket(ctx context.Context, accountID uuid.UUID, ticket int64) (*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = ? AND ticket = ?`

	trade, err := scanTrade(s.db.QueryRowContext(ctx, query, accountID.String(), ticket))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("trade not found")
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListAll returns every stored trade for an account in chronological
// order, for analytics.
func (s *TradeStore) ListAll(ctx context.Context, accountID uuid.UUID) ([]*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = ? ORDER BY deal_time, ticket`

	rows, err := s.db.QueryContext(ctx, query, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
