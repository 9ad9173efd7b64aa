package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeinsight/internal/database"
	"tradeinsight/internal/market"
)

// Account is a linked MT5 account. The investor password is stored
// AES-GCM encrypted; it never leaves the server.
type Account struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Login       int64     `json:"login" db:"login"`
	Server      string    `json:"server" db:"server"`
	PasswordEnc string    `json:"-" db:"password_enc"`
	Label       string    `json:"label" db:"label"`
	Currency    string    `json:"currency" db:"currency"`
	Balance     float64   `json:"balance" db:"balance"`
	Equity      float64   `json:"equity" db:"equity"`
	Margin      float64   `json:"margin" db:"margin"`
	FreeMargin  float64   `json:"free_margin" db:"free_margin"`
	MarginLevel float64   `json:"margin_level" db:"margin_level"`
	Company     string    `json:"company" db:"company"`
	Status      string    `json:"status" db:"status"` // connected, disconnected
	ConnectedAt time.Time `json:"connected_at" db:"connected_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AccountStore persists linked MT5 accounts
type AccountStore struct {
	db *database.DB
}

// NewAccountStore creates a new account store
func NewAccountStore(db *database.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts a newly linked account with its first snapshot
func (s *AccountStore) Create(ctx context.Context, account *Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO mt5_accounts (
			id, user_id, login, server, password_enc, label, currency,
			balance, equity, margin, free_margin, margin_level, company,
			status, connected_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID.String(), account.UserID.String(), account.Login,
		account.Server, account.PasswordEnc, account.Label, account.Currency,
		account.Balance, account.Equity, account.Margin, account.FreeMargin,
		account.MarginLevel, account.Company, account.Status,
		account.ConnectedAt, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

const accountColumns = `
	id, user_id, login, server, password_enc, label, currency,
	balance, equity, margin, free_margin, margin_level, company,
	status, connected_at, created_at, updated_at
`

func scanAccount(scanner interface {
	Scan(dest ...interface{}) error
}) (*Account, error) {
	var idStr, userIDStr string
	account := &Account{}
	err := scanner.Scan(
		&idStr, &userIDStr, &account.Login, &account.Server,
		&account.PasswordEnc, &account.Label, &account.Currency,
		&account.Balance, &account.Equity, &account.Margin,
		&account.FreeMargin, &account.MarginLevel, &account.Company,
		&account.Status, &account.ConnectedAt, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	account.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account owned by the user
func (s *AccountStore) GetByID(ctx context.Context, userID, accountID uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM mt5_accounts WHERE id = ? AND user_id = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID.String(), userID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account not found")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListByUser lists the user's linked accounts
func (s *AccountStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM mt5_accounts WHERE user_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// ListConnected lists all connected accounts across users, for the alert
// evaluator's margin checks.
func (s *AccountStore) ListConnected(ctx context.Context) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM mt5_accounts WHERE status = 'connected'`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateSnapshot refreshes the stored account info
func (s *AccountStore) UpdateSnapshot(ctx context.Context, accountID uuid.UUID, info *market.AccountInfo) error {
	query := `
		UPDATE mt5_accounts SET
			balance = ?, equity = ?, margin = ?, free_margin = ?,
			margin_level = ?, currency = ?, company = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		info.Balance, info.Equity, info.Margin, info.FreeMargin,
		info.MarginLevel, info.Currency, info.Company, time.Now().UTC(),
		accountID.String())
	if err != nil {
		return fmt.Errorf("failed to update account snapshot: %w", err)
	}
	return nil
}

// SetStatus marks the account connected or disconnected
func (s *AccountStore) SetStatus(ctx context.Context, accountID uuid.UUID, status string) error {
	query := `UPDATE mt5_accounts SET status = ?, updated_at = ? WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), accountID.String()); err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	return nil
}

// Delete unlinks an account and its synced trades
func (s *AccountStore) Delete(ctx context.Context, userID, accountID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE account_id = ?`, accountID.String()); err != nil {
		return fmt.Errorf("failed to delete account trades: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM mt5_accounts WHERE id = ? AND user_id = ?`,
		accountID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account not found")
	}

	return tx.Commit()
}
