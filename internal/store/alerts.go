package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeinsight/internal/database"
)

// Alert rule conditions
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// Alert event levels
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// AlertRule is a user-defined price threshold. Triggered tracks the
// armed state: a rule fires once when the condition becomes true and
// re-arms when the condition clears.
type AlertRule struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Condition string    `json:"condition" db:"condition"`
	Threshold float64   `json:"threshold" db:"threshold"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	Triggered bool      `json:"triggered" db:"triggered"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AlertEvent records a fired alert, price or margin
type AlertEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	RuleID    *uuid.UUID `json:"rule_id,omitempty" db:"rule_id"`
	Level     string     `json:"level" db:"level"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Symbol    string     `json:"symbol" db:"symbol"`
	Value     float64    `json:"value" db:"value"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AlertStore persists alert rules and fired events
type AlertStore struct {
	db *database.DB
}

// NewAlertStore creates a new alert store
func NewAlertStore(db *database.DB) *AlertStore {
	return &AlertStore{db: db}
}

// CreateRule inserts a new alert rule
func (s *AlertStore) CreateRule(ctx context.Context, rule *AlertRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO alert_rules (
			id, user_id, symbol, condition, threshold, enabled, triggered,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID.String(), rule.UserID.String(), rule.Symbol, rule.Condition,
		rule.Threshold, rule.Enabled, rule.Triggered, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

const ruleColumns = `
	id, user_id, symbol, condition, threshold, enabled, triggered,
	created_at, updated_at
`

func scanRule(scanner interface {
	Scan(dest ...interface{}) error
}) (*AlertRule, error) {
	var idStr, userIDStr string
	rule := &AlertRule{}
	err := scanner.Scan(
		&idStr, &userIDStr, &rule.Symbol, &rule.Condition, &rule.Threshold,
		&rule.Enabled, &rule.Triggered, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule ID: %w", err)
	}
	rule.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return rule, nil
}

// GetRule retrieves a rule owned by the user
func (s *AlertStore) GetRule(ctx context.Context, userID, ruleID uuid.UUID) (*AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ? AND user_id = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, ruleID.String(), userID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert rule not found")
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

// ListRulesByUser lists the user's rules
func (s *AlertStore) ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]*AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE user_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListEnabledRules returns every enabled rule across users, for the
// evaluator sweep.
func (s *AlertStore) ListEnabledRules(ctx context.Context) ([]*AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE enabled = 1 ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []*AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpdateRule saves editable rule fields
func (s *AlertStore) UpdateRule(ctx context.Context, rule *AlertRule) error {
	query := `
		UPDATE alert_rules SET
			symbol = ?, condition = ?, threshold = ?, enabled = ?,
			triggered = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		rule.Symbol, rule.Condition, rule.Threshold, rule.Enabled,
		rule.Triggered, time.Now().UTC(), rule.ID.String(), rule.UserID.String())
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert rule not found")
	}
	return nil
}

// SetRuleTriggered flips the armed state after a fire or a re-arm
func (s *AlertStore) SetRuleTriggered(ctx context.Context, ruleID uuid.UUID, triggered bool) error {
	query := `UPDATE alert_rules SET triggered = ?, updated_at = ? WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, query, triggered, time.Now().UTC(), ruleID.String()); err != nil {
		return fmt.Errorf("failed to set rule triggered state: %w", err)
	}
	return nil
}

// DeleteRule removes a rule owned by the user
func (s *AlertStore) DeleteRule(ctx context.Context, userID, ruleID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alert_rules WHERE id = ? AND user_id = ?`,
		ruleID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert rule not found")
	}
	return nil
}

// CreateEvent records a fired alert
func (s *AlertStore) CreateEvent(ctx context.Context, event *AlertEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var ruleID interface{}
	if event.RuleID != nil {
		ruleID = event.RuleID.String()
	}

	query := `
		INSERT INTO alert_events (
			id, user_id, rule_id, level, title, message, symbol, value, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID.String(), event.UserID.String(), ruleID, event.Level,
		event.Title, event.Message, event.Symbol, event.Value, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert event: %w", err)
	}
	return nil
}

// ListEventsByUser returns the user's recent alert events, newest first
func (s *AlertStore) ListEventsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*AlertEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, user_id, rule_id, level, title, message, symbol, value, created_at
		FROM alert_events WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}
	defer rows.Close()

	var events []*AlertEvent
	for rows.Next() {
		var idStr, userIDStr string
		var ruleIDStr sql.NullString
		event := &AlertEvent{}
		err := rows.Scan(&idStr, &userIDStr, &ruleIDStr, &event.Level,
			&event.Title, &event.Message, &event.Symbol, &event.Value, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}

		event.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event ID: %w", err)
		}
		event.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user ID: %w", err)
		}
		if ruleIDStr.Valid {
			ruleID, err := uuid.Parse(ruleIDStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rule ID: %w", err)
			}
			event.RuleID = &ruleID
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
