package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"tradeinsight/internal/config"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/market"
	"tradeinsight/internal/store"
)

// QuoteSource supplies current prices for rule evaluation
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
}

// Publisher pushes fired events to connected realtime subscribers
type Publisher interface {
	PublishAlert(event *store.AlertEvent)
}

// Evaluator periodically sweeps alert rules against current quotes and
// checks connected accounts against the margin level floor. Price
// rules fire once per crossing and re-arm when the condition clears.
type Evaluator struct {
	alerts    *store.AlertStore
	accounts  *store.AccountStore
	quotes    QuoteSource
	manager   *Manager
	publisher Publisher

	marginFloor float64
	interval    string

	cron    *cron.Cron
	entryID cron.EntryID

	// Accounts currently below the margin floor, so each breach fires
	// one event until the account recovers.
	marginBreached map[uuid.UUID]bool
	mu             sync.Mutex
}

// NewEvaluator creates the alert rule evaluator
func NewEvaluator(cfg *config.AlertingConfig, alerts *store.AlertStore, accounts *store.AccountStore, quotes QuoteSource, manager *Manager) *Evaluator {
	return &Evaluator{
		alerts:         alerts,
		accounts:       accounts,
		quotes:         quotes,
		manager:        manager,
		marginFloor:    cfg.MarginLevelFloor,
		interval:       cfg.EvaluateInterval,
		cron:           cron.New(),
		marginBreached: make(map[uuid.UUID]bool),
	}
}

// SetPublisher attaches a realtime publisher for fired events
func (e *Evaluator) SetPublisher(p Publisher) {
	e.publisher = p
}

// Start schedules the evaluation sweep
func (e *Evaluator) Start() error {
	entryID, err := e.cron.AddFunc(e.interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule alert evaluation: %w", err)
	}
	e.entryID = entryID
	e.cron.Start()

	logger.Info("alert evaluator started", "interval", e.interval, "margin_floor", e.marginFloor)
	return nil
}

// Stop halts the evaluation schedule
func (e *Evaluator) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one full evaluation pass
func (e *Evaluator) Sweep(ctx context.Context) {
	e.evaluatePriceRules(ctx)
	e.evaluateMarginLevels(ctx)
}

func (e *Evaluator) evaluatePriceRules(ctx context.Context) {
	rules, err := e.alerts.ListEnabledRules(ctx)
	if err != nil {
		logger.Error("failed to load alert rules", "error", err.Error())
		return
	}
	if len(rules) == 0 {
		return
	}

	// One quote fetch per distinct symbol.
	prices := make(map[string]float64)
	for _, rule := range rules {
		if _, ok := prices[rule.Symbol]; ok {
			continue
		}
		quote, err := e.quotes.Quote(ctx, rule.Symbol)
		if err != nil {
			logger.Warn("quote fetch failed during alert sweep",
				"symbol", rule.Symbol, "error", err.Error())
			continue
		}
		prices[rule.Symbol] = quote.Bid
	}

	for _, rule := range rules {
		price, ok := prices[rule.Symbol]
		if !ok {
			continue
		}
		e.evaluateRule(ctx, rule, price)
	}
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *store.AlertRule, price float64) {
	var conditionMet bool
	switch rule.Condition {
	case store.ConditionAbove:
		conditionMet = price >= rule.Threshold
	case store.ConditionBelow:
		conditionMet = price <= rule.Threshold
	default:
		return
	}

	switch {
	case conditionMet && !rule.Triggered:
		event := &store.AlertEvent{
			UserID:  rule.UserID,
			RuleID:  &rule.ID,
			Level:   store.LevelWarning,
			Title:   fmt.Sprintf("%s %s %.5f", rule.Symbol, rule.Condition, rule.Threshold),
			Message: fmt.Sprintf("%s is at %.5f, crossing the %s %.5f threshold", rule.Symbol, price, rule.Condition, rule.Threshold),
			Symbol:  rule.Symbol,
			Value:   price,
		}
		e.fire(ctx, event)
		if err := e.alerts.SetRuleTriggered(ctx, rule.ID, true); err != nil {
			logger.Error("failed to mark rule triggered", "rule_id", rule.ID.String(), "error", err.Error())
		}

	case !conditionMet && rule.Triggered:
		// Condition cleared, re-arm.
		if err := e.alerts.SetRuleTriggered(ctx, rule.ID, false); err != nil {
			logger.Error("failed to re-arm rule", "rule_id", rule.ID.String(), "error", err.Error())
		}
	}
}

func (e *Evaluator) evaluateMarginLevels(ctx context.Context) {
	if e.marginFloor <= 0 {
		return
	}

	accounts, err := e.accounts.ListConnected(ctx)
	if err != nil {
		logger.Error("failed to load connected accounts", "error", err.Error())
		return
	}

	for _, account := range accounts {
		// Margin level is zero with no open positions.
		below := account.MarginLevel > 0 && account.MarginLevel < e.marginFloor

		e.mu.Lock()
		breached := e.marginBreached[account.ID]
		switch {
		case below && !breached:
			e.marginBreached[account.ID] = true
		case !below && breached:
			delete(e.marginBreached, account.ID)
		}
		e.mu.Unlock()

		if below && !breached {
			event := &store.AlertEvent{
				UserID:  account.UserID,
				Level:   store.LevelCritical,
				Title:   fmt.Sprintf("Margin level low on account %d", account.Login),
				Message: fmt.Sprintf("Margin level %.1f%% is below the %.1f%% floor", account.MarginLevel, e.marginFloor),
				Value:   account.MarginLevel,
			}
			e.fire(ctx, event)
		}
	}
}

// fire persists the event, pushes it to realtime subscribers, and
// queues external delivery.
func (e *Evaluator) fire(ctx context.Context, event *store.AlertEvent) {
	if err := e.alerts.CreateEvent(ctx, event); err != nil {
		logger.Error("failed to persist alert event", "error", err.Error())
		return
	}

	logger.Info("alert fired",
		"level", event.Level,
		"title", event.Title,
		"user_id", event.UserID.String(),
	)

	if e.publisher != nil {
		e.publisher.PublishAlert(event)
	}
	if e.manager != nil {
		if err := e.manager.Dispatch(ctx, event); err != nil {
			logger.Warn("alert dispatch failed", "error", err.Error())
		}
	}
}
