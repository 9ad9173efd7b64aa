package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"tradeinsight/internal/store"
)

// Summary aggregates closed-trade performance for an account
type Summary struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	NetProfit       float64 `json:"net_profit"`
	GrossProfit     float64 `json:"gross_profit"`
	GrossLoss       float64 `json:"gross_loss"`
	ProfitFactor    float64 `json:"profit_factor"`
	AverageWin      float64 `json:"average_win"`
	AverageLoss     float64 `json:"average_loss"`
	Expectancy      float64 `json:"expectancy"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	TotalVolume     float64 `json:"total_volume"`
	TotalSwap       float64 `json:"total_swap"`
	TotalCommission float64 `json:"total_commission"`
}

// EquityPoint is one step of the cumulative profit curve
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
	Ticket int64     `json:"ticket"`
}

// SymbolStats breaks performance down per traded symbol
type SymbolStats struct {
	Symbol    string  `json:"symbol"`
	Trades    int     `json:"trades"`
	WinRate   float64 `json:"win_rate"`
	NetProfit float64 `json:"net_profit"`
	Volume    float64 `json:"volume"`
}

// closedTrades filters to realized deals. Balance operations (deposits,
// withdrawals, credits) and position-opening deals carry no trade result.
// The gateway emits uppercase type/entry values; compare case-insensitively
// so history synced before any normalization is still classified right.
func closedTrades(trades []*store.Trade) []*store.Trade {
	var closed []*store.Trade
	for _, t := range trades {
		switch strings.ToLower(t.Type) {
		case "balance", "credit", "bonus", "correction":
			continue
		}
		if strings.EqualFold(t.Entry, "in") {
			continue
		}
		closed = append(closed, t)
	}
	return closed
}

// Summarize computes the performance summary over stored trades,
// which must be in chronological order.
func Summarize(trades []*store.Trade) *Summary {
	summary := &Summary{}
	closed := closedTrades(trades)
	if len(closed) == 0 {
		return summary
	}

	equity := 0.0
	peak := 0.0
	for _, t := range closed {
		net := t.NetProfit()
		summary.TotalTrades++
		summary.NetProfit += net
		summary.TotalVolume += t.Volume
		summary.TotalSwap += t.Swap
		summary.TotalCommission += t.Commission

		if net > 0 {
			summary.WinningTrades++
			summary.GrossProfit += net
			if net > summary.LargestWin {
				summary.LargestWin = net
			}
		} else if net < 0 {
			summary.LosingTrades++
			summary.GrossLoss += -net
			if net < summary.LargestLoss {
				summary.LargestLoss = net
			}
		}

		equity += net
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > summary.MaxDrawdown {
			summary.MaxDrawdown = dd
		}
	}

	summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades)
	if summary.GrossLoss > 0 {
		summary.ProfitFactor = summary.GrossProfit / summary.GrossLoss
	} else if summary.GrossProfit > 0 {
		summary.ProfitFactor = math.Inf(1)
	}
	if summary.WinningTrades > 0 {
		summary.AverageWin = summary.GrossProfit / float64(summary.WinningTrades)
	}
	if summary.LosingTrades > 0 {
		summary.AverageLoss = summary.GrossLoss / float64(summary.LosingTrades)
	}
	summary.Expectancy = summary.WinRate*summary.AverageWin -
		(1-summary.WinRate)*summary.AverageLoss

	// JSON has no Inf; cap the reported profit factor.
	if math.IsInf(summary.ProfitFactor, 1) {
		summary.ProfitFactor = summary.GrossProfit
	}

	return summary
}

// EquityCurve builds the cumulative net profit series from closed trades
func EquityCurve(trades []*store.Trade) []EquityPoint {
	closed := closedTrades(trades)
	curve := make([]EquityPoint, 0, len(closed))

	equity := 0.0
	for _, t := range closed {
		equity += t.NetProfit()
		curve = append(curve, EquityPoint{
			Time:   t.DealTime,
			Equity: equity,
			Ticket: t.Ticket,
		})
	}
	return curve
}

// BySymbol groups performance per symbol, biggest net profit first
func BySymbol(trades []*store.Trade) []SymbolStats {
	type acc struct {
		trades int
		wins   int
		net    float64
		volume float64
	}
	grouped := make(map[string]*acc)

	for _, t := range closedTrades(trades) {
		if t.Symbol == "" {
			continue
		}
		a, ok := grouped[t.Symbol]
		if !ok {
			a = &acc{}
			grouped[t.Symbol] = a
		}
		a.trades++
		if t.NetProfit() > 0 {
			a.wins++
		}
		a.net += t.NetProfit()
		a.volume += t.Volume
	}

	stats := make([]SymbolStats, 0, len(grouped))
	for symbol, a := range grouped {
		stats = append(stats, SymbolStats{
			Symbol:    symbol,
			Trades:    a.trades,
			WinRate:   float64(a.wins) / float64(a.trades),
			NetProfit: a.net,
			Volume:    a.volume,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].NetProfit != stats[j].NetProfit {
			return stats[i].NetProfit > stats[j].NetProfit
		}
		return stats[i].Symbol < stats[j].Symbol
	})
	return stats
}

// DailyReturns converts the equity curve into per-day profit deltas,
// the input series for value-at-risk estimation.
func DailyReturns(trades []*store.Trade) []float64 {
	closed := closedTrades(trades)
	if len(closed) == 0 {
		return nil
	}

	daily := make(map[string]float64)
	var days []string
	for _, t := range closed {
		day := t.DealTime.UTC().Format("2006-01-02")
		if _, ok := daily[day]; !ok {
			days = append(days, day)
		}
		daily[day] += t.NetProfit()
	}
	sort.Strings(days)

	returns := make([]float64, 0, len(days))
	for _, day := range days {
		returns = append(returns, daily[day])
	}
	return returns
}
