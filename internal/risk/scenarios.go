package risk

import (
	"math"

	"tradeinsight/internal/market"
)

// Stress scenario names
const (
	ScenarioMarketCrash          = "market_crash"
	ScenarioHighVolatility       = "high_volatility"
	ScenarioTrendReversal        = "trend_reversal"
	ScenarioCorrelationBreakdown = "correlation_breakdown"
)

// KnownScenarios lists the supported stress scenarios
var KnownScenarios = []string{
	ScenarioMarketCrash,
	ScenarioHighVolatility,
	ScenarioTrendReversal,
	ScenarioCorrelationBreakdown,
}

// ScenarioPosition describes a position's exposure under a scenario
type ScenarioPosition struct {
	Symbol       string  `json:"symbol"`
	ExpectedLoss float64 `json:"expected_loss"`
	Detail       string  `json:"detail"`
}

// ScenarioResult is the outcome of one stress scenario
type ScenarioResult struct {
	Probability       float64            `json:"probability"`
	ExpectedLoss      float64            `json:"expected_loss"`
	WorstCaseLoss     float64            `json:"worst_case_loss"`
	RecoveryDays      int                `json:"recovery_days"`
	AffectedPositions []ScenarioPosition `json:"affected_positions"`
}

// RunScenarios evaluates the named stress scenarios against the open
// positions. Unknown scenario names are skipped.
func RunScenarios(positions []market.Position, balance float64, scenarios []string) map[string]ScenarioResult {
	results := make(map[string]ScenarioResult)
	for _, name := range scenarios {
		switch name {
		case ScenarioMarketCrash:
			results[name] = scenarioMarketCrash(positions)
		case ScenarioHighVolatility:
			results[name] = scenarioHighVolatility(positions)
		case ScenarioTrendReversal:
			results[name] = scenarioTrendReversal(positions)
		case ScenarioCorrelationBreakdown:
			results[name] = scenarioCorrelationBreakdown(positions, balance)
		}
	}
	return results
}

// scenarioMarketCrash models a broad 40% decline. Shorts profit, so
// their contribution is negative.
func scenarioMarketCrash(positions []market.Position) ScenarioResult {
	const severity = 0.40

	result := ScenarioResult{
		Probability:       0.05,
		RecoveryDays:      180,
		AffectedPositions: []ScenarioPosition{},
	}

	for _, p := range positions {
		value := positionValue(p)
		loss := value * severity
		if isShort(p) {
			loss = -loss
		}

		result.ExpectedLoss += loss
		result.WorstCaseLoss += loss * 1.5

		if loss > 0 {
			result.AffectedPositions = append(result.AffectedPositions, ScenarioPosition{
				Symbol:       p.Symbol,
				ExpectedLoss: loss,
				Detail:       "40% market decline",
			})
		}
	}
	return result
}

// scenarioHighVolatility models a 2.5x volatility regime over a month
func scenarioHighVolatility(positions []market.Position) ScenarioResult {
	const volMultiplier = 2.5

	result := ScenarioResult{
		Probability:       0.15,
		RecoveryDays:      60,
		AffectedPositions: []ScenarioPosition{},
	}

	for _, p := range positions {
		value := positionValue(p)
		highVol := symbolVolatility(p.Symbol) * volMultiplier

		dailyVaR := value * (highVol / math.Sqrt(tradingDaysPerYear)) * 1.65
		monthlyVaR := dailyVaR * math.Sqrt(22)

		result.ExpectedLoss += monthlyVaR
		result.WorstCaseLoss += monthlyVaR * 1.5

		result.AffectedPositions = append(result.AffectedPositions, ScenarioPosition{
			Symbol:       p.Symbol,
			ExpectedLoss: monthlyVaR,
			Detail:       "150% volatility increase",
		})
	}
	return result
}

// scenarioTrendReversal models a 20% move against every position
func scenarioTrendReversal(positions []market.Position) ScenarioResult {
	const magnitude = 0.20

	result := ScenarioResult{
		Probability:       0.25,
		RecoveryDays:      90,
		AffectedPositions: []ScenarioPosition{},
	}

	for _, p := range positions {
		loss := positionValue(p) * magnitude

		result.ExpectedLoss += loss
		result.WorstCaseLoss += loss * 1.3

		result.AffectedPositions = append(result.AffectedPositions, ScenarioPosition{
			Symbol:       p.Symbol,
			ExpectedLoss: loss,
			Detail:       "20% reversal against position",
		})
	}
	return result
}

// scenarioCorrelationBreakdown measures the loss of diversification
// benefit when pairwise correlations stop holding.
func scenarioCorrelationBreakdown(positions []market.Position, balance float64) ScenarioResult {
	result := ScenarioResult{
		Probability:       0.10,
		RecoveryDays:      120,
		AffectedPositions: []ScenarioPosition{},
	}
	if len(positions) == 0 {
		return result
	}
	if balance <= 0 {
		balance = 10000
	}

	withCorr := portfolioVolatility(positions, true)
	withoutCorr := portfolioVolatility(positions, false)
	diversificationLoss := withoutCorr - withCorr

	result.ExpectedLoss = balance * diversificationLoss * 1.65
	result.WorstCaseLoss = result.ExpectedLoss * 2

	for _, p := range positions {
		result.AffectedPositions = append(result.AffectedPositions, ScenarioPosition{
			Symbol:       p.Symbol,
			ExpectedLoss: diversificationLoss,
			Detail:       "diversification benefit lost",
		})
	}
	return result
}

// portfolioVolatility computes weighted annualized volatility, with or
// without the correlation cross terms.
func portfolioVolatility(positions []market.Position, useCorrelations bool) float64 {
	if len(positions) == 0 {
		return 0
	}

	totalValue := 0.0
	for _, p := range positions {
		totalValue += positionValue(p)
	}
	if totalValue <= 0 {
		return 0
	}

	variance := 0.0
	for _, p := range positions {
		weight := positionValue(p) / totalValue
		term := weight * symbolVolatility(p.Symbol)
		variance += term * term
	}

	if useCorrelations && len(positions) > 1 {
		for i, p1 := range positions {
			for j, p2 := range positions {
				if i == j {
					continue
				}
				w1 := positionValue(p1) / totalValue
				w2 := positionValue(p2) / totalValue
				variance += w1 * w2 * symbolVolatility(p1.Symbol) *
					symbolVolatility(p2.Symbol) * correlation(p1.Symbol, p2.Symbol)
			}
		}
	}
	return math.Sqrt(math.Max(0, variance))
}
