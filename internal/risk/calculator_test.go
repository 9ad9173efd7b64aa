package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeinsight/internal/market"
)

func position(symbol, typ string, volume, price float64) market.Position {
	return market.Position{Symbol: symbol, Type: typ, Volume: volume, PriceCurrent: price}
}

func TestPortfolioRiskEmpty(t *testing.T) {
	report := NewCalculator(WithSeed(1)).PortfolioRisk(nil, 10000, 1, 0.95)
	assert.Zero(t, report.VaR)
	assert.Zero(t, report.Leverage)
	assert.Empty(t, report.Positions)
}

func TestPortfolioRiskExposures(t *testing.T) {
	positions := []market.Position{
		position("EURUSD", "BUY", 0.1, 1.10),   // value 11000
		position("GBPUSD", "SELL", 0.05, 1.25), // value 6250
	}

	report := NewCalculator(WithSeed(1), WithSimulations(500)).
		PortfolioRisk(positions, 10000, 1, 0.95)

	assert.InDelta(t, 4750.0, report.NetExposure, 1e-6)
	assert.InDelta(t, 17250.0, report.GrossExposure, 1e-6)
	assert.InDelta(t, 1.725, report.Leverage, 1e-6)
}

func TestPortfolioRiskVaRMethods(t *testing.T) {
	positions := []market.Position{
		position("EURUSD", "BUY", 0.1, 1.10),
		position("USDJPY", "SELL", 0.1, 150.0),
	}

	report := NewCalculator(WithSeed(42), WithSimulations(2000)).
		PortfolioRisk(positions, 10000, 1, 0.95)

	assert.Greater(t, report.HistoricalVaR, 0.0)
	assert.Greater(t, report.ParametricVaR, 0.0)
	assert.Greater(t, report.MonteCarloVaR, 0.0)
	assert.Equal(t, report.MonteCarloVaR, report.VaR)
	assert.InDelta(t, report.VaR*1.3, report.ExpectedShortfall, 1e-9)
}

func TestParametricVaRSinglePosition(t *testing.T) {
	positions := []market.Position{position("EURUSD", "BUY", 0.1, 1.10)}

	// One position has no correlation terms, so the estimate is
	// value * dailyVol * z.
	value := 0.1 * contractSize * 1.10
	dailyVol := 0.08 / math.Sqrt(252)
	expected := value * dailyVol * normQuantile(0.95)

	assert.InDelta(t, expected, parametricVaR(positions, 1, 0.95), 1e-9)
}

func TestParametricVaRScalesWithHorizon(t *testing.T) {
	positions := []market.Position{position("EURUSD", "BUY", 0.1, 1.10)}

	oneDay := parametricVaR(positions, 1, 0.95)
	fiveDay := parametricVaR(positions, 5, 0.95)
	assert.InDelta(t, oneDay*math.Sqrt(5), fiveDay, 1e-9)
}

func TestPositionRiskBreakdown(t *testing.T) {
	positions := []market.Position{
		position("EURUSD", "BUY", 0.1, 1.10),
		position("GBPUSD", "SELL", 0.1, 1.25),
	}

	report := NewCalculator(WithSeed(7), WithSimulations(200)).
		PortfolioRisk(positions, 10000, 1, 0.95)
	require.Len(t, report.Positions, 2)

	eur := report.Positions[0]
	assert.Equal(t, "long", eur.Direction)
	assert.Greater(t, eur.VaR, 0.0)
	// EURUSD/GBPUSD correlate at 0.7, normalized over two positions.
	assert.InDelta(t, 0.35, eur.CorrelationRisk, 1e-9)

	assert.Equal(t, "short", report.Positions[1].Direction)
}

func TestParseHorizon(t *testing.T) {
	assert.Equal(t, 1, ParseHorizon("1d"))
	assert.Equal(t, 5, ParseHorizon("5d"))
	assert.Equal(t, 10, ParseHorizon("10d"))
	assert.Equal(t, 22, ParseHorizon("1m"))
	assert.Equal(t, 252, ParseHorizon("1y"))
	assert.Equal(t, 1, ParseHorizon(""))
	assert.Equal(t, 1, ParseHorizon("bogus"))
}

func TestCorrelationLookup(t *testing.T) {
	assert.Equal(t, 1.0, correlation("EURUSD", "EURUSD"))
	assert.Equal(t, 0.7, correlation("EURUSD", "GBPUSD"))
	// Reverse order resolves to the same value.
	assert.Equal(t, 0.7, correlation("GBPUSD", "EURUSD"))
	assert.Equal(t, 0.0, correlation("EURUSD", "XAUUSD"))
}

func TestNormQuantile(t *testing.T) {
	assert.InDelta(t, 1.6449, normQuantile(0.95), 1e-3)
	assert.InDelta(t, 2.3263, normQuantile(0.99), 1e-3)
	assert.InDelta(t, 0.0, normQuantile(0.5), 1e-9)
	assert.InDelta(t, -1.6449, normQuantile(0.05), 1e-3)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 3.0, percentile(values, 50), 1e-9)
	assert.InDelta(t, 1.0, percentile(values, 0), 1e-9)
	assert.InDelta(t, 5.0, percentile(values, 100), 1e-9)
	assert.InDelta(t, 1.2, percentile(values, 5), 1e-9)
}

func TestCholesky(t *testing.T) {
	lower, ok := cholesky([][]float64{{1, 0.5}, {0.5, 1}})
	require.True(t, ok)
	assert.InDelta(t, 1.0, lower[0][0], 1e-9)
	assert.InDelta(t, 0.5, lower[1][0], 1e-9)
	assert.InDelta(t, math.Sqrt(0.75), lower[1][1], 1e-9)

	// Not positive definite.
	_, ok = cholesky([][]float64{{1, 2}, {2, 1}})
	assert.False(t, ok)
}

func TestScenarioMarketCrash(t *testing.T) {
	positions := []market.Position{
		position("EURUSD", "BUY", 0.1, 1.10),  // value 11000
		position("GBPUSD", "SELL", 0.1, 1.25), // value 12500, profits in a crash
	}

	results := RunScenarios(positions, 10000, []string{ScenarioMarketCrash})
	result, ok := results[ScenarioMarketCrash]
	require.True(t, ok)

	// Long loses 40% of 11000, short gains 40% of 12500.
	assert.InDelta(t, 11000*0.4-12500*0.4, result.ExpectedLoss, 1e-6)
	assert.Equal(t, 0.05, result.Probability)
	require.Len(t, result.AffectedPositions, 1)
	assert.Equal(t, "EURUSD", result.AffectedPositions[0].Symbol)
}

func TestScenarioTrendReversal(t *testing.T) {
	positions := []market.Position{position("EURUSD", "BUY", 0.1, 1.10)}

	results := RunScenarios(positions, 10000, []string{ScenarioTrendReversal})
	result := results[ScenarioTrendReversal]

	assert.InDelta(t, 11000*0.2, result.ExpectedLoss, 1e-6)
	assert.InDelta(t, 11000*0.2*1.3, result.WorstCaseLoss, 1e-6)
}

func TestScenarioHighVolatility(t *testing.T) {
	positions := []market.Position{position("EURUSD", "BUY", 0.1, 1.10)}

	results := RunScenarios(positions, 10000, []string{ScenarioHighVolatility})
	result := results[ScenarioHighVolatility]

	value := 11000.0
	dailyVaR := value * (0.08 * 2.5 / math.Sqrt(252)) * 1.65
	expected := dailyVaR * math.Sqrt(22)
	assert.InDelta(t, expected, result.ExpectedLoss, 1e-6)
}

func TestScenarioCorrelationBreakdown(t *testing.T) {
	// Negatively correlated pair loses diversification benefit.
	positions := []market.Position{
		position("EURUSD", "BUY", 0.1, 1.10),
		position("USDCHF", "BUY", 0.1, 0.90),
	}

	results := RunScenarios(positions, 10000, []string{ScenarioCorrelationBreakdown})
	result := results[ScenarioCorrelationBreakdown]

	assert.Greater(t, result.ExpectedLoss, 0.0)
	assert.InDelta(t, result.ExpectedLoss*2, result.WorstCaseLoss, 1e-9)
	assert.Len(t, result.AffectedPositions, 2)
}

func TestRunScenariosSkipsUnknown(t *testing.T) {
	positions := []market.Position{position("EURUSD", "BUY", 0.1, 1.10)}

	results := RunScenarios(positions, 10000, []string{"flash_crash", ScenarioTrendReversal})
	assert.Len(t, results, 1)
	assert.Contains(t, results, ScenarioTrendReversal)
}
