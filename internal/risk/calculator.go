package risk

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"tradeinsight/internal/market"
)

const (
	tradingDaysPerYear = 252
	defaultSimulations = 10000
	defaultRiskFree    = 0.02

	// Standard FX lot size. Position notional is volume * contract size
	// * current price.
	contractSize = 100000

	// Expected shortfall approximation relative to VaR.
	shortfallMultiplier = 1.3

	fallbackVolatility = 0.10
)

// Annualized volatility assumptions per symbol, used when no market
// history is available.
var defaultVolatilities = map[string]float64{
	"EURUSD": 0.08,
	"GBPUSD": 0.10,
	"USDJPY": 0.09,
	"USDCHF": 0.08,
	"AUDUSD": 0.12,
	"USDCAD": 0.09,
	"NZDUSD": 0.13,
	"EURJPY": 0.11,
	"GBPJPY": 0.14,
	"CHFJPY": 0.11,
}

// Pairwise correlation assumptions for the major currency pairs
var defaultCorrelations = map[[2]string]float64{
	{"EURUSD", "GBPUSD"}: 0.7,
	{"EURUSD", "USDJPY"}: -0.3,
	{"EURUSD", "USDCHF"}: -0.8,
	{"EURUSD", "AUDUSD"}: 0.6,
	{"EURUSD", "USDCAD"}: -0.4,
	{"GBPUSD", "USDJPY"}: -0.2,
	{"GBPUSD", "USDCHF"}: -0.6,
	{"GBPUSD", "AUDUSD"}: 0.8,
	{"USDJPY", "USDCHF"}: 0.4,
	{"USDJPY", "AUDUSD"}: -0.1,
	{"USDCHF", "AUDUSD"}: -0.5,
}

// PositionRisk is the per-position breakdown of a risk report
type PositionRisk struct {
	Symbol           string  `json:"symbol"`
	Direction        string  `json:"direction"`
	Volume           float64 `json:"volume"`
	Value            float64 `json:"value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	VaR              float64 `json:"var"`
	RiskContribution float64 `json:"risk_contribution"`
	CorrelationRisk  float64 `json:"correlation_risk"`
}

// Report is the portfolio risk assessment
type Report struct {
	NetExposure       float64        `json:"net_exposure"`
	GrossExposure     float64        `json:"gross_exposure"`
	Leverage          float64        `json:"leverage"`
	VaR               float64        `json:"var"`
	ExpectedShortfall float64        `json:"expected_shortfall"`
	HistoricalVaR     float64        `json:"historical_var"`
	ParametricVaR     float64        `json:"parametric_var"`
	MonteCarloVaR     float64        `json:"monte_carlo_var"`
	MaxDrawdown       float64        `json:"max_drawdown"`
	SharpeRatio       float64        `json:"sharpe_ratio"`
	SortinoRatio      float64        `json:"sortino_ratio"`
	CalmarRatio       float64        `json:"calmar_ratio"`
	VolatilityAnnual  float64        `json:"volatility_annual"`
	Positions         []PositionRisk `json:"positions"`
	Recommendations   []string       `json:"recommendations"`
}

// Calculator estimates portfolio risk from open positions
type Calculator struct {
	rng          *rand.Rand
	simulations  int
	riskFreeRate float64
}

// Option configures a Calculator
type Option func(*Calculator)

// WithSeed makes the simulation deterministic
func WithSeed(seed int64) Option {
	return func(c *Calculator) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

// WithSimulations overrides the Monte Carlo path count
func WithSimulations(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.simulations = n
		}
	}
}

// NewCalculator creates a risk calculator
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		simulations:  defaultSimulations,
		riskFreeRate: defaultRiskFree,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseHorizon converts a risk horizon label to days. Unknown labels
// fall back to one day.
func ParseHorizon(horizon string) int {
	switch strings.ToLower(horizon) {
	case "1d", "":
		return 1
	case "5d":
		return 5
	case "10d":
		return 10
	case "1w":
		return 7
	case "2w":
		return 14
	case "1m":
		return 22
	case "3m":
		return 66
	case "6m":
		return 132
	case "1y":
		return tradingDaysPerYear
	default:
		return 1
	}
}

// PortfolioRisk computes the full risk report for the open positions.
// Balance is the account balance used for leverage and return scaling;
// horizonDays scales the VaR estimates; confidence is the VaR
// confidence level, e.g. 0.95.
func (c *Calculator) PortfolioRisk(positions []market.Position, balance float64, horizonDays int, confidence float64) *Report {
	report := &Report{Positions: []PositionRisk{}, Recommendations: []string{}}
	if len(positions) == 0 {
		return report
	}
	if horizonDays <= 0 {
		horizonDays = 1
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	report.Positions = c.analyzePositions(positions)

	var longExposure, shortExposure float64
	for i, p := range positions {
		if isShort(p) {
			shortExposure += report.Positions[i].Value
		} else {
			longExposure += report.Positions[i].Value
		}
	}
	report.NetExposure = longExposure - shortExposure
	report.GrossExposure = longExposure + shortExposure
	if balance > 0 {
		report.Leverage = report.GrossExposure / balance
	}

	report.HistoricalVaR = c.historicalVaR(positions, horizonDays, confidence)
	report.ParametricVaR = parametricVaR(positions, horizonDays, confidence)
	report.MonteCarloVaR = c.monteCarloVaR(positions, horizonDays, confidence)

	// Monte Carlo is the primary estimate.
	report.VaR = report.MonteCarloVaR
	report.ExpectedShortfall = report.VaR * shortfallMultiplier

	c.riskRatios(positions, balance, report)
	report.Recommendations = recommendations(report, balance)

	return report
}

func isShort(p market.Position) bool {
	return strings.EqualFold(p.Type, "sell")
}

func positionValue(p market.Position) float64 {
	price := p.PriceCurrent
	if price <= 0 {
		price = p.PriceOpen
	}
	return math.Abs(p.Volume) * contractSize * price
}

func symbolVolatility(symbol string) float64 {
	if vol, ok := defaultVolatilities[symbol]; ok {
		return vol
	}
	return fallbackVolatility
}

func dailyVolatility(symbol string) float64 {
	return symbolVolatility(symbol) / math.Sqrt(tradingDaysPerYear)
}

func correlation(sym1, sym2 string) float64 {
	if sym1 == sym2 {
		return 1.0
	}
	if corr, ok := defaultCorrelations[[2]string{sym1, sym2}]; ok {
		return corr
	}
	if corr, ok := defaultCorrelations[[2]string{sym2, sym1}]; ok {
		return corr
	}
	return 0.0
}

func (c *Calculator) analyzePositions(positions []market.Position) []PositionRisk {
	analysis := make([]PositionRisk, 0, len(positions))
	for _, p := range positions {
		value := positionValue(p)
		posVaR := value * dailyVolatility(p.Symbol) * normQuantile(0.95)

		direction := "long"
		if isShort(p) {
			direction = "short"
		}

		analysis = append(analysis, PositionRisk{
			Symbol:           p.Symbol,
			Direction:        direction,
			Volume:           p.Volume,
			Value:            value,
			UnrealizedPnL:    p.Profit + p.Swap + p.Commission,
			VaR:              posVaR,
			RiskContribution: posVaR / float64(len(positions)),
			CorrelationRisk:  correlationRisk(p.Symbol, positions),
		})
	}
	return analysis
}

// correlationRisk sums absolute correlations against the rest of the
// book, normalized by portfolio size.
func correlationRisk(symbol string, positions []market.Position) float64 {
	total := 0.0
	for _, p := range positions {
		if p.Symbol != symbol {
			total += math.Abs(correlation(symbol, p.Symbol))
		}
	}
	return total / float64(len(positions))
}

// historicalVaR simulates a year of daily portfolio returns and takes
// the loss percentile.
func (c *Calculator) historicalVaR(positions []market.Position, horizonDays int, confidence float64) float64 {
	returns := make([]float64, tradingDaysPerYear)
	for day := range returns {
		dailyPnL := 0.0
		for _, p := range positions {
			dailyPnL += positionValue(p) * c.rng.NormFloat64() * dailyVolatility(p.Symbol)
		}
		returns[day] = dailyPnL * math.Sqrt(float64(horizonDays))
	}
	return math.Abs(percentile(returns, (1-confidence)*100))
}

// parametricVaR assumes jointly normal returns with the default
// correlation structure.
func parametricVaR(positions []market.Position, horizonDays int, confidence float64) float64 {
	variance := 0.0
	for _, p := range positions {
		term := positionValue(p) * dailyVolatility(p.Symbol)
		variance += term * term
	}

	for i, p1 := range positions {
		for j, p2 := range positions {
			if i == j {
				continue
			}
			variance += 2 * correlation(p1.Symbol, p2.Symbol) *
				dailyVolatility(p1.Symbol) * dailyVolatility(p2.Symbol) *
				positionValue(p1) * positionValue(p2)
		}
	}

	std := math.Sqrt(math.Max(0, variance)) * math.Sqrt(float64(horizonDays))
	return std * normQuantile(confidence)
}

func (c *Calculator) monteCarloVaR(positions []market.Position, horizonDays int, confidence float64) float64 {
	pnls := make([]float64, c.simulations)
	scale := math.Sqrt(float64(horizonDays))

	for sim := range pnls {
		returns := c.correlatedReturns(positions)
		portfolioPnL := 0.0
		for i, p := range positions {
			pnl := positionValue(p) * returns[i] * scale
			if isShort(p) {
				pnl = -pnl
			}
			portfolioPnL += pnl
		}
		pnls[sim] = portfolioPnL
	}

	return math.Abs(percentile(pnls, (1-confidence)*100))
}

// correlatedReturns draws one vector of daily returns with the default
// correlation structure applied via Cholesky decomposition.
func (c *Calculator) correlatedReturns(positions []market.Position) []float64 {
	n := len(positions)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := correlation(positions[i].Symbol, positions[j].Symbol)
			corr[i][j] = rho
			corr[j][i] = rho
		}
	}

	independent := make([]float64, n)
	for i := range independent {
		independent[i] = c.rng.NormFloat64()
	}

	returns := make([]float64, n)
	if chol, ok := cholesky(corr); ok {
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				returns[i] += chol[i][j] * independent[j]
			}
		}
	} else {
		// Not positive definite, fall back to independent draws.
		copy(returns, independent)
	}

	for i, p := range positions {
		returns[i] *= dailyVolatility(p.Symbol)
	}
	return returns
}

// riskRatios simulates a year of portfolio returns and fills the
// risk-adjusted ratio fields in place.
func (c *Calculator) riskRatios(positions []market.Position, balance float64, report *Report) {
	if balance <= 0 {
		return
	}

	returns := make([]float64, tradingDaysPerYear)
	for day := range returns {
		correlated := c.correlatedReturns(positions)
		dailyPnL := 0.0
		for i, p := range positions {
			pnl := positionValue(p) * correlated[i]
			if isShort(p) {
				pnl = -pnl
			}
			dailyPnL += pnl
		}
		returns[day] = dailyPnL / balance
	}

	annualReturn := mean(returns) * tradingDaysPerYear
	annualVol := stddev(returns) * math.Sqrt(tradingDaysPerYear)
	report.VolatilityAnnual = annualVol

	if annualVol > 0 {
		report.SharpeRatio = (annualReturn - c.riskFreeRate) / annualVol
	}

	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	downside := annualVol
	if len(negative) > 0 {
		downside = stddev(negative) * math.Sqrt(tradingDaysPerYear)
	}
	if downside > 0 {
		report.SortinoRatio = (annualReturn - c.riskFreeRate) / downside
	}

	cumulative := 1.0
	peak := 1.0
	maxDrawdown := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := (peak - cumulative) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	report.MaxDrawdown = maxDrawdown * 100

	if report.MaxDrawdown > 0 {
		report.CalmarRatio = annualReturn / (report.MaxDrawdown / 100)
	}
}

func recommendations(report *Report, balance float64) []string {
	var recs []string

	if report.Leverage > 5 {
		recs = append(recs, "Consider reducing leverage - current level is very high")
	} else if report.Leverage > 3 {
		recs = append(recs, "Monitor leverage levels - approaching high risk territory")
	}

	if balance > 0 {
		varPct := report.VaR / balance * 100
		if varPct > 10 {
			recs = append(recs, "Daily VaR exceeds 10% of account - consider reducing position sizes")
		} else if varPct > 5 {
			recs = append(recs, "Daily VaR is elevated - monitor risk closely")
		}
	}

	if report.SharpeRatio < 0.5 {
		recs = append(recs, "Risk-adjusted returns are low - review trading strategy")
	} else if report.SharpeRatio > 2 {
		recs = append(recs, "Excellent risk-adjusted returns - maintain current strategy")
	}

	if report.MaxDrawdown > 20 {
		recs = append(recs, "Maximum drawdown is concerning - implement stricter stop losses")
	}

	if len(recs) == 0 {
		recs = append(recs, "Portfolio risk levels are within acceptable ranges")
	}
	return recs
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

// percentile computes the pth percentile with linear interpolation
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// cholesky returns the lower triangular decomposition of a symmetric
// matrix, or ok=false if the matrix is not positive definite.
func cholesky(matrix [][]float64) ([][]float64, bool) {
	n := len(matrix)
	lower := make([][]float64, n)
	for i := range lower {
		lower[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := 0.0
			for k := 0; k < j; k++ {
				sum += lower[i][k] * lower[j][k]
			}
			if i == j {
				diag := matrix[i][i] - sum
				if diag <= 0 {
					return nil, false
				}
				lower[i][j] = math.Sqrt(diag)
			} else {
				lower[i][j] = (matrix[i][j] - sum) / lower[j][j]
			}
		}
	}
	return lower, true
}

// normQuantile is the inverse standard normal CDF, using the
// Acklam rational approximation.
func normQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	cc := []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((cc[0]*q+cc[1])*q+cc[2])*q+cc[3])*q+cc[4])*q + cc[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= pHigh:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((cc[0]*q+cc[1])*q+cc[2])*q+cc[3])*q+cc[4])*q + cc[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
