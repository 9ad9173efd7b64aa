package market

import (
	"fmt"
	"time"
)

// Timeframe is a candle interval understood by the MT5 gateway
type Timeframe string

const (
	Timeframe1M  Timeframe = "1M"
	Timeframe5M  Timeframe = "5M"
	Timeframe15M Timeframe = "15M"
	Timeframe30M Timeframe = "30M"
	Timeframe1H  Timeframe = "1H"
	Timeframe4H  Timeframe = "4H"
	Timeframe1D  Timeframe = "1D"
)

// ParseTimeframe validates a timeframe string, defaulting to 1H when empty
func ParseTimeframe(s string) (Timeframe, error) {
	if s == "" {
		return Timeframe1H, nil
	}
	switch Timeframe(s) {
	case Timeframe1M, Timeframe5M, Timeframe15M, Timeframe30M, Timeframe1H, Timeframe4H, Timeframe1D:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unsupported timeframe: %s", s)
}

// Quote is a symbol snapshot with the current tick
type Quote struct {
	Symbol       string  `json:"symbol"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	Volume       int64   `json:"volume"`
	Time         int64   `json:"time"`
	Spread       float64 `json:"spread"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	ContractSize float64 `json:"contract_size"`
}

// Candle is a single OHLCV bar
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Symbol describes an instrument offered by the broker
type Symbol struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	CurrencyBase   string  `json:"currency_base"`
	CurrencyProfit string  `json:"currency_profit"`
	Digits         int     `json:"digits"`
	Point          float64 `json:"point"`
}

// AccountInfo is the MT5 account snapshot
type AccountInfo struct {
	Login       int64   `json:"login"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	FreeMargin  float64 `json:"free_margin"`
	MarginLevel float64 `json:"margin_level"`
	Currency    string  `json:"currency"`
	Server      string  `json:"server"`
	Company     string  `json:"company"`
}

// Position is an open MT5 position
type Position struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // BUY, SELL
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
	Swap         float64 `json:"swap"`
	Commission   float64 `json:"commission"`
	Time         int64   `json:"time"`
	Comment      string  `json:"comment"`
}

// Deal is a completed MT5 deal (one side of a trade)
type Deal struct {
	Ticket     int64   `json:"ticket"`
	Order      int64   `json:"order"`
	Time       int64   `json:"time"`
	Type       string  `json:"type"`  // BUY, SELL
	Entry      string  `json:"entry"` // IN, OUT
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
	Profit     float64 `json:"profit"`
	Symbol     string  `json:"symbol"`
	Comment    string  `json:"comment"`
	Magic      int64   `json:"magic"`
}

// NetProfit is the deal profit including swap and commission
func (d Deal) NetProfit() float64 {
	return d.Profit + d.Swap + d.Commission
}

// DealTime returns the deal timestamp as time.Time
func (d Deal) DealTime() time.Time {
	return time.Unix(d.Time, 0).UTC()
}
