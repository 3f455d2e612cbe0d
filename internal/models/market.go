// Package models defines data structures for b3cast
package models

import (
	"time"
)

// Symbol is an instrument record from the exchange symbol list
type Symbol struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Country  string `json:"Country"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

// SymbolList is the catalog handed to callers. Fallback marks the
// degraded-mode list used when the live catalog could not be fetched.
type SymbolList struct {
	Symbols   []string  `json:"symbols"`
	Exchange  string    `json:"exchange"`
	Fallback  bool      `json:"fallback"`
	Warning   string    `json:"warning,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Instrument is basic instrument metadata from the market data provider
type Instrument struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"long_name"`
	Currency string `json:"currency,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// IsEmpty reports whether the provider returned no usable metadata.
func (i *Instrument) IsEmpty() bool {
	return i == nil || (i.Symbol == "" && i.Name == "")
}

// Lookback is the history window requested from a market data provider
type Lookback string

const (
	Lookback1Mo Lookback = "1mo"
	LookbackMax Lookback = "max"
)

// Bar is one raw daily row as delivered by a provider: a zone-aware
// timestamp and the closing price. Missing closes are NaN.
type Bar struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}
