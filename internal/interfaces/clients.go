// Package interfaces defines service contracts for b3cast
package interfaces

import (
	"context"

	"github.com/bobmcallan/b3cast/internal/models"
)

// SymbolProvider lists the instruments traded on an exchange
type SymbolProvider interface {
	// GetExchangeSymbols retrieves all symbols for an exchange
	GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error)
}

// MarketDataProvider supplies instrument metadata and daily closes
type MarketDataProvider interface {
	// GetInstrument retrieves basic metadata (long name, currency, zone)
	GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error)

	// GetHistory retrieves daily bars for the lookback window. Bars carry
	// the provider's native timezone; zero bars is not an error.
	GetHistory(ctx context.Context, symbol string, lookback models.Lookback) ([]models.Bar, error)
}
