package interfaces

import (
	"context"

	"github.com/bobmcallan/b3cast/internal/models"
)

// CatalogService provides the list of selectable symbols
type CatalogService interface {
	// ListSymbols returns the live catalog, or the fallback list with a warning
	ListSymbols(ctx context.Context) (*models.SymbolList, error)
}

// ValidatorService probes symbols for usable data
type ValidatorService interface {
	// IsValid reports whether the symbol has metadata and recent history
	IsValid(ctx context.Context, symbol string) bool

	// Probe returns nil for a usable symbol, or the reason it is unusable
	Probe(ctx context.Context, symbol string) error

	// FilterValid returns the usable symbols in input order
	FilterValid(ctx context.Context, symbols []string) []string
}

// HistoryService loads normalized daily close series
type HistoryService interface {
	// LoadHistory fetches the full history and normalizes it
	LoadHistory(ctx context.Context, symbol string) (*models.HistorySeries, error)
}

// ForecastEngine fits a model to a series and projects it forward
type ForecastEngine interface {
	Forecast(ctx context.Context, series *models.HistorySeries) (*models.ForecastResult, error)
}

// PipelineService runs validation, loading and forecasting for one symbol
type PipelineService interface {
	// Symbols returns the validated catalog for presentation
	Symbols(ctx context.Context) (*models.SymbolList, error)

	// Predict loads history and fits a forecast. Failures are *models.PipelineError.
	Predict(ctx context.Context, symbol string) (*models.Prediction, error)
}
