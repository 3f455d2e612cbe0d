// Package history loads and normalizes daily close series
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/models"
)

// Service implements HistoryService
type Service struct {
	provider interfaces.MarketDataProvider
	location *time.Location
	logger   *common.Logger
}

// NewService creates a history loader normalizing into the exchange zone
func NewService(provider interfaces.MarketDataProvider, cfg *common.Config, logger *common.Logger) *Service {
	return &Service{
		provider: provider,
		location: cfg.Exchange.Location(),
		logger:   logger,
	}
}

// Location returns the zone history dates are anchored in
func (s *Service) Location() *time.Location {
	return s.location
}

// LoadHistory fetches the maximum daily history for symbol and normalizes it.
// Zero rows, before or after normalization, fails with models.ErrEmptyHistory;
// provider failures wrap models.ErrTransientProvider and keep the cause.
func (s *Service) LoadHistory(ctx context.Context, symbol string) (*models.HistorySeries, error) {
	bars, err := s.provider.GetHistory(ctx, symbol, models.LookbackMax)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w: %w", symbol, models.ErrTransientProvider, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("load history %s: %w", symbol, models.ErrEmptyHistory)
	}

	points := Normalize(bars, s.location)
	if len(points) == 0 {
		return nil, fmt.Errorf("load history %s: %w: all %d rows lacked a usable close", symbol, models.ErrEmptyHistory, len(bars))
	}

	series := &models.HistorySeries{
		Symbol:   symbol,
		Timezone: s.location.String(),
		Points:   points,
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Int("rows", len(bars)).
		Int("points", len(points)).
		Str("first", series.First().Format(models.DateLayout)).
		Str("last", series.Last().Format(models.DateLayout)).
		Msg("History loaded")

	return series, nil
}
