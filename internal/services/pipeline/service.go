// Package pipeline runs one prediction request end to end: history load,
// model fit and result assembly, with every failure mapped to a typed
// *models.PipelineError.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

// Service implements PipelineService
type Service struct {
	catalog     interfaces.CatalogService
	validator   interfaces.ValidatorService
	history     interfaces.HistoryService
	engine      interfaces.ForecastEngine
	market      interfaces.MarketDataProvider
	store       *cache.Cache
	suffix      string
	forecastTTL time.Duration
	metrics     *metrics.Metrics
	logger      *common.Logger
}

// NewService wires the pipeline. market is only used for the instrument's
// long name and may be nil.
func NewService(
	catalog interfaces.CatalogService,
	validator interfaces.ValidatorService,
	history interfaces.HistoryService,
	engine interfaces.ForecastEngine,
	market interfaces.MarketDataProvider,
	store *cache.Cache,
	cfg *common.Config,
	m *metrics.Metrics,
	logger *common.Logger,
) *Service {
	if store == nil {
		store = cache.New()
	}
	return &Service{
		catalog:     catalog,
		validator:   validator,
		history:     history,
		engine:      engine,
		market:      market,
		store:       store,
		suffix:      cfg.Exchange.Suffix,
		forecastTTL: cfg.Cache.GetForecastTTL(),
		metrics:     m,
		logger:      logger,
	}
}

// ResolveSymbol upper-cases raw and appends the exchange suffix when missing
func (s *Service) ResolveSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" || strings.HasSuffix(sym, strings.ToUpper(s.suffix)) {
		return sym
	}
	return sym + s.suffix
}

// Symbols returns the catalog filtered to symbols with usable data. The
// fallback flag and warning of the catalog are preserved.
func (s *Service) Symbols(ctx context.Context) (*models.SymbolList, error) {
	list, err := s.catalog.ListSymbols(ctx)
	if err != nil {
		return nil, models.NewPipelineError("", fmt.Errorf("%w: %w", models.ErrCatalogUnavailable, err))
	}
	if list.Fallback {
		s.logger.Warn().Str("warning", list.Warning).Msg("Serving fallback symbol list")
	}

	list.Symbols = s.validator.FilterValid(ctx, list.Symbols)
	return list, nil
}

// forecastEntry is what the forecast cache holds per symbol
type forecastEntry struct {
	history  *models.HistorySeries
	forecast *models.ForecastResult
}

// Predict loads symbol's history and fits the forecast. Failures are
// returned as *models.PipelineError; panics below this point are recovered
// and reported as transient provider failures.
func (s *Service) Predict(ctx context.Context, raw string) (pred *models.Prediction, err error) {
	symbol := s.ResolveSymbol(raw)
	requestID := uuid.NewString()
	start := time.Now()
	logger := s.logger.With().Str("request_id", requestID).Str("symbol", symbol).Logger()

	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = &models.PipelineError{
				Kind:   models.KindTransientProvider,
				Symbol: symbol,
				Err:    fmt.Errorf("%w: panic: %v", models.ErrTransientProvider, r),
			}
		}
		if err != nil {
			var pe *models.PipelineError
			if !errors.As(err, &pe) {
				pe = models.NewPipelineError(symbol, err)
				err = pe
			}
			s.metrics.ObservePipeline(string(pe.Kind))
			logger.Warn().Err(err).Str("kind", string(pe.Kind)).Dur("elapsed", time.Since(start)).Msg("Prediction failed")
			return
		}
		s.metrics.ObservePipeline("")
	}()

	if symbol == "" {
		return nil, &models.PipelineError{Kind: models.KindInvalidTicker, Err: fmt.Errorf("%w: empty symbol", models.ErrInvalidTicker)}
	}

	entry, err := cache.GetOrCompute(ctx, s.store, "forecast:"+symbol, s.forecastTTL, func(ctx context.Context) (forecastEntry, error) {
		series, err := s.history.LoadHistory(ctx, symbol)
		if err != nil {
			return forecastEntry{}, err
		}
		logger.Info().
			Int("points", series.Len()).
			Str("first", series.First().Format(models.DateLayout)).
			Str("last", series.Last().Format(models.DateLayout)).
			Msg("Period collected")

		result, err := s.engine.Forecast(ctx, series)
		if err != nil {
			return forecastEntry{}, err
		}
		series.Name = s.instrumentName(ctx, symbol)
		return forecastEntry{history: series, forecast: result}, nil
	})
	if err != nil {
		return nil, models.NewPipelineError(symbol, err)
	}

	// Cached entries may be handed to later requests; each gets its own copy.
	pred = &models.Prediction{
		RequestID: requestID,
		Symbol:    symbol,
		Name:      entry.history.Name,
		History:   entry.history.Clone(),
		Forecast:  entry.forecast.Clone(),
		Elapsed:   time.Since(start),
	}

	logger.Info().
		Str("name", pred.Name).
		Int("forecast_points", len(pred.Forecast.Points)).
		Dur("elapsed", pred.Elapsed).
		Msg("Prediction complete")

	return pred, nil
}

// instrumentName looks up the long name; failures fall back to the symbol.
func (s *Service) instrumentName(ctx context.Context, symbol string) (name string) {
	name = symbol
	if s.market == nil {
		return name
	}
	defer func() {
		if r := recover(); r != nil {
			name = symbol
		}
	}()

	inst, err := s.market.GetInstrument(ctx, symbol)
	if err != nil || inst.IsEmpty() || inst.Name == "" {
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Instrument name lookup failed")
		}
		return name
	}
	return inst.Name
}
