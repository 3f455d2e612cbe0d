package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/forecast"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

type mockCatalog struct {
	list *models.SymbolList
	err  error
}

func (m *mockCatalog) ListSymbols(ctx context.Context) (*models.SymbolList, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.list
	return &cp, nil
}

type mockValidator struct {
	valid map[string]bool
}

func (m *mockValidator) IsValid(ctx context.Context, symbol string) bool { return m.valid[symbol] }

func (m *mockValidator) Probe(ctx context.Context, symbol string) error {
	if m.valid[symbol] {
		return nil
	}
	return models.ErrInvalidTicker
}

func (m *mockValidator) FilterValid(ctx context.Context, symbols []string) []string {
	var out []string
	for _, s := range symbols {
		if m.valid[s] {
			out = append(out, s)
		}
	}
	return out
}

type mockHistory struct {
	series map[string]*models.HistorySeries
	err    error
	panics bool
	calls  int32
}

func (m *mockHistory) LoadHistory(ctx context.Context, symbol string) (*models.HistorySeries, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.panics {
		panic("nil map in provider decoder")
	}
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.series[symbol]
	if !ok {
		return nil, fmt.Errorf("load history %s: %w", symbol, models.ErrEmptyHistory)
	}
	cp := *s
	return &cp, nil
}

// countingEngine delegates to the real engine and counts calls
type countingEngine struct {
	inner *forecast.Engine
	calls int32
}

func (e *countingEngine) Forecast(ctx context.Context, series *models.HistorySeries) (*models.ForecastResult, error) {
	atomic.AddInt32(&e.calls, 1)
	return e.inner.Forecast(ctx, series)
}

type mockMarket struct {
	name string
	err  error
}

func (m *mockMarket) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Instrument{Symbol: symbol, Name: m.name}, nil
}

func (m *mockMarket) GetHistory(ctx context.Context, symbol string, lookback models.Lookback) ([]models.Bar, error) {
	return nil, errors.New("not used")
}

func tenYears(symbol string) *models.HistorySeries {
	s := &models.HistorySeries{Symbol: symbol, Timezone: "America/Sao_Paulo"}
	i := 0
	for d := time.Date(2014, 1, 2, 0, 0, 0, 0, time.UTC); d.Year() < 2024; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.Points = append(s.Points, models.PricePoint{Date: d, Close: 15 + 0.01*float64(i) + float64(i%5)*0.1})
		i++
	}
	return s
}

type fixture struct {
	svc     *Service
	history *mockHistory
	engine  *countingEngine
	clock   *cache.ManualClock
}

func newFixture(t *testing.T, mutate func(*common.Config)) *fixture {
	t.Helper()
	cfg := common.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	clock := cache.NewManualClock(time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC))
	hist := &mockHistory{series: map[string]*models.HistorySeries{"PETR4.SA": tenYears("PETR4.SA")}}
	eng := &countingEngine{inner: forecast.NewEngine(forecast.OptionsFromConfig(cfg.Forecast), nil, common.NewSilentLogger())}
	catalog := &mockCatalog{list: &models.SymbolList{Symbols: []string{"PETR4.SA", "XYZW9.SA", "VALE3.SA"}, Exchange: "SA"}}
	validator := &mockValidator{valid: map[string]bool{"PETR4.SA": true, "VALE3.SA": true}}

	svc := NewService(catalog, validator, hist, eng, &mockMarket{name: "Petróleo Brasileiro S.A. - Petrobras"},
		cache.New(cache.WithClock(clock)), cfg, metrics.New(), common.NewSilentLogger())

	return &fixture{svc: svc, history: hist, engine: eng, clock: clock}
}

func TestPredict_Success(t *testing.T) {
	f := newFixture(t, nil)

	pred, err := f.svc.Predict(context.Background(), "petr4")
	require.NoError(t, err)

	assert.Equal(t, "PETR4.SA", pred.Symbol)
	assert.Equal(t, "Petróleo Brasileiro S.A. - Petrobras", pred.Name)
	assert.NotEmpty(t, pred.RequestID)
	require.NotNil(t, pred.History)
	require.NotNil(t, pred.Forecast)

	hist := pred.History
	assert.Len(t, pred.Forecast.Points, hist.Len()+365)
	assert.Equal(t, hist.First(), pred.Forecast.Points[0].Date)
	assert.Equal(t, hist.Last().AddDate(0, 0, 365), pred.Forecast.Points[len(pred.Forecast.Points)-1].Date)
}

func TestPredict_EmptyHistorySkipsEngine(t *testing.T) {
	f := newFixture(t, nil)

	pred, err := f.svc.Predict(context.Background(), "XYZW9.SA")
	assert.Nil(t, pred)
	require.Error(t, err)

	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.KindEmptyHistory, pe.Kind)
	assert.Equal(t, "XYZW9.SA", pe.Symbol)
	assert.ErrorIs(t, err, models.ErrEmptyHistory)
	assert.Contains(t, pe.UserMessage(), "likely renamed")
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.engine.calls))
}

func TestPredict_ProviderErrorIsTransient(t *testing.T) {
	f := newFixture(t, nil)
	cause := errors.New("read tcp: connection reset by peer")
	f.history.err = fmt.Errorf("load history: %w: %w", models.ErrTransientProvider, cause)

	_, err := f.svc.Predict(context.Background(), "PETR4.SA")

	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.KindTransientProvider, pe.Kind)
	assert.ErrorIs(t, err, cause)
	assert.True(t, pe.Kind.Retryable())
}

func TestPredict_UnclassifiedErrorIsTransient(t *testing.T) {
	f := newFixture(t, nil)
	f.history.err = errors.New("something odd")

	_, err := f.svc.Predict(context.Background(), "PETR4.SA")
	assert.Equal(t, models.KindTransientProvider, models.KindOf(err))
}

func TestPredict_PanicIsRecovered(t *testing.T) {
	f := newFixture(t, nil)
	f.history.panics = true

	var err error
	assert.NotPanics(t, func() {
		_, err = f.svc.Predict(context.Background(), "PETR4.SA")
	})
	assert.Equal(t, models.KindTransientProvider, models.KindOf(err))
	assert.Contains(t, err.Error(), "nil map in provider decoder")
}

func TestPredict_FitErrorOnShortHistory(t *testing.T) {
	f := newFixture(t, func(c *common.Config) { c.Forecast.MinHistoryPoints = 10 })
	f.history.series["NEWW3.SA"] = &models.HistorySeries{Symbol: "NEWW3.SA", Points: []models.PricePoint{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 10},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: 11},
	}}

	_, err := f.svc.Predict(context.Background(), "NEWW3.SA")
	assert.Equal(t, models.KindFit, models.KindOf(err))
	assert.ErrorIs(t, err, models.ErrFit)
}

func TestPredict_EmptySymbol(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Predict(context.Background(), "  ")
	assert.Equal(t, models.KindInvalidTicker, models.KindOf(err))
	assert.Equal(t, int32(0), f.history.calls)
}

func TestPredict_ForecastCacheDisabledByDefault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)
	_, err = f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.history.calls)
}

func TestPredict_ForecastCacheWithinTTL(t *testing.T) {
	f := newFixture(t, func(c *common.Config) { c.Cache.ForecastTTL = "1h" })
	ctx := context.Background()

	a, err := f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)
	b, err := f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.history.calls)
	assert.Equal(t, int32(1), f.engine.calls)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.Equal(t, a.Forecast, b.Forecast)
	assert.NotSame(t, a.Forecast, b.Forecast)
	assert.NotSame(t, a.History, b.History)

	// one request mutating its result leaves the next untouched
	want := b.Forecast.Points[0].Yhat
	a.Forecast.Points[0].Yhat = -1
	a.History.Points[0].Close = -1
	a.History.Name = "changed"
	c, err := f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)
	assert.Equal(t, want, c.Forecast.Points[0].Yhat)
	assert.NotEqual(t, -1.0, c.History.Points[0].Close)
	assert.NotEqual(t, "changed", c.History.Name)
	assert.Equal(t, int32(1), f.engine.calls)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Predict(ctx, "PETR4.SA")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.history.calls)
}

func TestPredict_NameFallsBackToSymbol(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.market = &mockMarket{err: errors.New("quote service down")}

	pred, err := f.svc.Predict(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.Equal(t, "PETR4.SA", pred.Name)
}

func TestSymbols_FiltersInvalid(t *testing.T) {
	f := newFixture(t, nil)

	list, err := f.svc.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PETR4.SA", "VALE3.SA"}, list.Symbols)
	assert.False(t, list.Fallback)
}

func TestSymbols_KeepsFallbackWarning(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.catalog = &mockCatalog{list: &models.SymbolList{
		Symbols:  []string{"PETR4.SA", "VALE3.SA", "ITUB4.SA", "BBDC4.SA", "ABEV3.SA"},
		Fallback: true,
		Warning:  "showing a reduced symbol list: timeout",
	}}

	list, err := f.svc.Symbols(context.Background())
	require.NoError(t, err)
	assert.True(t, list.Fallback)
	assert.NotEmpty(t, list.Warning)
	assert.Equal(t, []string{"PETR4.SA", "VALE3.SA"}, list.Symbols)
}

func TestSymbols_CatalogError(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.catalog = &mockCatalog{err: context.Canceled}

	_, err := f.svc.Symbols(context.Background())
	assert.Equal(t, models.KindCatalog, models.KindOf(err))
}

func TestResolveSymbol(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "PETR4.SA", f.svc.ResolveSymbol(" petr4 "))
	assert.Equal(t, "VALE3.SA", f.svc.ResolveSymbol("vale3.sa"))
	assert.Equal(t, "", f.svc.ResolveSymbol(""))
}
