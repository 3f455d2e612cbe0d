// Package validator probes tickers for usable market data
package validator

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

const (
	DefaultConcurrency = 8
	MaxConcurrency     = 16
)

// probeResult is the memoised outcome of one probe. A nil err means valid.
type probeResult struct {
	err error
}

// Service implements ValidatorService. A probe requests instrument metadata
// and one month of daily bars; the symbol is valid when both are present.
// Outcomes are cached per symbol, so each symbol is probed at most once
// per validator TTL.
type Service struct {
	provider    interfaces.MarketDataProvider
	store       *cache.Cache
	ttl         time.Duration
	retryTTL    time.Duration
	concurrency int
	metrics     *metrics.Metrics
	logger      *common.Logger
}

// NewService creates a validator. Concurrency is clamped to 1..16.
func NewService(provider interfaces.MarketDataProvider, store *cache.Cache, cfg *common.Config, m *metrics.Metrics, logger *common.Logger) *Service {
	if store == nil {
		store = cache.New()
	}
	return &Service{
		provider:    provider,
		store:       store,
		ttl:         cfg.Cache.GetValidatorTTL(),
		retryTTL:    cfg.Cache.GetFallbackTTL(),
		concurrency: clampConcurrency(cfg.Validator.Concurrency),
		metrics:     m,
		logger:      logger,
	}
}

func clampConcurrency(n int) int {
	switch {
	case n <= 0:
		return DefaultConcurrency
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// IsValid reports whether the symbol has metadata and a non-empty recent
// history. Provider failures count as invalid and are never returned.
func (s *Service) IsValid(ctx context.Context, symbol string) bool {
	return s.Probe(ctx, symbol) == nil
}

// Probe returns nil for a usable symbol, or an error wrapping
// models.ErrInvalidTicker with the reason.
func (s *Service) Probe(ctx context.Context, symbol string) error {
	res, err := cache.GetOrComputeTTL(ctx, s.store, "valid:"+symbol, func(ctx context.Context) (probeResult, time.Duration, error) {
		transient, perr := s.probe(ctx, symbol)
		if ctx.Err() != nil {
			return probeResult{}, 0, ctx.Err()
		}
		s.metrics.ObserveProbe(perr == nil)
		if transient {
			return probeResult{err: perr}, s.retryTTL, nil
		}
		return probeResult{err: perr}, s.ttl, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidTicker, symbol, err)
	}
	return res.err
}

// probe runs the two provider calls. transient is true when the outcome
// came from a provider error rather than from the data itself.
func (s *Service) probe(ctx context.Context, symbol string) (transient bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			transient = true
			err = fmt.Errorf("%w: %s: probe panic: %v", models.ErrInvalidTicker, symbol, r)
		}
	}()

	inst, err := s.provider.GetInstrument(ctx, symbol)
	if err != nil {
		return true, fmt.Errorf("%w: %s: metadata: %v", models.ErrInvalidTicker, symbol, err)
	}
	if inst.IsEmpty() {
		return false, fmt.Errorf("%w: %s: no instrument metadata", models.ErrInvalidTicker, symbol)
	}

	bars, err := s.provider.GetHistory(ctx, symbol, models.Lookback1Mo)
	if err != nil {
		return true, fmt.Errorf("%w: %s: recent history: %v", models.ErrInvalidTicker, symbol, err)
	}
	if countPriced(bars) == 0 {
		return false, fmt.Errorf("%w: %s: no rows in the last month", models.ErrInvalidTicker, symbol)
	}

	return false, nil
}

func countPriced(bars []models.Bar) int {
	n := 0
	for _, b := range bars {
		if !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) {
			n++
		}
	}
	return n
}

// FilterValid probes symbols through a bounded pool and returns the valid
// ones in input order. Invalid symbols are dropped silently.
func (s *Service) FilterValid(ctx context.Context, symbols []string) []string {
	valid := make([]bool, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, symbol := range symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := s.Probe(ctx, symbol); err != nil {
				s.logger.Debug().Str("symbol", symbol).Err(err).Msg("Excluding invalid ticker")
				return nil
			}
			valid[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(symbols))
	for i, symbol := range symbols {
		if valid[i] {
			out = append(out, symbol)
		}
	}

	s.logger.Debug().Int("probed", len(symbols)).Int("valid", len(out)).Msg("Ticker validation complete")
	return out
}
