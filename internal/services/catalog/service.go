// Package catalog provides the list of tradable symbols for the exchange
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

// Service implements CatalogService on top of a SymbolProvider. The live
// list is cached for the catalog TTL; when the provider fails the
// configured fallback symbols are served and cached for the shorter
// fallback TTL so the live list is retried soon.
type Service struct {
	provider    interfaces.SymbolProvider
	store       *cache.Cache
	exchange    common.ExchangeConfig
	ttl         time.Duration
	fallbackTTL time.Duration
	metrics     *metrics.Metrics
	logger      *common.Logger
}

// NewService creates a catalog service. store may be shared with other services.
func NewService(provider interfaces.SymbolProvider, store *cache.Cache, cfg *common.Config, m *metrics.Metrics, logger *common.Logger) *Service {
	if store == nil {
		store = cache.New()
	}
	return &Service{
		provider:    provider,
		store:       store,
		exchange:    cfg.Exchange,
		ttl:         cfg.Cache.GetCatalogTTL(),
		fallbackTTL: cfg.Cache.GetFallbackTTL(),
		metrics:     m,
		logger:      logger,
	}
}

// CacheKey is the cache key of the exchange's catalog
func (s *Service) CacheKey() string {
	return "catalog:" + s.exchange.Code
}

// ListSymbols returns the catalog, sorted. It only fails when ctx is done;
// provider failures degrade to the fallback list.
func (s *Service) ListSymbols(ctx context.Context) (*models.SymbolList, error) {
	list, err := cache.GetOrComputeTTL(ctx, s.store, s.CacheKey(), s.compute)
	if err != nil {
		return nil, err
	}
	return clone(list), nil
}

// Refresh fetches the live catalog now and replaces the cached entry if the
// provider answered. Used by the scheduled warm-up.
func (s *Service) Refresh(ctx context.Context) (*models.SymbolList, error) {
	list, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.store.Set(s.CacheKey(), list, s.ttl)
	return clone(list), nil
}

func (s *Service) compute(ctx context.Context) (*models.SymbolList, time.Duration, error) {
	list, err := s.fetch(ctx)
	if err == nil {
		s.logger.Info().Str("exchange", s.exchange.Code).Int("symbols", len(list.Symbols)).Msg("Symbol catalog loaded")
		return list, s.ttl, nil
	}
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	s.logger.Warn().Err(err).Str("exchange", s.exchange.Code).Int("fallback", len(s.exchange.FallbackSymbols)).
		Msg("Symbol catalog unavailable, serving fallback list")
	s.metrics.ObserveCatalogFallback()

	return s.Fallback(err), s.fallbackTTL, nil
}

// Fallback builds the degraded-mode list for cause
func (s *Service) Fallback(cause error) *models.SymbolList {
	return &models.SymbolList{
		Symbols:   slices.Clone(s.exchange.FallbackSymbols),
		Exchange:  s.exchange.Code,
		Fallback:  true,
		Warning:   fmt.Sprintf("showing a reduced symbol list: %v", cause),
		FetchedAt: s.store.Now(),
	}
}

// fetch asks the provider for the exchange's instruments and converts them
// to suffixed, de-duplicated, sorted symbols.
func (s *Service) fetch(ctx context.Context) (*models.SymbolList, error) {
	raw, err := s.provider.GetExchangeSymbols(ctx, s.exchange.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCatalogUnavailable, err)
	}

	symbols := Suffix(raw, s.exchange.Suffix, s.exchange.SymbolTypes)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: provider returned no usable symbols for %s", models.ErrCatalogUnavailable, s.exchange.Code)
	}

	return &models.SymbolList{
		Symbols:   symbols,
		Exchange:  s.exchange.Code,
		FetchedAt: s.store.Now(),
	}, nil
}

// Suffix appends suffix to every raw code whose type is allowed, drops
// blanks and duplicates, and sorts the result. An empty types list allows
// every type; instruments with no type are always kept.
func Suffix(raw []*models.Symbol, suffix string, types []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, sym := range raw {
		if sym == nil {
			continue
		}
		if len(types) > 0 && sym.Type != "" && !containsFold(types, sym.Type) {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(sym.Code))
		if code == "" {
			continue
		}
		if !strings.HasSuffix(code, strings.ToUpper(suffix)) {
			code += suffix
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}

	slices.Sort(out)
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func clone(list *models.SymbolList) *models.SymbolList {
	if list == nil {
		return nil
	}
	cp := *list
	cp.Symbols = slices.Clone(list.Symbols)
	return &cp
}
