package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/models"
)

// catalogRefresher is the part of the catalog service the scheduler drives
type catalogRefresher interface {
	Refresh(ctx context.Context) (*models.SymbolList, error)
}

// cronLogger adapts common.Logger to cron.Logger
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("Scheduler: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("Scheduler: " + msg)
}

// newScheduler builds a cron scheduler that re-warms the catalog and purges
// expired cache entries on spec (standard five-field cron syntax).
func newScheduler(spec string, catalog catalogRefresher, store *cache.Cache, logger *common.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(spec, func() {
		refreshCatalog(context.Background(), catalog, store, logger)
	}); err != nil {
		return nil, fmt.Errorf("register catalog refresh %q: %w", spec, err)
	}

	return c, nil
}

// refreshCatalog replaces the cached catalog with a fresh provider listing.
// On failure the current entry is kept until it expires.
func refreshCatalog(ctx context.Context, catalog catalogRefresher, store *cache.Cache, logger *common.Logger) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	purged := store.Purge()

	list, err := catalog.Refresh(ctx)
	if err != nil {
		logger.Warn().Err(err).Int("purged", purged).Msg("Catalog refresh: provider unavailable, keeping cached list")
		return
	}

	logger.Info().
		Int("symbols", len(list.Symbols)).
		Int("purged", purged).
		Dur("elapsed", time.Since(start)).
		Msg("Catalog refresh: complete")
}
