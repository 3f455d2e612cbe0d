package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
)

// warmCache loads the symbol catalog on startup so the first listing is fast.
func warmCache(ctx context.Context, catalog interfaces.CatalogService, logger *common.Logger) {
	if os.Getenv("B3CAST_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via B3CAST_WARM_CACHE=off")
		return
	}

	start := time.Now()

	list, err := catalog.ListSymbols(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Warm cache: catalog load abandoned")
		return
	}

	event := logger.Info()
	if list.Fallback {
		event = logger.Warn().Str("warning", list.Warning)
	}
	event.
		Int("symbols", len(list.Symbols)).
		Bool("fallback", list.Fallback).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
