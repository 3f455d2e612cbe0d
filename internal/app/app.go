package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/b3cast/internal/cache"
	"github.com/bobmcallan/b3cast/internal/clients/eodhd"
	"github.com/bobmcallan/b3cast/internal/clients/yahoo"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/forecast"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/services/catalog"
	"github.com/bobmcallan/b3cast/internal/services/history"
	"github.com/bobmcallan/b3cast/internal/services/pipeline"
	"github.com/bobmcallan/b3cast/internal/services/validator"
)

// App holds all initialized services, clients, and the MCP server.
// It is the shared core used by cmd/b3cast and cmd/b3cast-mcp.
type App struct {
	Config         *common.Config
	Logger         *common.Logger
	Metrics        *metrics.Metrics
	Cache          *cache.Cache
	SymbolProvider interfaces.SymbolProvider
	MarketData     interfaces.MarketDataProvider
	Catalog        *catalog.Service
	Validator      *validator.Service
	History        *history.Service
	Engine         *forecast.Engine
	Pipeline       *pipeline.Service
	MCPServer      *server.MCPServer
	StartupTime    time.Time

	scheduler       *cron.Cron
	warmCacheCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: explicit path, B3CAST_CONFIG,
// b3cast.toml next to the binary, then config/b3cast.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("B3CAST_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "b3cast.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/b3cast.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and wires clients, cache, services and the MCP
// server. configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := common.NewLogger(config.Logging.Level)
	if config.IsProduction() {
		logger = common.NewLoggerWithOutput(config.Logging.Level, os.Stderr)
	}
	return NewAppWithConfig(config, logger)
}

// NewAppWithConfig wires an App from an already loaded config.
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	m := metrics.New()
	store := cache.New(cache.WithMetrics(m), cache.WithLogger(logger))
	loc := config.Exchange.Location()

	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - symbol catalog will use the fallback list")
	}

	eodhdClient := eodhd.NewClient(config.Clients.EODHD.APIKey,
		eodhd.WithBaseURL(config.Clients.EODHD.BaseURL),
		eodhd.WithLogger(logger),
		eodhd.WithRateLimit(config.Clients.EODHD.RateLimit),
		eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
		eodhd.WithLocation(loc),
		eodhd.WithMetrics(m),
	)

	var marketData interfaces.MarketDataProvider
	switch config.MarketData.Provider {
	case "eodhd":
		marketData = eodhdClient
	case "yahoo", "":
		marketData = yahoo.NewClient(
			yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
			yahoo.WithLogger(logger),
			yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
			yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
			yahoo.WithUserAgent(config.Clients.Yahoo.UserAgent),
			yahoo.WithMetrics(m),
		)
	default:
		return nil, fmt.Errorf("unknown market data provider %q", config.MarketData.Provider)
	}

	catalogService := catalog.NewService(eodhdClient, store, config, m, logger.WithComponent("catalog"))
	validatorService := validator.NewService(marketData, store, config, m, logger.WithComponent("validator"))
	historyService := history.NewService(marketData, config, logger.WithComponent("history"))
	engine := forecast.NewEngine(forecast.OptionsFromConfig(config.Forecast), m, logger.WithComponent("forecast"))
	pipelineService := pipeline.NewService(catalogService, validatorService, historyService, engine, marketData,
		store, config, m, logger.WithComponent("pipeline"))

	mcpServer := server.NewMCPServer(
		"b3cast",
		common.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	a := &App{
		Config:         config,
		Logger:         logger,
		Metrics:        m,
		Cache:          store,
		SymbolProvider: eodhdClient,
		MarketData:     marketData,
		Catalog:        catalogService,
		Validator:      validatorService,
		History:        historyService,
		Engine:         engine,
		Pipeline:       pipelineService,
		MCPServer:      mcpServer,
		StartupTime:    startupStart,
	}

	a.registerTools()

	logger.Info().
		Str("provider", config.MarketData.Provider).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close stops background work. Shutdown order: scheduler, then warm cache.
func (a *App) Close() {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
		a.scheduler = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
}

// StartWarmCache loads the symbol catalog in the background so the first
// symbol listing is served from cache.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.Catalog, a.Logger)
	}()
}

// StartScheduler registers the periodic catalog refresh. An empty
// scheduler.catalog_warm disables it.
func (a *App) StartScheduler() error {
	spec := a.Config.Scheduler.CatalogWarm
	if spec == "" {
		a.Logger.Info().Msg("Scheduler: disabled")
		return nil
	}

	c, err := newScheduler(spec, a.Catalog, a.Cache, a.Logger)
	if err != nil {
		return err
	}
	c.Start()
	a.scheduler = c

	a.Logger.Info().Str("spec", spec).Msg("Scheduler: started")
	return nil
}

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	s := a.MCPServer
	logger := a.Logger.WithComponent("mcp")

	s.AddTool(createGetVersionTool(), handleGetVersion(a.Config))
	s.AddTool(createListSymbolsTool(), handleListSymbols(a.Pipeline, logger))
	s.AddTool(createValidateTickerTool(), handleValidateTicker(a.Pipeline, a.Validator, logger))
	s.AddTool(createForecastTickerTool(), handleForecastTicker(a.Pipeline, logger))
}
