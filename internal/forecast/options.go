package forecast

import (
	"time"

	"github.com/bobmcallan/b3cast/internal/common"
)

// Seasonality is one Fourier seasonal term
type Seasonality struct {
	Name   string
	Period float64 // days
	Order  int
}

// Component names carried on ForecastPoint
const (
	Yearly = "yearly"
	Weekly = "weekly"
	Daily  = "daily"
)

// Options are the model hyperparameters
type Options struct {
	HorizonDays           int
	MinHistoryPoints      int
	IntervalWidth         float64
	Changepoints          int
	ChangepointRange      float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	Seasonalities         []Seasonality
	FitTimeout            time.Duration
}

// DefaultOptions returns the defaults used for B3 daily closes
func DefaultOptions() Options {
	return OptionsFromConfig(common.NewDefaultConfig().Forecast)
}

// OptionsFromConfig maps the [forecast] section onto Options. Disabled or
// zero-order seasonalities are left out.
func OptionsFromConfig(cfg common.ForecastConfig) Options {
	opts := Options{
		HorizonDays:           cfg.HorizonDays,
		MinHistoryPoints:      cfg.MinHistoryPoints,
		IntervalWidth:         cfg.IntervalWidth,
		Changepoints:          cfg.Changepoints,
		ChangepointRange:      cfg.ChangepointRange,
		ChangepointPriorScale: cfg.ChangepointPriorScale,
		SeasonalityPriorScale: cfg.SeasonalityPriorScale,
		FitTimeout:            cfg.GetFitTimeout(),
	}

	add := func(name string, period float64, s common.SeasonalityConfig) {
		if s.Enabled && s.Order > 0 {
			opts.Seasonalities = append(opts.Seasonalities, Seasonality{Name: name, Period: period, Order: s.Order})
		}
	}
	add(Yearly, 365.25, cfg.Yearly)
	add(Weekly, 7, cfg.Weekly)
	add(Daily, 1, cfg.Daily)

	return opts
}

// minHistory is the enforced minimum row count, never below two
func (o Options) minHistory() int {
	if o.MinHistoryPoints < 2 {
		return 2
	}
	return o.MinHistoryPoints
}
