package models

import (
	"slices"
	"time"
)

// ForecastPoint is one row of the forecast frame. Yhat is the sum of the
// additive components; YhatLower/YhatUpper bound the uncertainty interval.
type ForecastPoint struct {
	Date      time.Time `json:"ds"`
	Yhat      float64   `json:"yhat"`
	YhatLower float64   `json:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper"`
	Trend     float64   `json:"trend"`
	Weekly    float64   `json:"weekly"`
	Yearly    float64   `json:"yearly"`
	Daily     float64   `json:"daily"`
}

// ForecastResult spans every historical date plus Horizon calendar days.
type ForecastResult struct {
	Points        []ForecastPoint `json:"points"`
	HistoryStart  time.Time       `json:"history_start"`
	HistoryEnd    time.Time       `json:"history_end"`
	HistoryLen    int             `json:"history_len"`
	Horizon       int             `json:"horizon_days"`
	IntervalWidth float64         `json:"interval_width"`
	Changepoints  []time.Time     `json:"changepoints,omitempty"`
}

// Clone returns a copy that shares no points or changepoints with f
func (f *ForecastResult) Clone() *ForecastResult {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Points = slices.Clone(f.Points)
	cp.Changepoints = slices.Clone(f.Changepoints)
	return &cp
}

// Future returns the points after the last historical date
func (f *ForecastResult) Future() []ForecastPoint {
	if f == nil || f.HistoryLen > len(f.Points) {
		return nil
	}
	return f.Points[f.HistoryLen:]
}

// Prediction is the success value of one pipeline request
type Prediction struct {
	RequestID string          `json:"request_id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	History   *HistorySeries  `json:"history"`
	Forecast  *ForecastResult `json:"forecast"`
	Elapsed   time.Duration   `json:"elapsed"`
}
