package models

import (
	"slices"
	"time"
)

// DateLayout is the calendar date layout used in logs and output
const DateLayout = "2006-01-02"

// PricePoint is one normalized close. Date is timezone-naive: midnight of
// the exchange-local calendar date, carried in time.UTC.
type PricePoint struct {
	Date  time.Time `json:"ds"`
	Close float64   `json:"y"`
}

// HistorySeries is a strictly date-ordered, de-duplicated close series
// for a single symbol.
type HistorySeries struct {
	Symbol   string       `json:"symbol"`
	Name     string       `json:"name,omitempty"`
	Timezone string       `json:"timezone"`
	Points   []PricePoint `json:"points"`
}

// Len returns the number of points
func (h *HistorySeries) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Points)
}

// First returns the earliest date, or zero when empty
func (h *HistorySeries) First() time.Time {
	if h.Len() == 0 {
		return time.Time{}
	}
	return h.Points[0].Date
}

// Last returns the latest date, or zero when empty
func (h *HistorySeries) Last() time.Time {
	if h.Len() == 0 {
		return time.Time{}
	}
	return h.Points[len(h.Points)-1].Date
}

// IsStrictlyIncreasing reports whether dates are strictly ascending.
func (h *HistorySeries) IsStrictlyIncreasing() bool {
	for i := 1; i < h.Len(); i++ {
		if !h.Points[i].Date.After(h.Points[i-1].Date) {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no points with h
func (h *HistorySeries) Clone() *HistorySeries {
	if h == nil {
		return nil
	}
	cp := *h
	cp.Points = slices.Clone(h.Points)
	return &cp
}
