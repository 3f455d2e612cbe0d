package history

import (
	"math"
	"slices"
	"time"

	"github.com/bobmcallan/b3cast/internal/models"
)

// Normalize turns raw provider bars into a canonical close series for the
// exchange zone loc. Order matters: each timestamp is first converted into
// loc, then its local calendar date is taken and the zone dropped. Taking
// the date before converting shifts late-evening UTC bars onto the wrong
// day and corrupts weekly seasonality without any error.
//
// The result has dates at midnight in time.UTC (a naive local date),
// finite non-negative closes, strictly increasing dates and no duplicates;
// for duplicate dates the last bar in input order wins.
func Normalize(bars []models.Bar, loc *time.Location) []models.PricePoint {
	if loc == nil {
		loc = time.UTC
	}

	points := make([]models.PricePoint, 0, len(bars))
	for _, b := range bars {
		if b.Time.IsZero() {
			continue
		}
		points = append(points, models.PricePoint{
			Date:  NaiveDate(b.Time.In(loc)),
			Close: b.Close,
		})
	}

	return Canonicalize(points)
}

// Canonicalize drops unusable closes, sorts by date and de-duplicates
// (last occurrence wins). Dates are reduced to their naive calendar date.
// Canonicalize(Canonicalize(p)) == Canonicalize(p).
func Canonicalize(points []models.PricePoint) []models.PricePoint {
	kept := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		if !usableClose(p.Close) {
			continue
		}
		kept = append(kept, models.PricePoint{Date: NaiveDate(p.Date), Close: p.Close})
	}

	slices.SortStableFunc(kept, func(a, b models.PricePoint) int {
		return a.Date.Compare(b.Date)
	})

	out := kept[:0]
	for _, p := range kept {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// NaiveDate returns midnight of t's calendar date (in t's own location),
// carried in time.UTC.
func NaiveDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Localize re-attaches loc to naive points as bars stamped at local noon.
// Normalize(Localize(p, loc), loc) equals p for any normalized p. Noon
// avoids days whose local midnight was skipped by a DST transition.
func Localize(points []models.PricePoint, loc *time.Location) []models.Bar {
	bars := make([]models.Bar, len(points))
	for i, p := range points {
		y, m, d := p.Date.Date()
		bars[i] = models.Bar{Time: time.Date(y, m, d, 12, 0, 0, 0, loc), Close: p.Close}
	}
	return bars
}

func usableClose(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
