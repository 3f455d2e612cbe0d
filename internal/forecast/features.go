package forecast

import (
	"math"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// design lays out the regression columns:
//
//	0            intercept (m)
//	1            scaled time (k)
//	2..2+S       changepoint hinges (t - s_j)+
//	then 2*order sin/cos pairs per seasonality
type design struct {
	start        time.Time
	spanDays     float64
	changepoints []float64 // scaled time of each changepoint
	seasonal     []Seasonality
	offsets      []int // first column of each seasonality
	cols         int
}

func newDesign(start, end time.Time, changepoints []float64, seasonal []Seasonality) *design {
	d := &design{
		start:        start,
		spanDays:     end.Sub(start).Hours() / 24,
		changepoints: changepoints,
		seasonal:     seasonal,
	}
	col := 2 + len(changepoints)
	for _, s := range seasonal {
		d.offsets = append(d.offsets, col)
		col += 2 * s.Order
	}
	d.cols = col
	return d
}

// scaledTime maps date onto [0,1] over the history span; future dates exceed 1.
func (d *design) scaledTime(date time.Time) float64 {
	return date.Sub(d.start).Hours() / 24 / d.spanDays
}

func (d *design) trendCols() int {
	return 2 + len(d.changepoints)
}

// row fills dst with the feature vector for date
func (d *design) row(date time.Time, dst []float64) {
	t := d.scaledTime(date)
	dst[0] = 1
	dst[1] = t
	for j, s := range d.changepoints {
		dst[2+j] = math.Max(0, t-s)
	}

	days := float64(date.Unix()) / secondsPerDay
	for i, s := range d.seasonal {
		fourier(days, s.Period, s.Order, dst[d.offsets[i]:d.offsets[i]+2*s.Order])
	}
}

// fourier writes sin/cos pairs of orders 1..order for x days
func fourier(x, period float64, order int, dst []float64) {
	for k := 1; k <= order; k++ {
		a := 2 * math.Pi * float64(k) * x / period
		dst[2*(k-1)] = math.Sin(a)
		dst[2*(k-1)+1] = math.Cos(a)
	}
}

// changepointIndices spreads up to n potential changepoints uniformly over
// the first rangeFrac of size rows, excluding the first row.
func changepointIndices(size, n int, rangeFrac float64) []int {
	histSize := int(math.Floor(float64(size) * rangeFrac))
	if n+1 > histSize {
		n = histSize - 1
	}
	if n <= 0 {
		return nil
	}

	out := make([]int, 0, n)
	step := float64(histSize-1) / float64(n)
	for j := 1; j <= n; j++ {
		idx := int(math.Round(float64(j) * step))
		if len(out) > 0 && out[len(out)-1] == idx {
			continue
		}
		out = append(out, idx)
	}
	return out
}
