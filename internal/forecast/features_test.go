package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/b3cast/internal/common"
)

func TestChangepointIndices(t *testing.T) {
	idx := changepointIndices(1000, 25, 0.8)
	require.Len(t, idx, 25)
	assert.Equal(t, 799, idx[len(idx)-1])
	for i, v := range idx {
		assert.Greater(t, v, 0)
		if i > 0 {
			assert.Greater(t, v, idx[i-1])
		}
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, changepointIndices(10, 25, 0.8))
	assert.Nil(t, changepointIndices(2, 25, 0.8))
	assert.Nil(t, changepointIndices(1000, 0, 0.8))
}

func TestFourier(t *testing.T) {
	dst := make([]float64, 4)
	fourier(0, 7, 2, dst)
	assert.InDeltaSlice(t, []float64{0, 1, 0, 1}, dst, 1e-12)

	fourier(7.0/4, 7, 1, dst[:2])
	assert.InDeltaSlice(t, []float64{1, 0}, dst[:2], 1e-12)
}

func TestDesign_Layout(t *testing.T) {
	opts := DefaultOptions()
	d := newDesign(day(2020, 1, 1), day(2020, 1, 11), []float64{0.5}, opts.Seasonalities)

	assert.Equal(t, 3, d.trendCols())
	assert.Equal(t, 3+2*(10+3+4), d.cols)
	assert.InDelta(t, 0.5, d.scaledTime(day(2020, 1, 6)), 1e-12)

	row := make([]float64, d.cols)
	d.row(day(2020, 1, 11), row)
	assert.Equal(t, 1.0, row[0])
	assert.InDelta(t, 1.0, row[1], 1e-12)
	assert.InDelta(t, 0.5, row[2], 1e-12)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := common.NewDefaultConfig().Forecast
	opts := OptionsFromConfig(cfg)

	require.Len(t, opts.Seasonalities, 3)
	assert.Equal(t, Seasonality{Name: Yearly, Period: 365.25, Order: 10}, opts.Seasonalities[0])
	assert.Equal(t, Seasonality{Name: Weekly, Period: 7, Order: 3}, opts.Seasonalities[1])
	assert.Equal(t, Seasonality{Name: Daily, Period: 1, Order: 4}, opts.Seasonalities[2])
	assert.Equal(t, 365, opts.HorizonDays)
	assert.Equal(t, 0.8, opts.IntervalWidth)

	cfg.Daily.Enabled = false
	assert.Len(t, OptionsFromConfig(cfg).Seasonalities, 2)
}
