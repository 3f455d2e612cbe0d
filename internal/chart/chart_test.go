package chart

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/b3cast/internal/models"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func samplePrediction() *models.Prediction {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	hist := &models.HistorySeries{Symbol: "PETR4.SA", Name: "Petrobras"}
	res := &models.ForecastResult{Horizon: 30}

	for i := 0; i < 60; i++ {
		d := start.AddDate(0, 0, i)
		price := 30 + 0.1*float64(i)
		hist.Points = append(hist.Points, models.PricePoint{Date: d, Close: price})
	}
	res.HistoryLen = len(hist.Points)
	for i := 0; i < 90; i++ {
		d := start.AddDate(0, 0, i)
		trend := 30 + 0.1*float64(i)
		weekly := 0.2 * math.Sin(2*math.Pi*float64(i)/7)
		yearly := 0.5 * math.Cos(2*math.Pi*float64(i)/365.25)
		yhat := trend + weekly + yearly
		res.Points = append(res.Points, models.ForecastPoint{
			Date: d, Yhat: yhat, YhatLower: yhat - 1, YhatUpper: yhat + 1,
			Trend: trend, Weekly: weekly, Yearly: yearly, Daily: 0,
		})
	}
	return &models.Prediction{Symbol: "PETR4.SA", Name: "Petrobras", History: hist, Forecast: res}
}

func TestRenderForecast(t *testing.T) {
	png, err := RenderForecast(samplePrediction())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderForecast_TooFewPoints(t *testing.T) {
	_, err := RenderForecast(&models.Prediction{History: &models.HistorySeries{}})
	assert.Error(t, err)
	_, err = RenderForecast(nil)
	assert.Error(t, err)
}

func TestRenderComponent(t *testing.T) {
	pred := samplePrediction()
	for _, c := range Components {
		t.Run(c, func(t *testing.T) {
			png, err := RenderComponent(pred.Forecast, c)
			require.NoError(t, err, "flat components must still render")
			assert.True(t, bytes.HasPrefix(png, pngMagic))
		})
	}

	_, err := RenderComponent(pred.Forecast, "monthly")
	assert.Error(t, err)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")

	paths, err := WriteAll(dir, samplePrediction())
	require.NoError(t, err)
	require.Len(t, paths, 1+len(Components))
	assert.Equal(t, filepath.Join(dir, "PETR4_SA_forecast.png"), paths[0])

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
