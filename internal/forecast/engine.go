// Package forecast fits an additive trend + seasonality model to a daily
// close series and projects it over a calendar-day horizon.
//
// The model is y(t) = trend(t) + Σ seasonal(t) + ε with a piecewise-linear
// trend whose slope may change at potential changepoints, and Fourier
// seasonal terms. Coefficients are the MAP estimate under Gaussian priors,
// which reduces to ridge-penalised least squares solved by Cholesky
// factorisation. The fit uses no randomness, so identical inputs and
// options give identical output.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/metrics"
	"github.com/bobmcallan/b3cast/internal/models"
)

// unpenalized is the jitter added to the intercept and slope diagonal
const unpenalized = 1e-9

// ctxCheckRows is how often row loops poll the context
const ctxCheckRows = 512

// Engine implements ForecastEngine
type Engine struct {
	opts    Options
	metrics *metrics.Metrics
	logger  *common.Logger
}

// NewEngine creates a forecast engine
func NewEngine(opts Options, m *metrics.Metrics, logger *common.Logger) *Engine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Engine{opts: opts, metrics: m, logger: logger}
}

// Options returns the engine's hyperparameters
func (e *Engine) Options() Options {
	return e.opts
}

// Forecast fits the model to series and returns one point per historical
// date followed by HorizonDays consecutive calendar days. All failures wrap
// models.ErrFit, including context cancellation and the fit timeout.
func (e *Engine) Forecast(ctx context.Context, series *models.HistorySeries) (*models.ForecastResult, error) {
	if e.opts.FitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FitTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.fit(ctx, series)
	elapsed := time.Since(start)
	e.metrics.ObserveFit(elapsed, err)

	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", seriesSymbol(series)).Int("points", series.Len()).Msg("Forecast fit failed")
		return nil, err
	}

	e.logger.Debug().
		Str("symbol", series.Symbol).
		Int("points", series.Len()).
		Int("changepoints", len(result.Changepoints)).
		Dur("elapsed", elapsed).
		Msg("Forecast fitted")

	return result, nil
}

func seriesSymbol(s *models.HistorySeries) string {
	if s == nil {
		return ""
	}
	return s.Symbol
}

func fitError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrFit, fmt.Sprintf(format, args...))
}

func ctxError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrFit, err)
	}
	return nil
}

func (e *Engine) fit(ctx context.Context, series *models.HistorySeries) (*models.ForecastResult, error) {
	n := series.Len()
	if n < e.opts.minHistory() {
		return nil, fitError("need at least %d rows, got %d", e.opts.minHistory(), n)
	}
	if !series.IsStrictlyIncreasing() {
		return nil, fitError("dates are not strictly increasing")
	}
	if e.opts.HorizonDays < 0 {
		return nil, fitError("negative horizon %d", e.opts.HorizonDays)
	}

	points := series.Points
	y := make([]float64, n)
	for i, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return nil, fitError("non-finite close at %s", p.Date.Format(models.DateLayout))
		}
		y[i] = p.Close
	}

	scale := floats.Max(absAll(y))
	if scale == 0 {
		scale = 1
	}
	floats.Scale(1/scale, y)

	// Changepoints sit on historical dates in the first part of the range.
	first, last := points[0].Date, points[n-1].Date
	cpIdx := changepointIndices(n, e.opts.Changepoints, e.opts.ChangepointRange)
	d := newDesign(first, last, nil, e.opts.Seasonalities)
	cpT := make([]float64, len(cpIdx))
	cpDates := make([]time.Time, len(cpIdx))
	for j, idx := range cpIdx {
		cpT[j] = d.scaledTime(points[idx].Date)
		cpDates[j] = points[idx].Date
	}
	d = newDesign(first, last, cpT, e.opts.Seasonalities)

	p := d.cols
	X := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i, pt := range points {
		if i%ctxCheckRows == 0 {
			if err := ctxError(ctx); err != nil {
				return nil, err
			}
		}
		d.row(pt.Date, row)
		X.SetRow(i, row)
	}

	beta, err := e.solve(ctx, X, y, d)
	if err != nil {
		return nil, err
	}

	// In-sample residual spread
	var fitted mat.VecDense
	fitted.MulVec(X, mat.NewVecDense(p, beta))
	resid := make([]float64, n)
	floats.SubTo(resid, y, fitted.RawVector().Data)
	sigma := math.Sqrt(floats.Dot(resid, resid) / float64(n))

	// Future trend uncertainty: changepoints keep arriving at the historical
	// rate with Laplace magnitudes of the fitted mean |δ|.
	var rate, deltaVar float64
	if s := len(cpT); s > 0 {
		delta := beta[2 : 2+s]
		meanAbs := floats.Norm(delta, 1) / float64(s)
		rate = float64(s)
		deltaVar = 2 * meanAbs * meanAbs
	}

	z := distuv.UnitNormal.Quantile(0.5 + e.opts.IntervalWidth/2)

	out := make([]models.ForecastPoint, 0, n+e.opts.HorizonDays)
	emit := func(date time.Time) {
		d.row(date, row)
		fp := e.components(d, row, beta, scale)
		fp.Date = date

		sd := sigma
		if h := d.scaledTime(date) - 1; h > 0 {
			sd = math.Sqrt(sigma*sigma + rate*deltaVar*h*h*h/3)
		}
		half := z * sd * scale
		fp.YhatLower = fp.Yhat - half
		fp.YhatUpper = fp.Yhat + half
		out = append(out, fp)
	}

	for i, pt := range points {
		if i%ctxCheckRows == 0 {
			if err := ctxError(ctx); err != nil {
				return nil, err
			}
		}
		emit(pt.Date)
	}
	for h := 1; h <= e.opts.HorizonDays; h++ {
		emit(last.AddDate(0, 0, h))
	}

	for _, fp := range out {
		if !finite(fp.Yhat, fp.YhatLower, fp.YhatUpper, fp.Trend, fp.Weekly, fp.Yearly, fp.Daily) {
			return nil, fitError("non-finite prediction at %s", fp.Date.Format(models.DateLayout))
		}
	}

	return &models.ForecastResult{
		Points:        out,
		HistoryStart:  first,
		HistoryEnd:    last,
		HistoryLen:    n,
		Horizon:       e.opts.HorizonDays,
		IntervalWidth: e.opts.IntervalWidth,
		Changepoints:  cpDates,
	}, nil
}

// solve returns the ridge estimate (XᵀX + Λ)⁻¹ Xᵀy
func (e *Engine) solve(ctx context.Context, X *mat.Dense, y []float64, d *design) ([]float64, error) {
	_, p := X.Dims()

	var A mat.SymDense
	A.SymOuterK(1, X.T())

	penalty := make([]float64, p)
	penalty[0], penalty[1] = unpenalized, unpenalized
	for j := 2; j < d.trendCols(); j++ {
		penalty[j] = 1 / (e.opts.ChangepointPriorScale * e.opts.ChangepointPriorScale)
	}
	for j := d.trendCols(); j < p; j++ {
		penalty[j] = 1 / (e.opts.SeasonalityPriorScale * e.opts.SeasonalityPriorScale)
	}
	for j := 0; j < p; j++ {
		A.SetSym(j, j, A.At(j, j)+penalty[j])
	}

	if err := ctxError(ctx); err != nil {
		return nil, err
	}

	var b mat.VecDense
	b.MulVec(X.T(), mat.NewVecDense(len(y), y))

	var chol mat.Cholesky
	if ok := chol.Factorize(&A); !ok {
		return nil, fitError("normal equations are not positive definite")
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %w", models.ErrFit, err)
		}
		e.logger.Debug().Float64("condition", float64(cond)).Msg("Ill-conditioned forecast fit")
	}

	return beta.RawVector().Data, nil
}

// components evaluates the fitted model at one feature row, back in price units
func (e *Engine) components(d *design, row, beta []float64, scale float64) models.ForecastPoint {
	tc := d.trendCols()
	fp := models.ForecastPoint{
		Trend: floats.Dot(row[:tc], beta[:tc]) * scale,
	}
	for i, s := range d.seasonal {
		lo, hi := d.offsets[i], d.offsets[i]+2*s.Order
		v := floats.Dot(row[lo:hi], beta[lo:hi]) * scale
		switch s.Name {
		case Yearly:
			fp.Yearly += v
		case Weekly:
			fp.Weekly += v
		case Daily:
			fp.Daily += v
		}
	}
	fp.Yhat = fp.Trend + fp.Yearly + fp.Weekly + fp.Daily
	return fp
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
