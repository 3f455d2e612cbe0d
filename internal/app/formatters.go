package app

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bobmcallan/b3cast/internal/models"
)

func formatBRL(v float64) string {
	return fmt.Sprintf("R$%.2f", v)
}

func formatSignedPct(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

// FormatSymbolList formats a symbol list as markdown, at most limit entries
func FormatSymbolList(list *models.SymbolList, limit int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Symbols: %s\n\n", list.Exchange))
	if list.Fallback {
		sb.WriteString(fmt.Sprintf("> **Warning:** %s\n\n", list.Warning))
	}

	if len(list.Symbols) == 0 {
		sb.WriteString("No symbols with usable data.\n")
		return sb.String()
	}

	shown := list.Symbols
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	sb.WriteString(fmt.Sprintf("**Symbols:** %d", len(list.Symbols)))
	if len(shown) < len(list.Symbols) {
		sb.WriteString(fmt.Sprintf(" (showing %d)", len(shown)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(shown, ", "))
	sb.WriteString("\n")

	return sb.String()
}

// FormatValidation formats a probe outcome; pe is nil for a valid symbol
func FormatValidation(symbol string, pe *models.PipelineError) string {
	if pe == nil {
		return fmt.Sprintf("%s: VALID\nMetadata and recent daily closes are available.", symbol)
	}
	return fmt.Sprintf("%s: INVALID (%s)\n%s", symbol, pe.Kind, pe.UserMessage())
}

// FormatPrediction formats a prediction as markdown. Future rows are
// sampled every stepDays, always including the last one.
func FormatPrediction(pred *models.Prediction, stepDays int) string {
	var sb strings.Builder
	if stepDays < 1 {
		stepDays = 1
	}

	sb.WriteString(fmt.Sprintf("# Forecast: %s (%s)\n\n", pred.Name, pred.Symbol))

	hist := pred.History
	lastClose := hist.Points[hist.Len()-1].Close
	sb.WriteString(fmt.Sprintf("**Period collected:** %s to %s (%d closes)\n",
		hist.First().Format(models.DateLayout), hist.Last().Format(models.DateLayout), hist.Len()))
	sb.WriteString(fmt.Sprintf("**Last Close:** %s\n", formatBRL(lastClose)))
	sb.WriteString(fmt.Sprintf("**Horizon:** %d days\n", pred.Forecast.Horizon))
	sb.WriteString(fmt.Sprintf("**Interval:** %.0f%%\n", pred.Forecast.IntervalWidth*100))
	sb.WriteString(fmt.Sprintf("**Request:** %s (%s)\n\n", pred.RequestID, pred.Elapsed.Round(time.Millisecond)))

	future := pred.Forecast.Future()
	if len(future) == 0 {
		return sb.String()
	}

	end := future[len(future)-1]
	sb.WriteString(fmt.Sprintf("**%s:** %s (%s vs last close), range %s to %s\n\n",
		end.Date.Format(models.DateLayout), formatBRL(end.Yhat), formatSignedPct(pctChange(lastClose, end.Yhat)),
		formatBRL(end.YhatLower), formatBRL(end.YhatUpper)))

	sb.WriteString("| Date | Forecast | Lower | Upper | Trend | Weekly | Yearly |\n")
	sb.WriteString("|------|----------|-------|-------|-------|--------|--------|\n")
	for i, p := range future {
		if (i+1)%stepDays != 0 && i != len(future)-1 {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.2f | %+.3f | %+.3f |\n",
			p.Date.Format(models.DateLayout), p.Yhat, p.YhatLower, p.YhatUpper, p.Trend, p.Weekly, p.Yearly))
	}

	return sb.String()
}

func pctChange(from, to float64) float64 {
	if from == 0 || math.IsNaN(from) {
		return 0
	}
	return (to - from) / from * 100
}

// formatForecastJSON serialises every forecast point with Prophet-style keys
func formatForecastJSON(res *models.ForecastResult) string {
	type jsonPoint struct {
		Date      string  `json:"ds"`
		Yhat      float64 `json:"yhat"`
		YhatLower float64 `json:"yhat_lower"`
		YhatUpper float64 `json:"yhat_upper"`
		Trend     float64 `json:"trend"`
		Weekly    float64 `json:"weekly"`
		Yearly    float64 `json:"yearly"`
		Daily     float64 `json:"daily"`
	}

	out := make([]jsonPoint, len(res.Points))
	for i, p := range res.Points {
		out[i] = jsonPoint{
			Date:      p.Date.Format(models.DateLayout),
			Yhat:      p.Yhat,
			YhatLower: p.YhatLower,
			YhatUpper: p.YhatUpper,
			Trend:     p.Trend,
			Weekly:    p.Weekly,
			Yearly:    p.Yearly,
			Daily:     p.Daily,
		}
	}

	data, _ := json.Marshal(out)
	return string(data)
}
