package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/b3cast/internal/chart"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/interfaces"
	"github.com/bobmcallan/b3cast/internal/models"
)

// predictor is the pipeline surface the MCP handlers use
type predictor interface {
	interfaces.PipelineService
	ResolveSymbol(raw string) string
}

// handleGetVersion implements the get_version tool
func handleGetVersion(config *common.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("b3cast MCP Server\nVersion: %s\nBuild: %s\nCommit: %s\nExchange: %s\nProvider: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit(),
			config.Exchange.Code, config.MarketData.Provider)
		return textResult(result), nil
	}
}

// handleListSymbols implements the list_symbols tool
func handleListSymbols(p predictor, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix := strings.ToUpper(strings.TrimSpace(request.GetString("prefix", "")))
		limit := request.GetInt("limit", 200)
		if limit <= 0 {
			limit = 200
		}

		list, err := p.Symbols(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List symbols failed")
			return errorResult(FailureText(err)), nil
		}

		if prefix != "" {
			filtered := list.Symbols[:0:0]
			for _, s := range list.Symbols {
				if strings.HasPrefix(s, prefix) {
					filtered = append(filtered, s)
				}
			}
			list.Symbols = filtered
		}

		return textResult(FormatSymbolList(list, limit)), nil
	}
}

// handleValidateTicker implements the validate_ticker tool
func handleValidateTicker(p predictor, v interfaces.ValidatorService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString("ticker")
		if err != nil || strings.TrimSpace(raw) == "" {
			return errorResult("Error: ticker parameter is required"), nil
		}

		symbol := p.ResolveSymbol(raw)
		if err := v.Probe(ctx, symbol); err != nil {
			logger.Info().Err(err).Str("symbol", symbol).Msg("Ticker rejected")
			pe := models.NewPipelineError(symbol, err)
			return textResult(FormatValidation(symbol, pe)), nil
		}

		return textResult(FormatValidation(symbol, nil)), nil
	}
}

// handleForecastTicker implements the forecast_ticker tool
func handleForecastTicker(p predictor, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString("ticker")
		if err != nil || strings.TrimSpace(raw) == "" {
			return errorResult("Error: ticker parameter is required"), nil
		}

		stepDays := request.GetInt("step_days", 30)
		if stepDays < 1 {
			stepDays = 1
		}
		includeChart := request.GetBool("include_chart", true)
		includePoints := request.GetBool("include_points", false)

		pred, err := p.Predict(ctx, raw)
		if err != nil {
			return errorResult(FailureText(err)), nil
		}

		result := textResult(FormatPrediction(pred, stepDays))

		if includeChart {
			png, err := chart.RenderForecast(pred)
			if err != nil {
				logger.Warn().Err(err).Str("symbol", pred.Symbol).Msg("Forecast chart render failed")
			} else {
				result.Content = append(result.Content,
					mcp.NewImageContent(base64.StdEncoding.EncodeToString(png), "image/png"))
			}
		}

		if includePoints {
			result.Content = append(result.Content, mcp.NewTextContent(formatForecastJSON(pred.Forecast)))
		}

		return result, nil
	}
}

// FailureText renders a pipeline failure for the user
func FailureText(err error) string {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		msg := "Error: " + pe.UserMessage()
		if pe.Kind.Retryable() {
			msg += "\nThis looks temporary; retrying later may succeed."
		}
		return msg
	}
	return fmt.Sprintf("Error: %v", err)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
