package app

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the b3cast MCP server version and status. Use this to verify connectivity."),
	)
}

// createListSymbolsTool returns the list_symbols tool definition
func createListSymbolsTool() mcp.Tool {
	return mcp.NewTool("list_symbols",
		mcp.WithDescription("List B3 (São Paulo exchange) ticker symbols that currently have usable price data. "+
			"When the live catalog is unavailable a reduced fallback list is returned with a warning."),
		mcp.WithString("prefix",
			mcp.Description("Only return symbols starting with this prefix (e.g., 'PETR', 'VALE')"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum symbols to return (default: 200)"),
		),
	)
}

// createValidateTickerTool returns the validate_ticker tool definition
func createValidateTickerTool() mcp.Tool {
	return mcp.NewTool("validate_ticker",
		mcp.WithDescription("Check whether a B3 ticker has instrument metadata and recent daily closes."),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Ticker with or without the .SA suffix (e.g., 'PETR4', 'VALE3.SA')"),
		),
	)
}

// createForecastTickerTool returns the forecast_ticker tool definition
func createForecastTickerTool() mcp.Tool {
	return mcp.NewTool("forecast_ticker",
		mcp.WithDescription("Load the full daily close history of a B3 ticker and forecast the next 365 days "+
			"with trend, weekly, yearly and daily components and an uncertainty band."),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Ticker with or without the .SA suffix (e.g., 'PETR4', 'ITUB4.SA')"),
		),
		mcp.WithNumber("step_days",
			mcp.Description("Spacing in days between forecast rows in the summary table (default: 30)"),
		),
		mcp.WithBoolean("include_chart",
			mcp.Description("Attach the forecast plot as a PNG image (default: true)"),
		),
		mcp.WithBoolean("include_points",
			mcp.Description("Attach every forecast point as JSON (default: false)"),
		),
	)
}
