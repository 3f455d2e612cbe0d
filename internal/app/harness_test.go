package app

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/models"
)

// mockPipeline implements predictor with canned results
type mockPipeline struct {
	list       *models.SymbolList
	symbolsErr error
	pred       *models.Prediction
	predictErr error
	lastRaw    string
}

func (m *mockPipeline) ResolveSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" || strings.HasSuffix(sym, ".SA") {
		return sym
	}
	return sym + ".SA"
}

func (m *mockPipeline) Symbols(ctx context.Context) (*models.SymbolList, error) {
	if m.symbolsErr != nil {
		return nil, m.symbolsErr
	}
	cp := *m.list
	return &cp, nil
}

func (m *mockPipeline) Predict(ctx context.Context, raw string) (*models.Prediction, error) {
	m.lastRaw = raw
	if m.predictErr != nil {
		return nil, m.predictErr
	}
	return m.pred, nil
}

// mockValidator accepts symbols present in valid
type mockValidator struct {
	valid map[string]bool
	err   error
}

func (m *mockValidator) IsValid(ctx context.Context, symbol string) bool {
	return m.Probe(ctx, symbol) == nil
}

func (m *mockValidator) Probe(ctx context.Context, symbol string) error {
	if m.err != nil {
		return m.err
	}
	if !m.valid[symbol] {
		return models.ErrInvalidTicker
	}
	return nil
}

func (m *mockValidator) FilterValid(ctx context.Context, symbols []string) []string {
	var out []string
	for _, s := range symbols {
		if m.valid[s] {
			out = append(out, s)
		}
	}
	return out
}

// samplePrediction builds a small prediction with 60 closes and a 30 day horizon
func samplePrediction() *models.Prediction {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	hist := &models.HistorySeries{Symbol: "PETR4.SA", Name: "Petrobras", Timezone: "America/Sao_Paulo"}
	res := &models.ForecastResult{Horizon: 30, IntervalWidth: 0.8}

	for i := 0; i < 60; i++ {
		hist.Points = append(hist.Points, models.PricePoint{Date: start.AddDate(0, 0, i), Close: 30 + 0.1*float64(i)})
	}
	res.HistoryLen = len(hist.Points)
	res.HistoryStart = hist.First()
	res.HistoryEnd = hist.Last()
	for i := 0; i < 90; i++ {
		y := 30 + 0.1*float64(i)
		res.Points = append(res.Points, models.ForecastPoint{
			Date: start.AddDate(0, 0, i), Yhat: y, YhatLower: y - 1, YhatUpper: y + 1, Trend: y,
		})
	}

	return &models.Prediction{
		RequestID: "3f0c1b7e-0000-4000-8000-000000000001",
		Symbol:    "PETR4.SA",
		Name:      "Petrobras",
		History:   hist,
		Forecast:  res,
		Elapsed:   1500 * time.Millisecond,
	}
}

// testHarness provides an MCP client connected to a b3cast server with
// mock services. Tests can configure mock behavior before calling tools.
type testHarness struct {
	t         *testing.T
	client    *client.Client
	mcpServer *server.MCPServer
	pipeline  *mockPipeline
	validator *mockValidator
	logger    *common.Logger
}

func newMockServer() (*server.MCPServer, *mockPipeline, *mockValidator, *common.Logger) {
	logger := common.NewSilentLogger()
	p := &mockPipeline{
		list: &models.SymbolList{Symbols: []string{"PETR3.SA", "PETR4.SA", "VALE3.SA"}, Exchange: "SA"},
		pred: samplePrediction(),
	}
	v := &mockValidator{valid: map[string]bool{"PETR4.SA": true, "VALE3.SA": true}}

	mcpServer := server.NewMCPServer("b3cast-test", "test", server.WithToolCapabilities(true))
	mcpServer.AddTool(createGetVersionTool(), handleGetVersion(common.NewDefaultConfig()))
	mcpServer.AddTool(createListSymbolsTool(), handleListSymbols(p, logger))
	mcpServer.AddTool(createValidateTickerTool(), handleValidateTicker(p, v, logger))
	mcpServer.AddTool(createForecastTickerTool(), handleForecastTicker(p, logger))

	return mcpServer, p, v, logger
}

func initialize(t *testing.T, c *client.Client) {
	t.Helper()
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "b3cast-test-client",
		Version: "1.0.0",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Initialize(ctx, initReq)
	require.NoError(t, err, "MCP initialize")
}

// newTestHarness connects an in-process client to a mock-backed server.
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mcpServer, p, v, logger := newMockServer()

	c, err := client.NewInProcessClient(mcpServer)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })

	initialize(t, c)

	return &testHarness{t: t, client: c, mcpServer: mcpServer, pipeline: p, validator: v, logger: logger}
}

// newStdioTestHarness connects a client over the stdio transport through
// io.Pipe, the path taken when b3cast-mcp runs under a desktop client.
func newStdioTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mcpServer, p, v, logger := newMockServer()
	stdioServer := server.NewStdioServer(mcpServer)

	// clientOut -> serverIn, serverOut -> clientIn
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- stdioServer.Listen(ctx, serverIn, serverOut)
	}()

	stdioTransport := transport.NewIO(clientIn, clientOut, io.NopCloser(strings.NewReader("")))
	if err := stdioTransport.Start(context.Background()); err != nil {
		cancel()
		t.Fatalf("Failed to start stdio transport: %v", err)
	}

	c := client.NewClient(stdioTransport)
	t.Cleanup(func() {
		c.Close()
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
	})

	initialize(t, c)

	return &testHarness{t: t, client: c, mcpServer: mcpServer, pipeline: p, validator: v, logger: logger}
}

// callTool invokes an MCP tool by name with the given arguments.
func (h *testHarness) callTool(name string, args map[string]any) *mcp.CallToolResult {
	h.t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := h.client.CallTool(context.Background(), req)
	require.NoError(h.t, err, "call %s", name)
	return result
}

// getTextContent extracts text from a content block at the given index.
func (h *testHarness) getTextContent(result *mcp.CallToolResult, index int) string {
	h.t.Helper()
	require.Less(h.t, index, len(result.Content), "content index out of range")
	tc, ok := mcp.AsTextContent(result.Content[index])
	require.True(h.t, ok, "Content[%d] is %T, not TextContent", index, result.Content[index])
	return tc.Text
}
