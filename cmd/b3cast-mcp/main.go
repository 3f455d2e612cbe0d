package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/b3cast/internal/app"
	"github.com/bobmcallan/b3cast/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "b3cast-mcp: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, httpAddr string

	cmd := &cobra.Command{
		Use:          "b3cast-mcp",
		Short:        "Serve the b3cast tools over MCP (stdio by default)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			defer a.Close()

			common.PrintBanner(os.Stderr, "B3CAST MCP", a.Config, a.Logger)

			a.StartWarmCache()
			if err := a.StartScheduler(); err != nil {
				return err
			}

			if httpAddr != "" {
				return serveHTTP(cmd.Context(), a, httpAddr)
			}
			return serveStdio(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $B3CAST_CONFIG, then b3cast.toml beside the binary)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address (e.g. :4242) instead of stdio")
	return cmd
}

// serveStdio runs the MCP protocol on stdin/stdout until ctx is done or
// the client disconnects.
func serveStdio(ctx context.Context, a *app.App) error {
	a.Logger.Info().Msg("Serving MCP over stdio")

	stdio := server.NewStdioServer(a.MCPServer)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveHTTP serves MCP plus health, version and metrics endpoints until
// ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, a *app.App, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      buildMux(a),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Str("mcp", "/mcp").Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Logger.Info().Msg("Server stopped")
	return nil
}
