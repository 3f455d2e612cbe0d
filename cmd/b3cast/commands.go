package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/b3cast/internal/app"
	"github.com/bobmcallan/b3cast/internal/chart"
	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/models"
)

// errFailed marks a failure already reported to the user
var errFailed = errors.New("command failed")

type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	quiet      bool
	app        *app.App
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "b3cast",
		Short:         "Validate B3 tickers and forecast daily closes 365 days ahead",
		Version:       common.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(c.configPath)
			if err != nil {
				fmt.Fprintf(c.stderr, "Failed to initialize: %v\n", err)
				return errFailed
			}
			c.app = a
			if !c.quiet {
				printBanner(c.stderr, a)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $B3CAST_CONFIG, then b3cast.toml beside the binary)")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "suppress the startup banner")

	root.AddCommand(c.symbolsCmd(), c.validateCmd(), c.forecastCmd())
	return root
}

func (c *cli) symbolsCmd() *cobra.Command {
	var limit int
	var all bool

	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List exchange symbols with usable price data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var list *models.SymbolList
			var err error
			if all {
				list, err = c.app.Catalog.ListSymbols(ctx)
			} else {
				list, err = c.app.Pipeline.Symbols(ctx)
			}
			if err != nil {
				return c.fail(err)
			}

			fmt.Fprint(c.stdout, app.FormatSymbolList(list, limit))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum symbols to print (0 prints all)")
	cmd.Flags().BoolVar(&all, "all", false, "skip validation and print the raw catalog")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TICKER...",
		Short: "Check that tickers have metadata and recent closes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			failed := false

			for _, raw := range args {
				symbol := c.app.Pipeline.ResolveSymbol(raw)
				if err := c.app.Validator.Probe(ctx, symbol); err != nil {
					failed = true
					fmt.Fprintln(c.stdout, app.FormatValidation(symbol, models.NewPipelineError(symbol, err)))
					continue
				}
				fmt.Fprintln(c.stdout, app.FormatValidation(symbol, nil))
			}

			if failed {
				return errFailed
			}
			return nil
		},
	}
}

func (c *cli) forecastCmd() *cobra.Command {
	var chartDir string
	var asJSON bool
	var step int

	cmd := &cobra.Command{
		Use:   "forecast TICKER",
		Short: "Load full history and forecast the next 365 days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := c.app.Pipeline.Predict(cmd.Context(), args[0])
			if err != nil {
				return c.fail(err)
			}

			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(pred); err != nil {
					return c.fail(err)
				}
			} else {
				fmt.Fprint(c.stdout, app.FormatPrediction(pred, step))
			}

			if chartDir != "" {
				paths, err := chart.WriteAll(chartDir, pred)
				if err != nil {
					return c.fail(err)
				}
				fmt.Fprintf(c.stderr, "Charts written: %s\n", strings.Join(paths, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chartDir, "chart-dir", "", "write forecast and component PNGs into this directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full prediction as JSON")
	cmd.Flags().IntVar(&step, "step", 30, "days between forecast rows in the summary table")
	return cmd
}

// fail reports err to the user and returns errFailed
func (c *cli) fail(err error) error {
	fmt.Fprintln(c.stderr, app.FailureText(err))
	return errFailed
}
