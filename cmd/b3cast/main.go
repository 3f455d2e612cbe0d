package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmcallan/b3cast/internal/app"
	"github.com/bobmcallan/b3cast/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func printBanner(w io.Writer, a *app.App) {
	common.PrintBanner(w, "B3CAST", a.Config, a.Logger)
}
