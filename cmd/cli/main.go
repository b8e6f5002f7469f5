// Command cli is a terminal client for attendtrack: login (password or
// one-tap with a software key), attendance, calendar, marks and device management.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendtrack/internal/apiclient"
	"attendtrack/internal/config"
	"attendtrack/internal/prefs"
)

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}
	api.HTTP.Timeout = cfg.Timeout

	sh := newShell(bufio.NewScanner(os.Stdin), os.Stdout, api, prefs.NewFileBackend(cfg.StatePath), time.Local)
	if err := sh.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
