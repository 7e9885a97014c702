// # cmd/bundlegraph/main.go
package main

import (
	"bundlegraph/internal/core/errors"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const VERSION = "0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := rootCmd()
	root.AddCommand(buildCmd(), watchCmd(), graphCmd(), whyCmd())

	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.IsDefect(err) {
			slog.Error("internal engine defect, please report it", "code", errors.CodeOf(err), "error", err)
			os.Exit(2)
		}
		os.Exit(1)
	}
}
