// # cmd/bundlegraph/root.go
package main

import (
	"bundlegraph/internal/core/config"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

var flags globalFlags

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundlegraph",
		Short: "Partition a JavaScript module graph into chunks",
		Long: `bundlegraph discovers the module graph reachable from the configured
entries, assigns every module to output chunks, and writes the loader
manifest describing which chunks each entry needs.`,
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), flags.verbose)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultFile, "Path to config file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no config at %s (see bundlegraph.example.toml): %w", path, err)
	}
	return nil, err
}
