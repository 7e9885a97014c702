// # cmd/bundlegraph/watch.go
package main

import (
	"bundlegraph/internal/core/config"
	"bundlegraph/internal/core/watcher"
	"bundlegraph/internal/engine/incremental"
	"bundlegraph/internal/shared/observability"
	"bundlegraph/internal/shared/util"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild incrementally as sources change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags.configPath, func(s *session) error {
				return runWatch(cmd.Context(), s, flags.configPath)
			})
		},
	}
}

// runWatch drives the tracker until ctx is done. File events and config
// reloads only mark work; the loop below is the single caller of
// Recompute, spaced out by the rebuild throttle.
func runWatch(ctx context.Context, s *session, configPath string) error {
	trigger := make(chan struct{}, 1)
	notify := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	tracker := incremental.New(incremental.Options{
		Builder:  s.builder,
		Resolver: s.resolver,
		FS:       s.fsys,
		Root:     s.paths.ProjectRoot,
		OnUpdate: func(u incremental.Update) {
			slog.Info("bundle updated",
				"pass", u.PassID,
				"full", u.Full,
				"changed", len(u.Changed),
				"unchanged", len(u.Unchanged),
				"removed", len(u.Removed),
				"duration", u.Duration)
			if err := s.emit(ctx, u.Manifest); err != nil {
				slog.Error("emit failed", "pass", u.PassID, "error", err)
			}
		},
	})

	w, err := watcher.NewWatcher(s.cfg.Watch.Debounce, s.cfg.Watch.ExcludeDirs, s.cfg.Watch.ExcludeFiles, func(paths []string) {
		tracker.HandleChanges(paths)
		notify()
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	watchPaths := make([]string, 0, len(s.cfg.Watch.Paths))
	for _, p := range s.cfg.Watch.Paths {
		watchPaths = append(watchPaths, config.ResolveRelative(s.paths.ProjectRoot, p))
	}
	if err := w.Watch(watchPaths); err != nil {
		return fmt.Errorf("watch %v: %w", watchPaths, err)
	}

	cw := config.NewWatcher(configPath, func(next *config.Config) {
		if err := s.resolver.SetConfig(next.ResolverConfig()); err != nil {
			slog.Warn("resolver config rejected", "error", err)
			return
		}
		w.SetDebounce(next.Watch.Debounce)
		s.builder.SetPinned(next.Pinned)
		slog.Info("resolver and pinned config applied; entry and rule changes need a restart")
		tracker.Invalidate()
		notify()
	})
	if err := cw.Start(ctx); err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer cw.Stop()
	}

	obs := s.cfg.Observability
	if obs.Enabled && obs.EnableMetrics {
		srv := observability.NewServer(fmt.Sprintf(":%d", obs.Port), func(context.Context) map[string]any {
			status := map[string]any{"state": tracker.State().String()}
			if last := tracker.Last(); last != nil {
				status["pass"] = last.PassID
				status["chunks"] = len(last.Result.Chunks)
			}
			return status
		})
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(sctx)
		}()
	}

	throttle := util.NewThrottle(s.cfg.Watch.MinInterval)
	slog.Info("watching", "paths", watchPaths)
	notify()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
		}
		if err := throttle.Wait(ctx); err != nil {
			return nil
		}
		// Failed changes stay queued and retry with the next event.
		if _, err := tracker.Recompute(ctx); err != nil {
			slog.Error("rebuild failed", "error", err)
		}
	}
}
