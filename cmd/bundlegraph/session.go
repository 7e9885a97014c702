// # cmd/bundlegraph/session.go
package main

import (
	"bundlegraph/internal/core/build"
	"bundlegraph/internal/core/config"
	"bundlegraph/internal/data/records"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/manifest"
	"bundlegraph/internal/engine/resolver"
	"bundlegraph/internal/shared/observability"
	"bundlegraph/internal/shared/util"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// session wires one configured project: resolver, builder, and the records
// store the builder's id assignments persist to.
type session struct {
	cfg      *config.Config
	paths    config.ResolvedPaths
	fsys     fs.FS
	resolver *resolver.Resolver
	builder  *build.Builder
	store    records.Store
}

func openSession(ctx context.Context, cfg *config.Config, cwd string) (*session, error) {
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}
	fsys := os.DirFS(paths.ProjectRoot)

	res, err := resolver.New(fsys, cfg.ResolverConfig())
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	engine, err := chunk.NewEngine(opts)
	if err != nil {
		return nil, err
	}
	builder, err := build.New(build.Options{
		Resolver: res,
		Loader:   build.NewFSLoader(fsys),
		Engine:   engine,
		Entries:  cfg.EntryDefs(),
		Pinned:   cfg.Pinned,
		Workers:  cfg.Build.Workers,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Records.Driver != records.DriverMemory {
		if err := os.MkdirAll(filepath.Dir(paths.RecordsPath), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	store, err := records.Open(cfg.Records.Driver, paths.RecordsPath)
	if err != nil {
		return nil, err
	}
	prev, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load records: %w", err)
	}
	if err := builder.SetRecords(prev); err != nil {
		store.Close()
		return nil, fmt.Errorf("stale records in %s: %w", paths.RecordsPath, err)
	}

	slog.Debug("session ready",
		"root", paths.ProjectRoot,
		"entries", len(cfg.Entries),
		"rules", len(opts.Rules),
		"records", cfg.Records.Driver)

	return &session{
		cfg:      cfg,
		paths:    paths,
		fsys:     fsys,
		resolver: res,
		builder:  builder,
		store:    store,
	}, nil
}

// emit persists the committed records and writes the manifest.
func (s *session) emit(ctx context.Context, m *manifest.Manifest) error {
	if err := s.store.Save(ctx, s.builder.Records()); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.paths.ManifestPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := m.WriteFile(s.paths.ManifestPath); err != nil {
		return err
	}
	slog.Info("manifest written", "path", s.paths.ManifestPath, "chunks", len(m.Chunks), "heap_mb", util.HeapAllocMB())
	return nil
}

// withSession loads the config at configPath, opens a session from the
// working directory, and runs fn with it.
func withSession(ctx context.Context, configPath string, fn func(*session) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer initTracing(ctx, cfg)()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, cwd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (s *session) Close() error {
	return s.store.Close()
}

// initTracing installs the OTLP exporter when tracing is enabled. The
// returned function flushes pending spans.
func initTracing(ctx context.Context, cfg *config.Config) func() {
	obs := cfg.Observability
	if !obs.Enabled || !obs.EnableTracing {
		return func() {}
	}
	shutdown, err := observability.InitTracing(ctx, obs.OTLPEndpoint, obs.OTLPInsecure)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
}
