// # internal/core/build/builder.go
package build

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/data/records"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/engine/manifest"
	"bundlegraph/internal/engine/parser"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
)

// EntryDef is an entry as configured: a name, its root specifiers, and the
// entries whose chunks it depends on.
type EntryDef struct {
	Name     string
	Import   []string
	DependOn []string
}

type Options struct {
	Resolver graph.Resolver
	Scanner  *parser.Scanner
	Loader   Loader
	Engine   *chunk.Engine
	Entries  []EntryDef
	// Pinned modules survive garbage collection even when no entry reaches
	// them. Specifiers resolve from the project root.
	Pinned  []string
	Workers int
}

// Builder owns the committed module graph and the id records of the last
// successful pass. Passes work on a private clone and only replace the
// committed state on Commit.
type Builder struct {
	opts Options

	mu      sync.Mutex
	base    *graph.Graph
	records *records.Records
	active  *Pass
}

func New(opts Options) (*Builder, error) {
	if opts.Resolver == nil {
		return nil, errors.New(errors.CodeValidationError, "builder needs a resolver")
	}
	if opts.Loader == nil {
		return nil, errors.New(errors.CodeValidationError, "builder needs a loader")
	}
	if opts.Engine == nil {
		return nil, errors.New(errors.CodeValidationError, "builder needs a chunk engine")
	}
	if opts.Scanner == nil {
		opts.Scanner = parser.NewScanner()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if err := validateEntries(opts.Entries); err != nil {
		return nil, err
	}
	return &Builder{
		opts:    opts,
		base:    graph.New(opts.Resolver),
		records: records.New(),
	}, nil
}

// validateEntries reports configuration errors before any graph work.
func validateEntries(defs []EntryDef) error {
	if len(defs) == 0 {
		return errors.New(errors.CodeValidationError, "at least one entry is required")
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		name := strings.TrimSpace(d.Name)
		if seen[name] {
			return &errors.DuplicateEntryError{Name: name}
		}
		seen[name] = true
	}
	for _, d := range defs {
		for _, dep := range d.DependOn {
			if !seen[dep] {
				return errors.AddContext(
					errors.New(errors.CodeValidationError, fmt.Sprintf("dependOn names unknown entry %q", dep)),
					errors.CtxEntry, d.Name,
				)
			}
		}
	}
	return nil
}

// SetRecords seeds id assignment with records persisted by an earlier run.
func (b *Builder) SetRecords(r *records.Records) error {
	if err := r.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = r.Clone()
	return nil
}

func (b *Builder) Records() *records.Records {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records.Clone()
}

// SetPinned replaces the pinned specifiers. Passes begun afterwards pin
// exactly these modules.
func (b *Builder) SetPinned(specs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.Pinned = append([]string(nil), specs...)
}

func (b *Builder) pinned() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opts.Pinned...)
}

// Graph returns the committed graph. Callers must treat it as read-only.
func (b *Builder) Graph() *graph.Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

// Begin starts a pass over a clone of the committed graph. A pass still in
// flight is cancelled; its partial results are never merged.
func (b *Builder) Begin() *Pass {
	b.mu.Lock()
	prev := b.active
	p := newPass(b, b.base.Clone())
	b.active = p
	b.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return p
}

func (b *Builder) commit(p *Pass) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != p {
		return fmt.Errorf("%w: pass %s was superseded", ErrPhase, p.ID)
	}
	b.base = p.g
	b.records = p.result.Records()
	b.active = nil
	return nil
}

func (b *Builder) release(p *Pass) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == p {
		b.active = nil
	}
}

// Output is what a successful pass hands to the emitter.
type Output struct {
	PassID   string
	Result   *chunk.Result
	Manifest *manifest.Manifest
	Records  *records.Records
}

// Build runs one complete pass: discover everything not yet scanned plus
// force, partition, build the manifest, and commit. memo may be nil.
func (b *Builder) Build(ctx context.Context, force []graph.Identity, memo *chunk.Memo) (*Output, error) {
	p := b.Begin()
	out, err := p.Run(ctx, force, memo)
	if err != nil {
		p.Cancel()
		return nil, err
	}
	return out, nil
}

// Run drives p through every phase.
func (p *Pass) Run(ctx context.Context, force []graph.Identity, memo *chunk.Memo) (*Output, error) {
	if err := p.Discover(ctx, force); err != nil {
		return nil, err
	}
	res, err := p.Partition(ctx, memo)
	if err != nil {
		return nil, err
	}
	man, err := p.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Commit(); err != nil {
		return nil, err
	}
	slog.Info("build complete",
		"pass", p.ID,
		"modules", len(res.Modules),
		"chunks", len(res.Chunks))
	return &Output{PassID: p.ID, Result: res, Manifest: man, Records: res.Records()}, nil
}
