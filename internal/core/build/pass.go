// # internal/core/build/pass.go
package build

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/entry"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/engine/manifest"
	"bundlegraph/internal/shared/observability"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pass is one build over a private graph clone:
// discovery -> partition -> frozen -> manifest -> committed.
// Any failure or cancellation discards the clone.
type Pass struct {
	ID string

	b *Builder
	g *graph.Graph

	mu         sync.Mutex
	phase      Phase
	phaseStart time.Time
	stop       context.CancelFunc

	entries  *entry.Set
	removed  []graph.ModuleID
	result   *chunk.Result
	manifest *manifest.Manifest
}

func newPass(b *Builder, g *graph.Graph) *Pass {
	return &Pass{
		ID:         uuid.NewString(),
		b:          b,
		g:          g,
		phase:      PhaseDiscovery,
		phaseStart: time.Now(),
	}
}

func (p *Pass) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Graph is the pass's private graph. It becomes the committed graph only
// through Commit.
func (p *Pass) Graph() *graph.Graph {
	return p.g
}

// Removed lists the modules garbage-collected at the start of partition.
func (p *Pass) Removed() []graph.ModuleID {
	return p.removed
}

func (p *Pass) expect(op string, want Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != want {
		return &phaseError{op: op, want: want, have: p.phase}
	}
	return nil
}

func (p *Pass) enter(next Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == PhaseCancelled {
		return
	}
	observability.PhaseDuration.WithLabelValues(p.phase.String()).Observe(time.Since(p.phaseStart).Seconds())
	slog.Debug("pass phase", "pass", p.ID, "from", p.phase.String(), "to", next.String())
	p.phase = next
	p.phaseStart = time.Now()
}

// Cancel discards the pass. It is safe to call at any time and from any
// goroutine; a running discovery stops at its next scheduling point.
func (p *Pass) Cancel() {
	p.mu.Lock()
	if p.phase == PhaseCommitted || p.phase == PhaseCancelled {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseCancelled
	stop := p.stop
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	p.b.release(p)
	slog.Debug("pass cancelled", "pass", p.ID)
}

func (p *Pass) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.Cancel()
	return err
}

// Discover defines the entries and pins on the pass graph and scans every
// module that has never been scanned, plus the modules in force, following
// new edges until the reachable graph converges.
func (p *Pass) Discover(ctx context.Context, force []graph.Identity) error {
	if err := p.expect("discover", PhaseDiscovery); err != nil {
		return err
	}
	ctx, span := observability.Tracer.Start(ctx, "build.discover", trace.WithAttributes(attribute.String("pass", p.ID)))
	defer span.End()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	p.mu.Lock()
	p.stop = stop
	p.mu.Unlock()

	p.g.ResetLedger()
	entries := entry.NewSet(p.g)
	for _, d := range p.b.opts.Entries {
		if _, err := entries.Define(d.Name, d.Import, "", d.DependOn...); err != nil {
			return p.fail(span, err)
		}
	}
	if err := entries.Validate(); err != nil {
		return p.fail(span, err)
	}

	// Pins carried over from the committed graph are replaced, not merged.
	for _, id := range p.g.Pinned() {
		p.g.Unpin(id)
	}
	seeds := entries.Roots()
	for _, spec := range p.b.pinned() {
		mod, err := p.g.AddRoot(spec, "")
		if err != nil {
			return p.fail(span, err)
		}
		p.g.Pin(mod.ID)
		seeds = append(seeds, mod.ID)
	}

	forced := make(map[graph.ModuleID]bool, len(force))
	for _, identity := range force {
		if mod, ok := p.g.Lookup(identity); ok {
			forced[mod.ID] = true
		}
	}
	extra := make([]graph.ModuleID, 0, len(forced))
	for id := range forced {
		extra = append(extra, id)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	seeds = append(seeds, extra...)

	scanned, err := p.discover(ctx, seeds, forced)
	if err != nil {
		return p.fail(span, err)
	}
	span.SetAttributes(attribute.Int("scanned", scanned), attribute.Int("modules", p.g.Len()))
	slog.Debug("discovery converged", "pass", p.ID, "scanned", scanned, "modules", p.g.Len(), "edges", p.g.EdgeCount())

	p.entries = entries
	p.enter(PhasePartition)
	return nil
}

// Partition garbage-collects unreachable modules and runs the chunk engine
// over the now read-only graph.
func (p *Pass) Partition(ctx context.Context, memo *chunk.Memo) (*chunk.Result, error) {
	if err := p.expect("partition", PhasePartition); err != nil {
		return nil, err
	}
	_, span := observability.Tracer.Start(ctx, "build.partition", trace.WithAttributes(attribute.String("pass", p.ID)))
	defer span.End()

	p.removed = p.g.RemoveUnreachable(p.entries.Roots())
	if len(p.removed) > 0 {
		gone := make(map[graph.ModuleID]bool, len(p.removed))
		for _, id := range p.removed {
			gone[id] = true
		}
		memo.InvalidateRoots(gone)
		slog.Debug("removed unreachable modules", "pass", p.ID, "count", len(p.removed))
	}

	res, err := p.b.opts.Engine.Partition(p.g, p.entries.All(), p.b.Records(), memo)
	if err != nil {
		return nil, p.fail(span, err)
	}
	if p.Phase() == PhaseCancelled {
		return nil, context.Canceled
	}
	span.SetAttributes(attribute.Int("chunks", len(res.Chunks)))
	p.result = res
	p.enter(PhaseFrozen)
	return res, nil
}

func (p *Pass) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	if err := p.expect("manifest", PhaseFrozen); err != nil {
		return nil, err
	}
	_, span := observability.Tracer.Start(ctx, "build.manifest", trace.WithAttributes(attribute.String("pass", p.ID)))
	defer span.End()

	m, err := manifest.Build(p.result)
	if err != nil {
		if errors.IsDefect(err) {
			slog.Error("manifest consistency check failed", "pass", p.ID, "error", err)
		}
		return nil, p.fail(span, err)
	}
	p.manifest = m
	p.enter(PhaseManifest)
	return m, nil
}

// Commit makes the pass graph and records the builder's committed state.
func (p *Pass) Commit() error {
	if err := p.expect("commit", PhaseManifest); err != nil {
		return err
	}
	if err := p.b.commit(p); err != nil {
		p.Cancel()
		return err
	}
	p.enter(PhaseCommitted)
	return nil
}
