// # internal/engine/incremental/tracker.go
package incremental

import (
	"bundlegraph/internal/core/build"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/engine/manifest"
	"bundlegraph/internal/shared/observability"
	"bundlegraph/internal/shared/util"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrRecomputeInProgress is returned by Recompute while another recompute
// is running. Changes reported in the meantime are kept for the next one.
var ErrRecomputeInProgress = errors.New("recompute already in progress")

type State int

const (
	StateClean State = iota
	StateDirty
	StateRecomputing
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateRecomputing:
		return "recomputing"
	default:
		return "unknown"
	}
}

// PathInvalidator drops cached resolutions that looked at a path.
type PathInvalidator interface {
	InvalidatePath(p string) int
}

type Options struct {
	Builder *build.Builder
	// Resolver, when set, has its cache invalidated for every changed path.
	Resolver PathInvalidator
	// FS is the project filesystem, used to tell deleted files apart from
	// modified ones.
	FS fs.FS
	// Root is the OS directory FS is rooted at. Absolute paths given to
	// PathChanged are made relative to it.
	Root     string
	OnUpdate func(Update)
}

// Update describes one successful recompute. Changed and Unchanged partition
// the chunk names of the new result; Removed lists chunks that no longer
// exist.
type Update struct {
	PassID    string
	Result    *chunk.Result
	Manifest  *manifest.Manifest
	Changed   []string
	Unchanged []string
	Removed   []string
	Full      bool
	Duration  time.Duration
}

// changes is the set of pending invalidations, keyed by identity because
// module ids belong to one graph lineage.
type changes struct {
	content map[graph.Identity]bool
	edges   map[graph.Identity]bool
	full    bool
}

func newChanges() changes {
	return changes{
		content: make(map[graph.Identity]bool),
		edges:   make(map[graph.Identity]bool),
	}
}

func (c changes) empty() bool {
	return !c.full && len(c.content) == 0 && len(c.edges) == 0
}

func (c *changes) merge(other changes) {
	for k := range other.content {
		c.content[k] = true
	}
	for k := range other.edges {
		c.edges[k] = true
	}
	c.full = c.full || other.full
}

func (c changes) identities() []graph.Identity {
	seen := make(map[graph.Identity]bool, len(c.content)+len(c.edges))
	for k := range c.content {
		seen[k] = true
	}
	for k := range c.edges {
		seen[k] = true
	}
	out := make([]graph.Identity, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Tracker turns change notifications into rebuilds that redo only the work
// the changes can affect. It starts Dirty with a full recompute pending.
type Tracker struct {
	opts Options
	memo *chunk.Memo

	mu      sync.Mutex
	state   State
	pending changes
	version uint64
	last    *build.Output
}

func New(opts Options) *Tracker {
	pending := newChanges()
	pending.full = true
	return &Tracker{
		opts:    opts,
		memo:    chunk.NewMemo(),
		state:   StateDirty,
		pending: pending,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Last returns the output of the most recent successful recompute.
func (t *Tracker) Last() *build.Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) markLocked() {
	if t.state == StateClean {
		t.state = StateDirty
	}
}

// ModuleChanged records that a module's content changed.
func (t *Tracker) ModuleChanged(identity graph.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.content[identity] = true
	t.markLocked()
}

// EdgesChanged records that a module's specifiers may resolve differently.
func (t *Tracker) EdgesChanged(identity graph.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.edges[identity] = true
	t.markLocked()
}

// Invalidate schedules a full recompute.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.full = true
	t.markLocked()
}

// PathChanged maps a changed file to the modules built from it. A modified
// file marks those modules changed; a deleted file marks their importers'
// edges changed. A path no module is built from only matters when the
// resolver had looked at it, in which case the affected importers cannot be
// named and a full recompute is scheduled.
func (t *Tracker) PathChanged(p string) {
	rel, ok := t.relative(p)
	if !ok {
		slog.Debug("ignoring change outside project root", "path", p)
		return
	}

	evicted := 0
	if t.opts.Resolver != nil {
		evicted = t.opts.Resolver.InvalidatePath(rel)
	}

	g := t.opts.Builder.Graph()
	var mods []*graph.Module
	for _, mod := range g.Modules() {
		if mod.Identity.Path == rel {
			mods = append(mods, mod)
		}
	}

	if len(mods) == 0 {
		if evicted > 0 {
			slog.Debug("resolution inputs changed", "path", rel, "evicted", evicted)
			t.Invalidate()
		}
		return
	}

	if t.deleted(rel) {
		for _, mod := range mods {
			for _, from := range g.Importers(mod.ID) {
				if importer, ok := g.Module(from); ok {
					t.EdgesChanged(importer.Identity)
				}
			}
		}
		slog.Debug("module source deleted", "path", rel, "variants", len(mods))
		return
	}
	for _, mod := range mods {
		t.ModuleChanged(mod.Identity)
	}
}

// HandleChanges is a watcher callback.
func (t *Tracker) HandleChanges(paths []string) {
	slog.Info("detected changes", "count", len(paths))
	for _, p := range paths {
		t.PathChanged(p)
	}
}

func (t *Tracker) relative(p string) (string, bool) {
	if filepath.IsAbs(p) {
		if t.opts.Root == "" {
			return "", false
		}
		return util.RootRelative(t.opts.Root, p)
	}
	rel := util.NormalizePatternPath(filepath.ToSlash(p))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func (t *Tracker) deleted(rel string) bool {
	if t.opts.FS == nil {
		return false
	}
	_, err := fs.Stat(t.opts.FS, rel)
	return errors.Is(err, fs.ErrNotExist)
}

// Recompute runs one pass over the pending changes. It returns nil with no
// error when there is nothing to do. On failure the changes stay pending and
// the tracker returns to Dirty.
func (t *Tracker) Recompute(ctx context.Context) (*Update, error) {
	t.mu.Lock()
	if t.state == StateRecomputing {
		t.mu.Unlock()
		return nil, ErrRecomputeInProgress
	}
	if t.pending.empty() {
		t.mu.Unlock()
		return nil, nil
	}
	work := t.pending
	t.pending = newChanges()
	t.state = StateRecomputing
	version := t.version
	prev := t.last
	t.mu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "incremental.recompute")
	defer span.End()
	start := time.Now()

	b := t.opts.Builder
	base := b.Graph()
	force, full := t.plan(base, work, prev != nil && base.Version() == version)
	mode := "incremental"
	if full {
		mode = "full"
	}
	span.SetAttributes(attribute.String("mode", mode), attribute.Int("forced", len(force)))

	out, err := b.Build(ctx, force, t.memo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.mu.Lock()
		t.pending.merge(work)
		t.state = StateDirty
		t.mu.Unlock()
		slog.Warn("recompute failed", "mode", mode, "error", err)
		return nil, err
	}
	observability.RecomputeTotal.WithLabelValues(mode).Inc()

	u := diff(prev, out)
	u.Full = full
	u.Duration = time.Since(start)

	t.mu.Lock()
	t.last = out
	t.version = b.Graph().Version()
	if t.pending.empty() {
		t.state = StateClean
	} else {
		t.state = StateDirty
	}
	t.mu.Unlock()

	span.SetAttributes(attribute.Int("changed", len(u.Changed)), attribute.Int("unchanged", len(u.Unchanged)))
	slog.Info("recompute complete",
		"pass", u.PassID,
		"mode", mode,
		"changed", len(u.Changed),
		"unchanged", len(u.Unchanged),
		"duration", u.Duration)

	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate(*u)
	}
	return u, nil
}

// plan decides what the next pass rescans. An incremental plan forces the
// changed modules and drops memoized closures of every root that reaches
// them; anything it cannot account for falls back to a full plan.
func (t *Tracker) plan(base *graph.Graph, work changes, current bool) ([]graph.Identity, bool) {
	if !work.full && current {
		changed := work.identities()
		ids := make([]graph.ModuleID, 0, len(changed))
		known := true
		for _, identity := range changed {
			mod, ok := base.Lookup(identity)
			if !ok {
				slog.Debug("change names an unknown module", "module", identity.String())
				known = false
				break
			}
			ids = append(ids, mod.ID)
		}
		if known {
			dropped := t.memo.InvalidateRoots(base.ImportersTransitive(ids))
			slog.Debug("memo invalidated", "changed", len(ids), "seeds", dropped)
			return changed, false
		}
	}

	t.memo.Reset()
	mods := base.Modules()
	force := make([]graph.Identity, 0, len(mods))
	for _, mod := range mods {
		force = append(force, mod.Identity)
	}
	return force, true
}

// diff compares chunk records by name. A chunk is unchanged when its record
// in the manifest is identical to the previous one.
func diff(prev, out *build.Output) *Update {
	u := &Update{PassID: out.PassID, Result: out.Result, Manifest: out.Manifest}

	before := make(map[string]manifest.ChunkRecord)
	if prev != nil {
		for _, rec := range prev.Manifest.Chunks {
			before[rec.Name] = rec
		}
	}
	for _, rec := range out.Manifest.Chunks {
		old, ok := before[rec.Name]
		delete(before, rec.Name)
		if ok && sameRecord(old, rec) {
			u.Unchanged = append(u.Unchanged, rec.Name)
		} else {
			u.Changed = append(u.Changed, rec.Name)
		}
	}
	u.Removed = util.SortedStringKeys(before)
	return u
}

func sameRecord(a, b manifest.ChunkRecord) bool {
	return a.ID == b.ID &&
		a.Kind == b.Kind &&
		a.Runtime == b.Runtime &&
		a.Hash == b.Hash &&
		slices.Equal(a.Modules, b.Modules) &&
		slices.Equal(a.Requires, b.Requires) &&
		slices.Equal(a.Awaits, b.Awaits) &&
		slices.Equal(a.Async, b.Async)
}
