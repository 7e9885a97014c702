// # internal/core/build/discover.go
package build

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// discover runs a coordinator and a bounded set of scan workers. The
// coordinator alone decides what gets scanned, so every module is scanned at
// most once per pass however many importers report it.
func (p *Pass) discover(ctx context.Context, seeds []graph.ModuleID, forced map[graph.ModuleID]bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	jobs := make(chan graph.ModuleID)
	found := make(chan []graph.ModuleID)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.b.opts.Workers; i++ {
		g.Go(func() error {
			for id := range jobs {
				targets, err := p.scan(id)
				if err != nil {
					return err
				}
				select {
				case found <- targets:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	scanned := 0
	g.Go(func() error {
		defer close(jobs)

		seen := make(map[graph.ModuleID]bool)
		var queue []graph.ModuleID
		enqueue := func(ids []graph.ModuleID) {
			for _, id := range ids {
				if seen[id] || !(forced[id] || p.unscanned(id)) {
					continue
				}
				seen[id] = true
				queue = append(queue, id)
			}
		}
		enqueue(seeds)

		inflight := 0
		for len(queue) > 0 || inflight > 0 {
			var send chan graph.ModuleID
			var next graph.ModuleID
			if len(queue) > 0 {
				send = jobs
				next = queue[0]
			}
			select {
			case send <- next:
				queue = queue[1:]
				inflight++
				scanned++
			case targets := <-found:
				inflight--
				enqueue(targets)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return scanned, err
	}
	return scanned, nil
}

// unscanned reports whether id has never had its content loaded. Only the
// coordinator calls it, and only for modules no worker has been handed yet.
func (p *Pass) unscanned(id graph.ModuleID) bool {
	mod, ok := p.g.Module(id)
	return ok && mod.Hash == ""
}

// scan loads one module, records its content hash, and replaces its edges
// with the imports found in the current source.
func (p *Pass) scan(id graph.ModuleID) ([]graph.ModuleID, error) {
	mod, ok := p.g.Module(id)
	if !ok {
		return nil, nil
	}
	identity := mod.Identity

	content, err := p.b.opts.Loader.Load(identity)
	if err != nil {
		return nil, errors.AddContext(
			errors.Wrap(err, errors.CodeNotFound, "module source is unavailable"),
			errors.CtxModule, identity.String(),
		)
	}
	p.g.SetContent(id, int64(len(content)), contentHash(identity, content))

	imports, err := p.b.opts.Scanner.Scan(identity.Path, content)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxModule, identity.String())
	}

	p.g.ClearEdges(id)
	targets := make([]graph.ModuleID, 0, len(imports))
	for _, imp := range imports {
		target, err := p.g.AddEdge(id, imp.Specifier, imp.Kind)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target.ID)
	}
	slog.Debug("scanned module", "pass", p.ID, "module", identity.String(), "imports", len(imports))
	return targets, nil
}
