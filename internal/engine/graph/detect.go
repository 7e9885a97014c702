// # internal/engine/graph/detect.go
package graph

// DetectCycles reports import cycles over static edges. Each cycle is listed
// from the first module on it that the walk entered; walks start in ID order
// so the result is stable.
func (g *Graph) DetectCycles() [][]ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles [][]ModuleID
	visited := make(map[ModuleID]bool)
	onStack := make(map[ModuleID]bool)

	for _, mod := range g.modules {
		if mod != nil && !visited[mod.ID] {
			g.findCycles(mod.ID, visited, onStack, nil, &cycles)
		}
	}
	return cycles
}

func (g *Graph) findCycles(curr ModuleID, visited, onStack map[ModuleID]bool, path []ModuleID, cycles *[][]ModuleID) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	for _, e := range g.modules[curr].Edges {
		if e.Kind != EdgeStatic || g.moduleLocked(e.Target) == nil {
			continue
		}
		next := e.Target
		if onStack[next] {
			for i, id := range path {
				if id == next {
					cycle := make([]ModuleID, len(path)-i)
					copy(cycle, path[i:])
					*cycles = append(*cycles, cycle)
					break
				}
			}
		} else if !visited[next] {
			g.findCycles(next, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}

// FindImportChain returns the shortest edge path from one module to another.
func (g *Graph) FindImportChain(from, to ModuleID) ([]ModuleID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.moduleLocked(from) == nil || g.moduleLocked(to) == nil {
		return nil, false
	}
	if from == to {
		return []ModuleID{from}, true
	}

	queue := []ModuleID{from}
	visited := map[ModuleID]bool{from: true}
	prev := make(map[ModuleID]ModuleID)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, e := range g.modules[curr].Edges {
			next := e.Target
			if visited[next] || g.moduleLocked(next) == nil {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []ModuleID{to}
				for node := to; node != from; {
					node = prev[node]
					path = append(path, node)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// ImportersTransitive returns every module that reaches one of ids over any
// edge kind, ids included. The result is a superset of the modules whose
// closures can contain a changed module.
func (g *Graph) ImportersTransitive(ids []ModuleID) map[ModuleID]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[ModuleID]bool, len(ids))
	queue := make([]ModuleID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for importer := range g.importedBy[id] {
			if seen[importer] {
				continue
			}
			seen[importer] = true
			queue = append(queue, importer)
		}
	}
	return seen
}
