// # cmd/bundlegraph/why.go
package main

import (
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/graph"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func whyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "why <module>",
		Short: "Explain why a module is bundled and where it lands",
		Long: `Build in memory, then print the import chain from each entry to the
module, the chunks that carry it, and any static import cycle it is on.
The module is named by its project-relative identity, e.g. src/util.js.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags.configPath, func(s *session) error {
				out, err := s.builder.Build(cmd.Context(), nil, nil)
				if err != nil {
					return err
				}
				return explain(cmd.OutOrStdout(), s.builder.Graph(), out.Result, graph.ParseIdentity(args[0]))
			})
		},
	}
}

func explain(w io.Writer, g *graph.Graph, res *chunk.Result, target graph.Identity) error {
	mod, ok := g.Lookup(target)
	if !ok {
		return fmt.Errorf("module %s is not in the graph", target)
	}
	name := func(id graph.ModuleID) string {
		if m, ok := g.Module(id); ok {
			return m.Identity.String()
		}
		return fmt.Sprintf("#%d", id)
	}

	fmt.Fprintf(w, "%s\n\n", target)

	reached := false
	for _, c := range res.Chunks {
		if c.Kind != chunk.KindEntry {
			continue
		}
		for _, root := range res.Seeds[c.Name] {
			path, ok := g.FindImportChain(root, mod.ID)
			if !ok {
				continue
			}
			reached = true
			hops := make([]string, len(path))
			for i, id := range path {
				hops[i] = name(id)
			}
			fmt.Fprintf(w, "entry %s: %s\n", c.Entry, strings.Join(hops, " -> "))
		}
	}
	if !reached {
		fmt.Fprintln(w, "not reachable from any entry (pinned)")
	}

	holders := res.ChunksOf(mod.ID)
	names := make([]string, len(holders))
	for i, c := range holders {
		names[i] = fmt.Sprintf("%s (#%s)", c.Name, c.ID)
	}
	fmt.Fprintf(w, "chunks: %s\n", strings.Join(names, ", "))

	for _, cycle := range g.DetectCycles() {
		for _, id := range cycle {
			if id != mod.ID {
				continue
			}
			hops := make([]string, 0, len(cycle)+1)
			for _, cid := range cycle {
				hops = append(hops, name(cid))
			}
			hops = append(hops, name(cycle[0]))
			fmt.Fprintf(w, "cycle: %s\n", strings.Join(hops, " -> "))
			break
		}
	}
	return nil
}
