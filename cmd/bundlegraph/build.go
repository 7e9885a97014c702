// # cmd/bundlegraph/build.go
package main

import (
	"bundlegraph/internal/core/build"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func buildCmd() *cobra.Command {
	var noWrite bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run one full build and write the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runBuild(cmd.Context(), flags.configPath, !noWrite)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWrite, "no-write", false, "Build without saving records or writing the manifest")
	return cmd
}

// runBuild runs one pass from the persisted records. With write set the
// new records and manifest are saved.
func runBuild(ctx context.Context, configPath string, write bool) (*build.Output, error) {
	var out *build.Output
	err := withSession(ctx, configPath, func(s *session) error {
		var err error
		out, err = s.builder.Build(ctx, nil, nil)
		if err != nil {
			return err
		}
		if write {
			return s.emit(ctx, out.Manifest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func printSummary(w io.Writer, out *build.Output) {
	fmt.Fprintf(w, "Build %s\n", out.PassID)
	fmt.Fprintf(w, "%d modules in %d chunks\n\n", len(out.Result.Modules), len(out.Result.Chunks))

	for _, e := range out.Manifest.Entries {
		names := make([]string, 0, len(e.Group))
		for _, id := range e.Group {
			if c, ok := out.Manifest.Chunk(id); ok {
				names = append(names, c.Name)
			}
		}
		fmt.Fprintf(w, "%-16s %s\n", e.Name, strings.Join(names, ", "))
	}
}
