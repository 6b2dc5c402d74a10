package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the stats command.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chunks:         %d\n", app.catalog.Count())
			fmt.Fprintf(out, "Embedding:      %s (%d dims)\n", app.embedder.ModelName(), app.embedder.Dimensions())
			fmt.Fprintf(out, "Sparse backend: %s\n", app.cfg.Sparse.Backend)
			fmt.Fprintf(out, "Data dir:       %s\n", app.cfg.Storage.DataDir)
			return nil
		},
	}
}
