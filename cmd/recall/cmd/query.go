package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxlab/recall/internal/search"
)

// newQueryCmd creates the query command.
func newQueryCmd() *cobra.Command {
	var (
		sources    []string
		timeStart  float64
		timeEnd    float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve and assemble context for a question",
		Long: `Query runs the full retrieval pipeline and prints the assembled
context bundle: ranked excerpts with locators, the confidence value,
the escalation decision, and the reason trail.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			query := search.Query{
				Text:         strings.Join(args, " "),
				SourceFilter: sources,
			}
			if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
				query.TimeRange = &search.TimeRange{Start: timeStart, End: timeEnd}
			}

			bundle, err := app.engine.RetrieveAndAssemble(ctx, query)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printBundleJSON(cmd, bundle)
			}
			printBundle(cmd, bundle)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict retrieval to the given source ids")
	cmd.Flags().Float64Var(&timeStart, "from", 0, "Time range start (seconds) for time-coded content")
	cmd.Flags().Float64Var(&timeEnd, "to", 0, "Time range end (seconds) for time-coded content")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the bundle as JSON")

	return cmd
}

func printBundle(cmd *cobra.Command, bundle *search.ContextBundle) {
	out := cmd.OutOrStdout()

	if len(bundle.Excerpts) == 0 {
		fmt.Fprintln(out, "No context found.")
	}
	for i, ex := range bundle.Excerpts {
		fmt.Fprintf(out, "%d. [%s] %s\n", i+1, ex.Locator, ex.Text)
	}

	conf := bundle.Confidence
	fmt.Fprintf(out, "\nConfidence: %.2f  Escalate: %v\n", conf.Value, conf.Escalate)
	for _, reason := range conf.Reasons {
		fmt.Fprintf(out, "  - %s\n", reason)
	}
}

func printBundleJSON(cmd *cobra.Command, bundle *search.ContextBundle) error {
	type excerptOut struct {
		ChunkID  string `json:"chunk_id"`
		SourceID string `json:"source_id"`
		Locator  string `json:"locator"`
		Text     string `json:"text"`
	}
	type bundleOut struct {
		Excerpts   []excerptOut            `json:"excerpts"`
		Confidence search.ConfidenceResult `json:"confidence"`
	}

	outBundle := bundleOut{
		Excerpts:   make([]excerptOut, len(bundle.Excerpts)),
		Confidence: bundle.Confidence,
	}
	for i, ex := range bundle.Excerpts {
		outBundle.Excerpts[i] = excerptOut{
			ChunkID:  ex.Chunk.ID,
			SourceID: ex.Chunk.SourceID,
			Locator:  ex.Locator,
			Text:     ex.Text,
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outBundle)
}
