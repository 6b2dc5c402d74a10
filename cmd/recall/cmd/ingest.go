package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlab/recall/internal/store"
)

// chunkFile is the JSON ingestion format: an array of pre-chunked
// content. Vectors are optional; missing ones are embedded on ingest.
type chunkFile []struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id"`
	Text        string            `json:"text"`
	Vector      []float32         `json:"vector,omitempty"`
	StartOffset float64           `json:"start_offset"`
	EndOffset   float64           `json:"end_offset"`
	Unit        string            `json:"unit"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// newIngestCmd creates the ingest command.
func newIngestCmd() *cobra.Command {
	var removeSource string

	cmd := &cobra.Command{
		Use:   "ingest [chunks.json]",
		Short: "Ingest a chunk file, or remove a source",
		Long: `Ingest reads a JSON array of pre-chunked content, embeds any chunks
lacking vectors, and indexes them for retrieval. With --remove-source,
deletes every chunk of that source instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if removeSource != "" {
				if err := app.pipeline.RemoveSource(ctx, removeSource); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", removeSource)
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("a chunk file is required unless --remove-source is set")
			}

			chunks, err := readChunkFile(args[0])
			if err != nil {
				return err
			}

			result, err := app.pipeline.Ingest(ctx, chunks)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks (%d failed)\n",
				result.Ingested, len(result.Failed))
			for _, f := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", f.ID, f.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&removeSource, "remove-source", "", "Remove all chunks for the given source id")
	return cmd
}

func readChunkFile(path string) ([]*store.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk file: %w", err)
	}

	var file chunkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chunk file: %w", err)
	}

	chunks := make([]*store.Chunk, len(file))
	for i, c := range file {
		unit := store.Unit(c.Unit)
		if unit == "" {
			unit = store.UnitChars
		}
		chunks[i] = &store.Chunk{
			ID:          c.ID,
			SourceID:    c.SourceID,
			Text:        c.Text,
			Vector:      c.Vector,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Unit:        unit,
			Metadata:    c.Metadata,
		}
	}
	return chunks, nil
}
