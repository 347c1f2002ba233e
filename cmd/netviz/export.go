package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/netviz/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the stored graph",
	Long: `Projects the configured store and writes it in one of these formats:

  mermaid  Mermaid flowchart (default)
  svg      standalone SVG drawing
  json     full snapshot with positions
  saved    hash-only saved graph

With --name the saved form is also written to the graph directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		if seedPath, _ := cmd.Flags().GetString("seed"); seedPath != "" {
			if _, err := a.applySeed(ctx, seedPath); err != nil {
				return err
			}
		}

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		name, _ := cmd.Flags().GetString("name")

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		snap := a.graph.Snapshot()
		switch strings.ToLower(format) {
		case "mermaid":
			_, err = io.WriteString(w, graph.GenerateMermaid(snap, nil))
		case "svg":
			_, err = io.WriteString(w, graph.GenerateSVG(snap, a.markers))
		case "json":
			err = writeJSON(w, snap)
		case "saved":
			saved, serr := a.graph.SaveGraph(ctx)
			if serr != nil {
				return serr
			}
			if name != "" {
				if err := a.saved.Save(ctx, name, saved); err != nil {
					return err
				}
			}
			err = writeJSON(w, saved)
		default:
			return fmt.Errorf("unknown format %q: supported mermaid, svg, json, saved", format)
		}
		return err
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid, svg, json or saved")
	exportCmd.Flags().StringP("out", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().String("seed", "", "Apply this seed file before exporting")
	exportCmd.Flags().String("name", "", "Also store the saved graph under this name")
}
