package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aretw0/netviz/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Apply seed files to the configured store",
	Long: `Parses each HCL or JSON seed file and replays its nodes, facts and groups
into the graph. Facts already in the store are reported as skipped, so an import
can be repeated safely.

With --saved, each FILE is instead a graph previously written by
"netviz export --format saved" and is restored by name from the graph directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		saved, _ := cmd.Flags().GetBool("saved")
		if saved {
			for _, name := range args {
				g, err := a.saved.Load(ctx, name)
				if err != nil {
					return err
				}
				if err := a.graph.RestoreGraph(ctx, g); err != nil {
					return err
				}
				fmt.Printf("%s restored %s (%d triplets)\n", tui.StatusIcon(true), name, len(g.Triplets))
			}
			return a.saveGraphFile(ctx)
		}

		var rows [][]string
		failed := false
		for _, path := range args {
			r, err := a.applySeed(ctx, path)
			if err != nil {
				failed = true
				fmt.Fprintf(os.Stderr, "%s %v\n", tui.StatusIcon(false), err)
			}
			rows = append(rows, []string{
				tui.StatusIcon(err == nil), path,
				strconv.Itoa(r.Nodes), strconv.Itoa(r.Facts), strconv.Itoa(r.Skipped), strconv.Itoa(r.Merges),
			})
		}
		tui.Table(os.Stdout, []string{"", "FILE", "NODES", "FACTS", "SKIPPED", "MERGES"}, rows)

		if err := a.saveGraphFile(ctx); err != nil {
			return err
		}
		if failed {
			return errors.New("some seed files failed to import")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("saved", false, "Treat arguments as saved graph names")
}
