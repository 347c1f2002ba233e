package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/netviz/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [SEED]",
	Short: "Summarize the stored graph",
	Long: `Projects the configured store, optionally applying a seed file first, and
prints its nodes, links and groups. On a terminal the summary is rendered as
styled markdown; otherwise plain markdown is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			if _, err := a.applySeed(context.Background(), args[0]); err != nil {
				return err
			}
		}

		md := tui.SummaryMarkdown(a.graph.Snapshot())
		plain, _ := cmd.Flags().GetBool("plain")
		if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Print(md)
			return nil
		}

		tui.PrintBanner(os.Stdout)
		out, err := tui.NewRenderer()(md)
		if err != nil {
			out = md
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("plain", false, "Print raw markdown even on a terminal")
}
