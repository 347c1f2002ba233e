package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/netviz"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of netviz",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netviz version %s\n", strings.TrimSpace(netviz.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
