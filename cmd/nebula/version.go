package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of nebula",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nebula version %s\n", strings.TrimSpace(nebula.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
