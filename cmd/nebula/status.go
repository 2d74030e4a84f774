package main

import (
	"encoding/json"
	"os"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of the service, cache and repository as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()

		state := map[string]any{
			svc.ComponentType():         svc.State(),
			svc.Cache().ComponentType(): svc.Cache().State(),
		}
		if comp, ok := svc.Repository().(introspection.Component); ok {
			if intro, ok := comp.(introspection.Introspectable); ok {
				state[comp.ComponentType()] = intro.State()
			}
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(state); err != nil {
			fatal("Failed to encode JSON", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
