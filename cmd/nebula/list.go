package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula/pkg/adapters/fs"
	"github.com/aretw0/nebula/pkg/core"
)

var (
	listKind string
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List stored entries matching a glob pattern",
	Long: `List the identifiers of a kind (document, draft, type, certificate)
matching a doublestar pattern such as "BXC*v1.*". Requires the fs adapter.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}

		svc, _ := openService()
		repo, ok := svc.Repository().(*fs.Repository)
		if !ok {
			fatal("Failed to list", fmt.Errorf("%w: listing requires the fs adapter", core.ErrInvalidParameter))
		}

		listings, err := repo.List(context.Background(), listKind, pattern)
		if err != nil {
			fatal("Failed to list", err)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(listings); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		for _, l := range listings {
			if l.Type != "" {
				fmt.Printf("%s\t%s\n", l.Citation, l.Type)
				continue
			}
			fmt.Println(l.Citation)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listKind, "kind", core.KindDocument, "Kind to list: document, draft, type or certificate")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
