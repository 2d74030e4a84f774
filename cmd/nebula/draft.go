package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula/pkg/core"
)

var (
	draftFile  string
	commitFile string
	commitType bool
)

var saveCmd = &cobra.Command{
	Use:   "save [id]",
	Short: "Create or replace a draft",
	Long: `Save the document read from --file ("-" for stdin) as a draft.
Without an id the document's own tag and version are used; a document
with no tag starts a fresh lineage at v1.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc := readDocument(draftFile)
		var id string
		if len(args) == 1 {
			id = args[0]
		} else {
			if doc.Tag == "" {
				doc.Tag = core.NewTag()
			}
			if len(doc.Version) == 0 {
				doc.Version = core.Version{1}
			}
			id = doc.ID()
		}

		svc, _ := openService()
		if err := svc.SaveDraft(context.Background(), id, doc); err != nil {
			fatal("Failed to save draft", err)
		}
		fmt.Printf("Draft '%s' saved.\n", id)
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft [id]",
	Short: "Print a draft",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()
		draft, err := svc.RetrieveDraft(context.Background(), args[0])
		if err != nil {
			fatal("Failed to retrieve draft", err)
		}
		if draft == nil {
			fatal("Failed to retrieve draft", fmt.Errorf("%w: %s", core.ErrNotFound, args[0]))
		}
		printDocument(draft)
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard [id]",
	Short: "Discard a draft",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()
		if err := svc.DiscardDraft(context.Background(), args[0]); err != nil {
			fatal("Failed to discard draft", err)
		}
		fmt.Printf("Draft '%s' discarded.\n", args[0])
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit [id]",
	Short: "Notarize a draft as an immutable document",
	Long: `Seal and commit the draft stored under id, or the document read
from --file. With --type the document is committed as a type definition.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		svc, _ := openService()
		ctx := context.Background()

		var doc core.Document
		if commitFile != "" {
			doc = readDocument(commitFile)
		} else {
			draft, err := svc.RetrieveDraft(ctx, id)
			if err != nil {
				fatal("Failed to retrieve draft", err)
			}
			if draft == nil {
				fatal("Nothing to commit", fmt.Errorf("%w: draft %s", core.ErrNotFound, id))
			}
			doc = *draft
		}

		var (
			citation core.Citation
			err      error
		)
		if commitType {
			citation, err = svc.CommitType(ctx, id, doc)
			if err == nil && commitFile == "" {
				err = svc.DiscardDraft(ctx, id)
			}
		} else {
			citation, err = svc.CommitDraft(ctx, id, doc)
		}
		if err != nil {
			fatal("Failed to commit", err)
		}
		fmt.Printf("Committed %s (digest %s).\n", citation, citation.Digest)
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(commitCmd)

	saveCmd.Flags().StringVarP(&draftFile, "file", "f", "-", "Document file (\"-\" for stdin)")
	commitCmd.Flags().StringVarP(&commitFile, "file", "f", "", "Commit this document instead of the stored draft")
	commitCmd.Flags().BoolVar(&commitType, "type", false, "Commit as a type definition")
}
