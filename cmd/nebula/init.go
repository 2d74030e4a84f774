package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a nebula repository and notary",
	Long: `Initialize a Nebula repository in the current directory (or --root).
A notary key and self-signed certificate are generated unless the key file
already exists, and the certificate is published to the repository.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		root := rootDir
		if root == "" {
			cwd, err := os.Getwd()
			if err != nil {
				fatal("Failed to get CWD", err)
			}
			root = cwd
		}
		cfg := loadConfig(root)

		c := codec.New()
		var n *notary.Notary
		if _, err := os.Stat(cfg.KeyFile); err == nil {
			if n, err = notary.Load(cfg.KeyFile, c); err != nil {
				fatal("Failed to load notary", err)
			}
			slog.Debug("reusing notary key", "path", cfg.KeyFile)
		} else {
			if n, err = notary.Generate(c); err != nil {
				fatal("Failed to generate notary", err)
			}
			if err := n.Save(cfg.KeyFile); err != nil {
				fatal("Failed to save notary key", err)
			}
		}

		opts := append(cfg.Options(), nebula.WithNotary(n), nebula.WithCodec(c), nebula.WithLogger(slog.Default()))
		svc, err := nebula.New(cfg.Location(), opts...)
		if err != nil {
			fatal("Failed to initialize repository", err)
		}

		citation, err := svc.PublishCertificate(context.Background(), n.Certificate())
		if err != nil && !errors.Is(err, core.ErrAlreadyExists) {
			fatal("Failed to publish certificate", err)
		}
		if err != nil {
			citation = n.Citation()
		}

		fmt.Println("Initialized Nebula repository in", cfg.Location())
		fmt.Println("Certificate:", citation.String())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
