package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/metrics"
	"github.com/aretw0/nebula/pkg/notary"
	"github.com/aretw0/nebula/pkg/server"
)

var (
	listenAddr string
	anonymous  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repository over HTTP",
	Long: `Expose the configured repository over HTTP so that remote clients
can use it through the remote adapter. Prometheus metrics are served on
/metrics. Requests must carry credentials notarized by a published
certificate unless --anonymous is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(resolveRoot())
		if listenAddr == "" {
			listenAddr = cfg.Listen
		}

		c := codec.New()
		var n core.Notary
		if !anonymous {
			loaded, err := notary.Load(cfg.KeyFile, c)
			if err != nil {
				fatal("Failed to load notary", err)
			}
			n = loaded
		}

		repo, err := nebula.Init(cfg.Location(), append(cfg.Options(), nebula.WithCodec(c), nebula.WithLogger(slog.Default()))...)
		if err != nil {
			fatal("Failed to open repository", err)
		}

		s, err := server.New(server.Config{
			Repository: repo,
			Notary:     n,
			Codec:      c,
			Logger:     slog.Default(),
			Metrics:    metrics.NewCollector("nebula"),
			Anonymous:  anonymous,
		})
		if err != nil {
			fatal("Failed to create server", err)
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Serving", cfg.Location(), "on", listenAddr)
		if err := s.Run(ctx, listenAddr); err != nil {
			fatal("Server stopped", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default from nebula.yaml)")
	serveCmd.Flags().BoolVar(&anonymous, "anonymous", false, "Accept requests without credentials")
}
