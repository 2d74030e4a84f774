package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/nebula"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
)

var (
	verbose     bool
	rootDir     string
	adapterName string
	remoteURL   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nebula",
	Short: "A notarized, versioned document store with message queues",
	Long: `Nebula manages versioned documents sealed with ed25519 signatures.
Drafts are mutable, committed documents are immutable, and every retrieval
re-validates the seal chain. Queues are built on the same storage.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Repository root (default: nearest directory holding .nebula or nebula.yaml)")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", "Storage adapter: fs, memory or remote (overrides nebula.yaml)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "url", "", "Server URL for the remote adapter (overrides nebula.yaml)")
}

// resolveRoot returns --root, the nearest marked ancestor of the working directory, or the working directory.
func resolveRoot() string {
	if rootDir != "" {
		return rootDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		fatal("Failed to get CWD", err)
	}
	if root, err := nebula.FindRoot(cwd); err == nil {
		return root
	}
	return cwd
}

// loadConfig reads nebula.yaml at root and applies the command line overrides.
func loadConfig(root string) nebula.Config {
	cfg, err := nebula.LoadConfig(root)
	if err != nil {
		fatal("Failed to load configuration", err)
	}
	if adapterName != "" {
		cfg.Adapter = adapterName
	}
	if remoteURL != "" {
		cfg.URL = remoteURL
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration", err)
	}
	return cfg
}

// openService builds the service described by the configuration.
func openService(extra ...nebula.Option) (*core.Service, nebula.Config) {
	cfg := loadConfig(resolveRoot())
	opts := append(cfg.Options(), nebula.WithLogger(slog.Default()))
	opts = append(opts, extra...)
	svc, err := nebula.New(cfg.Location(), opts...)
	if err != nil {
		fatal("Failed to open repository", err)
	}
	return svc, cfg
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readDocument decodes a document from path, or from stdin when path is "-".
// Tag and version may be omitted; the command fills them in.
func readDocument(path string) core.Document {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		fatal("Failed to read document", err)
	}
	var doc core.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		fatal("Failed to decode document", err)
	}
	return doc
}

// printDocument writes doc to stdout in its wire notation.
func printDocument(doc *core.Document) {
	data, err := codec.New().Encode(*doc)
	if err != nil {
		fatal("Failed to encode document", err)
	}
	os.Stdout.Write(data)
}
