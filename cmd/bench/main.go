package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/nebula"
	"github.com/aretw0/nebula/pkg/adapters/fs"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

func main() {
	count := flag.Int("count", 1000, "Number of documents and messages to generate")
	workers := flag.Int("workers", 8, "Concurrent queue receivers")
	keep := flag.Bool("keep", false, "Keep the benchmark repository after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "nebula_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	n, err := notary.Generate(codec.New())
	if err != nil {
		panic(err)
	}
	open := func() *core.Service {
		svc, err := nebula.New(benchDir, nebula.WithNotary(n), nebula.WithLogger(logger), nebula.WithDevSafety(false))
		if err != nil {
			panic(err)
		}
		return svc
	}

	service := open()
	ctx := context.Background()
	if _, err := service.PublishCertificate(ctx, n.Certificate()); err != nil {
		panic(err)
	}

	fmt.Printf("Committing %d documents in %s...\n", *count, benchDir)
	start := time.Now()
	citations := make([]core.Citation, 0, *count)
	for i := 0; i < *count; i++ {
		doc := core.Document{
			Type:       "note",
			Tag:        core.NewTag(),
			Version:    core.Version{1},
			Attributes: core.Metadata{"title": fmt.Sprintf("Note %d", i)},
			Content:    fmt.Sprintf("Benchmark note %d", i),
		}
		citation, err := service.CommitDraft(ctx, doc.ID(), doc)
		if err != nil {
			panic(err)
		}
		citations = append(citations, citation)
	}
	commitDuration := time.Since(start)

	// Run 1: Cold (validates every seal chain)
	start = time.Now()
	for _, c := range citations {
		if _, err := service.RetrieveDocument(ctx, c); err != nil {
			panic(err)
		}
	}
	coldRetrieve := time.Since(start)

	// Run 2: Warm (only the last cache capacity entries stay resident)
	start = time.Now()
	for _, c := range citations[len(citations)-min(len(citations), core.DefaultCacheCapacity):] {
		if _, err := service.RetrieveDocument(ctx, c); err != nil {
			panic(err)
		}
	}
	warmRetrieve := time.Since(start)

	// Listing: the first run fills the index, a fresh instance reads it back.
	coldList, listed := listDocuments(ctx, service)
	warmList, _ := listDocuments(ctx, open())

	queue := core.NewTag()
	for i := 0; i < *count; i++ {
		if _, err := service.QueueMessage(ctx, queue, core.Document{Content: fmt.Sprintf("message %d", i)}); err != nil {
			panic(err)
		}
	}

	fmt.Printf("Draining %d messages with %d receivers...\n", *count, *workers)
	start = time.Now()
	var (
		seen       sync.Map
		received   atomic.Int64
		duplicates atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *workers; w++ {
		g.Go(func() error {
			for {
				msg, err := service.ReceiveMessage(gctx, queue)
				if err != nil {
					return err
				}
				if msg == nil {
					return nil
				}
				received.Add(1)
				if _, loaded := seen.LoadOrStore(msg.Tag, true); loaded {
					duplicates.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}
	drainDuration := time.Since(start)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d documents):\n", *count)
	fmt.Printf("  Commit:         %v\n", commitDuration)
	fmt.Printf("  Retrieve cold:  %v\n", coldRetrieve)
	fmt.Printf("  Retrieve warm:  %v\n", warmRetrieve)
	fmt.Printf("  List cold:      %v (Items: %d)\n", coldList, listed)
	fmt.Printf("  List warm:      %v\n", warmList)
	fmt.Printf("  Drain:          %v (Received: %d, Duplicates: %d)\n", drainDuration, received.Load(), duplicates.Load())
	fmt.Printf("--------------------------------------------------\n")
}

func listDocuments(ctx context.Context, svc *core.Service) (time.Duration, int) {
	repo, ok := svc.Repository().(*fs.Repository)
	if !ok {
		panic("benchmark requires the fs adapter")
	}
	start := time.Now()
	listings, err := repo.List(ctx, core.KindDocument, "")
	if err != nil {
		panic(err)
	}
	return time.Since(start), len(listings)
}
