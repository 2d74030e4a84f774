package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/core"
)

type countingObserver struct {
	hits, misses, evictions, lost atomic.Int32
	valid, invalid                atomic.Int32
}

func (o *countingObserver) CacheHit(string)  { o.hits.Add(1) }
func (o *countingObserver) CacheMiss(string) { o.misses.Add(1) }
func (o *countingObserver) CacheEvicted()    { o.evictions.Add(1) }
func (o *countingObserver) ClaimLost(string) { o.lost.Add(1) }
func (o *countingObserver) SealsValidated(_ string, ok bool) {
	if ok {
		o.valid.Add(1)
	} else {
		o.invalid.Add(1)
	}
}

func loaderFor(doc core.Document) core.Loader {
	return func(ctx context.Context) (*core.Document, error) {
		d := doc.Clone()
		return &d, nil
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	cache := core.NewCache(0)
	obs := &countingObserver{}
	cache.SetObserver(obs)
	require.Equal(t, core.DefaultCacheCapacity, cache.Capacity())

	ids := make([]string, 0, 65)
	for i := 0; i < 65; i++ {
		doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}}
		ids = append(ids, doc.ID())
		_, err := cache.Fetch(ctx, core.KindDocument, doc.ID(), loaderFor(doc))
		require.NoError(t, err)
	}

	assert.Equal(t, 64, cache.Len())
	assert.False(t, cache.Contains(core.KindDocument, ids[0]), "first insert should be evicted")
	assert.True(t, cache.Contains(core.KindDocument, ids[1]))
	assert.True(t, cache.Contains(core.KindDocument, ids[64]))
	assert.Equal(t, int32(1), obs.evictions.Load())
	assert.Equal(t, int32(65), obs.misses.Load())

	// Reads do not refresh entries.
	_, err := cache.Fetch(ctx, core.KindDocument, ids[1], func(context.Context) (*core.Document, error) {
		t.Fatal("loader must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	extra := core.Document{Tag: core.NewTag(), Version: core.Version{1}}
	_, err = cache.Fetch(ctx, core.KindDocument, extra.ID(), loaderFor(extra))
	require.NoError(t, err)
	assert.False(t, cache.Contains(core.KindDocument, ids[1]))
}

func TestCacheSkipsAbsentAndFailed(t *testing.T) {
	ctx := context.Background()
	cache := core.NewCache(4)

	doc, err := cache.Fetch(ctx, core.KindDocument, "x", func(context.Context) (*core.Document, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, doc)

	boom := errors.New("boom")
	_, err = cache.Fetch(ctx, core.KindDocument, "y", func(context.Context) (*core.Document, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := core.NewCache(4)
	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Attributes: core.Metadata{"k": "v"}}

	got, err := cache.Fetch(ctx, core.KindDocument, doc.ID(), loaderFor(doc))
	require.NoError(t, err)
	got.Attributes["k"] = "mutated"

	again, ok := cache.Lookup(core.KindDocument, doc.ID())
	require.True(t, ok)
	assert.Equal(t, "v", again.Attributes["k"])
}

func TestCacheConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	cache := core.NewCache(8)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: fmt.Sprint(i)}
			_, err := cache.Fetch(ctx, core.KindDocument, doc.ID(), loaderFor(doc))
			assert.NoError(t, err)
		}(i)
	}
	// Concurrent fetches of one key leave a single resident entry.
	shared := core.Document{Tag: core.NewTag(), Version: core.Version{1}}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Fetch(ctx, core.KindType, shared.ID(), loaderFor(shared))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 8)
	count := 0
	for _, k := range cache.Keys() {
		if k == core.KindType+"/"+shared.ID() {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}
