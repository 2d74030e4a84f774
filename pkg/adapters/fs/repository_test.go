package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/adapters/fs"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
)

// setupRepo creates an initialized repository under a fresh temp dir.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "repo")
	cfg := fs.Config{
		Path:  root,
		Codec: codec.New(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo := fs.NewRepository(cfg)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo, root
}

func newDoc(content string) core.Document {
	return core.Document{
		Type:    "note",
		Tag:     core.NewTag(),
		Version: core.Version{1},
		Content: content,
	}
}

func TestInitialize(t *testing.T) {
	t.Run("Creates Layout", func(t *testing.T) {
		_, root := setupRepo(t)

		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

		for _, dir := range []string{".nebula", fs.CertificatesDir, fs.DraftsDir, fs.DocumentsDir, fs.TypesDir, fs.QueuesDir} {
			info, err := os.Stat(filepath.Join(root, dir))
			require.NoError(t, err, dir)
			assert.True(t, info.IsDir())
		}
	})

	t.Run("Fails if MustExist and Missing", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{
			Path:      filepath.Join(t.TempDir(), "missing"),
			MustExist: true,
			Codec:     codec.New(),
		})
		assert.Error(t, repo.Initialize(context.Background()))
	})
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)
	doc := newDoc("hello")
	id := doc.ID()

	exists, err := repo.DocumentExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	missing, err := repo.FetchDocument(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.StoreDocument(ctx, id, doc))

	exists, err = repo.DocumentExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.FetchDocument(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, doc.Tag, got.Tag)

	info, err := os.Stat(filepath.Join(root, fs.DocumentsDir, id+fs.Extension))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0400), info.Mode().Perm())

	t.Run("Never Overwrites", func(t *testing.T) {
		other := doc.Clone()
		other.Content = "changed"
		err := repo.StoreDocument(ctx, id, other)
		assert.True(t, errors.Is(err, core.ErrAlreadyExists), "got %v", err)

		got, err := repo.FetchDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Content)
	})

	t.Run("Rejects Malformed Identifiers", func(t *testing.T) {
		_, err := repo.FetchDocument(ctx, "../../etc/passwd")
		assert.True(t, errors.Is(err, core.ErrMalformedIdentifier), "got %v", err)
	})
}

func TestCertificatesAndTypes(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	cert := newDoc("")
	cert.Type = core.TypeCertificate
	require.NoError(t, repo.StoreCertificate(ctx, cert.ID(), cert))
	ok, err := repo.CertificateExists(ctx, cert.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, errors.Is(repo.StoreCertificate(ctx, cert.ID(), cert), core.ErrAlreadyExists))

	typ := newDoc("schema")
	require.NoError(t, repo.StoreType(ctx, typ.ID(), typ))
	got, err := repo.FetchType(ctx, typ.ID())
	require.NoError(t, err)
	assert.Equal(t, "schema", got.Content)
	ok, err = repo.TypeExists(ctx, typ.ID())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDrafts(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)
	draft := newDoc("v1")
	id := draft.ID()

	require.NoError(t, repo.StoreDraft(ctx, id, draft))
	info, err := os.Stat(filepath.Join(root, fs.DraftsDir, id+fs.Extension))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	draft.Content = "v2"
	require.NoError(t, repo.StoreDraft(ctx, id, draft))

	got, err := repo.FetchDraft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)

	require.NoError(t, repo.DeleteDraft(ctx, id))
	ok, err := repo.DraftExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent draft is not an error.
	assert.NoError(t, repo.DeleteDraft(ctx, id))
}

func TestQueues(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	queue := string(core.NewTag())

	ok, err := repo.QueueExists(ctx, queue)
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := repo.ListMessages(ctx, queue)
	require.NoError(t, err)
	assert.Empty(t, names)

	name := string(core.NewTag())
	require.NoError(t, repo.QueueMessage(ctx, queue, name, newDoc("m1")))

	ok, err = repo.QueueExists(ctx, queue)
	require.NoError(t, err)
	assert.True(t, ok)

	err = repo.QueueMessage(ctx, queue, name, newDoc("dup"))
	assert.True(t, errors.Is(err, core.ErrAlreadyExists), "got %v", err)

	names, err = repo.ListMessages(ctx, queue)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	msg, err := repo.FetchMessage(ctx, queue, name)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.Content)

	require.NoError(t, repo.DeleteMessage(ctx, queue, name))
	err = repo.DeleteMessage(ctx, queue, name)
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	require.NoError(t, repo.DeleteQueue(ctx, queue))
	ok, err = repo.QueueExists(ctx, queue)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMessageRace(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	queue := string(core.NewTag())
	name := string(core.NewTag())
	require.NoError(t, repo.QueueMessage(ctx, queue, name, newDoc("contended")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.DeleteMessage(ctx, queue, name); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	_, root := setupRepo(t)

	repo := fs.NewRepository(fs.Config{Path: root, ReadOnly: true, Codec: codec.New()})
	require.NoError(t, repo.Initialize(ctx))

	doc := newDoc("x")
	assert.True(t, errors.Is(repo.StoreDocument(ctx, doc.ID(), doc), core.ErrReadOnly))
	assert.True(t, errors.Is(repo.StoreDraft(ctx, doc.ID(), doc), core.ErrReadOnly))
	assert.True(t, errors.Is(repo.CreateQueue(ctx, string(core.NewTag())), core.ErrReadOnly))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)

	a := newDoc("a")
	b := newDoc("b")
	b.Type = "invoice"
	require.NoError(t, repo.StoreDocument(ctx, a.ID(), a))
	require.NoError(t, repo.StoreDocument(ctx, b.ID(), b))

	all, err := repo.List(ctx, core.KindDocument, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := repo.List(ctx, core.KindDocument, string(b.Tag)+"*")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, b.ID(), only[0].Citation.ID())
	assert.Equal(t, "invoice", only[0].Type)

	_, err = os.Stat(filepath.Join(root, ".nebula", "index.json"))
	assert.NoError(t, err, "index should be persisted")

	state := repo.State().(fs.RepositoryState)
	assert.Equal(t, 2, state.IndexSize)
	assert.NotNil(t, state.LastListing)

	_, err = repo.List(ctx, "bogus", "")
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
}
