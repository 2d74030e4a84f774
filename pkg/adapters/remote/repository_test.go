package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/adapters/memory"
	"github.com/aretw0/nebula/pkg/adapters/remote"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
	"github.com/aretw0/nebula/pkg/server"
)

// setup starts a server over an in-memory repository and returns a client for it.
func setup(t *testing.T) (*remote.Repository, *notary.Notary) {
	t.Helper()
	c := codec.New()
	serverNotary, err := notary.Generate(c)
	require.NoError(t, err)
	s, err := server.New(server.Config{Repository: memory.NewRepository(), Notary: serverNotary, Codec: c})
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	clientNotary, err := notary.Generate(c)
	require.NoError(t, err)
	repo, err := remote.NewRepository(remote.Config{
		URL:         srv.URL,
		Timeout:     2 * time.Second,
		Codec:       c,
		Credentials: clientNotary.Credentials,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo, clientNotary
}

func TestServiceOverRemote(t *testing.T) {
	ctx := context.Background()
	repo, n := setup(t)
	service := core.NewService(repo, n, codec.New())

	_, err := service.PublishCertificate(ctx, n.Certificate())
	require.NoError(t, err)

	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: "over the wire"}
	require.NoError(t, service.SaveDraft(ctx, doc.ID(), doc))

	draft, err := service.RetrieveDraft(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "over the wire", draft.Content)

	citation, err := service.CommitDraft(ctx, doc.ID(), doc)
	require.NoError(t, err)

	got, err := service.RetrieveDocument(ctx, citation)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Seals, 1)

	_, err = service.CommitDraft(ctx, doc.ID(), doc)
	assert.True(t, errors.Is(err, core.ErrAlreadyCommitted), "got %v", err)

	next, err := service.CheckoutDocument(ctx, citation, core.Version{2})
	require.NoError(t, err)
	exists, err := repo.DraftExists(ctx, next.ID())
	require.NoError(t, err)
	assert.True(t, exists)

	queue := core.NewTag()
	for i := 0; i < 3; i++ {
		_, err := service.QueueMessage(ctx, queue, core.Document{Content: "m"})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		msg, err := service.ReceiveMessage(ctx, queue)
		require.NoError(t, err)
		require.NotNil(t, msg)
	}
	msg, err := service.ReceiveMessage(ctx, queue)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestRemoteAbsentIsNil(t *testing.T) {
	ctx := context.Background()
	repo, n := setup(t)
	require.NoError(t, repo.StoreCertificate(ctx, n.Certificate().ID(), n.Certificate()))

	doc, err := repo.FetchDocument(ctx, core.ComposeID(core.NewTag(), core.Version{1}))
	require.NoError(t, err)
	assert.Nil(t, doc)

	ok, err := repo.TypeExists(ctx, core.ComposeID(core.NewTag(), core.Version{1}))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.ListMessages(ctx, string(core.NewTag()))
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
}

func TestRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := remote.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2}
	repo, err := remote.NewRepository(remote.Config{URL: srv.URL, Breaker: &breaker})
	require.NoError(t, err)

	ctx := context.Background()
	id := core.ComposeID(core.NewTag(), core.Version{1})
	for i := 0; i < 3; i++ {
		_, err := repo.FetchDocument(ctx, id)
		assert.True(t, errors.Is(err, core.ErrRepositoryUnavailable), "got %v", err)
	}
	assert.Equal(t, "open", repo.BreakerState())
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	repo, err := remote.NewRepository(remote.Config{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	err = repo.Initialize(context.Background())
	assert.True(t, errors.Is(err, core.ErrRepositoryUnavailable), "got %v", err)
}

func TestNewRepositoryValidatesURL(t *testing.T) {
	_, err := remote.NewRepository(remote.Config{})
	assert.Error(t, err)
	_, err = remote.NewRepository(remote.Config{URL: "not a url"})
	assert.Error(t, err)
}
