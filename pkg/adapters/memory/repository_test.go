package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/adapters/memory"
	"github.com/aretw0/nebula/pkg/core"
)

func TestCommittedEntriesAreWriteOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: "a"}

	require.NoError(t, repo.StoreDocument(ctx, doc.ID(), doc))
	err := repo.StoreDocument(ctx, doc.ID(), doc)
	assert.True(t, errors.Is(err, core.ErrAlreadyExists))

	got, err := repo.FetchDocument(ctx, doc.ID())
	require.NoError(t, err)
	got.Content = "mutated"

	again, err := repo.FetchDocument(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", again.Content, "fetch must return a copy")
}

func TestQueueEntries(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	queue := string(core.NewTag())

	ok, err := repo.QueueExists(ctx, queue)
	require.NoError(t, err)
	assert.False(t, ok)

	msg := core.Document{Tag: core.NewTag(), Version: core.Version{1}}
	require.NoError(t, repo.QueueMessage(ctx, queue, string(msg.Tag), msg))
	assert.True(t, errors.Is(repo.QueueMessage(ctx, queue, string(msg.Tag), msg), core.ErrAlreadyExists))

	names, err := repo.ListMessages(ctx, queue)
	require.NoError(t, err)
	assert.Equal(t, []string{string(msg.Tag)}, names)

	require.NoError(t, repo.DeleteMessage(ctx, queue, string(msg.Tag)))
	assert.True(t, errors.Is(repo.DeleteMessage(ctx, queue, string(msg.Tag)), core.ErrNotFound))

	missing, err := repo.FetchMessage(ctx, queue, string(msg.Tag))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
