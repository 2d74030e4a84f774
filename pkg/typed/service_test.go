package typed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/adapters/memory"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
	"github.com/aretw0/nebula/pkg/typed"
)

type UserProfile struct {
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Age   int      `json:"age,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

func setupService(t *testing.T) *typed.Service[UserProfile] {
	t.Helper()
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)
	svc := core.NewService(memory.NewRepository(), n, c)
	_, err = svc.PublishCertificate(context.Background(), n.Certificate())
	require.NoError(t, err)
	return typed.NewService[UserProfile](svc)
}

func TestTypedLifecycle(t *testing.T) {
	users := setupService(t)
	ctx := context.Background()

	alice := users.New("user", UserProfile{Name: "Alice", Email: "alice@example.com", Age: 30, Tags: []string{"admin"}})
	alice.Content = "Alice's Profile"
	require.NoError(t, alice.Save(ctx))

	draft, err := users.Draft(ctx, alice.ID())
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, alice.Data, draft.Data)

	citation, err := users.Commit(ctx, draft)
	require.NoError(t, err)

	got, err := users.Retrieve(ctx, citation)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user", got.Type)
	assert.Equal(t, "Alice's Profile", got.Content)
	assert.Equal(t, alice.Data, got.Data)

	next, err := users.Checkout(ctx, citation, core.Version{2})
	require.NoError(t, err)
	require.NotNil(t, next.Previous)
	assert.True(t, next.Previous.Matches(citation))

	next.Data.Age = 31
	require.NoError(t, next.Save(ctx))
	updated, err := users.Commit(ctx, next)
	require.NoError(t, err)

	got, err = users.Retrieve(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 31, got.Data.Age)
}

func TestTypedAbsent(t *testing.T) {
	users := setupService(t)
	ctx := context.Background()

	got, err := users.Retrieve(ctx, core.Citation{Tag: core.NewTag(), Version: core.Version{1}})
	require.NoError(t, err)
	assert.Nil(t, got)

	draft, err := users.Draft(ctx, core.ComposeID(core.NewTag(), core.Version{1}))
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestDetachedModel(t *testing.T) {
	doc := &typed.DocumentModel[UserProfile]{Tag: core.NewTag(), Version: core.Version{1}}
	assert.Error(t, doc.Save(context.Background()))
}

func TestNonObjectData(t *testing.T) {
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)
	names := typed.NewService[[]string](core.NewService(memory.NewRepository(), n, c))

	err = names.Save(context.Background(), names.New("list", []string{"a", "b"}))
	assert.True(t, errors.Is(err, core.ErrInvalidParameter), "got %v", err)
}
