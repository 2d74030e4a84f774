package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/adapters/fs"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

type fsFixture struct {
	service *core.Service
	repo    *fs.Repository
	notary  *notary.Notary
	codec   core.Codec
}

func newFSFixture(t *testing.T) *fsFixture {
	t.Helper()
	ctx := context.Background()
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)

	repo := fs.NewRepository(fs.Config{Path: t.TempDir(), Codec: c})
	require.NoError(t, repo.Initialize(ctx))

	svc := core.NewService(repo, n, c, core.WithPollInterval(time.Second))
	_, err = svc.PublishCertificate(ctx, n.Certificate())
	require.NoError(t, err)
	return &fsFixture{service: svc, repo: repo, notary: n, codec: c}
}

func TestFSCommitAndRetrieveAwkwardContent(t *testing.T) {
	ctx := context.Background()
	f := newFSFixture(t)

	tests := []struct {
		name    string
		content string
	}{
		{"Leading Newline", "\nstarts with a newline"},
		{"Leading Newlines", "\n\nstarts with newlines"},
		{"Leading Tab", "\tindented\n"},
		{"CRLF", "first\r\nsecond\r\n"},
		{"Trailing Spaces", "line  \nnext \n"},
		{"Invalid UTF-8", "bad \xff\xfe bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := core.Document{
				Type:       "note",
				Tag:        core.NewTag(),
				Version:    core.Version{1},
				Attributes: core.Metadata{"summary": tt.content},
				Content:    tt.content,
			}
			citation, err := f.service.CommitDraft(ctx, doc.ID(), doc)
			require.NoError(t, err)

			// A fresh service reads the stored bytes instead of its cache.
			cold := core.NewService(f.repo, f.notary, f.codec)
			got, err := cold.RetrieveDocument(ctx, citation)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, tt.content, got.Attributes["summary"])
		})
	}
}

func TestFSAwaitMessageReleasesWatch(t *testing.T) {
	ctx := context.Background()
	f := newFSFixture(t)
	svc, repo := f.service, f.repo
	queue := core.NewTag()

	watchers := func() int {
		return repo.State().(fs.RepositoryState).Watchers
	}

	for i := 0; i < 3; i++ {
		done := make(chan *core.Document, 1)
		go func() {
			msg, err := svc.AwaitMessage(ctx, queue)
			assert.NoError(t, err)
			done <- msg
		}()

		require.Eventually(t, func() bool { return watchers() == 1 }, 2*time.Second, 10*time.Millisecond)
		_, err := svc.QueueMessage(ctx, queue, core.Document{Content: "wake up"})
		require.NoError(t, err)

		select {
		case msg := <-done:
			require.NotNil(t, msg)
			assert.Equal(t, "wake up", msg.Content)
		case <-time.After(5 * time.Second):
			t.Fatal("AwaitMessage did not return")
		}
		assert.Eventually(t, func() bool { return watchers() == 0 }, 2*time.Second, 10*time.Millisecond)
	}
}
