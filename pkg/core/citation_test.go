package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/core"
)

func TestTag(t *testing.T) {
	tag := core.NewTag()
	assert.Len(t, string(tag), 26)
	assert.NotEqual(t, tag, core.NewTag())

	parsed, err := core.ParseTag(tag.String())
	require.NoError(t, err)
	assert.Equal(t, tag, parsed)

	_, err = core.ParseTag("not-a-tag")
	assert.True(t, errors.Is(err, core.ErrMalformedIdentifier))
}

func TestParseCitation(t *testing.T) {
	tag := core.NewTag()
	want := core.Citation{Tag: tag, Version: core.Version{1, 2}}

	for _, form := range []string{
		"#" + string(tag) + "/v1.2",
		string(tag) + "/v1.2",
		string(tag) + "v1.2",
	} {
		t.Run(form, func(t *testing.T) {
			c, err := core.ParseCitation(form)
			require.NoError(t, err)
			assert.True(t, want.Matches(c))
		})
	}

	assert.Equal(t, "#"+string(tag)+"/v1.2", want.String())
	assert.Equal(t, string(tag)+"v1.2", want.ID())

	_, err := core.ParseCitation(string(tag))
	assert.True(t, errors.Is(err, core.ErrMalformedIdentifier))
}

func TestParseID(t *testing.T) {
	tag := core.NewTag()
	id := core.ComposeID(tag, core.Version{4})

	gotTag, gotVersion, err := core.ParseID(id)
	require.NoError(t, err)
	assert.Equal(t, tag, gotTag)
	assert.Equal(t, core.Version{4}, gotVersion)

	for _, bad := range []string{"", "v1", "../v1", string(tag)} {
		_, _, err := core.ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestDocumentSeals(t *testing.T) {
	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Attributes: core.Metadata{"k": "v"}}
	sealed := doc.WithSeal(core.Seal{Signature: "a"}).WithSeal(core.Seal{Signature: "b"})
	assert.Nil(t, doc.Seals, "WithSeal must not modify the receiver")

	last, ok := sealed.LastSeal()
	require.True(t, ok)
	assert.Equal(t, "b", last.Signature)

	stripped := sealed.WithoutLastSeal().WithoutLastSeal()
	assert.Nil(t, stripped.Seals)
	assert.Equal(t, doc, stripped)
	assert.Len(t, sealed.Seals, 2)

	clone := sealed.Clone()
	clone.Attributes["k"] = "changed"
	assert.Equal(t, "v", sealed.Attributes["k"])
}
