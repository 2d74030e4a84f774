package notary_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

func TestGenerate(t *testing.T) {
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)

	cert := n.Certificate()
	assert.Equal(t, core.TypeCertificate, cert.Type)
	assert.Equal(t, notary.Algorithm, cert.Attributes[notary.AlgorithmKey])
	require.Len(t, cert.Seals, 1)
	assert.Equal(t, cert.ID(), cert.Seals[0].Certificate.ID(), "certificate must be self-signed")

	digest, err := core.Digest(c, cert)
	require.NoError(t, err)
	assert.Equal(t, digest, n.Citation().Digest)

	// The self seal verifies against the unsealed certificate.
	ok, err := notary.Verify(c, cert.WithoutLastSeal(), cert.Seals[0], cert.WithoutLastSeal())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignAndVerify(t *testing.T) {
	ctx := context.Background()
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)

	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: "signed"}
	seal, err := n.Sign(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, n.Citation(), seal.Certificate)

	ok, err := n.Verify(ctx, doc, seal, n.Certificate())
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("Tampered Content", func(t *testing.T) {
		tampered := doc.Clone()
		tampered.Content = "forged"
		ok, err := n.Verify(ctx, tampered, seal, n.Certificate())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Other Key", func(t *testing.T) {
		other, err := notary.Generate(c)
		require.NoError(t, err)
		ok, err := n.Verify(ctx, doc, seal, other.Certificate())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Not A Certificate", func(t *testing.T) {
		_, err := n.Verify(ctx, doc, seal, doc)
		assert.Error(t, err)
	})
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)

	creds, err := n.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.TypeCredentials, creds.Type)
	assert.Equal(t, n.Citation().String(), creds.Attributes["certificate"])

	seal, ok := creds.LastSeal()
	require.True(t, ok)
	valid, err := n.Verify(ctx, creds.WithoutLastSeal(), seal, n.Certificate())
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSaveLoad(t *testing.T) {
	c := codec.New()
	n, err := notary.Generate(c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "notary.yaml")
	require.NoError(t, n.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	err = n.Save(path)
	assert.True(t, errors.Is(err, core.ErrAlreadyExists), "got %v", err)

	loaded, err := notary.Load(path, c)
	require.NoError(t, err)
	assert.Equal(t, n.Citation(), loaded.Citation())

	doc := core.Document{Tag: core.NewTag(), Version: core.Version{1}}
	seal, err := loaded.Sign(context.Background(), doc)
	require.NoError(t, err)
	ok, err := n.Verify(context.Background(), doc, seal, n.Certificate())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadRejectsForeignCertificate(t *testing.T) {
	c := codec.New()
	a, err := notary.Generate(c)
	require.NoError(t, err)
	b, err := notary.Generate(c)
	require.NoError(t, err)

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.yaml")
	pathB := filepath.Join(dir, "b.yaml")
	require.NoError(t, a.Save(pathA))
	require.NoError(t, b.Save(pathB))

	// Splice b's certificate into a's key file.
	dataA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	dataB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	spliced := filepath.Join(dir, "spliced.yaml")
	require.NoError(t, os.WriteFile(spliced, splice(t, dataA, dataB), 0600))

	_, err = notary.Load(spliced, c)
	assert.Error(t, err)
}

// splice returns the privateKey line of keyA followed by the certificate section of keyB.
func splice(t *testing.T, keyA, keyB []byte) []byte {
	t.Helper()
	a := bytes.SplitN(keyA, []byte("\n"), 2)
	b := bytes.SplitN(keyB, []byte("\n"), 2)
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	return append(append(a[0], '\n'), b[1]...)
}
