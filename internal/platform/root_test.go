package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/core"
)

func TestFindRoot(t *testing.T) {
	// baseDir/
	//   repo/ (.nebula/)
	//     subdir/nested/
	//   configured/ (nebula.yaml)
	//   impostor/ (.nebula file, nebula.yaml directory)
	//   empty/
	baseDir := t.TempDir()
	repoDir := filepath.Join(baseDir, "repo")
	nestedDir := filepath.Join(repoDir, "subdir", "nested")
	configDir := filepath.Join(baseDir, "configured")
	impostorDir := filepath.Join(baseDir, "impostor")
	emptyDir := filepath.Join(baseDir, "empty")

	require.NoError(t, os.MkdirAll(nestedDir, 0755))
	require.NoError(t, os.Mkdir(filepath.Join(repoDir, SystemDir), 0755))
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, ConfigFile), []byte("adapter: memory\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(impostorDir, ConfigFile), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(impostorDir, SystemDir), nil, 0644))
	require.NoError(t, os.MkdirAll(emptyDir, 0755))

	tests := []struct {
		name      string
		startPath string
		wantRoot  string
	}{
		{"Start at Root", repoDir, repoDir},
		{"Start Nested Deeply", nestedDir, repoDir},
		{"Config File Marks Root", configDir, configDir},
		{"Relative Start", relativeTo(t, nestedDir), repoDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.startPath)
			require.NoError(t, err)
			assert.Equal(t, filepath.Clean(tt.wantRoot), filepath.Clean(got))
		})
	}

	t.Run("Markers Of The Wrong Kind", func(t *testing.T) {
		_, err := FindRoot(impostorDir)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("No Root Found", func(t *testing.T) {
		_, err := FindRoot(emptyDir)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func relativeTo(t *testing.T, target string) string {
	t.Helper()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(cwd, target)
	require.NoError(t, err)
	return rel
}
