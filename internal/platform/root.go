package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/aretw0/nebula/pkg/core"
)

// SystemDir is the hidden directory Initialize creates at a repository root.
const SystemDir = ".nebula"

type rootMarker struct {
	name string
	dir  bool
}

func (m rootMarker) in(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, m.name))
	if err != nil {
		return false
	}
	if m.dir {
		return info.IsDir()
	}
	return info.Mode().IsRegular()
}

// A root holds the system directory or a configuration file.
var rootMarkers = []rootMarker{
	{name: SystemDir, dir: true},
	{name: ConfigFile},
}

// FindRoot walks up from startDir and returns the absolute path of the first
// directory holding a .nebula directory or a nebula.yaml file.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for !isRoot(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no repository root above %s", core.ErrNotFound, startDir)
		}
		dir = parent
	}
	return dir, nil
}

func isRoot(dir string) bool {
	return slices.ContainsFunc(rootMarkers, func(m rootMarker) bool { return m.in(dir) })
}
