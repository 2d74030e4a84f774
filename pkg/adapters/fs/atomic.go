package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// TempFilePrefix is the prefix used for temporary atomic write files.
	TempFilePrefix = "nebula-tmp-"
)

// writeTemp writes data to a synced temporary file next to filename and returns its path.
func writeTemp(filename string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(filename)

	// Create a temporary file in the same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return tmpFile.Name(), nil
}

// writeFileAtomic writes data to a file atomically by writing to a temp file
// and then renaming it to the target filename. An existing file is replaced.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filename, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp) // Clean up if we fail before rename

	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}

// createFileExclusive publishes data at filename only if nothing exists there yet.
// The content appears complete or not at all; a hard link fails with os.ErrExist
// on an occupied name, which makes concurrent creators race safely.
func createFileExclusive(filename string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filename, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, filename); err != nil {
		if os.IsExist(err) {
			return os.ErrExist
		}
		return fmt.Errorf("failed to link temp file to %s: %w", filename, err)
	}
	return nil
}
