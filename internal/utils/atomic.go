package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// StagedFile is data written and synced next to its destination but not yet
// visible there. Exactly one of Commit or Discard should be called.
type StagedFile struct {
	path    string
	tmpPath string
}

// StageFile writes data to a temporary file in path's directory, creating the
// directory if needed.
func StageFile(path string, data []byte, perm os.FileMode) (staged *StagedFile, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tf, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tfName := tf.Name()
	defer func() {
		if err != nil {
			os.Remove(tfName)
		}
	}()

	if _, err := tf.Write(data); err != nil {
		tf.Close()
		return nil, fmt.Errorf("failed to write %s: %w", tfName, err)
	}
	if err := tf.Chmod(perm); err != nil {
		tf.Close()
		return nil, fmt.Errorf("failed to set permissions on %s: %w", tfName, err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return nil, fmt.Errorf("failed to sync %s: %w", tfName, err)
	}
	if err := tf.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", tfName, err)
	}
	return &StagedFile{path: path, tmpPath: tfName}, nil
}

// Commit renames the staged data into place.
func (f *StagedFile) Commit() error {
	if err := os.Rename(f.tmpPath, f.path); err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("failed to move file into place at %s: %w", f.path, err)
	}
	return nil
}

// Discard removes the staged data, leaving the destination untouched.
func (f *StagedFile) Discard() {
	os.Remove(f.tmpPath)
}

// WriteFileAtomic writes data to path so that readers observe either the old
// content or the new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	staged, err := StageFile(path, data, perm)
	if err != nil {
		return err
	}
	return staged.Commit()
}
