package imagegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrOutputDirMissing is returned when the directory of the target path does
// not exist. The directory is never created.
var ErrOutputDirMissing = errors.New("output directory missing")

// Writer stores image bytes below root. Paths are relative to root, which is
// the working directory when empty.
type Writer struct {
	root string
}

func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

func (w *Writer) resolve(name string) string {
	return filepath.Join(w.root, filepath.FromSlash(name))
}

// Check verifies that the directory for name exists.
func (w *Writer) Check(name string) error {
	dir := filepath.Dir(w.resolve(name))
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrOutputDirMissing, dir)
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputDirMissing, dir)
	}
	return nil
}

// Write replaces the file at name with data. Concurrent writers of the same
// name race; the last rename wins.
func (w *Writer) Write(name string, data []byte) error {
	if err := w.Check(name); err != nil {
		return err
	}
	path := w.resolve(name)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
