package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/afero"
)

// File keeps the state blob in a single file.
type File struct {
	fs   afero.Fs
	path string
}

// NewFile stores the state at path on fs. A nil fs means the OS filesystem.
func NewFile(fs afero.Fs, path string) *File {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &File{fs: fs, path: path}
}

// Load reads the state file.
func (f *File) Load(_ context.Context) ([]byte, error) {
	blob, err := afero.ReadFile(f.fs, f.path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("state file %q", f.path)
	}
	return blob, errors.Annotatef(err, "reading %s", f.path)
}

// Save writes the blob to a temporary file and renames it into place.
func (f *File) Save(_ context.Context, blob []byte) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Annotatef(err, "creating directory for %s", f.path)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, blob, 0o644); err != nil {
		return errors.Annotatef(err, "writing %s", tmp)
	}
	return errors.Annotatef(f.fs.Rename(tmp, f.path), "replacing %s", f.path)
}

// Healthy reports whether the state directory is reachable.
func (f *File) Healthy(context.Context) bool {
	_, err := f.fs.Stat(filepath.Dir(f.path))
	return err == nil
}

func (f *File) Close() error { return nil }
