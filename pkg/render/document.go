package render

import (
	"errors"
	"io/fs"
	"os"
)

// Document is a rendered summary backed by a file. The file exists only
// between rendering and dispatch and belongs to the request that rendered it.
type Document struct {
	ID        string
	Path      string
	Size      int64
	Fallbacks []string
}

// Open opens the backing file for reading.
func (d *Document) Open() (*os.File, error) {
	return os.Open(d.Path)
}

// Remove deletes the backing file. Removing an already removed document is
// not an error.
func (d *Document) Remove() error {
	if d == nil || d.Path == "" {
		return nil
	}
	if err := os.Remove(d.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
