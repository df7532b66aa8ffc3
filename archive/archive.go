// Package archive reads items out of EPUB zip containers.
//
// A Reader holds only the container's path. Every operation opens the
// zip, does its work and closes it again, so no descriptor stays open
// between calls and the containing medium can be unmounted at any
// quiet moment.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Archive-related errors.
var (
	// ErrNotFound indicates that the container has no item with the
	// requested path.
	ErrNotFound = errors.New("archive: item not found")
)

const defaultChunkSize = 32 * 1024

// Reader reads items from one zip container.
type Reader struct {
	path string
	log  *zap.Logger
}

// NewReader returns a reader for the container at path. The file is not
// opened until the first operation. log may be nil.
func NewReader(path string, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{path: path, log: log}
}

// Path returns the container's filesystem path.
func (r *Reader) Path() string { return r.path }

// Exists reports whether the container holds the named item.
func (r *Reader) Exists(name string) bool {
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return false
	}
	defer zr.Close()
	return r.find(&zr.Reader, name) != nil
}

// InflatedSize returns the item's uncompressed size without inflating
// it.
func (r *Reader) InflatedSize(name string) (int64, error) {
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return 0, fmt.Errorf("archive: open %s: %w", r.path, err)
	}
	defer zr.Close()

	f := r.find(&zr.Reader, name)
	if f == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return int64(f.UncompressedSize64), nil
}

// ReadAll inflates the named item into memory.
func (r *Reader) ReadAll(name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", name, err)
	}
	return data, nil
}

// Open returns the named item's inflating reader. Closing it also
// closes the container.
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", r.path, err)
	}

	f := r.find(&zr.Reader, name)
	if f == nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("archive: open item %s: %w", name, err)
	}
	return &itemReader{item: rc, container: zr}, nil
}

// CopyTo streams the named item to w in chunkSize pieces. A chunkSize
// of zero or less selects a default.
func (r *Reader) CopyTo(name string, w io.Writer, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	rc, err := r.Open(name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := io.CopyBuffer(w, rc, make([]byte, chunkSize)); err != nil {
		return fmt.Errorf("archive: copy %s: %w", name, err)
	}
	return nil
}

// find locates an entry by exact path, falling back to a
// case-insensitive match for containers written with sloppy casing.
func (r *Reader) find(zr *zip.Reader, name string) *zip.File {
	if name == "" {
		return nil
	}
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			r.log.Debug("item resolved by case-insensitive match",
				zap.String("requested", name), zap.String("actual", f.Name))
			return f
		}
	}
	return nil
}

type itemReader struct {
	item      io.ReadCloser
	container *zip.ReadCloser
}

func (ir *itemReader) Read(p []byte) (int, error) { return ir.item.Read(p) }

func (ir *itemReader) Close() error {
	err := ir.item.Close()
	if cerr := ir.container.Close(); err == nil {
		err = cerr
	}
	return err
}
