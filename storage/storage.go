// Package storage abstracts the filesystem operations of the cache
// layer, so cache directories can live on internal flash, removable
// media or a test sandbox without the callers changing.
package storage

import (
	"io"
	"os"
)

// FS is the filesystem surface the cache layer needs. Implementations
// must truncate on OpenWrite and create missing files.
type FS interface {
	OpenRead(name string) (io.ReadSeekCloser, error)
	OpenWrite(name string) (io.WriteCloser, error)
	Exists(name string) bool
	Remove(name string) error
	RemoveAll(path string) error
	MkdirAll(path string) error
	Rename(oldname, newname string) error
}

// OS is the host filesystem.
type OS struct{}

func (OS) OpenRead(name string) (io.ReadSeekCloser, error) { return os.Open(name) }

func (OS) OpenWrite(name string) (io.WriteCloser, error) { return os.Create(name) }

func (OS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (OS) Remove(name string) error { return os.Remove(name) }

func (OS) RemoveAll(path string) error { return os.RemoveAll(path) }

func (OS) MkdirAll(path string) error { return os.MkdirAll(path, 0o755) }

func (OS) Rename(oldname, newname string) error { return os.Rename(oldname, newname) }
