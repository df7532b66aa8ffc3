// Package bookcache persists a book's spine, table of contents and
// metadata as a compact binary index on disk, so reopening a book never
// repeats the parse that produced it.
//
// A cache is populated in enforced order: the spine pass first, the
// table-of-contents pass second, then consolidation. The two passes
// append rows to temporary files and hold nothing in memory, which keeps
// peak usage flat for arbitrarily large books. BuildIndex then re-reads
// the rows, computes cumulative sizes and cross-references, and commits
// the final index in one rename, so a crash at any earlier point leaves
// no half-written book.bin behind. The temporaries are removed only by
// an explicit CleanupTmpFiles call; after a failed build they stay on
// disk for inspection.
//
// Record access after Load is O(1): fixed-size records point into a
// string heap, and every lookup opens the index, seeks, reads and
// closes again.
package bookcache

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/storage"
)

// Cache-related errors.
var (
	// ErrBadState reports a lifecycle call out of order, such as a TOC
	// pass before the spine pass.
	ErrBadState = errors.New("bookcache: operation out of order")

	// ErrCacheMiss reports that no usable index exists. A stale format
	// version reads as a miss, never as a hard error; the caller
	// rebuilds.
	ErrCacheMiss = errors.New("bookcache: no usable index")
)

// Index files within a cache directory.
const (
	IndexFile    = "book.bin"
	tmpIndexFile = ".tmp.book.bin"
	tmpSpineFile = ".tmp.spine"
	tmpTocFile   = ".tmp.toc"
)

// FormatVersion is the current book.bin layout version. Indexes written
// by other versions are rebuilt.
const FormatVersion = 3

var indexMagic = [4]byte{'C', 'P', 'B', 'K'}

const (
	headerSize = 32
	recordSize = 16
)

// SpineEntry is one reading-order item.
type SpineEntry struct {
	// Href is the item's resolved archive path.
	Href string

	// CumulativeSize is the total uncompressed size in bytes of this
	// item and everything before it in reading order.
	CumulativeSize uint32

	// TocIndex is the first table-of-contents entry targeting this
	// item, or -1 when none does.
	TocIndex int32
}

// TocEntry is one table-of-contents item in document order.
type TocEntry struct {
	Title string

	// Depth is the nesting level, 0 for top-level entries.
	Depth uint16

	// SpineIndex is the targeted reading-order item, or -1 when the
	// target is missing or unlinked.
	SpineIndex int32
}

// Metadata is the book-level information stored alongside the tables.
type Metadata struct {
	Title       string
	Author      string
	Language    string
	CoverHref   string
	TextRefHref string
}

// ItemSizer reports uncompressed item sizes during consolidation.
type ItemSizer interface {
	InflatedSize(name string) (int64, error)
}

type buildState int

const (
	stateIdle buildState = iota
	stateWriting
	stateSpinePass
	stateSpineDone
	stateTocPass
	stateTocDone
	stateSealed
	stateBuilt
	stateLoaded
)

func (s buildState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWriting:
		return "writing"
	case stateSpinePass:
		return "spine pass"
	case stateSpineDone:
		return "spine done"
	case stateTocPass:
		return "toc pass"
	case stateTocDone:
		return "toc done"
	case stateSealed:
		return "sealed"
	case stateBuilt:
		return "built"
	case stateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Cache is one book's on-disk index.
type Cache struct {
	dir string
	fs  storage.FS
	log *zap.Logger

	state buildState

	spine *rowWriter
	toc   *rowWriter

	meta       Metadata
	spineCount int
	tocCount   int
	spineOff   int64
	tocOff     int64
	stringsOff int64
	stringsLen int64
}

// New returns a cache rooted at dir. Nothing is read until Load and
// nothing written until a build. fs and log may be nil.
func New(dir string, fs storage.FS, log *zap.Logger) *Cache {
	if fs == nil {
		fs = storage.OS{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{dir: dir, fs: fs, log: log}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// IsLoaded reports whether record accessors are backed by an index.
func (c *Cache) IsLoaded() bool { return c.state == stateLoaded }

// IndexPath returns the full path of the committed index file.
func (c *Cache) IndexPath() string { return c.path(IndexFile) }

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *Cache) badState(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrBadState, op, c.state)
}
