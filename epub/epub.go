// Package epub opens EPUB books through a persistent per-book cache.
//
// A Book is cheap to construct and holds no open files. Load either
// attaches to an existing index under the cache root or, when asked,
// parses the container, package document and table of contents to build
// one. Later lookups (spine order, TOC, item sizes, reading progress)
// run against the index without touching the EPUB again; item content
// itself always streams straight from the archive.
//
//	book := epub.New("/books/scarlet.epub", "/cache")
//	if err := book.Load(true, false); err != nil {
//	    return err
//	}
//	fmt.Println(book.Title(), book.SpineCount())
//
// A stale or corrupt index is never an error: Load falls back to a full
// rebuild, bounded by parse time, not by correctness risk.
package epub

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/archive"
	"github.com/jpirnay/crosspoint-reader/bookcache"
	"github.com/jpirnay/crosspoint-reader/css"
	"github.com/jpirnay/crosspoint-reader/storage"
)

// Book-related errors.
var (
	// ErrNotIndexed reports a Load with building disabled and no usable
	// index on disk.
	ErrNotIndexed = errors.New("epub: book not indexed")

	// ErrNoCover reports that neither the package metadata nor the
	// usual archive locations yield a cover image.
	ErrNoCover = errors.New("epub: no cover image")
)

// Default panel dimensions for generated covers.
const (
	defaultDisplayWidth  = 480
	defaultDisplayHeight = 800
)

// Options configures a Book.
type Options struct {
	// Log receives structured diagnostics. Nil disables logging.
	Log *zap.Logger

	// FS is the filesystem holding the cache directory. Nil means the
	// operating system filesystem.
	FS storage.FS

	// DisplayWidth and DisplayHeight are the target panel dimensions
	// for generated cover images. Zero means 480x800.
	DisplayWidth  int
	DisplayHeight int
}

// Book is one EPUB file together with its cache directory.
type Book struct {
	path     string
	cacheDir string
	fs       storage.FS
	log      *zap.Logger
	displayW int
	displayH int

	archive *archive.Reader
	cache   *bookcache.Cache
	styles  *css.Sheet
	loaded  bool
}

// New returns a Book for the EPUB at path with default options. The
// book's cache directory is derived from a hash of path, so distinct
// books never collide under one cache root. Nothing is opened until
// Load.
func New(path, cacheRoot string) *Book {
	return NewWithOptions(path, cacheRoot, Options{})
}

// NewWithOptions returns a Book configured by opts.
func NewWithOptions(path, cacheRoot string, opts Options) *Book {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("epub")

	fs := opts.FS
	if fs == nil {
		fs = storage.OS{}
	}

	w, h := opts.DisplayWidth, opts.DisplayHeight
	if w <= 0 || h <= 0 {
		w, h = defaultDisplayWidth, defaultDisplayHeight
	}

	cacheDir := filepath.Join(cacheRoot, fmt.Sprintf("epub_%016x", xxhash.Sum64String(path)))
	return &Book{
		path:     path,
		cacheDir: cacheDir,
		fs:       fs,
		log:      log,
		displayW: w,
		displayH: h,
		archive:  archive.NewReader(path, log.Named("archive")),
		cache:    bookcache.New(cacheDir, fs, log.Named("bookcache")),
		styles:   css.NewSheet(log.Named("css")),
	}
}

// Path returns the EPUB file path.
func (b *Book) Path() string { return b.path }

// CachePath returns the book's cache directory.
func (b *Book) CachePath() string { return b.cacheDir }

// IsLoaded reports whether Load has succeeded.
func (b *Book) IsLoaded() bool { return b.loaded }

// Load makes the book's index available. An existing valid index is
// attached as-is; otherwise the book is parsed and indexed when
// buildIfMissing allows it, or ErrNotIndexed is returned. skipCSS
// leaves stylesheet rules unloaded for callers that only need
// metadata, such as a library list view.
//
// Load is idempotent; a loaded book returns nil immediately.
func (b *Book) Load(buildIfMissing, skipCSS bool) error {
	if b.loaded {
		return nil
	}

	err := b.cache.Load()
	if err == nil {
		b.loaded = true
		if !skipCSS {
			b.loadStyles()
		}
		return nil
	}
	if !errors.Is(err, bookcache.ErrCacheMiss) {
		return err
	}

	if !buildIfMissing {
		return fmt.Errorf("%w: %s", ErrNotIndexed, b.path)
	}

	doc, err := b.buildCache()
	if err != nil {
		return err
	}

	// Reattach through a fresh cache so reads come from the committed
	// index, not from build-time state.
	b.cache = bookcache.New(b.cacheDir, b.fs, b.log.Named("bookcache"))
	if err := b.cache.Load(); err != nil {
		return fmt.Errorf("epub: reload fresh index: %w", err)
	}
	b.loaded = true

	if !skipCSS {
		b.parseStyles(doc.CSSHrefs)
	}
	return nil
}

// Title returns the book title, "" until loaded.
func (b *Book) Title() string { return b.cache.Meta().Title }

// Author returns the first creator, "" until loaded.
func (b *Book) Author() string { return b.cache.Meta().Author }

// Language returns the canonicalized language tag, "" until loaded.
func (b *Book) Language() string { return b.cache.Meta().Language }

// SpineCount returns the number of reading-order items.
func (b *Book) SpineCount() int { return b.cache.SpineCount() }

// TocCount returns the number of table-of-contents entries.
func (b *Book) TocCount() int { return b.cache.TocCount() }

// SpineItem returns the i'th reading-order item, the zero entry when
// out of range.
func (b *Book) SpineItem(i int) bookcache.SpineEntry { return b.cache.SpineEntry(i) }

// TocItem returns the i'th table-of-contents entry, the zero entry
// when out of range.
func (b *Book) TocItem(i int) bookcache.TocEntry { return b.cache.TocEntry(i) }

// SpineIndexForTocIndex returns the reading-order index targeted by
// TOC entry i. Unlinked entries and out-of-range indexes fall back to
// 0, so navigating from any TOC row always lands somewhere valid.
func (b *Book) SpineIndexForTocIndex(i int) int {
	if si := b.cache.TocEntry(i).SpineIndex; si >= 0 {
		return int(si)
	}
	return 0
}

// TocIndexForSpineIndex returns the first TOC entry targeting spine
// item i, or -1 when none does.
func (b *Book) TocIndexForSpineIndex(i int) int {
	if !b.loaded {
		return -1
	}
	if i < 0 || i >= b.cache.SpineCount() {
		return -1
	}
	return int(b.cache.SpineEntry(i).TocIndex)
}

// BookSize returns the total uncompressed size of all spine items.
func (b *Book) BookSize() int64 { return b.cache.BookSize() }

// CumulativeSpineItemSize returns the uncompressed size of spine items
// 0 through i inclusive.
func (b *Book) CumulativeSpineItemSize(i int) int64 {
	return int64(b.cache.SpineEntry(i).CumulativeSize)
}

// Progress maps a position inside a spine item to a fraction of the
// whole book, interpolating linearly by uncompressed size. fracInItem
// is the fraction read of item spineIndex. An empty book reads as 0.
func (b *Book) Progress(spineIndex int, fracInItem float64) float64 {
	total := b.BookSize()
	if total <= 0 {
		return 0
	}
	var before int64
	if spineIndex > 0 {
		before = b.CumulativeSpineItemSize(spineIndex - 1)
	}
	at := b.CumulativeSpineItemSize(spineIndex)
	return (float64(before) + fracInItem*float64(at-before)) / float64(total)
}

// SpineIndexForTextReference returns the reading-order index of the
// item the package marks as the start of the main text, or 0 when the
// book declares none.
func (b *Book) SpineIndexForTextReference() int {
	ref := b.cache.Meta().TextRefHref
	if ref == "" {
		return 0
	}
	for i, n := 0, b.cache.SpineCount(); i < n; i++ {
		if b.cache.SpineEntry(i).Href == ref {
			return i
		}
	}
	b.log.Debug("text reference not in spine", zap.String("href", ref))
	return 0
}

// ItemSize returns the uncompressed size of an archive item.
func (b *Book) ItemSize(href string) (int64, error) {
	return b.archive.InflatedSize(href)
}

// ReadItem returns an archive item's full contents.
func (b *Book) ReadItem(href string) ([]byte, error) {
	return b.archive.ReadAll(href)
}

// OpenItem opens an archive item for streaming.
func (b *Book) OpenItem(href string) (io.ReadCloser, error) {
	return b.archive.Open(href)
}

// CopyItem streams an archive item to w in chunks of chunkSize bytes.
func (b *Book) CopyItem(href string, w io.Writer, chunkSize int) error {
	return b.archive.CopyTo(href, w, chunkSize)
}

// Styles returns the book's stylesheet rules. The sheet is empty until
// Load runs with CSS enabled.
func (b *Book) Styles() *css.Sheet { return b.styles }

// ClearCache removes the book's cache directory, detaching any loaded
// index. The next Load rebuilds from the archive.
func (b *Book) ClearCache() error {
	if b.fs.Exists(b.cacheDir) {
		if err := b.fs.RemoveAll(b.cacheDir); err != nil {
			return fmt.Errorf("epub: clear cache: %w", err)
		}
	}
	b.loaded = false
	b.cache = bookcache.New(b.cacheDir, b.fs, b.log.Named("bookcache"))
	b.styles.Reset()
	return nil
}
