// Package crosspoint opens EPUB books through a persistent per-book
// index so that reopening a book never repeats the initial parse.
//
// Basic usage:
//
//	book, err := crosspoint.OpenBook("scarlet.epub", "/var/cache/books")
//	if err != nil {
//	    // handle error
//	}
//	fmt.Println(book.Title(), book.SpineCount())
//
// OpenBook indexes the book on first open and attaches to the existing
// index afterwards. For finer control over logging, cache placement and
// display geometry, use the epub package directly.
package crosspoint

import (
	"github.com/jpirnay/crosspoint-reader/epub"
)

// OpenBook opens the EPUB at path, building its index under cacheRoot
// if none exists, and loads stylesheet rules.
//
// Example:
//
//	book, err := crosspoint.OpenBook("document.epub", cacheRoot)
func OpenBook(path, cacheRoot string) (*epub.Book, error) {
	book := epub.New(path, cacheRoot)
	if err := book.Load(true, false); err != nil {
		return nil, err
	}
	return book, nil
}

// OpenBookMetadata opens the EPUB at path for metadata access only,
// skipping stylesheet parsing. Library list views use this to show
// titles and progress without paying for CSS.
//
// Example:
//
//	book, err := crosspoint.OpenBookMetadata("document.epub", cacheRoot)
func OpenBookMetadata(path, cacheRoot string) (*epub.Book, error) {
	book := epub.New(path, cacheRoot)
	if err := book.Load(true, true); err != nil {
		return nil, err
	}
	return book, nil
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	book := crosspoint.Must(crosspoint.OpenBook("document.epub", cacheRoot))
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
