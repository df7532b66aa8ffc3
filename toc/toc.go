// Package toc extracts table-of-contents entries from EPUB navigation
// documents, both the EPUB 2 NCX form and the EPUB 3 nav form.
//
// Entries are streamed to a Sink in document order, parents before
// children, so arbitrarily deep tables never accumulate in memory.
package toc

// Entry is one table-of-contents item.
type Entry struct {
	Title string

	// Href is the target resolved to an archive path. It may carry a
	// fragment, and is empty for unlinked headings.
	Href string

	// Depth is the nesting level, 0 for top-level entries.
	Depth int
}

// Sink receives entries in document order. A non-nil error aborts the
// parse and is propagated to the caller.
type Sink func(Entry) error
