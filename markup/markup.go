// Package markup provides a streaming, event-based scanner for the HTML
// and XML documents found inside EPUB containers.
//
// Scan drives a tolerant tokenizer over the input and reports elements and
// text to a Handler as they are encountered. Malformed input never stops
// the scan: unknown constructs are skipped and scanning resumes at the
// next well-formed token. Memory use is bounded by the configured maximum
// token size regardless of document size.
//
//	var h outline
//	if err := markup.Scan(f, &h); err != nil {
//	    return err
//	}
//
// Tag and attribute names are reported lowercased. Namespace prefixes are
// preserved, so "dc:title" arrives as written; Local strips the prefix
// when only the local name matters.
package markup

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Scan-related errors.
var (
	// ErrTokenTooLarge reports a single token larger than the scan's
	// maximum token size.
	ErrTokenTooLarge = errors.New("markup: token exceeds maximum size")
)

// DefaultMaxTokenSize bounds a single token's size unless overridden
// in ScanOptions.
const DefaultMaxTokenSize = 64 * 1024

// Attr is a single attribute on a start element. Keys are lowercased by
// the tokenizer; values are entity-decoded.
type Attr struct {
	Key string
	Val string
}

// A Handler receives scan events. Returning a non-nil error from any
// method aborts the scan and the error is returned from Scan unchanged.
//
// The attrs slice passed to StartElement is reused between events; a
// handler that retains attributes must copy them.
type Handler interface {
	StartElement(name string, attrs []Attr) error
	EndElement(name string) error
	Text(data string) error
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// MaxTokenSize bounds a single token's size. Zero or negative
	// means DefaultMaxTokenSize.
	MaxTokenSize int
}

// Scan tokenizes r with default options and reports events to h until
// the input is exhausted. Self-closing elements are reported as a start
// event immediately followed by an end event. Comments, doctypes and
// processing instructions are not reported.
func Scan(r io.Reader, h Handler) error {
	return ScanWithOptions(r, h, ScanOptions{})
}

// ScanWithOptions scans r with the given options.
func ScanWithOptions(r io.Reader, h Handler, opts ScanOptions) error {
	maxTokenSize := opts.MaxTokenSize
	if maxTokenSize <= 0 {
		maxTokenSize = DefaultMaxTokenSize
	}

	z := html.NewTokenizer(r)
	z.SetMaxBuf(maxTokenSize)

	var attrs []Attr
	for {
		switch z.Next() {
		case html.ErrorToken:
			err := z.Err()
			if err == io.EOF {
				return nil
			}
			if errors.Is(err, html.ErrBufferExceeded) {
				return fmt.Errorf("%w (limit %d bytes)", ErrTokenTooLarge, maxTokenSize)
			}
			return fmt.Errorf("markup: scan: %w", err)

		case html.StartTagToken:
			name, attrs2 := readTag(z, attrs[:0])
			attrs = attrs2
			if err := h.StartElement(name, attrs); err != nil {
				return err
			}

		case html.SelfClosingTagToken:
			name, attrs2 := readTag(z, attrs[:0])
			attrs = attrs2
			if err := h.StartElement(name, attrs); err != nil {
				return err
			}
			if err := h.EndElement(name); err != nil {
				return err
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if err := h.EndElement(string(name)); err != nil {
				return err
			}

		case html.TextToken:
			if err := h.Text(string(z.Text())); err != nil {
				return err
			}
		}
	}
}

func readTag(z *html.Tokenizer, attrs []Attr) (string, []Attr) {
	name, hasAttr := z.TagName()
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs = append(attrs, Attr{Key: string(key), Val: string(val)})
	}
	return string(name), attrs
}

// Local returns the part of an element or attribute name after any
// namespace prefix, so both "opf:item" and "item" yield "item".
func Local(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// AttrVal returns the value of the named attribute, or "" when absent.
func AttrVal(attrs []Attr, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasWord reports whether the space-separated list value contains word.
// It is used for multi-valued attributes such as properties and epub:type.
func HasWord(value, word string) bool {
	for _, w := range strings.Fields(value) {
		if w == word {
			return true
		}
	}
	return false
}

// CollapseSpace trims s and folds interior whitespace runs to single
// spaces. Titles and labels are normalized with it before use.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
