package toc

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/hrefs"
	"github.com/jpirnay/crosspoint-reader/markup"
)

type liFrame struct {
	emitted bool
}

type navScan struct {
	baseDir string
	sink    Sink
	count   int

	inToc   bool
	done    bool
	olDepth int
	items   []liFrame

	capture byte // 'a' or 's' while inside a link or span, else 0
	text    strings.Builder
	href    string
}

func (s *navScan) StartElement(name string, attrs []markup.Attr) error {
	switch markup.Local(name) {
	case "nav":
		if s.done || s.inToc {
			break
		}
		role := markup.AttrVal(attrs, "epub:type")
		if role == "" {
			role = markup.AttrVal(attrs, "type")
		}
		if markup.HasWord(role, "toc") {
			s.inToc = true
		}
	case "ol":
		if s.inToc {
			s.olDepth++
		}
	case "li":
		if s.inToc && s.olDepth > 0 {
			s.items = append(s.items, liFrame{})
		}
	case "a":
		if s.ready() {
			s.capture = 'a'
			s.text.Reset()
			s.href = hrefs.ResolveRef(s.baseDir, markup.AttrVal(attrs, "href"))
		}
	case "span":
		// Unlinked headings appear as spans; linked ones take priority.
		if s.ready() {
			s.capture = 's'
			s.text.Reset()
			s.href = ""
		}
	}
	return nil
}

func (s *navScan) EndElement(name string) error {
	switch markup.Local(name) {
	case "nav":
		if s.inToc {
			s.inToc = false
			s.done = true
		}
	case "ol":
		if s.inToc && s.olDepth > 0 {
			s.olDepth--
		}
	case "li":
		if s.inToc && len(s.items) > 0 {
			s.items = s.items[:len(s.items)-1]
		}
	case "a":
		if s.capture == 'a' {
			s.capture = 0
			return s.emit()
		}
	case "span":
		if s.capture == 's' {
			s.capture = 0
			if markup.CollapseSpace(s.text.String()) == "" {
				return nil
			}
			return s.emit()
		}
	}
	return nil
}

func (s *navScan) Text(data string) error {
	if s.capture != 0 {
		s.text.WriteString(data)
	}
	return nil
}

// ready reports whether a link or span starting now would produce the
// current list item's entry.
func (s *navScan) ready() bool {
	return s.inToc && len(s.items) > 0 && !s.items[len(s.items)-1].emitted && s.capture == 0
}

func (s *navScan) emit() error {
	if len(s.items) > 0 {
		s.items[len(s.items)-1].emitted = true
	}
	depth := s.olDepth - 1
	if depth < 0 {
		depth = 0
	}
	s.count++
	return s.sink(Entry{
		Title: markup.CollapseSpace(s.text.String()),
		Href:  s.href,
		Depth: depth,
	})
}

// ParseNav reads an EPUB 3 navigation document from r and streams the
// entries of its first toc nav to sink. navPath is the document's own
// archive path; targets are resolved relative to it.
func ParseNav(r io.Reader, navPath string, sink Sink, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	s := &navScan{baseDir: hrefs.BaseDir(navPath), sink: sink}
	if err := markup.Scan(markup.NewDecodingReader(r), s); err != nil {
		return fmt.Errorf("toc: scan nav: %w", err)
	}
	log.Debug("parsed nav", zap.String("path", navPath), zap.Int("entries", s.count))
	return nil
}
