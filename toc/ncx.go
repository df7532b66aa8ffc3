package toc

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/hrefs"
	"github.com/jpirnay/crosspoint-reader/markup"
)

type ncxFrame struct {
	title   string
	href    string
	depth   int
	emitted bool
}

type ncxScan struct {
	baseDir string
	sink    Sink
	count   int

	inMap   bool
	inLabel bool
	inText  bool
	text    strings.Builder
	stack   []ncxFrame
}

func (s *ncxScan) StartElement(name string, attrs []markup.Attr) error {
	switch markup.Local(name) {
	case "navmap":
		s.inMap = true
	case "navpoint":
		if !s.inMap {
			break
		}
		// A nested point means the parent is complete even if it had
		// no content element of its own.
		if err := s.flushTop(); err != nil {
			return err
		}
		s.stack = append(s.stack, ncxFrame{depth: len(s.stack)})
	case "navlabel":
		if len(s.stack) > 0 {
			s.inLabel = true
		}
	case "text":
		if s.inLabel {
			s.inText = true
			s.text.Reset()
		}
	case "content":
		if len(s.stack) == 0 {
			break
		}
		top := &s.stack[len(s.stack)-1]
		top.href = hrefs.ResolveRef(s.baseDir, markup.AttrVal(attrs, "src"))
		return s.flushTop()
	}
	return nil
}

func (s *ncxScan) EndElement(name string) error {
	switch markup.Local(name) {
	case "navmap":
		s.inMap = false
	case "navpoint":
		if len(s.stack) == 0 {
			break
		}
		if err := s.flushTop(); err != nil {
			return err
		}
		s.stack = s.stack[:len(s.stack)-1]
	case "navlabel":
		s.inLabel = false
	case "text":
		if s.inText {
			if top := s.top(); top != nil && top.title == "" {
				top.title = markup.CollapseSpace(s.text.String())
			}
			s.inText = false
		}
	}
	return nil
}

func (s *ncxScan) Text(data string) error {
	if s.inText {
		s.text.WriteString(data)
	}
	return nil
}

func (s *ncxScan) top() *ncxFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

func (s *ncxScan) flushTop() error {
	top := s.top()
	if top == nil || top.emitted {
		return nil
	}
	if top.title == "" && top.href == "" {
		return nil
	}
	top.emitted = true
	s.count++
	return s.sink(Entry{Title: top.title, Href: top.href, Depth: top.depth})
}

// flushAll emits anything still pending after a truncated document.
func (s *ncxScan) flushAll() error {
	for i := range s.stack {
		f := &s.stack[i]
		if f.emitted || (f.title == "" && f.href == "") {
			continue
		}
		f.emitted = true
		s.count++
		if err := s.sink(Entry{Title: f.title, Href: f.href, Depth: f.depth}); err != nil {
			return err
		}
	}
	return nil
}

// ParseNCX reads an NCX navigation document from r and streams its
// navMap entries to sink. ncxPath is the document's own archive path;
// targets are resolved relative to it.
func ParseNCX(r io.Reader, ncxPath string, sink Sink, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ncxScan{baseDir: hrefs.BaseDir(ncxPath), sink: sink}
	if err := markup.Scan(markup.NewDecodingReader(r), s); err != nil {
		return fmt.Errorf("toc: scan ncx: %w", err)
	}
	if err := s.flushAll(); err != nil {
		return err
	}
	log.Debug("parsed ncx", zap.String("path", ncxPath), zap.Int("entries", s.count))
	return nil
}
