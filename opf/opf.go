// Package opf parses EPUB package documents: the OCF container pointer,
// the publication metadata, the manifest and the reading-order spine.
//
// Parsing is streaming and tolerant. The spine is not accumulated;
// each itemref is resolved through the manifest and handed to a caller
// callback as it is read, so memory use stays flat for any spine length.
package opf

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/jpirnay/crosspoint-reader/internal/hrefs"
	"github.com/jpirnay/crosspoint-reader/markup"
)

// Media types recognized in the manifest.
const (
	mediaTypeNCX = "application/x-dtbncx+xml"
	mediaTypeCSS = "text/css"
)

// SpineFunc receives each spine item's resolved archive path in reading
// order. A non-nil error aborts the parse and is propagated out of
// Parse.
type SpineFunc func(href string) error

// Document holds what a package document contributes besides the spine
// stream. All hrefs are resolved to archive paths.
type Document struct {
	Title    string
	Author   string
	Language string

	// CoverHref is the cover image, located by the strongest available
	// signal: a cover-image manifest property, then a metadata cover
	// reference, then well-known manifest ids.
	CoverHref string

	// NavHref and NCXHref locate the navigation documents; either or
	// both may be empty.
	NavHref string
	NCXHref string

	// TextRefHref is the guide's "start of content" target with any
	// fragment removed.
	TextRefHref string

	CSSHrefs []string

	SpineCount int
}

type manifestItem struct {
	href      string
	mediaType string
}

type opfScan struct {
	baseDir string
	spine   SpineFunc
	log     *zap.Logger
	doc     *Document

	inMetadata bool
	inManifest bool
	inSpine    bool
	inGuide    bool

	capture     strings.Builder
	captureName string

	manifest map[string]manifestItem

	coverMetaID   string
	coverPropHref string
	coverIDHref   string
	spineTocID    string
	ncxByType     string
}

func (s *opfScan) StartElement(name string, attrs []markup.Attr) error {
	switch name {
	case "dc:title", "dc:creator", "dc:language":
		if s.inMetadata && s.captureName == "" {
			s.captureName = name
			s.capture.Reset()
		}
		return nil
	}

	switch markup.Local(name) {
	case "metadata":
		s.inMetadata = true
	case "manifest":
		s.inManifest = true
	case "spine":
		s.inSpine = true
		s.spineTocID = markup.AttrVal(attrs, "toc")
	case "guide":
		s.inGuide = true
	case "item":
		if s.inManifest {
			s.addItem(attrs)
		}
	case "itemref":
		if s.inSpine {
			return s.addSpineRef(attrs)
		}
	case "meta":
		if s.inMetadata && s.coverMetaID == "" && markup.AttrVal(attrs, "name") == "cover" {
			s.coverMetaID = markup.AttrVal(attrs, "content")
		}
	case "reference":
		if s.inGuide {
			s.addGuideRef(attrs)
		}
	}
	return nil
}

func (s *opfScan) EndElement(name string) error {
	// The dc elements hold text only, so any end tag finishes a capture.
	if s.captureName != "" {
		s.endCapture()
	}
	switch markup.Local(name) {
	case "metadata":
		s.inMetadata = false
	case "manifest":
		s.inManifest = false
	case "spine":
		s.inSpine = false
	case "guide":
		s.inGuide = false
	}
	return nil
}

func (s *opfScan) Text(data string) error {
	if s.captureName != "" {
		s.capture.WriteString(data)
	}
	return nil
}

// endCapture commits a finished dc element. The first non-empty value of
// each field wins; repeats are ignored.
func (s *opfScan) endCapture() {
	text := markup.CollapseSpace(s.capture.String())
	switch s.captureName {
	case "dc:title":
		if s.doc.Title == "" {
			s.doc.Title = text
		}
	case "dc:creator":
		if s.doc.Author == "" {
			s.doc.Author = text
		}
	case "dc:language":
		if s.doc.Language == "" {
			s.doc.Language = text
		}
	}
	s.captureName = ""
}

func (s *opfScan) addItem(attrs []markup.Attr) {
	var id, href, mediaType, props string
	for _, a := range attrs {
		switch a.Key {
		case "id":
			id = a.Val
		case "href":
			href = a.Val
		case "media-type":
			mediaType = a.Val
		case "properties":
			props = a.Val
		}
	}
	if id == "" || href == "" {
		return
	}
	resolved := hrefs.Resolve(s.baseDir, href)
	if _, dup := s.manifest[id]; !dup {
		s.manifest[id] = manifestItem{href: resolved, mediaType: mediaType}
	}

	if s.doc.NavHref == "" && markup.HasWord(props, "nav") {
		s.doc.NavHref = resolved
	}
	if s.coverPropHref == "" && markup.HasWord(props, "cover-image") {
		s.coverPropHref = resolved
	}
	if s.ncxByType == "" && mediaType == mediaTypeNCX {
		s.ncxByType = resolved
	}
	if mediaType == mediaTypeCSS {
		s.doc.CSSHrefs = append(s.doc.CSSHrefs, resolved)
	}
	if s.coverIDHref == "" && (id == "cover-image" || id == "cover") &&
		strings.HasPrefix(mediaType, "image/") {
		s.coverIDHref = resolved
	}
}

func (s *opfScan) addSpineRef(attrs []markup.Attr) error {
	idref := markup.AttrVal(attrs, "idref")
	item, ok := s.manifest[idref]
	if !ok {
		s.log.Debug("spine itemref has no manifest item", zap.String("idref", idref))
		return nil
	}
	s.doc.SpineCount++
	if s.spine == nil {
		return nil
	}
	return s.spine(item.href)
}

func (s *opfScan) addGuideRef(attrs []markup.Attr) {
	if s.doc.TextRefHref != "" {
		return
	}
	if !strings.EqualFold(markup.AttrVal(attrs, "type"), "text") {
		return
	}
	href := markup.AttrVal(attrs, "href")
	if href == "" {
		return
	}
	s.doc.TextRefHref = hrefs.Resolve(s.baseDir, hrefs.StripFragment(href))
}

// Parse reads the package document from r. opfPath is the document's own
// archive path; every href in the result is resolved relative to it.
// Spine items are streamed to spine in reading order; spine may be nil
// when only the document fields are wanted.
func Parse(r io.Reader, opfPath string, spine SpineFunc, log *zap.Logger) (*Document, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &opfScan{
		baseDir:  hrefs.BaseDir(opfPath),
		spine:    spine,
		log:      log,
		doc:      &Document{},
		manifest: make(map[string]manifestItem),
	}
	if err := markup.Scan(markup.NewDecodingReader(r), s); err != nil {
		return nil, fmt.Errorf("opf: scan package document: %w", err)
	}
	s.finish()

	log.Debug("parsed package document",
		zap.String("path", opfPath),
		zap.Int("spine_items", s.doc.SpineCount),
		zap.Int("manifest_items", len(s.manifest)))
	return s.doc, nil
}

func (s *opfScan) finish() {
	switch {
	case s.coverPropHref != "":
		s.doc.CoverHref = s.coverPropHref
	case s.coverMetaID != "":
		if item, ok := s.manifest[s.coverMetaID]; ok {
			s.doc.CoverHref = item.href
		}
	}
	if s.doc.CoverHref == "" {
		s.doc.CoverHref = s.coverIDHref
	}

	// The spine's toc attribute is the authoritative NCX pointer; fall
	// back to the first manifest item with the NCX media type.
	if s.spineTocID != "" {
		if item, ok := s.manifest[s.spineTocID]; ok {
			s.doc.NCXHref = item.href
		}
	}
	if s.doc.NCXHref == "" {
		s.doc.NCXHref = s.ncxByType
	}

	if s.doc.Language != "" {
		if tag, err := language.Parse(s.doc.Language); err == nil {
			s.doc.Language = tag.String()
		}
	}
}
