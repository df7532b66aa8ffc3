package epub

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/bookcache"
	"github.com/jpirnay/crosspoint-reader/opf"
	"github.com/jpirnay/crosspoint-reader/toc"
)

// stylesFile holds the parsed CSS rules inside the cache directory.
const stylesFile = "css_rules.cache"

// buildCache runs the full indexing protocol: spine pass from the
// package document, TOC pass from the nav document or NCX, then
// consolidation. A parse failure in the container or package document
// aborts the build and leaves the pass temp files in place; a missing
// or broken table of contents is tolerated.
func (b *Book) buildCache() (*opf.Document, error) {
	start := time.Now()
	b.log.Info("indexing book", zap.String("path", b.path))

	if err := b.fs.MkdirAll(b.cacheDir); err != nil {
		return nil, fmt.Errorf("epub: create cache dir: %w", err)
	}

	c := b.cache
	if err := c.BeginWrite(); err != nil {
		return nil, err
	}
	if err := c.BeginSpinePass(); err != nil {
		return nil, err
	}
	doc, err := b.parsePackage(c.AddSpineItem)
	if err != nil {
		return nil, err
	}
	if err := c.EndSpinePass(); err != nil {
		return nil, err
	}

	if err := c.BeginTocPass(); err != nil {
		return nil, err
	}
	b.parseToc(c, doc)
	if err := c.EndTocPass(); err != nil {
		return nil, err
	}
	if err := c.EndWrite(); err != nil {
		return nil, err
	}

	meta := bookcache.Metadata{
		Title:       doc.Title,
		Author:      doc.Author,
		Language:    doc.Language,
		CoverHref:   doc.CoverHref,
		TextRefHref: doc.TextRefHref,
	}
	if err := c.BuildIndex(b.archive, meta); err != nil {
		return nil, err
	}
	c.CleanupTmpFiles()

	b.log.Info("book indexed",
		zap.String("title", doc.Title),
		zap.Int("spine_items", doc.SpineCount),
		zap.Duration("elapsed", time.Since(start)))
	return doc, nil
}

// parsePackage locates and parses the package document, streaming
// spine item hrefs to sink when it is non-nil.
func (b *Book) parsePackage(sink opf.SpineFunc) (*opf.Document, error) {
	cr, err := b.archive.Open(opf.ContainerPath)
	if err != nil {
		return nil, fmt.Errorf("epub: open container: %w", err)
	}
	opfPath, err := opf.ParseContainer(cr)
	cr.Close()
	if err != nil {
		return nil, err
	}

	pr, err := b.archive.Open(opfPath)
	if err != nil {
		return nil, fmt.Errorf("epub: open package document: %w", err)
	}
	defer pr.Close()
	return opf.Parse(pr, opfPath, sink, b.log.Named("opf"))
}

// parseToc streams table-of-contents entries into the cache's TOC
// pass. The EPUB 3 nav document is preferred; the EPUB 2 NCX is the
// fallback. A book with neither, or with only broken ones, simply
// gets an empty table of contents.
func (b *Book) parseToc(c *bookcache.Cache, doc *opf.Document) {
	sink := func(e toc.Entry) error {
		return c.AddTocEntry(e.Title, e.Href, e.Depth)
	}

	if doc.NavHref != "" {
		err := b.parseTocDoc(doc.NavHref, false, sink)
		if err == nil {
			return
		}
		b.log.Warn("nav document unusable, trying ncx",
			zap.String("href", doc.NavHref), zap.Error(err))
	}
	if doc.NCXHref != "" {
		err := b.parseTocDoc(doc.NCXHref, true, sink)
		if err == nil {
			return
		}
		b.log.Warn("ncx unusable", zap.String("href", doc.NCXHref), zap.Error(err))
	}
	b.log.Warn("book has no usable table of contents", zap.String("path", b.path))
}

func (b *Book) parseTocDoc(href string, ncx bool, sink toc.Sink) error {
	rc, err := b.archive.Open(href)
	if err != nil {
		return err
	}
	defer rc.Close()
	if ncx {
		return toc.ParseNCX(rc, href, sink, b.log.Named("toc"))
	}
	return toc.ParseNav(rc, href, sink, b.log.Named("toc"))
}

// loadStyles attaches CSS rules on the cached-index path. A valid
// rules cache is used as-is; otherwise the package document is
// re-parsed for stylesheet hrefs and the rules rebuilt from source.
func (b *Book) loadStyles() {
	p := filepath.Join(b.cacheDir, stylesFile)
	if f, err := b.fs.OpenRead(p); err == nil {
		err = b.styles.LoadCache(f)
		f.Close()
		if err == nil {
			return
		}
		b.log.Debug("styles cache unusable, re-parsing", zap.Error(err))
	}

	doc, err := b.parsePackage(nil)
	if err != nil {
		b.log.Warn("could not re-parse package document for styles", zap.Error(err))
		return
	}
	b.parseStyles(doc.CSSHrefs)
}

// parseStyles rebuilds the rule set from the manifest's stylesheets
// and persists it next to the index. Individual broken or missing
// stylesheets are skipped.
func (b *Book) parseStyles(cssHrefs []string) {
	b.styles.Reset()
	for _, href := range cssHrefs {
		rc, err := b.archive.Open(href)
		if err != nil {
			b.log.Debug("stylesheet missing", zap.String("href", href), zap.Error(err))
			continue
		}
		err = b.styles.ParseStream(rc)
		rc.Close()
		if err != nil {
			b.log.Warn("stylesheet unreadable", zap.String("href", href), zap.Error(err))
		}
	}
	b.saveStyles()
}

func (b *Book) saveStyles() {
	f, err := b.fs.OpenWrite(filepath.Join(b.cacheDir, stylesFile))
	if err != nil {
		b.log.Warn("could not write styles cache", zap.Error(err))
		return
	}
	werr := b.styles.SaveCache(f)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		b.log.Warn("could not write styles cache",
			zap.NamedError("write", werr), zap.NamedError("close", cerr))
	}
}
