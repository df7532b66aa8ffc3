package bookcache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/binio"
	"github.com/jpirnay/crosspoint-reader/internal/hrefs"
)

// rowWriter appends length-prefixed rows to one temp file.
type rowWriter struct {
	f    io.WriteCloser
	buf  *bufio.Writer
	rows int
}

func (c *Cache) openRows(name string) (*rowWriter, error) {
	f, err := c.fs.OpenWrite(c.path(name))
	if err != nil {
		return nil, fmt.Errorf("bookcache: create %s: %w", name, err)
	}
	return &rowWriter{f: f, buf: bufio.NewWriter(f)}, nil
}

func (w *rowWriter) finish() error {
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// BeginWrite starts a build. The cache must be idle; a loaded cache is
// never rebuilt in place.
func (c *Cache) BeginWrite() error {
	if c.state != stateIdle {
		return c.badState("BeginWrite")
	}
	c.state = stateWriting
	return nil
}

// BeginSpinePass opens the spine temp file. Spine items must be
// recorded before any table-of-contents entries so that consolidation
// can resolve TOC targets against a complete spine.
func (c *Cache) BeginSpinePass() error {
	if c.state != stateWriting {
		return c.badState("BeginSpinePass")
	}
	w, err := c.openRows(tmpSpineFile)
	if err != nil {
		return err
	}
	c.spine = w
	c.state = stateSpinePass
	return nil
}

// AddSpineItem appends one reading-order item. href is the item's
// resolved archive path.
func (c *Cache) AddSpineItem(href string) error {
	if c.state != stateSpinePass {
		return c.badState("AddSpineItem")
	}
	if err := binio.WriteString16(c.spine.buf, href); err != nil {
		return fmt.Errorf("bookcache: write spine row: %w", err)
	}
	c.spine.rows++
	return nil
}

// EndSpinePass closes the spine temp file.
func (c *Cache) EndSpinePass() error {
	if c.state != stateSpinePass {
		return c.badState("EndSpinePass")
	}
	if err := c.spine.finish(); err != nil {
		return fmt.Errorf("bookcache: close spine rows: %w", err)
	}
	c.state = stateSpineDone
	return nil
}

// BeginTocPass opens the table-of-contents temp file.
func (c *Cache) BeginTocPass() error {
	if c.state != stateSpineDone {
		return c.badState("BeginTocPass")
	}
	w, err := c.openRows(tmpTocFile)
	if err != nil {
		return err
	}
	c.toc = w
	c.state = stateTocPass
	return nil
}

// AddTocEntry appends one table-of-contents entry. href may carry a
// fragment and may be empty for unlinked headings; it is matched
// against spine items during consolidation. depth is clamped to
// uint16 range.
func (c *Cache) AddTocEntry(title, href string, depth int) error {
	if c.state != stateTocPass {
		return c.badState("AddTocEntry")
	}
	if depth < 0 {
		depth = 0
	} else if depth > math.MaxUint16 {
		depth = math.MaxUint16
	}
	if err := binio.WriteString16(c.toc.buf, title); err != nil {
		return fmt.Errorf("bookcache: write toc row: %w", err)
	}
	if err := binio.WriteString16(c.toc.buf, href); err != nil {
		return fmt.Errorf("bookcache: write toc row: %w", err)
	}
	if err := binio.WriteUint16(c.toc.buf, uint16(depth)); err != nil {
		return fmt.Errorf("bookcache: write toc row: %w", err)
	}
	c.toc.rows++
	return nil
}

// EndTocPass closes the table-of-contents temp file.
func (c *Cache) EndTocPass() error {
	if c.state != stateTocPass {
		return c.badState("EndTocPass")
	}
	if err := c.toc.finish(); err != nil {
		return fmt.Errorf("bookcache: close toc rows: %w", err)
	}
	c.state = stateTocDone
	return nil
}

// EndWrite seals the build. Both passes must have completed; a book
// with no table of contents still runs an empty TOC pass.
func (c *Cache) EndWrite() error {
	if c.state != stateTocDone {
		return c.badState("EndWrite")
	}
	c.state = stateSealed
	return nil
}

type spineRecord struct {
	hrefOff  uint32
	hrefLen  uint16
	cumSize  uint32
	tocIndex int32
}

type tocRecord struct {
	titleOff   uint32
	titleLen   uint16
	depth      uint16
	spineIndex int32
}

// BuildIndex consolidates the temp files into book.bin. Sizes come
// from sizer; an item the sizer cannot measure counts as zero bytes
// and stays in the spine. The index is written to a temp file and
// renamed into place, so a failure leaves any previous index intact.
func (c *Cache) BuildIndex(sizer ItemSizer, meta Metadata) error {
	if c.state != stateSealed {
		return c.badState("BuildIndex")
	}

	var heap bytes.Buffer
	addString := func(s string) (uint32, uint16, error) {
		if len(s) > math.MaxUint16 {
			return 0, 0, fmt.Errorf("bookcache: string too long (%d bytes)", len(s))
		}
		off := heap.Len()
		if off > math.MaxUint32-len(s) {
			return 0, 0, fmt.Errorf("bookcache: string heap overflow")
		}
		heap.WriteString(s)
		return uint32(off), uint16(len(s)), nil
	}

	spineRecs, spineIndexByHref, err := c.consolidateSpine(sizer, addString)
	if err != nil {
		return err
	}
	tocRecs, err := c.consolidateToc(spineRecs, spineIndexByHref, addString)
	if err != nil {
		return err
	}

	if err := c.writeIndex(meta, spineRecs, tocRecs, heap.Bytes()); err != nil {
		return err
	}
	c.state = stateBuilt
	c.log.Debug("index built",
		zap.Int("spine_items", len(spineRecs)),
		zap.Int("toc_entries", len(tocRecs)))
	return nil
}

func (c *Cache) consolidateSpine(sizer ItemSizer, addString func(string) (uint32, uint16, error)) ([]spineRecord, map[string]int32, error) {
	f, err := c.fs.OpenRead(c.path(tmpSpineFile))
	if err != nil {
		return nil, nil, fmt.Errorf("bookcache: open spine rows: %w", err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var recs []spineRecord
	byHref := make(map[string]int32)
	var cum uint64
	for {
		href, err := binio.ReadString16(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bookcache: read spine row: %w", err)
		}

		size, err := sizer.InflatedSize(href)
		if err != nil {
			c.log.Debug("spine item not measurable, counting zero bytes",
				zap.String("href", href), zap.Error(err))
			size = 0
		}
		if size > 0 {
			cum += uint64(size)
		}
		if cum > math.MaxUint32 {
			cum = math.MaxUint32
		}

		off, n, err := addString(href)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := byHref[href]; !dup {
			byHref[href] = int32(len(recs))
		}
		recs = append(recs, spineRecord{
			hrefOff:  off,
			hrefLen:  n,
			cumSize:  uint32(cum),
			tocIndex: -1,
		})
		if len(recs) > math.MaxInt32 {
			return nil, nil, fmt.Errorf("bookcache: too many spine items")
		}
	}
	return recs, byHref, nil
}

func (c *Cache) consolidateToc(spineRecs []spineRecord, spineIndexByHref map[string]int32, addString func(string) (uint32, uint16, error)) ([]tocRecord, error) {
	f, err := c.fs.OpenRead(c.path(tmpTocFile))
	if err != nil {
		return nil, fmt.Errorf("bookcache: open toc rows: %w", err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var recs []tocRecord
	for {
		title, err := binio.ReadString16(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bookcache: read toc row: %w", err)
		}
		href, err := binio.ReadString16(br)
		if err != nil {
			return nil, fmt.Errorf("bookcache: read toc row: %w", err)
		}
		depth, err := binio.ReadUint16(br)
		if err != nil {
			return nil, fmt.Errorf("bookcache: read toc row: %w", err)
		}

		spineIndex := int32(-1)
		if target := hrefs.StripFragment(href); target != "" {
			if i, ok := spineIndexByHref[target]; ok {
				spineIndex = i
			} else {
				c.log.Debug("toc target not in spine",
					zap.String("title", title), zap.String("href", href))
			}
		}

		off, n, err := addString(title)
		if err != nil {
			return nil, err
		}
		// The spine record points back at its first TOC entry.
		if spineIndex >= 0 && spineRecs[spineIndex].tocIndex < 0 {
			spineRecs[spineIndex].tocIndex = int32(len(recs))
		}
		recs = append(recs, tocRecord{
			titleOff:   off,
			titleLen:   n,
			depth:      depth,
			spineIndex: spineIndex,
		})
		if len(recs) > math.MaxInt32 {
			return nil, fmt.Errorf("bookcache: too many toc entries")
		}
	}
	return recs, nil
}

func (c *Cache) writeIndex(meta Metadata, spineRecs []spineRecord, tocRecs []tocRecord, heap []byte) error {
	metaStrings := []string{meta.Title, meta.Author, meta.Language, meta.CoverHref, meta.TextRefHref}
	metaLen := 0
	for _, s := range metaStrings {
		if len(s) > math.MaxUint16 {
			return fmt.Errorf("bookcache: metadata string too long (%d bytes)", len(s))
		}
		metaLen += 2 + len(s)
	}

	spineOff := int64(headerSize + metaLen)
	tocOff := spineOff + int64(len(spineRecs))*recordSize
	stringsOff := tocOff + int64(len(tocRecs))*recordSize
	if stringsOff+int64(len(heap)) > math.MaxUint32 {
		return fmt.Errorf("bookcache: index exceeds format limits")
	}

	f, err := c.fs.OpenWrite(c.path(tmpIndexFile))
	if err != nil {
		return fmt.Errorf("bookcache: create index: %w", err)
	}
	bw := bufio.NewWriter(f)

	werr := func() error {
		if _, err := bw.Write(indexMagic[:]); err != nil {
			return err
		}
		if err := binio.WriteUint16(bw, FormatVersion); err != nil {
			return err
		}
		if err := binio.WriteUint16(bw, 0); err != nil {
			return err
		}
		for _, v := range []uint32{
			uint32(len(spineRecs)),
			uint32(len(tocRecs)),
			uint32(spineOff),
			uint32(tocOff),
			uint32(stringsOff),
			uint32(len(heap)),
		} {
			if err := binio.WriteUint32(bw, v); err != nil {
				return err
			}
		}
		for _, s := range metaStrings {
			if err := binio.WriteString16(bw, s); err != nil {
				return err
			}
		}
		for _, r := range spineRecs {
			if err := binio.WriteUint32(bw, r.hrefOff); err != nil {
				return err
			}
			if err := binio.WriteUint16(bw, r.hrefLen); err != nil {
				return err
			}
			if err := binio.WriteUint16(bw, 0); err != nil {
				return err
			}
			if err := binio.WriteUint32(bw, r.cumSize); err != nil {
				return err
			}
			if err := binio.WriteInt32(bw, r.tocIndex); err != nil {
				return err
			}
		}
		for _, r := range tocRecs {
			if err := binio.WriteUint32(bw, r.titleOff); err != nil {
				return err
			}
			if err := binio.WriteUint16(bw, r.titleLen); err != nil {
				return err
			}
			if err := binio.WriteUint16(bw, r.depth); err != nil {
				return err
			}
			if err := binio.WriteInt32(bw, r.spineIndex); err != nil {
				return err
			}
			if err := binio.WriteUint32(bw, 0); err != nil {
				return err
			}
		}
		if _, err := bw.Write(heap); err != nil {
			return err
		}
		return bw.Flush()
	}()
	closeErr := f.Close()
	if werr != nil {
		return fmt.Errorf("bookcache: write index: %w", werr)
	}
	if closeErr != nil {
		return fmt.Errorf("bookcache: write index: %w", closeErr)
	}

	if err := c.fs.Rename(c.path(tmpIndexFile), c.path(IndexFile)); err != nil {
		return fmt.Errorf("bookcache: commit index: %w", err)
	}
	return nil
}

// CleanupTmpFiles removes the pass temp files. It is best effort and
// safe to call in any state; a failed build deliberately leaves the
// temps for this explicit cleanup or for inspection.
func (c *Cache) CleanupTmpFiles() {
	for _, name := range []string{tmpSpineFile, tmpTocFile, tmpIndexFile} {
		p := c.path(name)
		if !c.fs.Exists(p) {
			continue
		}
		if err := c.fs.Remove(p); err != nil {
			c.log.Warn("could not remove temp file", zap.String("path", p), zap.Error(err))
		}
	}
}
