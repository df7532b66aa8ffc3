package bookcache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/binio"
)

func missf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCacheMiss, fmt.Sprintf(format, args...))
}

// Load opens and validates book.bin. Any structural problem, including
// a different format version, returns ErrCacheMiss so the caller can
// rebuild. Loading an already loaded cache is a no-op.
func (c *Cache) Load() error {
	switch c.state {
	case stateLoaded:
		return nil
	case stateIdle, stateBuilt:
	default:
		return c.badState("Load")
	}

	f, err := c.fs.OpenRead(c.path(IndexFile))
	if err != nil {
		return missf("open index: %v", err)
	}
	defer f.Close()

	fileSize, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return missf("size index: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return missf("rewind index: %v", err)
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return missf("short header")
	}
	if !bytes.Equal(hdr[0:4], indexMagic[:]) {
		return missf("bad magic")
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != FormatVersion {
		return missf("format version %d, want %d", v, FormatVersion)
	}
	spineCount := int64(binary.LittleEndian.Uint32(hdr[8:12]))
	tocCount := int64(binary.LittleEndian.Uint32(hdr[12:16]))
	spineOff := int64(binary.LittleEndian.Uint32(hdr[16:20]))
	tocOff := int64(binary.LittleEndian.Uint32(hdr[20:24]))
	stringsOff := int64(binary.LittleEndian.Uint32(hdr[24:28]))
	stringsLen := int64(binary.LittleEndian.Uint32(hdr[28:32]))

	br := bufio.NewReader(f)
	metaLen := int64(0)
	var metaStrings [5]string
	for i := range metaStrings {
		s, err := binio.ReadString16(br)
		if err != nil {
			return missf("short metadata")
		}
		metaStrings[i] = s
		metaLen += 2 + int64(len(s))
	}

	// The tables and heap must tile the file exactly.
	if spineOff != headerSize+metaLen {
		return missf("spine table offset %d, want %d", spineOff, headerSize+metaLen)
	}
	if tocOff != spineOff+spineCount*recordSize {
		return missf("toc table offset %d, want %d", tocOff, spineOff+spineCount*recordSize)
	}
	if stringsOff != tocOff+tocCount*recordSize {
		return missf("string heap offset %d, want %d", stringsOff, tocOff+tocCount*recordSize)
	}
	if stringsOff+stringsLen != fileSize {
		return missf("file size %d, want %d", fileSize, stringsOff+stringsLen)
	}

	c.meta = Metadata{
		Title:       metaStrings[0],
		Author:      metaStrings[1],
		Language:    metaStrings[2],
		CoverHref:   metaStrings[3],
		TextRefHref: metaStrings[4],
	}
	c.spineCount = int(spineCount)
	c.tocCount = int(tocCount)
	c.spineOff = spineOff
	c.tocOff = tocOff
	c.stringsOff = stringsOff
	c.stringsLen = stringsLen
	c.state = stateLoaded
	c.log.Debug("index loaded",
		zap.Int("spine_items", c.spineCount),
		zap.Int("toc_entries", c.tocCount))
	return nil
}

// Meta returns the stored metadata. It is zero until Load succeeds.
func (c *Cache) Meta() Metadata { return c.meta }

// SpineCount returns the number of reading-order items, 0 until loaded.
func (c *Cache) SpineCount() int {
	if c.state != stateLoaded {
		return 0
	}
	return c.spineCount
}

// TocCount returns the number of table-of-contents entries, 0 until
// loaded.
func (c *Cache) TocCount() int {
	if c.state != stateLoaded {
		return 0
	}
	return c.tocCount
}

// SpineEntry reads one reading-order record. An out-of-range index or
// an unloaded cache yields the zero entry.
func (c *Cache) SpineEntry(i int) SpineEntry {
	var e SpineEntry
	if c.state != stateLoaded || i < 0 || i >= c.spineCount {
		c.log.Debug("spine entry unavailable",
			zap.Int("index", i), zap.Int("count", c.spineCount))
		return e
	}
	err := c.readRecord(c.spineOff+int64(i)*recordSize, func(rec []byte, f io.ReadSeeker) error {
		href, err := c.heapString(f, binary.LittleEndian.Uint32(rec[0:4]), binary.LittleEndian.Uint16(rec[4:6]))
		if err != nil {
			return err
		}
		e.Href = href
		e.CumulativeSize = binary.LittleEndian.Uint32(rec[8:12])
		e.TocIndex = int32(binary.LittleEndian.Uint32(rec[12:16]))
		return nil
	})
	if err != nil {
		c.log.Error("read spine entry", zap.Int("index", i), zap.Error(err))
		return SpineEntry{}
	}
	return e
}

// TocEntry reads one table-of-contents record. An out-of-range index
// or an unloaded cache yields the zero entry.
func (c *Cache) TocEntry(i int) TocEntry {
	var e TocEntry
	if c.state != stateLoaded || i < 0 || i >= c.tocCount {
		c.log.Debug("toc entry unavailable",
			zap.Int("index", i), zap.Int("count", c.tocCount))
		return e
	}
	err := c.readRecord(c.tocOff+int64(i)*recordSize, func(rec []byte, f io.ReadSeeker) error {
		title, err := c.heapString(f, binary.LittleEndian.Uint32(rec[0:4]), binary.LittleEndian.Uint16(rec[4:6]))
		if err != nil {
			return err
		}
		e.Title = title
		e.Depth = binary.LittleEndian.Uint16(rec[6:8])
		e.SpineIndex = int32(binary.LittleEndian.Uint32(rec[8:12]))
		return nil
	})
	if err != nil {
		c.log.Error("read toc entry", zap.Int("index", i), zap.Error(err))
		return TocEntry{}
	}
	return e
}

// BookSize returns the total uncompressed size of all spine items, 0
// for an empty or unloaded cache.
func (c *Cache) BookSize() int64 {
	if c.state != stateLoaded || c.spineCount == 0 {
		return 0
	}
	return int64(c.SpineEntry(c.spineCount - 1).CumulativeSize)
}

// readRecord opens the index, reads the fixed-size record at off and
// hands it to decode with the still-open file for heap lookups.
func (c *Cache) readRecord(off int64, decode func(rec []byte, f io.ReadSeeker) error) error {
	f, err := c.fs.OpenRead(c.path(IndexFile))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek record: %w", err)
	}
	var rec [recordSize]byte
	if _, err := io.ReadFull(f, rec[:]); err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	return decode(rec[:], f)
}

func (c *Cache) heapString(f io.ReadSeeker, off uint32, n uint16) (string, error) {
	if int64(off)+int64(n) > c.stringsLen {
		return "", fmt.Errorf("string at %d+%d outside heap of %d bytes", off, n, c.stringsLen)
	}
	if n == 0 {
		return "", nil
	}
	if _, err := f.Seek(c.stringsOff+int64(off), io.SeekStart); err != nil {
		return "", fmt.Errorf("seek string: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(buf), nil
}
