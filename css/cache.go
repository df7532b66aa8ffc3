package css

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/binio"
)

// Cache-related errors.
var (
	// ErrCacheInvalid indicates an unreadable or stale rule cache. The
	// caller is expected to re-parse the stylesheets and write a fresh
	// cache.
	ErrCacheInvalid = errors.New("css: rule cache invalid")
)

var cacheMagic = [4]byte{'C', 'P', 'C', 'S'}

// cacheVersion is bumped whenever the blob layout changes; older blobs
// then read as invalid and get rebuilt.
const cacheVersion = 1

// SaveCache writes the sheet's rules as a binary blob that LoadCache
// can restore without re-parsing stylesheet text.
func (s *Sheet) SaveCache(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(cacheMagic[:]); err != nil {
		return fmt.Errorf("css: write cache: %w", err)
	}
	if err := binio.WriteUint16(bw, cacheVersion); err != nil {
		return fmt.Errorf("css: write cache: %w", err)
	}
	if err := binio.WriteUint16(bw, 0); err != nil {
		return fmt.Errorf("css: write cache: %w", err)
	}
	if err := binio.WriteUint32(bw, uint32(len(s.rules))); err != nil {
		return fmt.Errorf("css: write cache: %w", err)
	}
	for _, r := range s.rules {
		if err := writeRule(bw, r); err != nil {
			return fmt.Errorf("css: write cache: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("css: write cache: %w", err)
	}
	s.log.Debug("saved rule cache", zap.Int("rules", len(s.rules)))
	return nil
}

func writeRule(w io.Writer, r Rule) error {
	if err := binio.WriteString16(w, r.Selector); err != nil {
		return err
	}
	if len(r.Decls) > 0xFFFF {
		return binio.ErrStringTooLong
	}
	if err := binio.WriteUint16(w, uint16(len(r.Decls))); err != nil {
		return err
	}
	for _, d := range r.Decls {
		if err := binio.WriteString16(w, d.Property); err != nil {
			return err
		}
		if err := binio.WriteString16(w, d.Value); err != nil {
			return err
		}
	}
	return nil
}

// LoadCache replaces the sheet's rules with the contents of a cache
// blob. Any structural problem, including a version mismatch, yields
// ErrCacheInvalid and leaves the sheet empty.
func (s *Sheet) LoadCache(r io.Reader) error {
	s.rules = nil
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return invalid("short header")
	}
	if magic != cacheMagic {
		return invalid("bad magic")
	}
	version, err := binio.ReadUint16(br)
	if err != nil || version != cacheVersion {
		return invalid(fmt.Sprintf("version %d", version))
	}
	if _, err := binio.ReadUint16(br); err != nil {
		return invalid("short header")
	}
	count, err := binio.ReadUint32(br)
	if err != nil {
		return invalid("short header")
	}

	for i := uint32(0); i < count; i++ {
		rule, err := readRule(br)
		if err != nil {
			s.rules = nil
			return invalid("truncated rule data")
		}
		s.rules = append(s.rules, rule)
	}
	s.log.Debug("loaded rule cache", zap.Int("rules", len(s.rules)))
	return nil
}

func readRule(r io.Reader) (Rule, error) {
	sel, err := binio.ReadString16(r)
	if err != nil {
		return Rule{}, err
	}
	count, err := binio.ReadUint16(r)
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{Selector: sel}
	for i := 0; i < int(count); i++ {
		prop, err := binio.ReadString16(r)
		if err != nil {
			return Rule{}, err
		}
		val, err := binio.ReadString16(r)
		if err != nil {
			return Rule{}, err
		}
		rule.Decls = append(rule.Decls, Decl{Property: prop, Value: val})
	}
	return rule, nil
}

func invalid(detail string) error {
	return fmt.Errorf("%w: %s", ErrCacheInvalid, detail)
}
