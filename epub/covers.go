package epub

import (
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jpirnay/crosspoint-reader/internal/imaging"
)

const (
	coverFile     = "cover.bmp"
	coverCropFile = "cover_crop.bmp"
)

// Locations probed for a cover image when the package document
// declares none.
var (
	coverDirs  = []string{"", "images", "Images", "OEBPS", "OEBPS/images", "OEBPS/Images"}
	coverNames = []string{"cover.jpg", "cover.jpeg"}
)

// CoverBMPPath returns the cache path of the full-size cover, in the
// fitted or the cropped-to-fill variant.
func (b *Book) CoverBMPPath(cropped bool) string {
	name := coverFile
	if cropped {
		name = coverCropFile
	}
	return filepath.Join(b.cacheDir, name)
}

// ThumbBMPPath returns the cache path of the thumbnail at the given
// height.
func (b *Book) ThumbBMPPath(height int) string {
	return filepath.Join(b.cacheDir, fmt.Sprintf("thumb_%d.bmp", height))
}

// IsValidCoverBMP reports whether path holds a non-empty BMP. A marker
// image counts as valid; only a missing, empty or non-BMP file fails,
// so a generated result, real or marker, is never regenerated.
func (b *Book) IsValidCoverBMP(path string) bool {
	f, err := b.fs.OpenRead(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic[0] == 'B' && magic[1] == 'M'
}

// GenerateCoverBMP renders the book's cover to a panel-sized BMP in
// the cache directory, unless a valid one already exists. cropped
// selects crop-to-fill framing instead of fit-within. When the book
// has no cover image at all, nothing is written and ErrNoCover is
// returned; a cover that exists but cannot be decoded produces a
// marker image and no error.
func (b *Book) GenerateCoverBMP(cropped bool) error {
	p := b.CoverBMPPath(cropped)
	if b.IsValidCoverBMP(p) {
		return nil
	}
	if b.fs.Exists(p) {
		if err := b.fs.Remove(p); err != nil {
			return fmt.Errorf("epub: replace stale cover: %w", err)
		}
	}

	src := b.coverSource()
	if src == "" {
		return ErrNoCover
	}

	w, h := b.displayW, b.displayH
	if w > h {
		w, h = h, w
	}
	return b.renderCover(p, src, w, h, imaging.MarkerCoverStroke,
		func(data []byte, out io.Writer) imaging.Result {
			return imaging.CoverBMP(data, out, w, h, cropped)
		})
}

// GenerateThumbBMP renders a 1-bit thumbnail of the cover at the given
// height, unless a valid one already exists. A book with no cover gets
// an empty placeholder file, so list views stop probing the archive,
// and ErrNoCover.
func (b *Book) GenerateThumbBMP(height int) error {
	if height < 1 {
		height = 1
	}
	p := b.ThumbBMPPath(height)
	if b.IsValidCoverBMP(p) {
		return nil
	}
	if b.fs.Exists(p) {
		if err := b.fs.Remove(p); err != nil {
			return fmt.Errorf("epub: replace stale thumbnail: %w", err)
		}
	}

	width := height * 3 / 5

	src := b.coverSource()
	if src == "" {
		f, err := b.fs.OpenWrite(p)
		if err != nil {
			return fmt.Errorf("epub: create thumbnail: %w", err)
		}
		f.Close()
		return ErrNoCover
	}

	return b.renderCover(p, src, width, height, imaging.MarkerThumbStroke,
		func(data []byte, out io.Writer) imaging.Result {
			return imaging.ThumbBMP(data, out, width, height)
		})
}

// renderCover reads src from the archive and writes it through render.
// Anything short of a full decode falls back to a marker image at the
// same dimensions, written over whatever the failed attempt left
// behind.
func (b *Book) renderCover(p, src string, markerW, markerH, stroke int, render func([]byte, io.Writer) imaging.Result) error {
	data, readErr := b.archive.ReadAll(src)

	f, err := b.fs.OpenWrite(p)
	if err != nil {
		return fmt.Errorf("epub: create cover image: %w", err)
	}

	var res imaging.Result
	if readErr != nil {
		res = imaging.Result{Outcome: imaging.DecodeFailed, Err: readErr}
	} else {
		res = render(data, f)
	}
	if res.Outcome == imaging.Decoded {
		if err := f.Close(); err != nil {
			return fmt.Errorf("epub: write cover image: %w", err)
		}
		return nil
	}
	f.Close()

	b.log.Debug("cover not decodable, writing marker",
		zap.String("href", src),
		zap.Stringer("outcome", res.Outcome),
		zap.Error(res.Err))

	// Reopening truncates the partial output.
	f, err = b.fs.OpenWrite(p)
	if err != nil {
		return fmt.Errorf("epub: create marker image: %w", err)
	}
	werr := imaging.WriteMarkerBMP(f, markerW, markerH, stroke)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("epub: write marker image: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("epub: write marker image: %w", cerr)
	}
	return nil
}

// coverSource returns the archive path of the cover image, preferring
// the package declaration and falling back to a scan of well-known
// locations. "" means the book has no cover.
func (b *Book) coverSource() string {
	if href := b.cache.Meta().CoverHref; href != "" && b.archive.Exists(href) {
		return href
	}
	for _, dir := range coverDirs {
		for _, name := range coverNames {
			candidate := name
			if dir != "" {
				candidate = dir + "/" + name
			}
			if b.archive.Exists(candidate) {
				return candidate
			}
		}
	}
	return ""
}
