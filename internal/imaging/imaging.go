// Package imaging converts cover images into the BMP forms the display
// pipeline consumes: full-size grayscale covers and 1-bit thumbnails,
// with a drawn placeholder for material that cannot be decoded.
//
// JPEG sources use the standard decoder. GIF sources use a bounded
// single-frame decoder built for untrusted input; its working memory is
// capped regardless of what the stream claims. Conversion outcomes are
// reported as a tagged Result so the one caller that falls back to the
// placeholder can treat every failure mode alike.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// Outcome classifies a conversion attempt.
type Outcome int

const (
	// UnsupportedFormat means the payload is not a format the
	// converter handles.
	UnsupportedFormat Outcome = iota
	// DecodeFailed means the format was recognized but the payload
	// could not be decoded or written out.
	DecodeFailed
	// Decoded means the conversion completed.
	Decoded
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case DecodeFailed:
		return "decode failed"
	default:
		return "unsupported format"
	}
}

// Result reports how a conversion ended. Err is nil when Outcome is
// Decoded and explains the failure otherwise.
type Result struct {
	Outcome Outcome
	Err     error
}

func decoded() Result { return Result{Outcome: Decoded} }

func failed(err error) Result { return Result{Outcome: DecodeFailed, Err: err} }

func unsupported(f Format) Result {
	return Result{
		Outcome: UnsupportedFormat,
		Err:     fmt.Errorf("imaging: unsupported cover format %q", f),
	}
}

// maxGIFInput caps accepted GIF payloads; anything larger is rejected
// before decoding starts.
const maxGIFInput = 200 * 1024

// CoverBMP converts an image payload into a grayscale BMP sized for the
// display. With crop set the output is exactly maxWidth by maxHeight
// with the source center-cropped to fill; otherwise the source is
// scaled down to fit inside those bounds and keeps its aspect ratio.
// GIF sources are written as 24-bit BMPs at their native size.
func CoverBMP(data []byte, w io.Writer, maxWidth, maxHeight int, crop bool) Result {
	if maxWidth <= 0 || maxHeight <= 0 {
		return failed(errors.New("imaging: invalid cover target size"))
	}
	switch Detect(data) {
	case JPEG:
		src, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return failed(fmt.Errorf("imaging: decode jpeg: %w", err))
		}
		var gray *image.Gray
		if crop {
			gray = scaleToFill(src, maxWidth, maxHeight)
		} else {
			gray = scaleToFit(src, maxWidth, maxHeight)
		}
		if err := writeGray8(w, gray); err != nil {
			return failed(fmt.Errorf("imaging: write cover bmp: %w", err))
		}
		return decoded()

	case GIF:
		if err := gifToBMP(data, w); err != nil {
			return failed(err)
		}
		return decoded()

	default:
		return unsupported(Detect(data))
	}
}

// ThumbBMP converts an image payload into a 1-bit BMP of exactly width
// by height, center-cropping the source to fill the frame.
func ThumbBMP(data []byte, w io.Writer, width, height int) Result {
	if width <= 0 || height <= 0 {
		return failed(errors.New("imaging: invalid thumbnail size"))
	}
	var gray *image.Gray
	switch Detect(data) {
	case JPEG:
		src, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return failed(fmt.Errorf("imaging: decode jpeg: %w", err))
		}
		gray = scaleToFill(src, width, height)

	case GIF:
		g, err := decodeGIF(data)
		if err != nil {
			return failed(err)
		}
		gray = scaleToFill(g.gray(), width, height)

	default:
		return unsupported(Detect(data))
	}

	if err := writeMono(w, gray, monoThreshold); err != nil {
		return failed(fmt.Errorf("imaging: write thumbnail bmp: %w", err))
	}
	return decoded()
}
