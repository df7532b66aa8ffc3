package imaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

// GIF decode errors.
var (
	errGIFTooLarge  = errors.New("imaging: gif exceeds size limit")
	errGIFTruncated = errors.New("imaging: gif truncated")
	errGIFNoImage   = errors.New("imaging: gif has no image data")
	errGIFBadDims   = errors.New("imaging: gif dimensions out of range")
)

// maxGIFDimension bounds the first frame's width and height.
const maxGIFDimension = 4096

// gifFrame is the decoded first frame: palette indices plus the color
// table that applies to them.
type gifFrame struct {
	width, height int
	pixels        []byte
	palette       []byte // RGB triples
	colors        int
}

// fallbackGIFPalette serves streams that declare neither a global nor a
// local color table.
var fallbackGIFPalette = func() []byte {
	p := make([]byte, 256*3)
	for i := 0; i < 256; i++ {
		p[3*i], p[3*i+1], p[3*i+2] = byte(i), byte(i), byte(i)
	}
	return p
}()

// decodeGIF decodes the first frame of a GIF payload. Later frames,
// interlacing and transparency are ignored; covers are static images.
func decodeGIF(data []byte) (*gifFrame, error) {
	if len(data) > maxGIFInput {
		return nil, fmt.Errorf("%w: %d bytes", errGIFTooLarge, len(data))
	}
	if len(data) < 13 || (string(data[:6]) != "GIF87a" && string(data[:6]) != "GIF89a") {
		return nil, errGIFTruncated
	}
	p := 6

	// Logical screen descriptor: size, flags, background, aspect.
	flags := data[p+4]
	p += 7

	var global []byte
	if flags&0x80 != 0 {
		size := 3 * (1 << ((flags & 0x07) + 1))
		if p+size > len(data) {
			return nil, errGIFTruncated
		}
		global = data[p : p+size]
		p += size
	}

	// Skip extension blocks until the image separator.
	for {
		if p >= len(data) {
			return nil, errGIFTruncated
		}
		b := data[p]
		if b == 0x2C {
			p++
			break
		}
		if b == 0x3B {
			return nil, errGIFNoImage
		}
		if b != 0x21 {
			// Unknown byte; step over it and resync.
			p++
			continue
		}
		p += 2 // introducer and label
		for {
			if p >= len(data) {
				return nil, errGIFTruncated
			}
			bs := int(data[p])
			p++
			if bs == 0 {
				break
			}
			p += bs
		}
	}

	if p+9 > len(data) {
		return nil, errGIFTruncated
	}
	width := int(binary.LittleEndian.Uint16(data[p+4:]))
	height := int(binary.LittleEndian.Uint16(data[p+6:]))
	iflags := data[p+8]
	p += 9

	if width < 1 || width > maxGIFDimension || height < 1 || height > maxGIFDimension {
		return nil, fmt.Errorf("%w: %dx%d", errGIFBadDims, width, height)
	}

	palette := global
	if iflags&0x80 != 0 {
		size := 3 * (1 << ((iflags & 0x07) + 1))
		if p+size > len(data) {
			return nil, errGIFTruncated
		}
		palette = data[p : p+size]
		p += size
	}
	if palette == nil {
		palette = fallbackGIFPalette
	}

	if p >= len(data) {
		return nil, errGIFTruncated
	}
	minCodeSize := int(data[p])
	p++
	if minCodeSize < 2 || minCodeSize > 8 {
		return nil, fmt.Errorf("imaging: gif lzw code size %d out of range", minCodeSize)
	}

	pixels := make([]byte, width*height)
	if _, err := lzwDecode(data[p:], minCodeSize, pixels); err != nil {
		return nil, err
	}

	return &gifFrame{
		width:   width,
		height:  height,
		pixels:  pixels,
		palette: palette,
		colors:  len(palette) / 3,
	}, nil
}

// gifToBMP converts a GIF payload into a 24-bit BMP at native size.
func gifToBMP(data []byte, w io.Writer) error {
	g, err := decodeGIF(data)
	if err != nil {
		return err
	}

	rowSize := (g.width*3 + 3) &^ 3
	if err := writeBMPHeaders(w, g.width, g.height, 24, rowSize, 0, false); err != nil {
		return fmt.Errorf("imaging: write gif bmp: %w", err)
	}

	row := make([]byte, rowSize)
	for y := g.height - 1; y >= 0; y-- {
		line := g.pixels[y*g.width : (y+1)*g.width]
		for x, idx := range line {
			var r8, g8, b8 byte
			if int(idx) < g.colors {
				r8 = g.palette[3*int(idx)]
				g8 = g.palette[3*int(idx)+1]
				b8 = g.palette[3*int(idx)+2]
			}
			row[x*3] = b8
			row[x*3+1] = g8
			row[x*3+2] = r8
		}
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("imaging: write gif bmp: %w", err)
		}
	}
	return nil
}

// gray renders the frame as a luminance image for thumbnail scaling.
func (g *gifFrame) gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.width, g.height))
	for i, idx := range g.pixels {
		var y byte
		if int(idx) < g.colors {
			r8 := int(g.palette[3*int(idx)])
			g8 := int(g.palette[3*int(idx)+1])
			b8 := int(g.palette[3*int(idx)+2])
			y = byte((299*r8 + 587*g8 + 114*b8) / 1000)
		}
		img.Pix[i] = y
	}
	return img
}
