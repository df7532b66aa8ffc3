package imaging

import (
	"encoding/binary"
	"image"
	"io"
)

// BMP container layout constants.
const (
	bmpFileHeaderSize = 14
	bmpInfoHeaderSize = 40
	bmpPixelsPerMeter = 2835 // 72 dpi
)

// monoThreshold separates black from white when quantizing to 1-bit.
// No dithering is applied; e-ink thumbnails read better with hard
// edges.
const monoThreshold = 0x80

// writeBMPHeaders writes the file and info headers. rowSize is the
// padded byte width of one row and paletteSize the byte length of the
// color table that follows the headers. Negative-height (top-down)
// layout is selected with topDown.
func writeBMPHeaders(w io.Writer, width, height int, bitCount uint16, rowSize, paletteSize int, topDown bool) error {
	imageSize := rowSize * height
	dataOffset := bmpFileHeaderSize + bmpInfoHeaderSize + paletteSize
	fileSize := dataOffset + imageSize

	var h [bmpFileHeaderSize + bmpInfoHeaderSize]byte
	h[0], h[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(h[2:], uint32(fileSize))
	binary.LittleEndian.PutUint32(h[10:], uint32(dataOffset))

	binary.LittleEndian.PutUint32(h[14:], bmpInfoHeaderSize)
	binary.LittleEndian.PutUint32(h[18:], uint32(int32(width)))
	bmpHeight := int32(height)
	if topDown {
		bmpHeight = -bmpHeight
	}
	binary.LittleEndian.PutUint32(h[22:], uint32(bmpHeight))
	binary.LittleEndian.PutUint16(h[26:], 1)
	binary.LittleEndian.PutUint16(h[28:], bitCount)
	binary.LittleEndian.PutUint32(h[34:], uint32(imageSize))
	binary.LittleEndian.PutUint32(h[38:], bmpPixelsPerMeter)
	binary.LittleEndian.PutUint32(h[42:], bmpPixelsPerMeter)
	colors := uint32(paletteSize / 4)
	binary.LittleEndian.PutUint32(h[46:], colors)
	binary.LittleEndian.PutUint32(h[50:], colors)

	_, err := w.Write(h[:])
	return err
}

// monoPalette is black then white, so a set bit reads as white.
var monoPalette = []byte{
	0x00, 0x00, 0x00, 0x00,
	0xFF, 0xFF, 0xFF, 0x00,
}

func grayPaletteBGRA() []byte {
	p := make([]byte, 256*4)
	for i := 0; i < 256; i++ {
		p[4*i], p[4*i+1], p[4*i+2] = byte(i), byte(i), byte(i)
	}
	return p
}

// writeGray8 encodes img as an 8-bit paletted BMP with a linear gray
// ramp, rows bottom-up.
func writeGray8(w io.Writer, img *image.Gray) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	rowSize := (width + 3) &^ 3

	if err := writeBMPHeaders(w, width, height, 8, rowSize, 256*4, false); err != nil {
		return err
	}
	if _, err := w.Write(grayPaletteBGRA()); err != nil {
		return err
	}

	row := make([]byte, rowSize)
	for y := height - 1; y >= 0; y-- {
		src := img.Pix[y*img.Stride : y*img.Stride+width]
		copy(row, src)
		for x := width; x < rowSize; x++ {
			row[x] = 0
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// writeMono encodes img as a 1-bit BMP, rows top-down. Pixels at or
// above threshold come out white.
func writeMono(w io.Writer, img *image.Gray, threshold uint8) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	rowSize := ((width + 31) / 32) * 4

	if err := writeBMPHeaders(w, width, height, 1, rowSize, len(monoPalette), true); err != nil {
		return err
	}
	if _, err := w.Write(monoPalette); err != nil {
		return err
	}

	row := make([]byte, rowSize)
	for y := 0; y < height; y++ {
		for i := range row {
			row[i] = 0
		}
		src := img.Pix[y*img.Stride : y*img.Stride+width]
		for x, v := range src {
			if v >= threshold {
				row[x/8] |= 0x80 >> (x % 8)
			}
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
