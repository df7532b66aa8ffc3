package imaging

import "io"

// Marker stroke widths used by the cover pipeline.
const (
	MarkerCoverStroke = 6
	MarkerThumbStroke = 2
)

// WriteMarkerBMP writes the placeholder shown when no usable cover
// image exists: a 1-bit white field with a black X drawn corner to
// corner. The output passes the same validity checks as a real
// thumbnail, so a failed cover is converted once, not on every open.
func WriteMarkerBMP(w io.Writer, width, height, stroke int) error {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
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
			row[i] = 0xFF
		}
		// Both diagonals, thickened horizontally.
		d := y * width / height
		for t := 0; t < stroke; t++ {
			clearBit(row, d+t, width)
			clearBit(row, width-1-d-t, width)
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func clearBit(row []byte, x, width int) {
	if x < 0 || x >= width {
		return
	}
	row[x/8] &^= 0x80 >> (x % 8)
}
