package imaging

// Format identifies an image payload by its magic bytes.
type Format int

const (
	Unknown Format = iota
	JPEG
	GIF
	PNG
	BMP
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case GIF:
		return "gif"
	case PNG:
		return "png"
	case BMP:
		return "bmp"
	default:
		return "unknown"
	}
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// Detect sniffs the image format from the payload's leading bytes.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return JPEG
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return GIF
	case len(data) >= 8 && string(data[:8]) == string(pngSignature):
		return PNG
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return BMP
	default:
		return Unknown
	}
}
