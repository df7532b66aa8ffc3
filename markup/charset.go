package markup

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

var xmlEncodingRe = regexp.MustCompile(`(?i)<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)

// NewDecodingReader wraps r so that its content is read as UTF-8. The
// source encoding is taken from a byte order mark when present, otherwise
// from the XML declaration's encoding attribute. Input with neither is
// passed through unchanged, so plain UTF-8 documents pay no conversion
// cost.
func NewDecodingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, _ := br.Peek(1024)

	if label, skip := detectBOM(head); label != "" || skip > 0 {
		br.Discard(skip)
		if label == "" {
			return br
		}
		return decodeWith(label, br)
	}

	m := xmlEncodingRe.FindSubmatch(head)
	if m == nil {
		return br
	}
	label := strings.ToLower(string(m[1]))
	if label == "utf-8" || label == "us-ascii" {
		return br
	}
	return decodeWith(label, br)
}

// detectBOM returns the encoding label implied by a byte order mark and
// how many bytes to discard. A UTF-8 BOM yields an empty label since no
// conversion is needed. BOM-less UTF-16 is recognized by the zero-byte
// pattern of a leading "<".
func detectBOM(head []byte) (label string, skip int) {
	switch {
	case len(head) >= 2 && head[0] == 0xFE && head[1] == 0xFF:
		return "utf-16be", 2
	case len(head) >= 2 && head[0] == 0xFF && head[1] == 0xFE:
		return "utf-16le", 2
	case len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF:
		return "", 3
	case len(head) >= 2 && head[0] == 0x00 && head[1] == '<':
		return "utf-16be", 0
	case len(head) >= 2 && head[0] == '<' && head[1] == 0x00:
		return "utf-16le", 0
	}
	return "", 0
}

func decodeWith(label string, r io.Reader) io.Reader {
	decoded, err := charset.NewReaderLabel(label, r)
	if err != nil {
		// Unknown label: read the bytes as they are.
		return r
	}
	return decoded
}
