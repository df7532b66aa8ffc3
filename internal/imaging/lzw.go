package imaging

import "errors"

// LZW decoder limits. The string heap is sized from the expected output
// and hard-capped, so a hostile stream cannot make the decoder allocate
// beyond maxHeapSize no matter what its codes describe.
const (
	maxCodeTableSize = 4096
	maxLZWCodeSize   = 12
	minHeapSize      = 8 * 1024
	maxHeapSize      = 64 * 1024
)

var (
	errLZWBadCode  = errors.New("imaging: lzw: code references no table entry")
	errLZWHeapFull = errors.New("imaging: lzw: string heap exhausted")
	errLZWNoOutput = errors.New("imaging: lzw: stream produced no output")
)

// codeEntry describes one dictionary string as a slice of the shared
// heap.
type codeEntry struct {
	offset int
	length int
	used   bool
}

// blockBits reads LSB-first bit groups from a GIF sub-block sequence.
type blockBits struct {
	data  []byte
	pos   int
	block int
	bits  uint32
	nbits int
	done  bool
}

// read returns the next n-bit group, or -1 once the stream ends.
func (r *blockBits) read(n int) int {
	for r.nbits < n {
		if r.block == 0 {
			if r.done || r.pos >= len(r.data) {
				return -1
			}
			r.block = int(r.data[r.pos])
			r.pos++
			if r.block == 0 {
				r.done = true
				return -1
			}
		}
		if r.pos >= len(r.data) {
			return -1
		}
		r.bits |= uint32(r.data[r.pos]) << r.nbits
		r.pos++
		r.block--
		r.nbits += 8
	}
	v := int(r.bits & (1<<n - 1))
	r.bits >>= n
	r.nbits -= n
	return v
}

// lzwDecode inflates GIF image data into out. data starts at the first
// sub-block, after the minimum code size byte. It returns the number of
// bytes produced; the error is non-nil only when nothing usable came
// out.
func lzwDecode(data []byte, minCodeSize int, out []byte) (int, error) {
	clear := 1 << minCodeSize
	end := clear + 1
	codeSize := minCodeSize + 1

	heapSize := len(out) * 16
	if heapSize < minHeapSize {
		heapSize = minHeapSize
	}
	if heapSize > maxHeapSize {
		heapSize = maxHeapSize
	}
	heap := make([]byte, heapSize)
	table := make([]codeEntry, maxCodeTableSize)
	for i := 0; i < clear; i++ {
		heap[i] = byte(i)
		table[i] = codeEntry{offset: i, length: 1, used: true}
	}
	heapUsed := clear
	nextCode := end + 1
	prevCode := -1

	br := blockBits{data: data}
	outPos := 0
	var err error

decode:
	for outPos < len(out) {
		code := br.read(codeSize)
		if code < 0 || code == end {
			break
		}
		if code == clear {
			for i := end + 1; i < nextCode; i++ {
				table[i].used = false
			}
			nextCode = end + 1
			codeSize = minCodeSize + 1
			prevCode = -1
			heapUsed = clear
			continue
		}

		known := code < maxCodeTableSize && table[code].used
		var cur codeEntry
		switch {
		case known:
			cur = table[code]
		case code == nextCode && prevCode >= 0 && table[prevCode].used:
			// The KwKwK case: the new string is the previous string
			// plus its own first byte. Build it at the heap top; the
			// add step below registers that same region.
			prev := table[prevCode]
			if heapUsed+prev.length+1 > heapSize {
				err = errLZWHeapFull
				break decode
			}
			copy(heap[heapUsed:], heap[prev.offset:prev.offset+prev.length])
			heap[heapUsed+prev.length] = heap[prev.offset]
			cur = codeEntry{offset: heapUsed, length: prev.length + 1}
		default:
			err = errLZWBadCode
			break decode
		}

		n := cur.length
		if outPos+n > len(out) {
			n = len(out) - outPos
		}
		copy(out[outPos:], heap[cur.offset:cur.offset+n])
		outPos += n
		if n < cur.length {
			break
		}

		if prevCode >= 0 && nextCode < maxCodeTableSize {
			prev := table[prevCode]
			if heapUsed+prev.length+1 > heapSize {
				err = errLZWHeapFull
				break decode
			}
			if known {
				copy(heap[heapUsed:], heap[prev.offset:prev.offset+prev.length])
				heap[heapUsed+prev.length] = heap[cur.offset]
			}
			// In the KwKwK case the string already sits at heapUsed.
			table[nextCode] = codeEntry{offset: heapUsed, length: prev.length + 1, used: true}
			heapUsed += prev.length + 1
			nextCode++
			if nextCode == 1<<codeSize && codeSize < maxLZWCodeSize {
				codeSize++
			}
		}
		prevCode = code
	}

	if outPos == 0 {
		if err == nil {
			err = errLZWNoOutput
		}
		return 0, err
	}
	return outPos, nil
}
