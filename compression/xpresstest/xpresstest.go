// Package xpresstest builds Xpress Huffman streams for tests of the
// decoders that consume them.
package xpresstest

import (
	"encoding/binary"
)

const (
	chunk_size = 65536
	table_size = 256
)

// CompressLiterals produces a valid LZ77+Huffman stream that stores
// every byte as a literal. All 256 literal symbols get an 8 bit code
// so the code of a byte is the byte itself. The output is larger than
// the input but decodes with any conforming decoder.
func CompressLiterals(data []byte) []byte {
	result := []byte{}

	for start := 0; start < len(data); start += chunk_size {
		end := start + chunk_size
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		table := make([]byte, table_size)
		for i := 0; i < 128; i++ {
			table[i] = 0x88
		}
		result = append(result, table...)

		// The decoder keeps at least 16 bits buffered, so after the
		// last symbol it has read one word past the consumed bits.
		// The next table starts right after that word.
		consumed := len(chunk) * 8
		words := (consumed+15)/16 + 1
		if words < 2 {
			words = 2
		}

		packed := make([]uint16, words)
		for i, b := range chunk {
			bit_pos := i * 8
			word := bit_pos / 16
			shift := bit_pos % 16
			if shift == 0 {
				packed[word] |= uint16(b) << 8
			} else {
				packed[word] |= uint16(b)
			}
		}

		for _, w := range packed {
			result = binary.LittleEndian.AppendUint16(result, w)
		}
	}

	return result
}
