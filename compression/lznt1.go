/*
Decompression support for the LZNT1 compression algorithm used by
compressed NTFS attributes.

Reference:
http://msdn.microsoft.com/en-us/library/jj665697.aspx
(2.5 LZNT1 Algorithm Details)
*/

package compression

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	LZNT1_COMPRESSED_MASK = uint16(1 << 15)
	LZNT1_SIZE_MASK       = uint16(1<<12) - 1
)

var (
	ErrLZNT1ShiftTooLarge = errors.Wrap(utils.ErrDecompress,
		"LZNT1 back reference before start of chunk")
	ErrLZNT1BlockTooSmall = errors.Wrap(utils.ErrDecompress,
		"LZNT1 block extends past input")
)

// The number of offset bits grows with the position inside the 4k
// chunk.
func lznt1Displacement(offset int) uint {
	result := uint(0)
	for offset >= 0x10 {
		offset >>= 1
		result++
	}
	return result
}

func DecompressLZNT1(in []byte) ([]byte, error) {
	i := 0
	out := []byte{}

	for i+2 <= len(in) {
		chunk_start := len(out)
		block_header := binary.LittleEndian.Uint16(in[i:])

		size := int(block_header & LZNT1_SIZE_MASK)
		if size == 0 {
			break
		}

		// The stored size is one less than the payload length.
		block_end := i + 2 + size + 1
		i += 2
		if block_end > len(in) {
			return out, ErrLZNT1BlockTooSmall
		}

		if block_header&LZNT1_COMPRESSED_MASK == 0 {
			out = append(out, in[i:block_end]...)
			i = block_end
			continue
		}

		for i < block_end {
			tag := in[i]
			i++

			for bit := 0; bit < 8 && i < block_end; bit++ {
				if tag&(1<<bit) == 0 {
					out = append(out, in[i])
					i++
					continue
				}

				if i+2 > block_end {
					return out, ErrLZNT1BlockTooSmall
				}
				pointer := binary.LittleEndian.Uint16(in[i:])
				i += 2

				displacement := lznt1Displacement(len(out) - chunk_start - 1)
				symbol_offset := int(pointer>>(12-displacement)) + 1
				symbol_length := int(pointer&(0xFFF>>displacement)) + 3

				start := len(out) - symbol_offset
				if start < chunk_start {
					return out, ErrLZNT1ShiftTooLarge
				}
				for j := 0; j < symbol_length; j++ {
					out = append(out, out[start+j])
				}
			}
		}
	}

	return out, nil
}
