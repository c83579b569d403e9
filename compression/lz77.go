package compression

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

var (
	ErrLZ77BadLength = errors.Wrap(utils.ErrDecompress, "LZ77 bad match length")
	ErrLZ77BadOffset = errors.Wrap(utils.ErrDecompress, "LZ77 bad match offset")
)

// DecompressLZ77 decodes plain LZ77 Xpress (no Huffman stage) as used
// by compressed ESE columns. Decoding stops at the end of the input or
// once output_size bytes were produced.
func DecompressLZ77(in []byte, output_size int) ([]byte, error) {
	out := make([]byte, 0, output_size)

	var flags uint32
	flag_count := 0
	i := 0
	last_half_byte := -1

	for i < len(in) && len(out) < output_size {
		if flag_count == 0 {
			if i+4 > len(in) {
				break
			}
			flags = binary.LittleEndian.Uint32(in[i:])
			i += 4
			flag_count = 32
		}
		flag_count--

		if flags&(1<<flag_count) == 0 {
			if i >= len(in) {
				break
			}
			out = append(out, in[i])
			i++
			continue
		}

		if i+2 > len(in) {
			break
		}
		match := int(binary.LittleEndian.Uint16(in[i:]))
		i += 2

		length := match % 8
		offset := match/8 + 1

		if length == 7 {
			if last_half_byte < 0 {
				if i >= len(in) {
					return out, ErrLZ77BadLength
				}
				length = int(in[i] % 16)
				last_half_byte = i
				i++
			} else {
				length = int(in[last_half_byte] / 16)
				last_half_byte = -1
			}

			if length == 15 {
				if i >= len(in) {
					return out, ErrLZ77BadLength
				}
				length = int(in[i])
				i++

				if length == 255 {
					if i+2 > len(in) {
						return out, ErrLZ77BadLength
					}
					length = int(binary.LittleEndian.Uint16(in[i:]))
					i += 2

					if length == 0 {
						if i+4 > len(in) {
							return out, ErrLZ77BadLength
						}
						length = int(binary.LittleEndian.Uint32(in[i:]))
						i += 4
					}
					if length < 22 {
						return out, ErrLZ77BadLength
					}
					length -= 22
				}
				length += 15
			}
			length += 7
		}
		length += 3

		start := len(out) - offset
		if start < 0 {
			return out, ErrLZ77BadOffset
		}
		for j := 0; j < length; j++ {
			out = append(out, out[start+j])
		}
	}

	if len(out) > output_size {
		out = out[:output_size]
	}
	return out, nil
}

// DecompressSevenBit expands 7 bit packed ASCII.
func DecompressSevenBit(data []byte) []byte {
	result := make([]byte, 0, len(data)*8/7+1)
	var value uint16
	index := 0

	for _, b := range data {
		value |= uint16(b) << index
		result = append(result, byte(value&0x7f))
		value >>= 7

		index++
		if index == 7 {
			result = append(result, byte(value&0x7f))
			value >>= 7
			index = 0
		}
	}
	return result
}
