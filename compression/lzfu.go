package compression

import (
	"encoding/binary"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	RTF_COMPRESSED   = 0x75465a4c // LZFu
	RTF_UNCOMPRESSED = 0x414c454d // MELA

	rtf_dictionary_size = 4096
	rtf_header_size     = 16
)

var ErrRTFCorrupted = errors.Wrap(utils.ErrDecompress, "RTF data corrupted")

// Every compressed RTF stream starts with this dictionary content.
var rtf_prebuf = []byte("{\\rtf1\\ansi\\mac\\deff0\\deftab720{\\fonttbl;}" +
	"{\\f0\\fnil \\froman \\fswiss \\fmodern \\fscript \\fdecor " +
	"MS Sans SerifSymbolArialTimes New RomanCourier" +
	"{\\colortbl\\red0\\green0\\blue0\n\r\\par " +
	"\\pard\\plain\\f0\\fs20\\b\\i\\u\\tab\\tx")

type RTFHeader struct {
	CompressedSize uint32
	RawSize        uint32
	Signature      uint32
	CRC            uint32
}

func ParseRTFHeader(data []byte) (*RTFHeader, error) {
	cursor := utils.NewCursor(data)
	result := &RTFHeader{}
	for _, field := range []*uint32{&result.CompressedSize,
		&result.RawSize, &result.Signature, &result.CRC} {
		v, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		*field = v
	}
	return result, nil
}

// DecompressRTF handles a complete PidTagRtfCompressed stream
// including its header.
func DecompressRTF(data []byte) ([]byte, error) {
	header, err := ParseRTFHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[rtf_header_size:]
	switch header.Signature {
	case RTF_UNCOMPRESSED:
		if int(header.RawSize) < len(body) {
			body = body[:header.RawSize]
		}
		return body, nil

	case RTF_COMPRESSED:
		// The compressed size counts everything after its own field.
		end := int64(header.CompressedSize) + 4 - rtf_header_size
		if end >= 0 && end < int64(len(body)) {
			body = body[:end]
		}
		return DecompressLZFu(body, header.RawSize)

	default:
		return nil, utils.BadFormat("Unknown RTF signature %#x", header.Signature)
	}
}

// DecompressLZFu expands the body of an LZFu stream and checks the
// result against the size declared in the header.
func DecompressLZFu(data []byte, raw_size uint32) ([]byte, error) {
	result := expandLZFu(data, raw_size)
	if len(result) != int(raw_size) {
		utils.STATS.Inc_DecompressionFailures()
		return nil, errors.WithMessagef(ErrRTFCorrupted,
			"expected %d bytes, got %d", raw_size, len(result))
	}

	return result, nil
}

// Each control byte describes 8 items, least significant bit first: a
// clear bit is a literal byte and a set bit is a 2 byte big endian
// dictionary reference.
func expandLZFu(data []byte, raw_size uint32) []byte {
	dict := make([]byte, rtf_dictionary_size)
	copy(dict, rtf_prebuf)
	write_pos := len(rtf_prebuf)

	// A reference expands 2 bytes into at most 17.
	capacity := int(raw_size)
	if capacity > len(data)*9 {
		capacity = len(data) * 9
	}
	result := make([]byte, 0, capacity)
	position := 0

	for position < len(data) {
		control := data[position]
		position++

		for bit := 0; bit < 8; bit++ {
			if control&(1<<bit) == 0 {
				if position >= len(data) {
					return result
				}
				value := data[position]
				position++

				result = append(result, value)
				dict[write_pos] = value
				write_pos = (write_pos + 1) % rtf_dictionary_size
				continue
			}

			if position+2 > len(data) {
				log.WithField("position", position).
					Debug("RTF reference past end of data")
				return result
			}
			reference := binary.BigEndian.Uint16(data[position:])
			position += 2

			// A reference to the write position marks the end.
			offset := int(reference >> 4)
			length := int(reference&0xf) + 2
			if offset == write_pos {
				return result
			}

			for i := 0; i < length; i++ {
				value := dict[(offset+i)%rtf_dictionary_size]
				result = append(result, value)
				dict[write_pos] = value
				write_pos = (write_pos + 1) % rtf_dictionary_size
			}
		}
	}

	return result
}
