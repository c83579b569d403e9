package spotlight

import (
	"github.com/apex/log"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	PAGE_HEADER_SIZE = 20

	CHUNK_LZ4  = 0x31347662 // bv41
	CHUNK_RAW  = 0x2d347662 // bv4-
	CHUNK_DONE = 0x24347662 // bv4$

	PAGE_TYPE_RECORDS = 0x09
	PAGE_TYPE_LZ4     = 0x1000

	// LZ4 back references reach at most this far.
	lz4_window = 64 * 1024

	lz4_max_ratio = 255
)

type PageHeader struct {
	Signature        uint32 `json:"signature"`
	PageSize         uint32 `json:"page_size"`
	UsedSize         uint32 `json:"used_size"`
	Type             uint32 `json:"type"`
	UncompressedSize uint32 `json:"uncompressed_size"`
}

func (self *PageHeader) Compressed() bool {
	return self.Type&PAGE_TYPE_LZ4 != 0
}

func ParsePageHeader(data []byte) (*PageHeader, error) {
	cursor := utils.NewCursor(data)
	result := &PageHeader{}
	for _, field := range []*uint32{&result.Signature, &result.PageSize,
		&result.UsedSize, &result.Type, &result.UncompressedSize} {
		v, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		*field = v
	}

	if result.PageSize < PAGE_HEADER_SIZE {
		return nil, utils.BadFormat("Property page size %d too small", result.PageSize)
	}
	return result, nil
}

// DecompressPage expands the chunks of a property page body. Each
// LZ4 chunk may refer back into the output of the chunks before it.
func DecompressPage(data []byte) ([]byte, error) {
	result := []byte{}
	cursor := utils.NewCursor(data)

	for cursor.Len() >= 4 {
		signature, _ := cursor.U32LE()

		switch signature {
		case CHUNK_RAW:
			size, err := cursor.U32LE()
			if err != nil {
				return result, err
			}
			chunk, err := cursor.Take(int(size))
			if err != nil {
				return result, errors.Wrap(err, "Raw chunk")
			}
			result = append(result, chunk...)

		case CHUNK_LZ4:
			raw_size, _ := cursor.U32LE()
			compressed_size, err := cursor.U32LE()
			if err != nil {
				return result, err
			}
			compressed, err := cursor.Take(int(compressed_size))
			if err != nil {
				return result, errors.Wrap(err, "LZ4 chunk")
			}

			dict := result
			if len(dict) > lz4_window {
				dict = dict[len(dict)-lz4_window:]
			}

			// A sequence of n compressed bytes expands to at most
			// 255 times that.
			out_size := int(raw_size)
			if out_size > len(compressed)*lz4_max_ratio {
				out_size = len(compressed) * lz4_max_ratio
			}

			out := make([]byte, out_size)
			n, err := lz4.UncompressBlockWithDict(compressed, out, dict)
			if err != nil {
				utils.STATS.Inc_DecompressionFailures()
				return result, errors.Wrapf(utils.ErrDecompress, "LZ4 chunk: %v", err)
			}
			if n != int(raw_size) {
				utils.STATS.Inc_PartialDecompressions()
				log.WithField("expected", raw_size).WithField("got", n).
					Warn("[spotlight] LZ4 chunk shorter than declared")
			}
			result = append(result, out[:n]...)

		case CHUNK_DONE:
			return result, nil

		default:
			// Anything else is padding after the last chunk.
			if len(result) == 0 {
				return nil, utils.BadFormat("Unknown chunk signature %#x", signature)
			}
			return result, nil
		}
	}

	return result, nil
}
