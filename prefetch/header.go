package prefetch

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	// MAM\x04
	COMPRESSED_SIGNATURE = 0x044D414D
	SCCA_SIGNATURE       = 0x41434353

	compressed_header_size = 8
	header_size            = 84
	filename_field_size    = 60
)

type CompressedHeader struct {
	Signature        uint32
	UncompressedSize uint32
}

func IsCompressed(data []byte) bool {
	signature, err := utils.GetU32LE(data, 0)
	return err == nil && signature == COMPRESSED_SIGNATURE
}

func ParseCompressedHeader(data []byte) (*CompressedHeader, error) {
	cursor := utils.NewCursor(data)
	result := &CompressedHeader{}

	var err error
	result.Signature, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if result.Signature != COMPRESSED_SIGNATURE {
		return nil, utils.BadFormat("Not a compressed prefetch file: %#x",
			result.Signature)
	}

	result.UncompressedSize, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}
	return result, nil
}

type Header struct {
	Version   uint32
	Signature uint32
	Size      uint32
	Filename  string
	Hash      string
}

func (self *Header) DebugString() string {
	return fmt.Sprintf("Prefetch v%d %s-%s (%d bytes)",
		self.Version, self.Filename, self.Hash, self.Size)
}

func ParseHeader(data []byte) (*Header, error) {
	if len(data) < header_size {
		return nil, utils.Incomplete("Prefetch header needs %d bytes, have %d",
			header_size, len(data))
	}

	result := &Header{}
	result.Version, _ = utils.GetU32LE(data, 0)
	result.Signature, _ = utils.GetU32LE(data, 4)
	if result.Signature != SCCA_SIGNATURE {
		return nil, utils.BadFormat("Invalid prefetch signature %#x",
			result.Signature)
	}

	result.Size, _ = utils.GetU32LE(data, 12)
	result.Filename = utils.ExtractUTF16String(data[16 : 16+filename_field_size])

	hash, _ := utils.GetU32LE(data, 76)
	result.Hash = fmt.Sprintf("%X", hash)

	return result, nil
}
