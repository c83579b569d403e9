package outlook

import (
	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	PST_MAGIC = 0x4e444221 // !BDN

	HEADER_SIZE = 564
)

// Offsets into the Unicode header. The ANSI header has a different
// layout past the version fields and is not supported.
const (
	header_content_offset       = 8
	header_format_offset        = 10
	header_client_offset        = 12
	header_next_backptr_offset  = 32
	header_file_size_offset     = 184
	header_nbt_bid_offset       = 216
	header_nbt_offset_offset    = 224
	header_bbt_bid_offset       = 232
	header_bbt_offset_offset    = 240
	header_amap_valid_offset    = 248
	header_crypt_method_offset  = 513
	header_next_block_id_offset = 516
)

type FormatType int

const (
	FORMAT_UNKNOWN FormatType = iota
	FORMAT_ANSI32
	FORMAT_UNICODE64
	FORMAT_UNICODE64_4K
)

func (self FormatType) String() string {
	switch self {
	case FORMAT_ANSI32:
		return "ANSI32"
	case FORMAT_UNICODE64:
		return "Unicode64"
	case FORMAT_UNICODE64_4K:
		return "Unicode64_4k"
	}
	return "Unknown"
}

func formatType(version uint16) FormatType {
	switch version {
	case 14, 15:
		return FORMAT_ANSI32
	case 21, 23:
		return FORMAT_UNICODE64
	case 36:
		return FORMAT_UNICODE64_4K
	}
	return FORMAT_UNKNOWN
}

func contentType(content uint16) string {
	switch content {
	case 0x4f53:
		return "OST"
	case 0x4d53:
		return "PST"
	case 0x4241:
		return "PAB"
	}
	return "Unknown"
}

// A reference to a page or block: its id and file offset.
type BRef struct {
	BID    uint64 `json:"bid"`
	Offset uint64 `json:"offset"`
}

type Header struct {
	Content         string     `json:"content"`
	Format          FormatType `json:"format"`
	ClientVersion   uint16     `json:"client_version"`
	NextBackPointer uint64     `json:"next_back_pointer"`
	FileSize        uint64     `json:"file_size"`
	NodeBTree       BRef       `json:"node_btree"`
	BlockBTree      BRef       `json:"block_btree"`
	AllocationValid uint8      `json:"allocation_valid"`
	Encryption      uint8      `json:"encryption"`
	NextBlockID     uint64     `json:"next_block_id"`
}

func (self *Header) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("content", self.Content).
		Set("format", self.Format.String()).
		Set("client_version", self.ClientVersion).
		Set("file_size", self.FileSize).
		Set("node_btree", self.NodeBTree).
		Set("block_btree", self.BlockBTree).
		Set("encryption", self.Encryption)
}

// ParseHeader decodes the file header. ANSI files and encrypted files
// are recognized but not supported.
func ParseHeader(data []byte) (*Header, error) {
	magic, err := utils.GetU32LE(data, 0)
	if err != nil {
		return nil, err
	}
	if magic != PST_MAGIC {
		return nil, utils.BadFormat("Not an Outlook file: magic %#x", magic)
	}

	content, err := utils.GetU16LE(data, header_content_offset)
	if err != nil {
		return nil, err
	}
	version, err := utils.GetU16LE(data, header_format_offset)
	if err != nil {
		return nil, err
	}

	result := &Header{
		Content: contentType(content),
		Format:  formatType(version),
	}

	switch result.Format {
	case FORMAT_ANSI32:
		return nil, utils.Unsupported("ANSI32 Outlook files are not supported")
	case FORMAT_UNKNOWN:
		return nil, utils.BadFormat("Unknown Outlook format version %d", version)
	}

	if len(data) < HEADER_SIZE {
		return nil, utils.Incomplete("Outlook header needs %d bytes, have %d",
			HEADER_SIZE, len(data))
	}

	result.ClientVersion, _ = utils.GetU16LE(data, header_client_offset)
	result.NextBackPointer, _ = utils.GetU64LE(data, header_next_backptr_offset)
	result.FileSize, _ = utils.GetU64LE(data, header_file_size_offset)
	result.NodeBTree.BID, _ = utils.GetU64LE(data, header_nbt_bid_offset)
	result.NodeBTree.Offset, _ = utils.GetU64LE(data, header_nbt_offset_offset)
	result.BlockBTree.BID, _ = utils.GetU64LE(data, header_bbt_bid_offset)
	result.BlockBTree.Offset, _ = utils.GetU64LE(data, header_bbt_offset_offset)
	result.AllocationValid, _ = utils.GetU8(data, header_amap_valid_offset)
	result.Encryption, _ = utils.GetU8(data, header_crypt_method_offset)
	result.NextBlockID, _ = utils.GetU64LE(data, header_next_block_id_offset)

	if result.Encryption != 0 {
		return nil, utils.Unsupported("Encrypted Outlook files are not supported (method %d)",
			result.Encryption)
	}

	return result, nil
}
