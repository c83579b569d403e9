package spotlight

import (
	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	STORE_MAGIC = 0x64737438 // 8tsd

	STORE_HEADER_SIZE = 0x1000

	// Block numbers count in these units.
	BLOCK_UNIT = 0x1000

	map_entry_size = 16
	path_offset    = 0x144
	path_size      = 256
)

type StoreHeader struct {
	Flags              uint32 `json:"flags"`
	MapOffset          uint32 `json:"map_offset"`
	MapSize            uint32 `json:"map_size"`
	PageSize           uint32 `json:"page_size"`
	AttrTypeBlock      uint32 `json:"attr_type_block"`
	AttrValueBlock     uint32 `json:"attr_value_block"`
	PropertyTableBlock uint32 `json:"property_table_block"`
	AttrListBlock      uint32 `json:"attr_list_block"`
	AttrStringsBlock   uint32 `json:"attr_strings_block"`
	Path               string `json:"path"`
}

func (self *StoreHeader) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("flags", self.Flags).
		Set("map_offset", self.MapOffset).
		Set("map_size", self.MapSize).
		Set("page_size", self.PageSize).
		Set("path", self.Path)
}

func ParseStoreHeader(data []byte) (*StoreHeader, error) {
	cursor := utils.NewCursor(data)
	magic, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if magic != STORE_MAGIC {
		return nil, utils.BadFormat("Not a Spotlight store: magic %#x", magic)
	}

	result := &StoreHeader{}
	result.Flags, _ = cursor.U32LE()

	// Seven unknown fields
	err = cursor.Skip(7 * 4)
	if err != nil {
		return nil, err
	}

	for _, field := range []*uint32{
		&result.MapOffset, &result.MapSize, &result.PageSize,
		&result.AttrTypeBlock, &result.AttrValueBlock,
		&result.PropertyTableBlock, &result.AttrListBlock,
		&result.AttrStringsBlock} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	path, err := utils.Slice(data, path_offset, path_size)
	if err != nil {
		return nil, err
	}
	result.Path = utils.ExtractUTF8String(truncateNul(path))

	return result, nil
}

func truncateNul(data []byte) []byte {
	for i, c := range data {
		if c == 0 {
			return data[:i]
		}
	}
	return data
}

// ParseBlockMap lists the property page blocks. Each 16 byte entry
// starts with the block number. Unused entries are zero or all ones.
func ParseBlockMap(data []byte) []uint32 {
	result := []uint32{}
	cursor := utils.NewCursor(data)
	for cursor.Len() >= map_entry_size {
		block, _ := cursor.U32LE()
		_ = cursor.Skip(map_entry_size - 4)

		if block == 0 || block == 0xffffffff {
			continue
		}
		result = append(result, block)
	}
	return result
}
