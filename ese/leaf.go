package ese

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

type LeafType int

const (
	LEAF_UNKNOWN LeafType = iota
	LEAF_SPACE_TREE
	LEAF_INDEX
	LEAF_LONG_VALUE
	LEAF_DATA_DEFINITION
)

func (self LeafType) String() string {
	switch self {
	case LEAF_SPACE_TREE:
		return "SpaceTree"
	case LEAF_INDEX:
		return "Index"
	case LEAF_LONG_VALUE:
		return "LongValue"
	case LEAF_DATA_DEFINITION:
		return "DataDefinition"
	}
	return "Unknown"
}

// DataDefinition is the row payload of a table leaf.
type DataDefinition struct {
	LastFixedColumn    uint8
	LastVariableColumn uint8
	VariableOffset     uint16
	FixedData          []byte
	VariableData       []byte
}

type Leaf struct {
	CommonKeySize uint16
	KeyPrefix     []byte
	KeySuffix     []byte
	Type          LeafType

	// Set depending on Type.
	Definition *DataDefinition
	SpacePages uint32
	Data       []byte
}

// Key reassembles the full key from the page common key and the
// local suffix.
func (self *Leaf) Key() []byte {
	result := make([]byte, 0, len(self.KeyPrefix)+len(self.KeySuffix))
	result = append(result, self.KeyPrefix...)
	return append(result, self.KeySuffix...)
}

func ParseLeaf(data []byte, page_flags PageFlags,
	common_key []byte, tag_flags TagFlags) (*Leaf, error) {
	cursor := utils.NewCursor(data)
	result := &Leaf{}

	has_common := tag_flags.Has(TAG_COMMON_KEY) && len(common_key) > 0

	var local_size uint16
	var err error
	if has_common {
		result.CommonKeySize, err = cursor.U16LE()
		if err != nil {
			return nil, err
		}
		local_size, err = cursor.U16LE()
		if err != nil {
			return nil, err
		}
	} else {
		// Only the low byte is the size, the next byte is unused.
		size, err := cursor.U8()
		if err != nil {
			return nil, err
		}
		err = cursor.Skip(1)
		if err != nil {
			return nil, err
		}
		local_size = uint16(size)
	}

	if len(common_key) > 0 {
		common_size := int(result.CommonKeySize)

		// Flags may be stored in the upper byte of the size.
		if common_size > len(common_key) {
			common_size = int(data[0])
		}
		result.KeyPrefix, err = utils.Slice(common_key, 0, int64(common_size))
		if err != nil {
			return nil, err
		}
	}

	result.KeySuffix, err = cursor.Take(int(local_size))
	if err != nil {
		return nil, err
	}

	switch {
	case page_flags.Has(PAGE_SPACE_TREE):
		result.Type = LEAF_SPACE_TREE
		result.SpacePages, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}

	case page_flags.Has(PAGE_INDEX):
		result.Type = LEAF_INDEX
		result.Data = cursor.Remaining()

	case page_flags.Has(PAGE_LONG_VALUE):
		result.Type = LEAF_LONG_VALUE
		result.Data = cursor.Remaining()

	default:
		result.Type = LEAF_DATA_DEFINITION
		result.Definition, err = ParseDataDefinition(cursor.Remaining())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func ParseDataDefinition(data []byte) (*DataDefinition, error) {
	cursor := utils.NewCursor(data)
	result := &DataDefinition{}

	var err error
	result.LastFixedColumn, err = cursor.U8()
	if err != nil {
		return nil, err
	}
	result.LastVariableColumn, err = cursor.U8()
	if err != nil {
		return nil, err
	}
	result.VariableOffset, err = cursor.U16LE()
	if err != nil {
		return nil, err
	}

	// The offset counts from the start of the definition.
	if result.VariableOffset < 4 {
		return nil, utils.BadFormat("variable data offset %d is too small",
			result.VariableOffset)
	}

	result.FixedData, err = cursor.Take(int(result.VariableOffset) - 4)
	if err != nil {
		return nil, err
	}
	result.VariableData = cursor.Remaining()

	return result, nil
}
