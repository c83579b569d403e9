package registry

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

// An ri can only point at leaf lists but a corrupt hive could chain
// them, so nesting is bounded.
const max_index_root_depth = 4

// SubkeyOffsets flattens the subkey list at offset into nk offsets.
func (self *Hive) SubkeyOffsets(offset uint32) ([]uint32, error) {
	return self.subkeyOffsets(offset, 0)
}

func (self *Hive) subkeyOffsets(offset uint32, depth int) ([]uint32, error) {
	if depth > max_index_root_depth {
		return nil, utils.BadFormat("Subkey index nested too deep at %#x", offset)
	}

	cell, err := self.Cell(offset)
	if err != nil {
		return nil, err
	}

	count, err := utils.GetU16LE(cell.Data, 2)
	if err != nil {
		return nil, err
	}

	switch cell.Type() {
	// Fast and hash leafs carry a 4 byte hint after each offset.
	case CELL_FAST_LEAF, CELL_HASH_LEAF:
		return readOffsets(cell.Data[4:], int(count), 8), nil

	case CELL_INDEX_LEAF:
		return readOffsets(cell.Data[4:], int(count), 4), nil

	case CELL_INDEX_ROOT:
		result := []uint32{}
		for _, list_offset := range readOffsets(cell.Data[4:], int(count), 4) {
			children, err := self.subkeyOffsets(list_offset, depth+1)
			if err != nil {
				utils.DebugPrint("ri %#x: %v\n", offset, err)
				continue
			}
			result = append(result, children...)
		}
		return result, nil

	default:
		return nil, utils.BadFormat("Cell at %#x is not a subkey list (%q)",
			offset, cell.Type())
	}
}

func readOffsets(data []byte, count int, stride int) []uint32 {
	result := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		v, err := utils.GetU32LE(data, int64(i*stride))
		if err != nil {
			break
		}
		result = append(result, v)
	}
	return result
}
