package registry

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	CELL_HEADER_SIZE = 4

	// An offset of -1 marks a missing list or cell.
	INVALID_OFFSET = 0xFFFFFFFF
)

type CellType string

const (
	CELL_KEY          CellType = "nk"
	CELL_VALUE        CellType = "vk"
	CELL_FAST_LEAF    CellType = "lf"
	CELL_HASH_LEAF    CellType = "lh"
	CELL_INDEX_LEAF   CellType = "li"
	CELL_INDEX_ROOT   CellType = "ri"
	CELL_BIG_DATA     CellType = "db"
	CELL_SECURITY     CellType = "sk"
	CELL_UNKNOWN_TYPE CellType = ""
)

type Cell struct {
	Offset uint32

	// Allocated cells store a negative size.
	Size int32

	// The cell content after the size field.
	Data []byte
}

func (self *Cell) IsAllocated() bool {
	return self.Size < 0
}

func (self *Cell) Type() CellType {
	if len(self.Data) < 2 {
		return CELL_UNKNOWN_TYPE
	}

	switch t := CellType(self.Data[:2]); t {
	case CELL_KEY, CELL_VALUE, CELL_FAST_LEAF, CELL_HASH_LEAF,
		CELL_INDEX_LEAF, CELL_INDEX_ROOT, CELL_BIG_DATA, CELL_SECURITY:
		return t
	}
	return CELL_UNKNOWN_TYPE
}

func (self *Cell) DebugString() string {
	return fmt.Sprintf("Cell %#x size %d type %q\n",
		self.Offset, self.Size, self.Type())
}

func ParseCell(hive []byte, offset uint32) (*Cell, error) {
	if offset == 0 || offset == INVALID_OFFSET {
		return nil, utils.BadFormat("Invalid cell offset %#x", offset)
	}

	absolute := int64(HBIN_START) + int64(offset)
	size_raw, err := utils.GetU32LE(hive, absolute)
	if err != nil {
		return nil, err
	}
	size := int32(size_raw)

	length := int64(size)
	if length < 0 {
		length = -length
	}
	if length < CELL_HEADER_SIZE {
		return nil, utils.BadFormat("Cell at %#x has size %d", offset, size)
	}

	// A truncated hive still gives what is there.
	data, err := utils.Slice(hive, absolute+CELL_HEADER_SIZE,
		length-CELL_HEADER_SIZE)
	if err != nil {
		available := int64(len(hive)) - absolute - CELL_HEADER_SIZE
		if available <= 0 {
			return nil, err
		}
		data = hive[absolute+CELL_HEADER_SIZE:]
	}

	return &Cell{Offset: offset, Size: size, Data: data}, nil
}
