package registry

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

// BigDataSegments follows a db cell to the segment cells that hold
// the value. Each segment contributes at most 16344 bytes and never
// more than what is left of the declared size.
func (self *Hive) BigDataSegments(offset uint32, declared uint32) ([][]byte, error) {
	cell, err := self.Cell(offset)
	if err != nil {
		return nil, err
	}
	if cell.Type() != CELL_BIG_DATA {
		return nil, utils.BadFormat("Expected db cell at %#x, got %q",
			offset, cell.Type())
	}

	count, err := utils.GetU16LE(cell.Data, 2)
	if err != nil {
		return nil, err
	}
	list_offset, err := utils.GetU32LE(cell.Data, 4)
	if err != nil {
		return nil, err
	}

	list, err := self.Cell(list_offset)
	if err != nil {
		return nil, err
	}

	result := [][]byte{}
	so_far := uint32(0)
	for i := 0; i < int(count) && so_far < declared; i++ {
		segment_offset, err := utils.GetU32LE(list.Data, int64(i*4))
		if err != nil {
			return result, err
		}

		segment, err := self.Cell(segment_offset)
		if err != nil {
			return result, err
		}
		if !segment.IsAllocated() {
			utils.DebugPrint("Big data segment %#x is not allocated\n", segment_offset)
			continue
		}

		want := declared - so_far
		if want > BIG_DATA_SEGMENT_SIZE {
			want = BIG_DATA_SEGMENT_SIZE
		}

		data := segment.Data
		if int(want) < len(data) {
			data = data[:want]
		}
		result = append(result, data)
		so_far += uint32(len(data))
	}

	return result, nil
}
