package ese

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

type TaggedFlags uint8

const (
	TAGGED_VARIABLE        TaggedFlags = 0x1
	TAGGED_COMPRESSED      TaggedFlags = 0x2
	TAGGED_LONG_VALUE      TaggedFlags = 0x4
	TAGGED_MULTI_VALUE     TaggedFlags = 0x8
	TAGGED_MULTI_VALUE_DEF TaggedFlags = 0x10
)

func (self TaggedFlags) Has(flag TaggedFlags) bool {
	return self&flag != 0
}

type VariableColumn struct {
	ID   uint16
	Data []byte
}

type TaggedColumn struct {
	ID    uint16
	Flags TaggedFlags
	Data  []byte
}

const (
	variable_empty   = 0x8000
	tagged_has_flags = 0x4000
	tagged_offset    = 0x3fff
	first_variable   = 128
)

// ParseVariableColumns splits the variable area of a row. It starts
// with one u16 end offset per column followed by the data. Columns
// with the top bit set are empty. Anything after the last column is
// the tagged area and is returned as the remainder.
func ParseVariableColumns(last_column uint8, data []byte) (
	[]VariableColumn, []byte, error) {
	cursor := utils.NewCursor(data)
	result := []VariableColumn{}

	if last_column < first_variable {
		return result, data, nil
	}

	count := int(last_column) - first_variable + 1
	ends := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		end, err := cursor.U16LE()
		if err != nil {
			return nil, nil, err
		}
		ends = append(ends, end)
	}

	previous := uint16(0)
	for i, end := range ends {
		if end&variable_empty != 0 {
			continue
		}
		if end < previous {
			return nil, nil, utils.BadFormat(
				"variable column %d ends at %d before %d",
				first_variable+i, end, previous)
		}

		value, err := cursor.Take(int(end - previous))
		if err != nil {
			return nil, nil, err
		}
		result = append(result, VariableColumn{
			ID:   uint16(first_variable + i),
			Data: value,
		})
		previous = end
	}

	return result, cursor.Remaining(), nil
}

// ParseTaggedColumns decodes the tagged area. It begins with an array
// of (column id, offset) pairs where the first offset is also the size
// of the array. Every value starts with a flags byte.
func ParseTaggedColumns(data []byte) ([]TaggedColumn, error) {
	if len(data) == 0 {
		return nil, nil
	}

	first_offset, err := utils.GetU16LE(data, 2)
	if err != nil {
		return nil, err
	}
	header_size := int(first_offset & tagged_offset)
	if header_size < 4 || header_size > len(data) {
		return nil, utils.BadFormat("tagged header size %d is not valid",
			header_size)
	}

	type entry struct {
		id     uint16
		offset int
	}

	entries := make([]entry, 0, header_size/4)
	for i := 0; i+4 <= header_size; i += 4 {
		id, _ := utils.GetU16LE(data, int64(i))
		offset, _ := utils.GetU16LE(data, int64(i+2))
		entries = append(entries, entry{
			id: id, offset: int(offset & tagged_offset)})
	}

	result := make([]TaggedColumn, 0, len(entries))
	for i, e := range entries {
		end := len(data)
		if i+1 < len(entries) {
			end = entries[i+1].offset
		}
		if e.offset < header_size || end < e.offset || end > len(data) {
			return result, utils.BadFormat(
				"tagged column %d spans %d-%d outside %d bytes",
				e.id, e.offset, end, len(data))
		}

		value := data[e.offset:end]
		column := TaggedColumn{ID: e.id}
		if len(value) > 0 {
			column.Flags = TaggedFlags(value[0])
			column.Data = value[1:]
		}
		result = append(result, column)
	}

	return result, nil
}

// ParseMultiValue splits a multi valued column. The data starts with
// an array of u16 offsets, the first of which is the array size.
func ParseMultiValue(data []byte) ([][]byte, error) {
	first, err := utils.GetU16LE(data, 0)
	if err != nil {
		return nil, err
	}

	count := int(first) / 2
	if count == 0 || int(first) > len(data) {
		return nil, utils.BadFormat("multi value offset %d is not valid", first)
	}

	offsets := make([]int, 0, count)
	for i := 0; i < count; i++ {
		offset, err := utils.GetU16LE(data, int64(i*2))
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, int(offset))
	}

	result := make([][]byte, 0, count)
	for i, offset := range offsets {
		end := len(data)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		value, err := utils.Slice(data, int64(offset), int64(end-offset))
		if err != nil {
			return result, err
		}
		result = append(result, value)
	}

	return result, nil
}
