package spotlight

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

// ReadVarint decodes the variable sized integers used throughout the
// store. The count of leading one bits in the first byte gives the
// number of extra big endian bytes.
func ReadVarint(cursor *utils.Cursor) (uint64, error) {
	first, err := cursor.U8()
	if err != nil {
		return 0, err
	}

	value := uint64(first)
	lower_nibble := true
	extra := 0

	switch {
	case first&0xf0 == 0xf0:
		lower_nibble = false
		switch {
		case first&0x0f == 0x0f:
			extra = 8
		case first&0x0e == 0x0e:
			extra = 7
		case first&0x0c == 0x0c:
			extra = 6
		case first&0x08 == 0x08:
			extra = 5
		default:
			lower_nibble = true
			extra = 4
			value -= 0xf0
		}
	case first&0xe0 == 0xe0:
		extra = 3
		value -= 0xe0
	case first&0xc0 == 0xc0:
		extra = 2
		value -= 0xc0
	case first&0x80 == 0x80:
		extra = 1
		value -= 0x80
	}

	if extra == 0 {
		return value, nil
	}

	result := uint64(0)
	for i := 1; i <= extra; i++ {
		b, err := cursor.U8()
		if err != nil {
			return 0, err
		}
		result += uint64(b) << ((extra - i) * 8)
	}

	if lower_nibble {
		result += value << (extra * 8)
	}
	return result, nil
}

type Attribute uint8

const (
	ATTR_BOOL              Attribute = 0x0
	ATTR_UNKNOWN           Attribute = 0x1
	ATTR_VARINT            Attribute = 0x2
	ATTR_UNKNOWN2          Attribute = 0x3
	ATTR_UNKNOWN3          Attribute = 0x4
	ATTR_UNKNOWN4          Attribute = 0x5
	ATTR_VARINT2           Attribute = 0x6
	ATTR_VARINT_MULTIVALUE Attribute = 0x7
	ATTR_BYTE              Attribute = 0x8
	ATTR_FLOAT32           Attribute = 0x9
	ATTR_FLOAT64           Attribute = 0xa
	ATTR_STRING            Attribute = 0xb
	ATTR_DATE              Attribute = 0xc
	ATTR_BINARY            Attribute = 0xe
	ATTR_LIST              Attribute = 0xf
)

// Property type flag: the value is a list.
const PROP_TYPE_MULTIPLE = 0x2

type PropertyDef struct {
	Attribute Attribute `json:"attribute"`
	Type      uint8     `json:"type"`
	Name      string    `json:"name"`
}

func (self *PropertyDef) Multiple() bool {
	return self.Type&PROP_TYPE_MULTIPLE != 0
}

// Meta holds the dbStr tables records refer to: property definitions
// (dbStr-1), category strings (dbStr-2) and two index tables
// (dbStr-4, dbStr-5).
type Meta struct {
	Props      map[uint64]*PropertyDef
	Categories map[uint64]string
	Indexes1   map[uint64][]uint32
	Indexes2   map[uint64][]uint32
}

func NewMeta() *Meta {
	return &Meta{
		Props:      make(map[uint64]*PropertyDef),
		Categories: make(map[uint64]string),
		Indexes1:   make(map[uint64][]uint32),
		Indexes2:   make(map[uint64][]uint32),
	}
}

func (self *Meta) DebugString() string {
	return fmt.Sprintf("Meta: %d properties, %d categories, %d/%d indexes",
		len(self.Props), len(self.Categories), len(self.Indexes1), len(self.Indexes2))
}

// Offsets of 0 and 1 mark empty and deleted entries.
const (
	offset_empty   = 0
	offset_deleted = 1
)

// ParseOffsets reads a dbStr offsets file: one u32 per entry, the
// entry index being the position in the file.
func ParseOffsets(data []byte) []uint32 {
	result := make([]uint32, 0, len(data)/4)
	cursor := utils.NewCursor(data)
	for cursor.Len() >= 4 {
		offset, _ := cursor.U32LE()
		result = append(result, offset)
	}
	return result
}

// Each data entry starts with a length prefixed blob that is skipped.
func dataEntry(data []byte, offset uint32) (*utils.Cursor, error) {
	cursor := utils.NewCursor(data)
	err := cursor.Seek(int(offset))
	if err != nil {
		return nil, err
	}
	size, err := cursor.U8()
	if err != nil {
		return nil, err
	}
	err = cursor.Skip(int(size))
	return cursor, err
}

func cString(cursor *utils.Cursor) (string, error) {
	data := cursor.Remaining()
	for i, c := range data {
		if c == 0 {
			return utils.ExtractUTF8String(data[:i]), nil
		}
	}
	if len(data) == 0 {
		return "", utils.Incomplete("Empty string")
	}
	return utils.ExtractUTF8String(data), nil
}

// ParsePropertiesData decodes dbStr-1: attribute, type and name.
// Entries that do not decode are skipped.
func ParsePropertiesData(data []byte, offsets []uint32) map[uint64]*PropertyDef {
	result := make(map[uint64]*PropertyDef)
	for idx, offset := range offsets {
		if offset == offset_empty || offset == offset_deleted {
			continue
		}

		cursor, err := dataEntry(data, offset)
		if err != nil {
			utils.DebugPrint("Property definition %d: %v\n", idx, err)
			continue
		}

		attribute, _ := cursor.U8()
		prop_type, err := cursor.U8()
		if err != nil {
			continue
		}
		name, err := cString(cursor)
		if err != nil {
			continue
		}

		result[uint64(idx)] = &PropertyDef{
			Attribute: Attribute(attribute),
			Type:      prop_type,
			Name:      name,
		}
	}
	return result
}

// ParseCategoriesData decodes dbStr-2: one string per entry.
func ParseCategoriesData(data []byte, offsets []uint32) map[uint64]string {
	result := make(map[uint64]string)
	for idx, offset := range offsets {
		if offset == offset_empty || offset == offset_deleted {
			continue
		}

		cursor, err := dataEntry(data, offset)
		if err != nil {
			continue
		}
		name, err := cString(cursor)
		if err != nil {
			continue
		}
		result[uint64(idx)] = name
	}
	return result
}

// ParseIndexData decodes dbStr-4 and dbStr-5: arrays of category
// indexes. dbStr-5 entries carry an extra byte after the size.
func ParseIndexData(data []byte, offsets []uint32, has_extra bool) map[uint64][]uint32 {
	result := make(map[uint64][]uint32)
	for idx, offset := range offsets {
		if offset == offset_empty || offset == offset_deleted {
			continue
		}

		cursor := utils.NewCursor(data)
		if cursor.Seek(int(offset)) != nil {
			continue
		}

		// Continuation bytes have the high bit set.
		value, err := cursor.U8()
		for err == nil && value&0x80 != 0 {
			value, err = cursor.U8()
		}
		if err != nil {
			continue
		}

		size, err := ReadVarint(cursor)
		if err != nil {
			continue
		}
		if has_extra {
			_, err = cursor.U8()
			if err != nil {
				continue
			}
		}

		size = size / 4 * 4
		if size > uint64(cursor.Len()) {
			continue
		}
		array, _ := cursor.Take(int(size))

		values := make([]uint32, 0, len(array)/4)
		items := utils.NewCursor(array)
		for items.Len() >= 4 {
			v, _ := items.U32LE()
			values = append(values, v)
		}
		result[uint64(idx)] = values
	}
	return result
}
