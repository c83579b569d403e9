package ese

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/compression"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type ColumnType int32

const (
	COLUMN_NIL            ColumnType = 0
	COLUMN_BIT            ColumnType = 1
	COLUMN_UNSIGNED_BYTE  ColumnType = 2
	COLUMN_SHORT          ColumnType = 3
	COLUMN_LONG           ColumnType = 4
	COLUMN_CURRENCY       ColumnType = 5
	COLUMN_FLOAT32        ColumnType = 6
	COLUMN_FLOAT64        ColumnType = 7
	COLUMN_DATETIME       ColumnType = 8
	COLUMN_BINARY         ColumnType = 9
	COLUMN_TEXT           ColumnType = 10
	COLUMN_LONG_BINARY    ColumnType = 11
	COLUMN_LONG_TEXT      ColumnType = 12
	COLUMN_SUPER_LONG     ColumnType = 13
	COLUMN_UNSIGNED_LONG  ColumnType = 14
	COLUMN_LONG_LONG      ColumnType = 15
	COLUMN_GUID           ColumnType = 16
	COLUMN_UNSIGNED_SHORT ColumnType = 17
)

var column_type_names = map[ColumnType]string{
	COLUMN_NIL:            "Nil",
	COLUMN_BIT:            "Bit",
	COLUMN_UNSIGNED_BYTE:  "UnsignedByte",
	COLUMN_SHORT:          "Short",
	COLUMN_LONG:           "Long",
	COLUMN_CURRENCY:       "Currency",
	COLUMN_FLOAT32:        "Float32",
	COLUMN_FLOAT64:        "Float64",
	COLUMN_DATETIME:       "DateTime",
	COLUMN_BINARY:         "Binary",
	COLUMN_TEXT:           "Text",
	COLUMN_LONG_BINARY:    "LongBinary",
	COLUMN_LONG_TEXT:      "LongText",
	COLUMN_SUPER_LONG:     "SuperLong",
	COLUMN_UNSIGNED_LONG:  "UnsignedLong",
	COLUMN_LONG_LONG:      "LongLong",
	COLUMN_GUID:           "Guid",
	COLUMN_UNSIGNED_SHORT: "UnsignedShort",
}

func (self ColumnType) String() string {
	name, pres := column_type_names[self]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int32(self))
}

// Width of the type inside the fixed area. Zero means the catalog
// space usage decides.
func (self ColumnType) fixedSize() int {
	switch self {
	case COLUMN_BIT, COLUMN_UNSIGNED_BYTE:
		return 1
	case COLUMN_SHORT, COLUMN_UNSIGNED_SHORT:
		return 2
	case COLUMN_LONG, COLUMN_UNSIGNED_LONG, COLUMN_FLOAT32:
		return 4
	case COLUMN_CURRENCY, COLUMN_FLOAT64, COLUMN_DATETIME, COLUMN_LONG_LONG:
		return 8
	case COLUMN_GUID:
		return 16
	}
	return 0
}

// Only binary and text columns are ever stored compressed.
func (self ColumnType) compressible() bool {
	switch self {
	case COLUMN_BINARY, COLUMN_LONG_BINARY, COLUMN_TEXT, COLUMN_LONG_TEXT:
		return true
	}
	return false
}

type ColumnFlags int32

const (
	COLUMN_FLAG_NOT_NULL    ColumnFlags = 0x1
	COLUMN_FLAG_VERSION     ColumnFlags = 0x2
	COLUMN_FLAG_AUTO_INC    ColumnFlags = 0x4
	COLUMN_FLAG_MULTI_VALUE ColumnFlags = 0x8
	COLUMN_FLAG_DEFAULT     ColumnFlags = 0x10
	COLUMN_FLAG_COMPRESSED  ColumnFlags = 0x1000
	COLUMN_FLAG_ENCRYPTED   ColumnFlags = 0x2000
)

func (self ColumnFlags) Has(flag ColumnFlags) bool {
	return self&flag != 0
}

type ColumnInfo struct {
	ID         int32
	Name       string
	Type       ColumnType
	Flags      ColumnFlags
	SpaceUsage int32
}

type TableInfo struct {
	Name          string
	ObjID         int32
	Page          uint32
	LongValuePage uint32
	Columns       []*ColumnInfo
}

// GetTableInfo collects the columns and long value tree of a table
// from the catalog rows that follow the table row.
func (self *Catalog) GetTableInfo(name string) (*TableInfo, error) {
	var result *TableInfo

	for _, entry := range self.Entries {
		if result == nil {
			if entry.Type == CATALOG_TABLE && entry.Name == name {
				result = &TableInfo{
					Name:  entry.Name,
					ObjID: entry.ObjIDTable,
					Page:  uint32(entry.ColumnOrFDP),
				}
			}
			continue
		}

		if entry.ObjIDTable != result.ObjID {
			continue
		}

		switch entry.Type {
		case CATALOG_COLUMN:
			result.Columns = append(result.Columns, &ColumnInfo{
				ID:         entry.ID,
				Name:       entry.Name,
				Type:       ColumnType(entry.ColumnOrFDP),
				Flags:      ColumnFlags(entry.Flags),
				SpaceUsage: entry.SpaceUsage,
			})
		case CATALOG_LONG_VALUE:
			result.LongValuePage = uint32(entry.ColumnOrFDP)
		}
	}

	if result == nil {
		return nil, utils.BadFormat("table %v not found in catalog", name)
	}
	return result, nil
}

func (self *TableInfo) column(id int32) *ColumnInfo {
	for _, c := range self.Columns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

type columnValue struct {
	data       []byte
	tagged     TaggedFlags
	long_value bool
}

// RowParser decodes data definitions of one table into ordered
// dicts keyed by column name.
type RowParser struct {
	Table      *TableInfo
	LongValues map[string][]byte
}

func (self *RowParser) ParseRow(def *DataDefinition) (*ordereddict.Dict, error) {
	values := make(map[int32]*columnValue)

	// Fixed columns are laid out back to back in id order.
	cursor := utils.NewCursor(def.FixedData)
	for id := int32(1); id <= int32(def.LastFixedColumn); id++ {
		column := self.Table.column(id)
		if column == nil {
			continue
		}
		size := column.Type.fixedSize()
		if size == 0 {
			size = int(column.SpaceUsage)
		}
		data, err := cursor.Take(size)
		if err != nil {
			return nil, err
		}
		values[id] = &columnValue{data: data}
	}

	variable, tagged_data, err := ParseVariableColumns(
		def.LastVariableColumn, def.VariableData)
	if err != nil {
		return nil, err
	}
	for _, v := range variable {
		values[int32(v.ID)] = &columnValue{data: v.Data}
	}

	tagged, err := ParseTaggedColumns(tagged_data)
	if err != nil {
		log.WithError(err).Debug("[ese] Bad tagged area")
	}
	for _, t := range tagged {
		values[int32(t.ID)] = &columnValue{
			data:       t.Data,
			tagged:     t.Flags,
			long_value: t.Flags.Has(TAGGED_LONG_VALUE),
		}
	}

	result := ordereddict.NewDict()
	for _, column := range self.Table.Columns {
		value, pres := values[column.ID]
		if !pres || len(value.data) == 0 {
			result.Set(column.Name, nil)
			continue
		}
		result.Set(column.Name, self.decodeColumn(column, value))
	}
	return result, nil
}

// Long values are referenced by a 4 byte id stored big endian in the
// long value tree key.
func (self *RowParser) resolveLongValue(data []byte) []byte {
	if self.LongValues == nil || len(data) != 4 {
		return data
	}
	key := make([]byte, 0, 8)
	for i := len(data) - 1; i >= 0; i-- {
		key = append(key, data[i])
	}
	key = append(key, 0, 0, 0, 0)

	resolved, pres := self.LongValues[string(key)]
	if pres {
		return resolved
	}
	return data
}

func (self *RowParser) decodeColumn(column *ColumnInfo, value *columnValue) interface{} {
	data := value.data
	if value.long_value ||
		column.Type == COLUMN_LONG_BINARY || column.Type == COLUMN_LONG_TEXT {
		data = self.resolveLongValue(data)
	}

	compressed := column.Type.compressible() &&
		(column.Flags.Has(COLUMN_FLAG_COMPRESSED) ||
			(value.tagged.Has(TAGGED_COMPRESSED) &&
				!value.tagged.Has(TAGGED_MULTI_VALUE)))

	if value.tagged.Has(TAGGED_MULTI_VALUE) && !value.long_value {
		parts, err := ParseMultiValue(data)
		if err != nil {
			return utils.Base64Encode(data)
		}
		result := []interface{}{}
		for _, part := range parts {
			if column.Type.compressible() && column.Flags.Has(COLUMN_FLAG_COMPRESSED) {
				part = Decompress(part)
			}
			result = append(result, DecodeValue(column.Type, column.Flags, part))
		}
		return result
	}

	if compressed {
		data = Decompress(data)
	}
	return DecodeValue(column.Type, column.Flags, data)
}

// Decompress handles compressed column data. The top 5 bits of the
// first byte select the scheme; data without a known marker is
// returned unchanged.
func Decompress(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	switch data[0] >> 3 {
	case 1, 2:
		return compression.DecompressSevenBit(data[1:])
	case 3:
		if data[0] != 0x18 || len(data) < 3 {
			return compression.DecompressSevenBit(data[1:])
		}
		size := int(binary.LittleEndian.Uint16(data[1:]))
		result, err := compression.DecompressLZ77(data[3:], size)
		if err != nil {
			log.WithError(err).Debug("[ese] Could not decompress column")
			return data
		}
		return result
	}
	return data
}

// DecodeValue converts raw column bytes into a Go value by type.
// Data that does not fit the type is base64 encoded.
func DecodeValue(column_type ColumnType, flags ColumnFlags, data []byte) interface{} {
	size := column_type.fixedSize()
	if size > 0 && len(data) < size {
		return utils.Base64Encode(data)
	}

	switch column_type {
	case COLUMN_NIL:
		return nil
	case COLUMN_BIT:
		return data[0] != 0
	case COLUMN_UNSIGNED_BYTE:
		return data[0]
	case COLUMN_SHORT:
		return int16(binary.LittleEndian.Uint16(data))
	case COLUMN_UNSIGNED_SHORT:
		return binary.LittleEndian.Uint16(data)
	case COLUMN_LONG:
		return int32(binary.LittleEndian.Uint32(data))
	case COLUMN_UNSIGNED_LONG:
		return binary.LittleEndian.Uint32(data)
	case COLUMN_CURRENCY, COLUMN_LONG_LONG:
		return int64(binary.LittleEndian.Uint64(data))
	case COLUMN_FLOAT32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data))
	case COLUMN_FLOAT64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data))
	case COLUMN_DATETIME:
		value := binary.LittleEndian.Uint64(data)

		// Not null date columns hold FILETIMEs, the rest OLE dates.
		if flags.Has(COLUMN_FLAG_NOT_NULL) {
			return utils.FiletimeToISO(value)
		}
		return OLETimeToTime(math.Float64frombits(value)).
			Format(time.RFC3339Nano)
	case COLUMN_TEXT, COLUMN_LONG_TEXT:
		return utils.ExtractASCIIUTF16String(data)
	case COLUMN_GUID:
		return utils.FormatGUIDLE(data)
	}

	return utils.Base64Encode(data)
}

var ole_epoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// OLETimeToTime converts an OLE automation date (days since
// 1899-12-30) to a time.
func OLETimeToTime(days float64) time.Time {
	if math.IsNaN(days) || math.IsInf(days, 0) ||
		days > 2958465 || days < -657434 {
		return time.Unix(0, 0).UTC()
	}
	whole, fraction := math.Modf(days)
	return ole_epoch.AddDate(0, 0, int(whole)).
		Add(time.Duration(math.Abs(fraction) * 24 * float64(time.Hour)))
}

// TableRows walks the data tree of a table and calls cb with every
// decoded row in key order. Rows that fail to decode are logged and
// skipped.
func (self *Walker) TableRows(page uint32,
	decode func(def *DataDefinition) (*ordereddict.Dict, error),
	cb func(row *ordereddict.Dict)) error {
	return self.Leaves(page, func(leaf *Leaf) {
		if leaf.Type != LEAF_DATA_DEFINITION {
			return
		}

		row, err := decode(leaf.Definition)
		if err != nil {
			log.WithError(err).WithField("page", page).
				Warn("[ese] Failed to decode row")
			utils.STATS.Inc_RecordsSkipped()
			return
		}
		cb(row)
	})
}
