package spotlight

import (
	"math"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type Record struct {
	Inode       uint64            `json:"inode"`
	ParentInode uint64            `json:"parent_inode"`
	Flags       uint8             `json:"flags"`
	StoreID     uint64            `json:"store_id"`
	LastUpdated string            `json:"last_updated"`
	Values      *ordereddict.Dict `json:"values"`
	Directory   string            `json:"directory"`
	Path        string            `json:"path"`
}

func (self *Record) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("inode", self.Inode).
		Set("parent_inode", self.ParentInode).
		Set("flags", self.Flags).
		Set("store_id", self.StoreID).
		Set("last_updated", self.LastUpdated).
		Set("path", self.Path).
		Set("directory", self.Directory).
		Set("values", self.Values)
}

// The file name of the item, used to build paths.
const NAME_PROPERTY = "_kMDItemFileName"

func (self *Record) Name() string {
	value, pres := self.Values.Get(NAME_PROPERTY)
	if !pres {
		return ""
	}
	name, _ := value.(string)
	return name
}

// ParseRecords splits decompressed page data into its size prefixed
// records. Records that fail to decode are logged and skipped.
func ParseRecords(data []byte, meta *Meta, directory string, cb func(record *Record)) {
	cursor := utils.NewCursor(data)
	for cursor.Len() > 4 {
		size, _ := cursor.U32LE()
		record_data, err := cursor.Take(int(size))
		if err != nil {
			log.WithError(err).WithField("size", size).
				Warn("[spotlight] Record overruns page")
			utils.STATS.Inc_RecordsSkipped()
			return
		}

		record, err := ParseRecord(record_data, meta)
		if err != nil {
			log.WithError(err).Warn("[spotlight] Failed to parse record")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}
		record.Directory = directory
		cb(record)
	}
}

func ParseRecord(data []byte, meta *Meta) (*Record, error) {
	cursor := utils.NewCursor(data)
	result := &Record{Values: ordereddict.NewDict()}

	var err error
	result.Inode, err = ReadVarint(cursor)
	if err != nil {
		return nil, err
	}
	result.Flags, err = cursor.U8()
	if err != nil {
		return nil, err
	}
	result.StoreID, err = ReadVarint(cursor)
	if err != nil {
		return nil, err
	}
	result.ParentInode, err = ReadVarint(cursor)
	if err != nil {
		return nil, err
	}
	last_updated, err := ReadVarint(cursor)
	if err != nil {
		return nil, err
	}
	result.LastUpdated = utils.UnixToISO(int64(last_updated))

	// Property indexes are stored as deltas from the previous one.
	prop_index := uint64(0)
	for !cursor.Empty() {
		delta, err := ReadVarint(cursor)
		if err != nil {
			return result, nil
		}
		prop_index += delta

		def, pres := meta.Props[prop_index]
		if !pres {
			utils.DebugPrint("No property definition for index %d\n", prop_index)
			break
		}

		value, err := extractValue(def, cursor, meta)
		if err != nil {
			log.WithError(err).WithField("property", def.Name).
				Debug("[spotlight] Truncated property")
			break
		}
		result.Values.Set(def.Name, value)
	}

	return result, nil
}

// Multiple values are preceded by their total size in bytes.
func multiple(def *PropertyDef, cursor *utils.Cursor,
	item func(c *utils.Cursor) (interface{}, error)) (interface{}, error) {
	if !def.Multiple() {
		return item(cursor)
	}

	size, err := ReadVarint(cursor)
	if err != nil {
		return nil, err
	}
	data, err := cursor.Take(int(size))
	if err != nil {
		return nil, err
	}

	result := []interface{}{}
	items := utils.NewCursor(data)
	for !items.Empty() {
		value, err := item(items)
		if err != nil {
			break
		}
		result = append(result, value)
	}
	return result, nil
}

func readVarintValue(cursor *utils.Cursor) (interface{}, error) {
	return ReadVarint(cursor)
}

func readFloat32(cursor *utils.Cursor) (interface{}, error) {
	bits, err := cursor.U32LE()
	return math.Float32frombits(bits), err
}

func readFloat64(cursor *utils.Cursor) (interface{}, error) {
	bits, err := cursor.U64LE()
	return math.Float64frombits(bits), err
}

// Dates are Cocoa timestamps.
func readDate(cursor *utils.Cursor) (interface{}, error) {
	bits, err := cursor.U64LE()
	if err != nil {
		return nil, err
	}
	seconds := math.Float64frombits(bits)
	return utils.CocoaToTime(seconds).Format(time.RFC3339Nano), nil
}

func extractValue(def *PropertyDef, cursor *utils.Cursor, meta *Meta) (interface{}, error) {
	switch def.Attribute {
	case ATTR_BOOL:
		value, err := cursor.U8()
		return value != 0, err

	case ATTR_BYTE:
		// Despite the attribute this one is a variable sized size.
		if def.Name != "kMDStoreAccumulatedSizes" {
			return cursor.U8()
		}

	case ATTR_VARINT_MULTIVALUE:
		return multiple(def, cursor, readVarintValue)

	case ATTR_FLOAT32:
		return multiple(def, cursor, readFloat32)

	case ATTR_FLOAT64:
		return multiple(def, cursor, readFloat64)

	case ATTR_DATE:
		return multiple(def, cursor, readDate)
	}

	size, err := ReadVarint(cursor)
	if err != nil {
		return nil, err
	}

	switch def.Attribute {
	case ATTR_STRING:
		data, err := cursor.Take(int(size))
		if err != nil {
			return nil, errors.Wrapf(err, "String %v", def.Name)
		}
		values := strings.Split(strings.TrimRight(
			utils.ExtractUTF8StringLossy(data), "\x00"), "\x00")
		if def.Multiple() {
			return values, nil
		}
		return values[0], nil

	case ATTR_BINARY:
		data, err := cursor.Take(int(size))
		if err != nil {
			return nil, errors.Wrapf(err, "Binary %v", def.Name)
		}
		return utils.Base64Encode(data), nil

	case ATTR_LIST:
		return meta.resolveList(def, size), nil
	}

	// Everything else is the number itself.
	return size, nil
}

// Single lists name a category. Multiple lists name an index entry
// holding category numbers.
func (self *Meta) resolveList(def *PropertyDef, value uint64) interface{} {
	if !def.Multiple() {
		name, pres := self.Categories[value]
		if pres {
			return name
		}
		return value
	}

	indexes, pres := self.Indexes1[value]
	if !pres {
		indexes, pres = self.Indexes2[value]
	}
	if !pres {
		return value
	}

	result := []string{}
	for _, idx := range indexes {
		name, pres := self.Categories[uint64(idx)]
		if pres {
			result = append(result, name)
		}
	}
	return result
}
