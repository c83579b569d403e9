package lnk

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	// "1SPS"
	PROPERTY_STORE_VERSION = 0x53505331

	// Property sets with this format id are keyed by name, all others
	// by integer id.
	NAMED_PROPERTY_FMTID = "d5cdd505-2e9c-101b-9397-08002b2cf9ae"
)

// Typed property value types.
const (
	VT_EMPTY    = 0x0
	VT_NULL     = 0x1
	VT_I2       = 0x2
	VT_I4       = 0x3
	VT_BOOL     = 0xb
	VT_I1       = 0x10
	VT_UI1      = 0x11
	VT_UI2      = 0x12
	VT_UI4      = 0x13
	VT_I8       = 0x14
	VT_UI8      = 0x15
	VT_INT      = 0x16
	VT_UINT     = 0x17
	VT_LPSTR    = 0x1e
	VT_LPWSTR   = 0x1f
	VT_FILETIME = 0x40
	VT_BLOB     = 0x41
	VT_CLSID    = 0x48
)

var variant_names = map[uint16]string{
	VT_EMPTY:    "VT_EMPTY",
	VT_NULL:     "VT_NULL",
	VT_I2:       "VT_I2",
	VT_I4:       "VT_I4",
	VT_BOOL:     "VT_BOOL",
	VT_I1:       "VT_I1",
	VT_UI1:      "VT_UI1",
	VT_UI2:      "VT_UI2",
	VT_UI4:      "VT_UI4",
	VT_I8:       "VT_I8",
	VT_UI8:      "VT_UI8",
	VT_INT:      "VT_INT",
	VT_UINT:     "VT_UINT",
	VT_LPSTR:    "VT_LPSTR",
	VT_LPWSTR:   "VT_LPWSTR",
	VT_FILETIME: "VT_FILETIME",
	VT_BLOB:     "VT_BLOB",
	VT_CLSID:    "VT_CLSID",
}

func variantName(vtype uint16) string {
	name, pres := variant_names[vtype]
	if pres {
		return name
	}
	return fmt.Sprintf("VT_%#x", vtype)
}

// ParsePropertyStore decodes a serialized property storage list into
// one row per property.
func ParsePropertyStore(data []byte) ([]*ordereddict.Dict, error) {
	result := []*ordereddict.Dict{}
	cursor := utils.NewCursor(data)

	for !cursor.Empty() {
		size, err := cursor.U32LE()
		if err != nil {
			return result, err
		}

		// Terminal storage.
		if size == 0 {
			break
		}
		if size < 24 {
			return result, utils.BadFormat("Property storage size %d too small", size)
		}

		storage, err := cursor.Take(int(size) - 4)
		if err != nil {
			return result, err
		}

		version, _ := utils.GetU32LE(storage, 0)
		if version != PROPERTY_STORE_VERSION {
			return result, utils.BadFormat("Invalid property storage version %#x",
				version)
		}

		fmtid := utils.FormatGUIDLE(storage[4:20])
		rows, err := parsePropertyValues(storage[20:], fmtid)
		result = append(result, rows...)
		if err != nil {
			return result, errors.Wrapf(err, "Property storage %v", fmtid)
		}
	}

	return result, nil
}

func parsePropertyValues(data []byte, fmtid string) ([]*ordereddict.Dict, error) {
	result := []*ordereddict.Dict{}
	cursor := utils.NewCursor(data)

	for !cursor.Empty() {
		size, err := cursor.U32LE()
		if err != nil {
			return result, err
		}
		if size == 0 {
			break
		}
		if size < 4 {
			return result, utils.BadFormat("Property value size %d too small", size)
		}

		value_data, err := cursor.Take(int(size) - 4)
		if err != nil {
			return result, err
		}

		value := utils.NewCursor(value_data)
		row := ordereddict.NewDict().Set("guid", fmtid)

		if fmtid == NAMED_PROPERTY_FMTID {
			name_size, err := value.U32LE()
			if err != nil {
				return result, err
			}
			_ = value.Skip(1)
			name, err := value.Take(int(name_size))
			if err != nil {
				return result, err
			}
			row.Set("name", utils.ExtractUTF16String(name))

		} else {
			id, err := value.U32LE()
			if err != nil {
				return result, err
			}
			_ = value.Skip(1)
			row.Set("id", id)
		}

		vtype, err := value.U16LE()
		if err != nil {
			return result, err
		}
		_ = value.Skip(2)

		row.Set("type", variantName(vtype))
		row.Set("value", decodeVariant(vtype, value.Remaining()))
		result = append(result, row)
	}

	return result, nil
}

func decodeVariant(vtype uint16, data []byte) interface{} {
	cursor := utils.NewCursor(data)

	switch vtype {
	case VT_EMPTY, VT_NULL:
		return nil

	case VT_I1:
		v, _ := cursor.U8()
		return int8(v)

	case VT_UI1:
		v, _ := cursor.U8()
		return v

	case VT_I2:
		v, _ := cursor.I16LE()
		return v

	case VT_UI2:
		v, _ := cursor.U16LE()
		return v

	case VT_I4, VT_INT:
		v, _ := cursor.I32LE()
		return v

	case VT_UI4, VT_UINT:
		v, _ := cursor.U32LE()
		return v

	case VT_I8:
		v, _ := cursor.I64LE()
		return v

	case VT_UI8:
		v, _ := cursor.U64LE()
		return v

	case VT_BOOL:
		v, _ := cursor.U16LE()
		return v != 0

	case VT_FILETIME:
		v, _ := cursor.U64LE()
		return utils.FiletimeToISO(v)

	case VT_CLSID:
		guid, err := cursor.Take(16)
		if err != nil {
			return utils.Base64Encode(data)
		}
		return utils.FormatGUIDLE(guid)

	case VT_LPWSTR:
		count, err := cursor.U32LE()
		if err != nil {
			return ""
		}
		value, err := cursor.Take(int(count) * 2)
		if err != nil {
			return utils.ExtractUTF16String(cursor.Remaining())
		}
		return utils.ExtractUTF16String(value)

	case VT_LPSTR:
		count, err := cursor.U32LE()
		if err != nil {
			return ""
		}
		value, err := cursor.Take(int(count))
		if err != nil {
			return utils.ExtractANSIString(cursor.Remaining())
		}
		return utils.ExtractANSIString(value)
	}

	log.WithField("type", vtype).Debug("[shortcuts] Unhandled property type")
	return utils.Base64Encode(data)
}
