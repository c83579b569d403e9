package wmi

import (
	"math"
	"strconv"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type CimType uint32

const (
	CIM_NONE      CimType = 0x0
	CIM_SINT16    CimType = 0x2
	CIM_SINT32    CimType = 0x3
	CIM_REAL32    CimType = 0x4
	CIM_REAL64    CimType = 0x5
	CIM_STRING    CimType = 0x8
	CIM_BOOL      CimType = 0xb
	CIM_OBJECT    CimType = 0xd
	CIM_SINT8     CimType = 0x10
	CIM_UINT8     CimType = 0x11
	CIM_UINT16    CimType = 0x12
	CIM_UINT32    CimType = 0x13
	CIM_SINT64    CimType = 0x14
	CIM_UINT64    CimType = 0x15
	CIM_DATETIME  CimType = 0x65
	CIM_REFERENCE CimType = 0x66
	CIM_CHAR      CimType = 0x67

	CIM_ARRAY_FLAG CimType = 0x2000
	CIM_BYREF_FLAG CimType = 0x4000
)

var cim_names = map[CimType]string{
	CIM_NONE:      "None",
	CIM_SINT16:    "Sint16",
	CIM_SINT32:    "Sint32",
	CIM_REAL32:    "Real32",
	CIM_REAL64:    "Real64",
	CIM_STRING:    "String",
	CIM_BOOL:      "Bool",
	CIM_OBJECT:    "Object",
	CIM_SINT8:     "Sint8",
	CIM_UINT8:     "Uint8",
	CIM_UINT16:    "Uint16",
	CIM_UINT32:    "Uint32",
	CIM_SINT64:    "Sint64",
	CIM_UINT64:    "Uint64",
	CIM_DATETIME:  "Datetime",
	CIM_REFERENCE: "Reference",
	CIM_CHAR:      "Char",
}

func (self CimType) Base() CimType {
	return self &^ (CIM_ARRAY_FLAG | CIM_BYREF_FLAG)
}

func (self CimType) IsArray() bool {
	return self&CIM_ARRAY_FLAG != 0
}

func (self CimType) IsByRef() bool {
	return self&CIM_BYREF_FLAG != 0
}

// Known types have a base we can name and at most one of the array
// and byref bits.
func (self CimType) Known() bool {
	if self.IsArray() && self.IsByRef() {
		return false
	}
	_, pres := cim_names[self.Base()]
	return pres
}

func (self CimType) String() string {
	if !self.Known() {
		return "Unknown"
	}

	name := cim_names[self.Base()]
	switch {
	case self.IsArray():
		return "Array" + name
	case self.IsByRef():
		return "ByRef" + name
	}
	return name
}

func (self CimType) MarshalText() ([]byte, error) {
	return []byte(self.String()), nil
}

func (self CimType) isObject() bool {
	return self.Base() == CIM_OBJECT
}

// Width is the size of the inline slot a property of this type
// occupies in an instance. Arrays and references store an offset.
func (self CimType) Width() uint32 {
	if self.IsArray() || self.IsByRef() {
		return 4
	}

	switch self {
	case CIM_UINT64, CIM_SINT64, CIM_REAL64:
		return 8
	case CIM_UINT16, CIM_SINT16, CIM_BOOL:
		return 2
	case CIM_UINT8, CIM_SINT8:
		return 1
	}
	return 4
}

// cimString reads the string at offset in the value data. The first
// byte is the encoding: 0 for a NUL terminated ASCII string, 1 for
// UTF16.
func cimString(data []byte, offset uint32) (string, error) {
	if int64(offset) >= int64(len(data)) {
		return "", utils.Incomplete("CIM string offset %#x past end of %d bytes",
			offset, len(data))
	}

	value := data[offset+1:]
	switch data[offset] {
	case 0:
		for i, c := range value {
			if c == 0 {
				value = value[:i]
				break
			}
		}
		return utils.ExtractUTF8String(value), nil

	case 1:
		return utils.ExtractUTF16String(value), nil
	}

	log.WithField("encoding", data[offset]).Debug("[wmi] Unknown CIM string encoding")
	return "", nil
}

// extractCimData decodes one value. Fixed size values are read from
// the cursor, strings and arrays are referenced by a u32 offset into
// the value data.
func extractCimData(cim_type CimType, cursor *utils.Cursor, data []byte) (
	interface{}, error) {
	if !cim_type.Known() {
		log.WithField("type", uint32(cim_type)).Debug("[wmi] Unknown CIM type")

		// The inline size is unknown so nothing after it can be
		// trusted.
		_ = cursor.Skip(cursor.Len())
		return nil, nil
	}

	if cim_type.isObject() {
		_ = cursor.Skip(4)
		return nil, utils.Unsupported("CIM embedded objects are not supported")
	}

	if cim_type.IsArray() || cim_type == CIM_BYREF_FLAG|CIM_REFERENCE {
		offset, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		return extractCimArray(cim_type.Base(), offset, data)
	}

	// Other by reference values are an offset we can not follow.
	if cim_type.IsByRef() {
		_, err := cursor.U32LE()
		return nil, err
	}

	return extractCimScalar(cim_type, cursor, data)
}

func extractCimScalar(cim_type CimType, cursor *utils.Cursor, data []byte) (
	interface{}, error) {
	switch cim_type {
	case CIM_NONE:
		return nil, nil

	case CIM_STRING, CIM_REFERENCE, CIM_DATETIME:
		offset, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		return cimString(data, offset)

	case CIM_BOOL:
		value, err := cursor.I16LE()
		return value == -1, err

	case CIM_SINT8:
		value, err := cursor.U8()
		return int8(value), err

	case CIM_UINT8:
		return cursor.U8()

	case CIM_SINT16:
		return cursor.I16LE()

	case CIM_UINT16:
		return cursor.U16LE()

	case CIM_SINT32:
		return cursor.I32LE()

	case CIM_UINT32:
		return cursor.U32LE()

	case CIM_SINT64:
		return cursor.I64LE()

	case CIM_UINT64:
		return cursor.U64LE()

	case CIM_REAL32:
		value, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		return strconv.FormatFloat(
			float64(math.Float32frombits(value)), 'f', -1, 32), nil

	case CIM_REAL64:
		value, err := cursor.U64LE()
		if err != nil {
			return nil, err
		}
		return strconv.FormatFloat(math.Float64frombits(value), 'f', -1, 64), nil

	case CIM_CHAR:
		value, err := cursor.U16LE()
		if err != nil {
			return nil, err
		}
		return string(rune(value)), nil
	}

	return nil, utils.Unsupported("CIM type %v", cim_type)
}

// extractCimArray reads a u32 element count at offset followed by the
// elements.
func extractCimArray(base CimType, offset uint32, data []byte) (
	interface{}, error) {
	count, err := utils.GetU32LE(data, int64(offset))
	if err != nil {
		return nil, err
	}

	// Corrupted counts would allocate far more than the data holds.
	if int64(count) > int64(len(data)) {
		return nil, nil
	}

	cursor := utils.NewCursor(data)
	_ = cursor.Seek(int(offset) + 4)

	result := make([]interface{}, 0, count)
	for i := uint32(0); i < count; i++ {
		value, err := extractCimScalar(base, cursor, data)
		if err != nil {
			return result, errors.Wrapf(err, "CIM array element %d", i)
		}
		result = append(result, value)
	}
	return result, nil
}
