package registry

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	VALUE_COMPRESSED_NAME = 0x0001

	// Data of 4 bytes or less lives in the offset field itself.
	DATA_RESIDENT = 0x80000000

	// Largest data that fits a single cell. Anything bigger is split
	// into big data segments in newer hives.
	BIG_DATA_SEGMENT_SIZE = 16344

	vk_min_size = 0x14
)

type RegType uint32

const (
	REG_NONE                       RegType = 0
	REG_SZ                         RegType = 1
	REG_EXPAND_SZ                  RegType = 2
	REG_BINARY                     RegType = 3
	REG_DWORD                      RegType = 4
	REG_DWORD_BIG_ENDIAN           RegType = 5
	REG_LINK                       RegType = 6
	REG_MULTI_SZ                   RegType = 7
	REG_RESOURCE_LIST              RegType = 8
	REG_FULL_RESOURCE_DESCRIPTOR   RegType = 9
	REG_RESOURCE_REQUIREMENTS_LIST RegType = 10
	REG_QWORD                      RegType = 11
	REG_FILETIME                   RegType = 16
)

var reg_type_names = map[RegType]string{
	REG_NONE:                       "REG_NONE",
	REG_SZ:                         "REG_SZ",
	REG_EXPAND_SZ:                  "REG_EXPAND_SZ",
	REG_BINARY:                     "REG_BINARY",
	REG_DWORD:                      "REG_DWORD",
	REG_DWORD_BIG_ENDIAN:           "REG_DWORD_BIG_ENDIAN",
	REG_LINK:                       "REG_LINK",
	REG_MULTI_SZ:                   "REG_MULTI_SZ",
	REG_RESOURCE_LIST:              "REG_RESOURCE_LIST",
	REG_FULL_RESOURCE_DESCRIPTOR:   "REG_FULL_RESOURCE_DESCRIPTOR",
	REG_RESOURCE_REQUIREMENTS_LIST: "REG_RESOURCE_REQUIREMENTS_LIST",
	REG_QWORD:                      "REG_QWORD",
	REG_FILETIME:                   "REG_FILETIME",
}

func (self RegType) IsKnown() bool {
	_, pres := reg_type_names[self]
	return pres
}

// Unknown types are labeled with their decimal code. The SAM stores
// the RID of each account as the type of a value so the label must
// round trip through strconv.
func (self RegType) String() string {
	name, pres := reg_type_names[self]
	if pres {
		return name
	}
	return strconv.FormatUint(uint64(self), 10)
}

func (self RegType) isString() bool {
	switch self {
	case REG_SZ, REG_EXPAND_SZ, REG_LINK, REG_MULTI_SZ:
		return true
	}
	return false
}

type ValueKey struct {
	Offset     uint32
	Name       string
	DataSize   uint32
	DataOffset uint32
	Type       RegType
	Flags      uint16
}

// The decoded form of a value that ends up in the output.
type Value struct {
	Name     string `json:"value"`
	Data     string `json:"data"`
	DataType string `json:"data_type"`

	Raw []byte `json:"-"`
}

func (self *Value) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("value", self.Name).
		Set("data", self.Data).
		Set("data_type", self.DataType)
}

func (self *ValueKey) IsResident() bool {
	return self.DataSize&DATA_RESIDENT != 0
}

func (self *ValueKey) Size() uint32 {
	return self.DataSize &^ DATA_RESIDENT
}

func (self *ValueKey) DebugString() string {
	return fmt.Sprintf("vk %#x %q %v size %d\n",
		self.Offset, self.Name, self.Type, self.Size())
}

func ParseValueKey(data []byte, offset uint32) (*ValueKey, error) {
	if len(data) < vk_min_size {
		return nil, utils.Incomplete("vk cell at %#x is %d bytes", offset, len(data))
	}
	if string(data[:2]) != string(CELL_VALUE) {
		return nil, utils.BadFormat("Cell at %#x is not a vk", offset)
	}

	result := &ValueKey{Offset: offset}
	name_size, _ := utils.GetU16LE(data, 0x02)
	result.DataSize, _ = utils.GetU32LE(data, 0x04)
	result.DataOffset, _ = utils.GetU32LE(data, 0x08)
	reg_type, _ := utils.GetU32LE(data, 0x0C)
	result.Type = RegType(reg_type)
	result.Flags, _ = utils.GetU16LE(data, 0x10)

	if name_size == 0 {
		result.Name = "(default)"
		return result, nil
	}

	name, err := utils.Slice(data, vk_min_size, int64(name_size))
	if err != nil {
		return nil, err
	}

	if result.Flags&VALUE_COMPRESSED_NAME != 0 {
		result.Name = utils.ExtractANSIString(name)
	} else {
		result.Name = utils.ExtractASCIIUTF16String(name)
	}
	return result, nil
}

// RawData returns the value's bytes from wherever they are stored.
func (self *ValueKey) RawData(hive *Hive) ([]byte, error) {
	size := self.Size()
	if size == 0 {
		return nil, nil
	}

	if self.IsResident() {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, self.DataOffset)
		if size < 4 {
			buf = buf[:size]
		}
		return buf, nil
	}

	if size > BIG_DATA_SEGMENT_SIZE && hive.SupportsBigData() {
		segments, err := hive.BigDataSegments(self.DataOffset, size)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, s := range segments {
			total += len(s)
		}
		result := make([]byte, 0, total)
		for _, s := range segments {
			result = append(result, s...)
		}
		return result, nil
	}

	cell, err := hive.Cell(self.DataOffset)
	if err != nil {
		return nil, err
	}

	data := cell.Data
	if int(size) < len(data) {
		data = data[:size]
	}
	return data, nil
}

// Parse decodes the value into its output form.
func (self *ValueKey) Parse(hive *Hive) (*Value, error) {
	result := &Value{
		Name:     self.Name,
		DataType: self.Type.String(),
	}

	size := self.Size()
	if size == 0 {
		result.Data = "(NULL)"
		return result, nil
	}

	// Big strings are decoded per segment since a segment boundary
	// never splits a UTF16 code unit.
	if !self.IsResident() && size > BIG_DATA_SEGMENT_SIZE &&
		hive.SupportsBigData() && self.Type.isString() {
		segments, err := hive.BigDataSegments(self.DataOffset, size)
		if err != nil {
			return nil, err
		}

		for _, s := range segments {
			result.Raw = append(result.Raw, s...)
			result.Data += DecodeValueData(self.Type, s)
		}
		return result, nil
	}

	data, err := self.RawData(hive)
	if err != nil {
		return nil, err
	}

	result.Raw = data
	result.Data = DecodeValueData(self.Type, data)
	return result, nil
}

// DecodeValueData renders the data as a string according to its type.
func DecodeValueData(reg_type RegType, data []byte) string {
	switch reg_type {
	case REG_SZ, REG_EXPAND_SZ, REG_LINK:
		return utils.ExtractUTF16String(data)

	case REG_MULTI_SZ:
		return utils.ExtractMultilineUTF16String(data)

	case REG_DWORD:
		if len(data) < 4 {
			return utils.Base64Encode(data)
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(data)), 10)

	case REG_DWORD_BIG_ENDIAN:
		if len(data) < 4 {
			return utils.Base64Encode(data)
		}
		return strconv.FormatUint(uint64(binary.BigEndian.Uint32(data)), 10)

	case REG_QWORD:
		if len(data) < 8 {
			return utils.Base64Encode(data)
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(data)), 10)

	case REG_FILETIME:
		if len(data) < 8 {
			return utils.Base64Encode(data)
		}
		return strconv.FormatUint(binary.LittleEndian.Uint64(data), 10)

	default:
		return utils.Base64Encode(data)
	}
}

func (self *Hive) ValueKey(offset uint32) (*ValueKey, error) {
	cell, err := self.Cell(offset)
	if err != nil {
		return nil, err
	}
	if !cell.IsAllocated() {
		return nil, utils.BadFormat("vk at %#x is not allocated", offset)
	}
	return ParseValueKey(cell.Data, offset)
}

// Values decodes the value list of a key. Bad entries are skipped.
func (self *Hive) Values(key *NameKey) []*Value {
	result := []*Value{}
	if key.ValueCount == 0 || key.ValueListOffset == INVALID_OFFSET {
		return result
	}

	list, err := self.Cell(key.ValueListOffset)
	if err != nil {
		utils.DebugPrint("Value list of %v: %v\n", key.Name, err)
		return result
	}

	for i := 0; i < int(key.ValueCount); i++ {
		offset, err := utils.GetU32LE(list.Data, int64(i*4))
		if err != nil {
			break
		}
		if offset == 0 || offset == INVALID_OFFSET {
			continue
		}

		vk, err := self.ValueKey(offset)
		if err != nil {
			utils.DebugPrint("Value %d of %v: %v\n", i, key.Name, err)
			continue
		}

		value, err := vk.Parse(self)
		if err != nil {
			utils.STATS.Inc_RecordsSkipped()
			utils.DebugPrint("Value %v of %v: %v\n", vk.Name, key.Name, err)
			continue
		}
		result = append(result, value)
	}

	return result
}
