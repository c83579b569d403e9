package registry

import (
	"fmt"
	"time"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	KEY_COMPRESSED_NAME = 0x20
	KEY_HIVE_ENTRY      = 0x04

	nk_min_size = 0x4C
)

type NameKey struct {
	Offset          uint32
	Flags           uint16
	LastWritten     uint64
	ParentOffset    uint32
	SubkeyCount     uint32
	SubkeyListOff   uint32
	ValueCount      uint32
	ValueListOffset uint32
	SecurityOffset  uint32
	ClassOffset     uint32
	ClassLength     uint16
	Name            string
}

func (self *NameKey) LastWrittenTime() time.Time {
	return utils.FiletimeToTime(self.LastWritten)
}

func (self *NameKey) DebugString() string {
	return fmt.Sprintf("nk %#x %q subkeys %d values %d\n",
		self.Offset, self.Name, self.SubkeyCount, self.ValueCount)
}

func (self *NameKey) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Name", self.Name).
		Set("LastWritten", self.LastWrittenTime()).
		Set("Subkeys", self.SubkeyCount).
		Set("Values", self.ValueCount)
}

// ParseNameKey decodes the payload of an nk cell (after the size).
func ParseNameKey(data []byte, offset uint32) (*NameKey, error) {
	if len(data) < nk_min_size {
		return nil, utils.Incomplete("nk cell at %#x is %d bytes", offset, len(data))
	}
	if string(data[:2]) != string(CELL_KEY) {
		return nil, utils.BadFormat("Cell at %#x is not an nk", offset)
	}

	result := &NameKey{Offset: offset}
	result.Flags, _ = utils.GetU16LE(data, 0x02)
	result.LastWritten, _ = utils.GetU64LE(data, 0x04)
	result.ParentOffset, _ = utils.GetU32LE(data, 0x10)
	result.SubkeyCount, _ = utils.GetU32LE(data, 0x14)
	result.SubkeyListOff, _ = utils.GetU32LE(data, 0x1C)
	result.ValueCount, _ = utils.GetU32LE(data, 0x24)
	result.ValueListOffset, _ = utils.GetU32LE(data, 0x28)
	result.SecurityOffset, _ = utils.GetU32LE(data, 0x2C)
	result.ClassOffset, _ = utils.GetU32LE(data, 0x30)
	name_length, _ := utils.GetU16LE(data, 0x48)
	result.ClassLength, _ = utils.GetU16LE(data, 0x4A)

	name, err := utils.Slice(data, nk_min_size, int64(name_length))
	if err != nil {
		return nil, err
	}

	if result.Flags&KEY_COMPRESSED_NAME != 0 {
		result.Name = utils.ExtractANSIString(name)
	} else {
		result.Name = utils.ExtractUTF16String(name)
	}

	return result, nil
}

// ClassName is stored in a separate cell as UTF16.
func (self *NameKey) ClassName(hive *Hive) string {
	if self.ClassLength == 0 || self.ClassOffset == INVALID_OFFSET {
		return ""
	}

	cell, err := hive.Cell(self.ClassOffset)
	if err != nil {
		return ""
	}

	data := cell.Data
	if int(self.ClassLength) < len(data) {
		data = data[:self.ClassLength]
	}
	return utils.ExtractUTF16String(data)
}

func (self *Hive) NameKey(offset uint32) (*NameKey, error) {
	cell, err := self.Cell(offset)
	if err != nil {
		return nil, err
	}
	return ParseNameKey(cell.Data, offset)
}
