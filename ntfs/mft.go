package ntfs

import (
	"fmt"
	"strings"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	FILE_SIGNATURE = 0x454c4946 // "FILE"
	BAAD_SIGNATURE = 0x44414142 // "BAAD"

	MFT_ENTRY_HEADER_SIZE = 48
	SECTOR_SIZE           = 512

	MFT_FLAG_IN_USE    = 0x01
	MFT_FLAG_DIRECTORY = 0x02

	ROOT_INDEX = 5
)

// FixUpMFTEntry applies the update sequence array in place. The last
// two bytes of every sector must carry the update sequence number.
func FixUpMFTEntry(buf []byte) error {
	fixup_offset, err := utils.GetU16LE(buf, 4)
	if err != nil {
		return err
	}
	fixup_count, err := utils.GetU16LE(buf, 6)
	if err != nil {
		return err
	}
	if fixup_count == 0 {
		return nil
	}

	fixup_table, err := utils.Slice(buf, int64(fixup_offset),
		int64(fixup_count)*2)
	if err != nil {
		return utils.Incomplete("Fixup table at %d: %v", fixup_offset, err)
	}
	fixup_magic := []byte{fixup_table[0], fixup_table[1]}

	for i := 1; i < int(fixup_count); i++ {
		sector_offset := i*SECTOR_SIZE - 2
		if sector_offset+2 > len(buf) {
			break
		}

		if buf[sector_offset] != fixup_magic[0] ||
			buf[sector_offset+1] != fixup_magic[1] {
			return utils.BadFormat("Fixup error at sector %d: %x != %x",
				i, buf[sector_offset:sector_offset+2], fixup_magic)
		}

		buf[sector_offset] = fixup_table[2*i]
		buf[sector_offset+1] = fixup_table[2*i+1]
	}

	return nil
}

type MFTEntry struct {
	Index           uint64
	Sequence        uint16
	LSN             uint64
	LinkCount       uint16
	AttributeOffset uint16
	Flags           uint16
	UsedSize        uint32
	AllocatedSize   uint32
	BaseIndex       uint64
	BaseSequence    uint16
	RecordNumber    uint32

	Attributes          []*Attribute
	StandardInformation *StandardInformation
	FileNames           []*FileName
	AttributeList       []*AttributeListEntry
}

func (self *MFTEntry) InUse() bool {
	return self.Flags&MFT_FLAG_IN_USE != 0
}

func (self *MFTEntry) IsDir() bool {
	return self.Flags&MFT_FLAG_DIRECTORY != 0
}

// Extension records hold attributes that did not fit in their base
// record.
func (self *MFTEntry) IsExtension() bool {
	return self.BaseIndex != 0
}

// FindAttribute returns the first attribute of this type and name.
func (self *MFTEntry) FindAttribute(attr_type AttributeType, name string) *Attribute {
	for _, attr := range self.Attributes {
		if attr.Type == attr_type && attr.Name == name {
			return attr
		}
	}
	return nil
}

// All attributes of the type with this name, in the order they were
// found.
func (self *MFTEntry) FindAttributes(attr_type AttributeType, name string) []*Attribute {
	var result []*Attribute
	for _, attr := range self.Attributes {
		if attr.Type == attr_type && attr.Name == name {
			result = append(result, attr)
		}
	}
	return result
}

// Size is the unnamed $DATA stream size.
func (self *MFTEntry) Size() int64 {
	attr := self.FindAttribute(ATTR_TYPE_DATA, "")
	if attr == nil {
		return 0
	}
	return attr.DataSize()
}

// AttributeNames lists the types present in the record.
func (self *MFTEntry) AttributeNames() []string {
	result := []string{}
	seen := make(map[AttributeType]bool)
	for _, attr := range self.Attributes {
		if !seen[attr.Type] {
			seen[attr.Type] = true
			result = append(result, attr.Type.String())
		}
	}
	return result
}

func (self *MFTEntry) DebugString() string {
	result := []string{fmt.Sprintf(
		"MFT Entry %d-%d flags %#x links %d base %d",
		self.Index, self.Sequence, self.Flags, self.LinkCount, self.BaseIndex)}
	for _, attr := range self.Attributes {
		result = append(result, "  "+attr.DebugString())
	}
	for _, fn := range self.FileNames {
		result = append(result, "  "+fn.DebugString())
	}
	return strings.Join(result, "\n")
}

// addAttribute registers a parsed attribute, decoding the resident
// content of the types callers care about.
func (self *MFTEntry) addAttribute(attr *Attribute) {
	self.Attributes = append(self.Attributes, attr)

	if !attr.Resident {
		return
	}

	switch attr.Type {
	case ATTR_TYPE_STANDARD_INFORMATION:
		si, err := ParseStandardInformation(attr.Content)
		if err != nil {
			utils.DebugPrint("MFT %d: $STANDARD_INFORMATION: %v\n", self.Index, err)
			return
		}
		self.StandardInformation = si

	case ATTR_TYPE_FILE_NAME:
		fn, err := ParseFileName(attr.Content)
		if err != nil {
			utils.DebugPrint("MFT %d: $FILE_NAME: %v\n", self.Index, err)
			return
		}
		self.FileNames = append(self.FileNames, fn)

	case ATTR_TYPE_ATTRIBUTE_LIST:
		self.AttributeList = ParseAttributeList(attr.Content)
	}
}

// ParseMFTEntry decodes one MFT record. The fixups are applied to buf
// in place. A slot which was never used returns nil, nil.
func ParseMFTEntry(buf []byte, index uint64) (*MFTEntry, error) {
	signature, err := utils.GetU32LE(buf, 0)
	if err != nil {
		return nil, err
	}

	switch signature {
	case 0:
		return nil, nil
	case FILE_SIGNATURE:
	case BAAD_SIGNATURE:
		return nil, utils.BadFormat("MFT entry %d is marked BAAD", index)
	default:
		return nil, utils.BadFormat("MFT entry %d has invalid signature %#x",
			index, signature)
	}

	if len(buf) < MFT_ENTRY_HEADER_SIZE {
		return nil, utils.Incomplete("MFT entry %d is %d bytes", index, len(buf))
	}

	err = FixUpMFTEntry(buf)
	if err != nil {
		return nil, err
	}

	result := &MFTEntry{Index: index}
	result.LSN, _ = utils.GetU64LE(buf, 8)
	result.Sequence, _ = utils.GetU16LE(buf, 16)
	result.LinkCount, _ = utils.GetU16LE(buf, 18)
	result.AttributeOffset, _ = utils.GetU16LE(buf, 20)
	result.Flags, _ = utils.GetU16LE(buf, 22)
	result.UsedSize, _ = utils.GetU32LE(buf, 24)
	result.AllocatedSize, _ = utils.GetU32LE(buf, 28)
	base_ref, _ := utils.GetU64LE(buf, 32)
	result.BaseIndex, result.BaseSequence = SplitReference(base_ref)
	result.RecordNumber, _ = utils.GetU32LE(buf, 44)

	end := int(result.UsedSize)
	if end > len(buf) || end == 0 {
		end = len(buf)
	}

	for offset := int(result.AttributeOffset); offset+attribute_header_size <= end; {
		attr_type, _ := utils.GetU32LE(buf, int64(offset))
		if AttributeType(attr_type) == ATTR_TYPE_END {
			break
		}

		length, _ := utils.GetU32LE(buf, int64(offset+4))
		if length < attribute_header_size || offset+int(length) > end {
			utils.DebugPrint("MFT %d: attribute at %d has length %d\n",
				index, offset, length)
			break
		}

		attr, err := ParseAttribute(buf[offset : offset+int(length)])
		if err != nil {
			utils.DebugPrint("MFT %d: attribute at %d: %v\n", index, offset, err)
		} else {
			result.addAttribute(attr)
		}

		offset += int(length)
	}

	return result, nil
}
