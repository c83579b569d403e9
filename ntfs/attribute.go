package ntfs

import (
	"fmt"
	"strings"
	"time"

	"www.velocidex.com/golang/go-artifacts/utils"
)

type AttributeType uint32

const (
	ATTR_TYPE_STANDARD_INFORMATION  AttributeType = 0x10
	ATTR_TYPE_ATTRIBUTE_LIST        AttributeType = 0x20
	ATTR_TYPE_FILE_NAME             AttributeType = 0x30
	ATTR_TYPE_OBJECT_ID             AttributeType = 0x40
	ATTR_TYPE_SECURITY_DESCRIPTOR   AttributeType = 0x50
	ATTR_TYPE_VOLUME_NAME           AttributeType = 0x60
	ATTR_TYPE_VOLUME_INFORMATION    AttributeType = 0x70
	ATTR_TYPE_DATA                  AttributeType = 0x80
	ATTR_TYPE_INDEX_ROOT            AttributeType = 0x90
	ATTR_TYPE_INDEX_ALLOCATION      AttributeType = 0xA0
	ATTR_TYPE_BITMAP                AttributeType = 0xB0
	ATTR_TYPE_REPARSE_POINT         AttributeType = 0xC0
	ATTR_TYPE_EA_INFORMATION        AttributeType = 0xD0
	ATTR_TYPE_EA                    AttributeType = 0xE0
	ATTR_TYPE_LOGGED_UTILITY_STREAM AttributeType = 0x100

	ATTR_TYPE_END AttributeType = 0xFFFFFFFF
)

var attribute_names = map[AttributeType]string{
	ATTR_TYPE_STANDARD_INFORMATION:  "$STANDARD_INFORMATION",
	ATTR_TYPE_ATTRIBUTE_LIST:        "$ATTRIBUTE_LIST",
	ATTR_TYPE_FILE_NAME:             "$FILE_NAME",
	ATTR_TYPE_OBJECT_ID:             "$OBJECT_ID",
	ATTR_TYPE_SECURITY_DESCRIPTOR:   "$SECURITY_DESCRIPTOR",
	ATTR_TYPE_VOLUME_NAME:           "$VOLUME_NAME",
	ATTR_TYPE_VOLUME_INFORMATION:    "$VOLUME_INFORMATION",
	ATTR_TYPE_DATA:                  "$DATA",
	ATTR_TYPE_INDEX_ROOT:            "$INDEX_ROOT",
	ATTR_TYPE_INDEX_ALLOCATION:      "$INDEX_ALLOCATION",
	ATTR_TYPE_BITMAP:                "$BITMAP",
	ATTR_TYPE_REPARSE_POINT:         "$REPARSE_POINT",
	ATTR_TYPE_EA_INFORMATION:        "$EA_INFORMATION",
	ATTR_TYPE_EA:                    "$EA",
	ATTR_TYPE_LOGGED_UTILITY_STREAM: "$LOGGED_UTILITY_STREAM",
}

func (self AttributeType) String() string {
	name, pres := attribute_names[self]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint32(self))
}

const (
	ATTR_FLAG_COMPRESSED = 0x0001
	ATTR_FLAG_ENCRYPTED  = 0x4000
	ATTR_FLAG_SPARSE     = 0x8000

	attribute_header_size = 16
)

type Attribute struct {
	Type     AttributeType
	Length   uint32
	Resident bool
	Name     string
	Flags    uint16
	ID       uint16

	// Resident attributes carry their content inline.
	Content []byte

	// Non resident attributes describe clusters on disk.
	StartVCN        uint64
	EndVCN          uint64
	CompressionUnit uint16
	AllocatedSize   int64
	ActualSize      int64
	InitializedSize int64
	Runs            []Run
}

func (self *Attribute) IsCompressed() bool {
	return self.Flags&ATTR_FLAG_COMPRESSED != 0
}

func (self *Attribute) DataSize() int64 {
	if self.Resident {
		return int64(len(self.Content))
	}
	return self.ActualSize
}

func (self *Attribute) DebugString() string {
	result := []string{fmt.Sprintf("%v id %d name %q size %d",
		self.Type, self.ID, self.Name, self.DataSize())}
	if !self.Resident {
		result = append(result, fmt.Sprintf("  VCN %d-%d Runs %v",
			self.StartVCN, self.EndVCN, self.Runs))
	}
	return strings.Join(result, "\n")
}

// ParseAttribute decodes the attribute starting at data[0]. data
// must extend at least to the end of the attribute.
func ParseAttribute(data []byte) (*Attribute, error) {
	cursor := utils.NewCursor(data)
	result := &Attribute{}

	attr_type, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	result.Type = AttributeType(attr_type)

	result.Length, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if result.Length < attribute_header_size || int(result.Length) > len(data) {
		return nil, utils.BadFormat("Attribute %v has length %d, have %d",
			result.Type, result.Length, len(data))
	}
	data = data[:result.Length]

	non_resident, _ := utils.GetU8(data, 8)
	result.Resident = non_resident == 0
	name_length, _ := utils.GetU8(data, 9)
	name_offset, _ := utils.GetU16LE(data, 10)
	result.Flags, _ = utils.GetU16LE(data, 12)
	result.ID, _ = utils.GetU16LE(data, 14)

	if name_length > 0 {
		name, err := utils.Slice(data, int64(name_offset), int64(name_length)*2)
		if err != nil {
			return nil, err
		}
		result.Name = utils.ExtractUTF16String(name)
	}

	if result.Resident {
		content_length, err := utils.GetU32LE(data, 16)
		if err != nil {
			return nil, err
		}
		content_offset, err := utils.GetU16LE(data, 20)
		if err != nil {
			return nil, err
		}
		result.Content, err = utils.Slice(data,
			int64(content_offset), int64(content_length))
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if len(data) < 64 {
		return nil, utils.Incomplete("Non resident attribute is %d bytes", len(data))
	}

	result.StartVCN, _ = utils.GetU64LE(data, 16)
	result.EndVCN, _ = utils.GetU64LE(data, 24)
	runlist_offset, _ := utils.GetU16LE(data, 32)
	result.CompressionUnit, _ = utils.GetU16LE(data, 34)
	allocated, _ := utils.GetU64LE(data, 40)
	actual, _ := utils.GetU64LE(data, 48)
	initialized, _ := utils.GetU64LE(data, 56)
	result.AllocatedSize = int64(allocated)
	result.ActualSize = int64(actual)
	result.InitializedSize = int64(initialized)

	if int(runlist_offset) > len(data) {
		return nil, utils.BadFormat("Runlist offset %d past attribute end %d",
			runlist_offset, len(data))
	}
	result.Runs = DecodeRunList(data[runlist_offset:])

	return result, nil
}

const (
	FILE_ATTRIBUTE_READONLY            = 0x1
	FILE_ATTRIBUTE_HIDDEN              = 0x2
	FILE_ATTRIBUTE_SYSTEM              = 0x4
	FILE_ATTRIBUTE_DIRECTORY           = 0x10
	FILE_ATTRIBUTE_ARCHIVE             = 0x20
	FILE_ATTRIBUTE_DEVICE              = 0x40
	FILE_ATTRIBUTE_NORMAL              = 0x80
	FILE_ATTRIBUTE_TEMPORARY           = 0x100
	FILE_ATTRIBUTE_SPARSE_FILE         = 0x200
	FILE_ATTRIBUTE_REPARSE_POINT       = 0x400
	FILE_ATTRIBUTE_COMPRESSED          = 0x800
	FILE_ATTRIBUTE_OFFLINE             = 0x1000
	FILE_ATTRIBUTE_NOT_CONTENT_INDEXED = 0x2000
	FILE_ATTRIBUTE_ENCRYPTED           = 0x4000
	FILE_ATTRIBUTE_VIRTUAL             = 0x10000

	// $FILE_NAME uses this bit for directories.
	FILE_NAME_INDEX_PRESENT = 0x10000000
)

var file_attribute_names = []struct {
	flag uint32
	name string
}{
	{FILE_ATTRIBUTE_READONLY, "ReadOnly"},
	{FILE_ATTRIBUTE_HIDDEN, "Hidden"},
	{FILE_ATTRIBUTE_SYSTEM, "System"},
	{FILE_ATTRIBUTE_DIRECTORY, "Directory"},
	{FILE_ATTRIBUTE_ARCHIVE, "Archive"},
	{FILE_ATTRIBUTE_DEVICE, "Device"},
	{FILE_ATTRIBUTE_NORMAL, "Normal"},
	{FILE_ATTRIBUTE_TEMPORARY, "Temporary"},
	{FILE_ATTRIBUTE_SPARSE_FILE, "SparseFile"},
	{FILE_ATTRIBUTE_REPARSE_POINT, "ReparsePoint"},
	{FILE_ATTRIBUTE_COMPRESSED, "Compressed"},
	{FILE_ATTRIBUTE_OFFLINE, "Offline"},
	{FILE_ATTRIBUTE_NOT_CONTENT_INDEXED, "NotContentIndexed"},
	{FILE_ATTRIBUTE_ENCRYPTED, "Encrypted"},
	{FILE_ATTRIBUTE_VIRTUAL, "Virtual"},
	{FILE_NAME_INDEX_PRESENT, "Directory"},
}

// FileAttributeNames lists the set flags. The directory bit of
// $FILE_NAME is reported like the regular directory bit.
func FileAttributeNames(flags uint32) []string {
	result := []string{}
	seen := make(map[string]bool)
	for _, f := range file_attribute_names {
		if flags&f.flag != 0 && !seen[f.name] {
			seen[f.name] = true
			result = append(result, f.name)
		}
	}
	return result
}

type StandardInformation struct {
	Created      uint64
	Modified     uint64
	MFTModified  uint64
	Accessed     uint64
	Flags        uint32
	OwnerID      uint32
	SecurityID   uint32
	USN          uint64
	HasExtension bool
}

func ParseStandardInformation(data []byte) (*StandardInformation, error) {
	cursor := utils.NewCursor(data)
	result := &StandardInformation{}

	var err error
	for _, field := range []*uint64{&result.Created, &result.Modified,
		&result.MFTModified, &result.Accessed} {
		*field, err = cursor.U64LE()
		if err != nil {
			return nil, err
		}
	}

	result.Flags, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}

	// NTFS 3.0 adds ownership and the USN.
	if len(data) >= 72 {
		result.HasExtension = true
		result.OwnerID, _ = utils.GetU32LE(data, 48)
		result.SecurityID, _ = utils.GetU32LE(data, 52)
		result.USN, _ = utils.GetU64LE(data, 64)
	}

	return result, nil
}

func (self *StandardInformation) CreatedTime() time.Time {
	return utils.FiletimeToTime(self.Created)
}

type Namespace uint8

const (
	NAMESPACE_POSIX     Namespace = 0
	NAMESPACE_WIN32     Namespace = 1
	NAMESPACE_DOS       Namespace = 2
	NAMESPACE_DOS_WIN32 Namespace = 3
)

func (self Namespace) String() string {
	switch self {
	case NAMESPACE_POSIX:
		return "POSIX"
	case NAMESPACE_WIN32:
		return "Win32"
	case NAMESPACE_DOS:
		return "DOS"
	case NAMESPACE_DOS_WIN32:
		return "DOS+Win32"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(self))
}

type FileName struct {
	ParentIndex    uint64
	ParentSequence uint16
	Created        uint64
	Modified       uint64
	MFTModified    uint64
	Accessed       uint64
	AllocatedSize  uint64
	RealSize       uint64
	Flags          uint32
	Reparse        uint32
	Namespace      Namespace
	Name           string
}

func (self *FileName) IsDir() bool {
	return self.Flags&(FILE_NAME_INDEX_PRESENT|FILE_ATTRIBUTE_DIRECTORY) != 0
}

func (self *FileName) Extension() string {
	idx := strings.LastIndex(self.Name, ".")
	if idx < 0 {
		return ""
	}
	return self.Name[idx+1:]
}

func (self *FileName) DebugString() string {
	return fmt.Sprintf("$FILE_NAME %q (%v) parent %d-%d",
		self.Name, self.Namespace, self.ParentIndex, self.ParentSequence)
}

// An MFT reference is a 48 bit index and a 16 bit sequence number.
func SplitReference(ref uint64) (uint64, uint16) {
	return ref & 0xFFFFFFFFFFFF, uint16(ref >> 48)
}

func ParseFileName(data []byte) (*FileName, error) {
	if len(data) < 66 {
		return nil, utils.Incomplete("$FILE_NAME is %d bytes", len(data))
	}

	result := &FileName{}
	ref, _ := utils.GetU64LE(data, 0)
	result.ParentIndex, result.ParentSequence = SplitReference(ref)
	result.Created, _ = utils.GetU64LE(data, 8)
	result.Modified, _ = utils.GetU64LE(data, 16)
	result.MFTModified, _ = utils.GetU64LE(data, 24)
	result.Accessed, _ = utils.GetU64LE(data, 32)
	result.AllocatedSize, _ = utils.GetU64LE(data, 40)
	result.RealSize, _ = utils.GetU64LE(data, 48)
	result.Flags, _ = utils.GetU32LE(data, 56)
	result.Reparse, _ = utils.GetU32LE(data, 60)
	name_length := data[64]
	result.Namespace = Namespace(data[65])

	name, err := utils.Slice(data, 66, int64(name_length)*2)
	if err != nil {
		return nil, err
	}
	result.Name = utils.ExtractUTF16String(name)

	return result, nil
}

type AttributeListEntry struct {
	Type        AttributeType
	Length      uint16
	Name        string
	StartVCN    uint64
	BaseIndex   uint64
	BaseSeq     uint16
	AttributeID uint16
}

// ParseAttributeList decodes all entries. A damaged entry ends the
// list.
func ParseAttributeList(data []byte) []*AttributeListEntry {
	result := []*AttributeListEntry{}

	for offset := 0; offset+26 <= len(data); {
		entry := &AttributeListEntry{}
		attr_type, _ := utils.GetU32LE(data, int64(offset))
		entry.Type = AttributeType(attr_type)
		entry.Length, _ = utils.GetU16LE(data, int64(offset+4))
		if entry.Length < 26 || offset+int(entry.Length) > len(data) {
			utils.DebugPrint("Attribute list entry at %d has length %d\n",
				offset, entry.Length)
			break
		}

		name_length := data[offset+6]
		name_offset := data[offset+7]
		entry.StartVCN, _ = utils.GetU64LE(data, int64(offset+8))
		ref, _ := utils.GetU64LE(data, int64(offset+16))
		entry.BaseIndex, entry.BaseSeq = SplitReference(ref)
		entry.AttributeID, _ = utils.GetU16LE(data, int64(offset+24))

		if name_length > 0 {
			name, err := utils.Slice(data[offset:offset+int(entry.Length)],
				int64(name_offset), int64(name_length)*2)
			if err == nil {
				entry.Name = utils.ExtractUTF16String(name)
			}
		}

		result = append(result, entry)
		offset += int(entry.Length)
	}

	return result
}
