package lnk

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	HEADER_SIZE = 0x4c
	LNK_CLSID   = "00021401-0000-0000-c000-000000000046"
)

// Link flags from the shell link header.
const (
	HasTargetIdList            = 0x1
	HasLinkInfo                = 0x2
	HasName                    = 0x4
	HasRelativePath            = 0x8
	HasWorkingDirectory        = 0x10
	HasArguments               = 0x20
	HasIconLocation            = 0x40
	IsUnicode                  = 0x80
	ForceNoLinkInfo            = 0x100
	HasExpString               = 0x200
	RunInSeparateProcess       = 0x400
	HasDarwinId                = 0x1000
	RunAsUser                  = 0x2000
	HasExpIcon                 = 0x4000
	NoPidAlias                 = 0x8000
	RunWithShimLayer           = 0x20000
	ForceNoLinkTrack           = 0x40000
	EnableTargetMetadata       = 0x80000
	DisableLinkPathTracking    = 0x100000
	DisableKnownFolderTracking = 0x200000
	DisableKnownFolderAlias    = 0x400000
	AllowLinkToLink            = 0x800000
	UnaliasOnSave              = 0x1000000
	PreferEnvironmentPath      = 0x2000000
	KeepLocalDListForUncTarget = 0x4000000
)

type flagName struct {
	mask uint32
	name string
}

var data_flag_names = []flagName{
	{HasTargetIdList, "HasTargetIdList"},
	{HasLinkInfo, "HasLinkInfo"},
	{HasName, "HasName"},
	{HasRelativePath, "HasRelativePath"},
	{HasWorkingDirectory, "HasWorkingDirectory"},
	{HasArguments, "HasArguments"},
	{HasIconLocation, "HasIconLocation"},
	{IsUnicode, "IsUnicode"},
	{ForceNoLinkInfo, "ForceNoLinkInfo"},
	{HasExpString, "HasExpString"},
	{RunInSeparateProcess, "RunInSeparateProcess"},
	{HasDarwinId, "HasDarwinId"},
	{RunAsUser, "RunAsUser"},
	{HasExpIcon, "HasExpIcon"},
	{NoPidAlias, "NoPidAlias"},
	{RunWithShimLayer, "RunWithShimLayer"},
	{ForceNoLinkTrack, "ForceNoLinkTrack"},
	{EnableTargetMetadata, "EnableTargetMetadata"},
	{DisableLinkPathTracking, "DisableLinkPathTracking"},
	{DisableKnownFolderTracking, "DisableKnownFolderTracking"},
	{DisableKnownFolderAlias, "DisableKnownFolderAlias"},
	{AllowLinkToLink, "AllowLinkToLink"},
	{UnaliasOnSave, "UnaliasOnSave"},
	{PreferEnvironmentPath, "PreferEnvironmentPath"},
	{KeepLocalDListForUncTarget, "KeepLocalDListForUncTarget"},
}

var attribute_flag_names = []flagName{
	{0x1, "ReadOnly"},
	{0x2, "Hidden"},
	{0x4, "System"},
	{0x10, "Directory"},
	{0x20, "Archive"},
	{0x40, "Device"},
	{0x80, "Normal"},
	{0x100, "Temporary"},
	{0x200, "SparseFile"},
	{0x400, "ReparsePoint"},
	{0x800, "Compressed"},
	{0x1000, "Offline"},
	{0x2000, "NotContentIndexed"},
	{0x4000, "Encrypted"},
	{0x10000, "Virtual"},
}

func flagNames(flags uint32, names []flagName) []string {
	result := []string{}
	for _, item := range names {
		if flags&item.mask != 0 {
			result = append(result, item.name)
		}
	}
	return result
}

func DataFlagNames(flags uint32) []string {
	return flagNames(flags, data_flag_names)
}

func AttributeFlagNames(flags uint32) []string {
	return flagNames(flags, attribute_flag_names)
}

type Header struct {
	Size           uint32
	CLSID          string
	DataFlags      uint32
	AttributeFlags uint32
	Created        uint64
	Accessed       uint64
	Modified       uint64
	FileSize       uint32
	IconIndex      int32
	ShowWindow     uint32
	HotKey         uint16
}

func (self *Header) Has(flag uint32) bool {
	return self.DataFlags&flag != 0
}

func (self *Header) DebugString() string {
	return fmt.Sprintf("Shortcut header: flags %v attributes %v size %d",
		DataFlagNames(self.DataFlags),
		AttributeFlagNames(self.AttributeFlags), self.FileSize)
}

func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HEADER_SIZE {
		return nil, utils.Incomplete("Shortcut header needs %d bytes, have %d",
			HEADER_SIZE, len(data))
	}

	result := &Header{}
	result.Size, _ = utils.GetU32LE(data, 0)
	if result.Size != HEADER_SIZE {
		return nil, utils.BadFormat("Invalid shortcut header size %#x",
			result.Size)
	}

	result.CLSID = utils.FormatGUIDLE(data[4:20])
	if result.CLSID != LNK_CLSID {
		return nil, utils.BadFormat("Invalid shortcut CLSID %v", result.CLSID)
	}

	result.DataFlags, _ = utils.GetU32LE(data, 20)
	result.AttributeFlags, _ = utils.GetU32LE(data, 24)
	result.Created, _ = utils.GetU64LE(data, 28)
	result.Accessed, _ = utils.GetU64LE(data, 36)
	result.Modified, _ = utils.GetU64LE(data, 44)
	result.FileSize, _ = utils.GetU32LE(data, 52)

	icon_index, _ := utils.GetU32LE(data, 56)
	result.IconIndex = int32(icon_index)
	result.ShowWindow, _ = utils.GetU32LE(data, 60)
	result.HotKey, _ = utils.GetU16LE(data, 64)

	return result, nil
}
