package lnk

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	LOCATION_VOLUME  = "VolumeIDAndLocalBasePath"
	LOCATION_NETWORK = "CommonNetworkRelativeLinkAndPathSuffix"

	location_network_flag = 2

	// Header sizes above these carry the unicode offsets.
	location_unicode_local_path  = 28
	location_unicode_common_path = 32
	volume_unicode_label         = 16
	network_unicode_names        = 20
)

// Location is the LinkInfo structure. All offsets are relative to its
// start.
type Location struct {
	Size                    uint32
	HeaderSize              uint32
	Flags                   string
	VolumeOffset            uint32
	LocalPathOffset         uint32
	NetworkShareOffset      uint32
	CommonPathOffset        uint32
	UnicodeLocalPathOffset  uint32
	UnicodeCommonPathOffset uint32

	LocalPath         string
	CommonPath        string
	UnicodeLocalPath  string
	UnicodeCommonPath string

	Volume  *Volume
	Network *NetworkShare
}

// nulString reads an ANSI string at offset up to the first NUL.
func nulString(data []byte, offset uint32) string {
	if int(offset) >= len(data) {
		return ""
	}
	value := data[offset:]
	for i, c := range value {
		if c == 0 {
			value = value[:i]
			break
		}
	}
	return utils.ExtractUTF8String(value)
}

func unicodeString(data []byte, offset uint32) string {
	if offset == 0 || int(offset) >= len(data) {
		return ""
	}
	return utils.ExtractUTF16String(data[offset:])
}

// ParseLocation decodes the LinkInfo at the start of the cursor and
// advances past it.
func ParseLocation(cursor *utils.Cursor) (*Location, error) {
	size, err := utils.GetU32LE(cursor.Remaining(), 0)
	if err != nil {
		return nil, err
	}
	if size < 4 {
		return nil, utils.BadFormat("Shortcut location size %d too small", size)
	}

	data, err := cursor.Take(int(size))
	if err != nil {
		return nil, err
	}

	header := utils.NewCursor(data)
	_ = header.Skip(4)

	result := &Location{Size: size}
	flag := uint32(0)
	for _, field := range []*uint32{
		&result.HeaderSize, &flag, &result.VolumeOffset,
		&result.LocalPathOffset, &result.NetworkShareOffset,
		&result.CommonPathOffset} {
		*field, err = header.U32LE()
		if err != nil {
			return nil, err
		}
	}

	result.Flags = LOCATION_VOLUME
	if flag == location_network_flag {
		result.Flags = LOCATION_NETWORK
	}

	if result.LocalPathOffset != 0 {
		result.LocalPath = nulString(data, result.LocalPathOffset)
	}
	if result.CommonPathOffset != 0 {
		result.CommonPath = nulString(data, result.CommonPathOffset)
	}

	if result.HeaderSize > location_unicode_local_path {
		result.UnicodeLocalPathOffset, err = header.U32LE()
		if err != nil {
			return nil, err
		}
		result.UnicodeLocalPath = unicodeString(data, result.UnicodeLocalPathOffset)
	}

	if result.HeaderSize > location_unicode_common_path {
		result.UnicodeCommonPathOffset, err = header.U32LE()
		if err != nil {
			return nil, err
		}
		result.UnicodeCommonPath = unicodeString(data, result.UnicodeCommonPathOffset)
	}

	switch result.Flags {
	case LOCATION_NETWORK:
		if int(result.NetworkShareOffset) < len(data) {
			result.Network, err = ParseNetworkShare(data[result.NetworkShareOffset:])
		}
	default:
		if result.VolumeOffset != 0 && int(result.VolumeOffset) < len(data) {
			result.Volume, err = ParseVolume(data[result.VolumeOffset:])
		}
	}

	return result, err
}

var drive_types = []string{
	"DriveUnknown",
	"DriveNotRootDir",
	"DriveRemovable",
	"DriveFixed",
	"DriveRemote",
	"DriveCdrom",
	"DriveRamdisk",
}

func DriveTypeName(drive_type uint32) string {
	if int(drive_type) < len(drive_types) {
		return drive_types[drive_type]
	}
	return "None"
}

type Volume struct {
	Size               uint32
	DriveType          string
	DriveSerial        string
	LabelOffset        uint32
	UnicodeLabelOffset uint32
	Label              string
	UnicodeLabel       string
}

func ParseVolume(data []byte) (*Volume, error) {
	cursor := utils.NewCursor(data)

	size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}

	volume_data, err := utils.Slice(data, 0, int64(size))
	if err != nil {
		return nil, err
	}
	cursor = utils.NewCursor(volume_data)
	_ = cursor.Skip(4)

	drive_type, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	serial, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}

	result := &Volume{
		Size:        size,
		DriveType:   DriveTypeName(drive_type),
		DriveSerial: fmt.Sprintf("%X", serial),
	}

	result.LabelOffset, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}

	// Offsets past the structure are ignored.
	if result.LabelOffset > size {
		return result, nil
	}

	if result.LabelOffset > volume_unicode_label {
		result.UnicodeLabelOffset, _ = cursor.U32LE()
	}

	result.Label = nulString(volume_data, result.LabelOffset)
	if result.UnicodeLabelOffset <= size {
		result.UnicodeLabel = unicodeString(volume_data, result.UnicodeLabelOffset)
	}

	return result, nil
}

var network_providers = map[uint32]string{
	0x20000:  "WnncNetLanman",
	0x1a0000: "WnncNetAvid",
	0x1b0000: "WnncNetDocuspace",
	0x1c0000: "WnncNetMangosoft",
	0x1d0000: "WnncNetSernet",
	0x1e0000: "WnncNetRiverFront1",
	0x1f0000: "WnncNetRiverFront2",
	0x200000: "WnncNetDecorb",
	0x210000: "WnncNetProtstor",
	0x220000: "WnncNetFjRedir",
	0x230000: "WnncNetDistinct",
	0x240000: "WnncNetTwins",
	0x250000: "WnncNetRdr2Sample",
	0x260000: "WnncNetCsc",
	0x270000: "WnncNet3In1",
	0x290000: "WnncNetExtendNet",
	0x2a0000: "WnncNetStac",
	0x2b0000: "WnncNetFoxbat",
	0x2c0000: "WnncNetYahoo",
	0x2d0000: "WnncNetExifs",
	0x2e0000: "WnncNetDav",
	0x2f0000: "WnncNetKnoware",
	0x300000: "WnncNetObjectDire",
	0x310000: "WnncNetMasfax",
	0x320000: "WnncNetHobNfs",
	0x330000: "WnncNetShiva",
	0x340000: "WnncNetIbmal",
	0x350000: "WnncNetLock",
	0x360000: "WnncNetTermsrv",
	0x370000: "WnncNetSrt",
	0x380000: "WnncNetQuincy",
	0x390000: "WnncNetOpenafs",
	0x3a0000: "WnncNetAvid1",
	0x3b0000: "WnncNetDfs",
	0x3c0000: "WnncNetKwnp",
	0x3d0000: "WnncNetZenworks",
	0x3e0000: "WnncNetDriveonweb",
	0x3f0000: "WnncNetVmware",
	0x400000: "WnncNetRsfx",
	0x410000: "WnncNetMfiles",
	0x420000: "WnncNetMsNfs",
	0x430000: "WnncNetGoogle",
}

func NetworkProviderName(provider uint32) string {
	name, pres := network_providers[provider]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", provider)
}

// NetworkShare is the CommonNetworkRelativeLink structure.
type NetworkShare struct {
	Size              uint32
	Flags             uint32
	NameOffset        uint32
	DeviceOffset      uint32
	Provider          string
	ShareName         string
	DeviceName        string
	UnicodeShareName  string
	UnicodeDeviceName string
}

func ParseNetworkShare(data []byte) (*NetworkShare, error) {
	size, err := utils.GetU32LE(data, 0)
	if err != nil {
		return nil, err
	}
	if size < 4 {
		return nil, utils.BadFormat("Network share size %d too small", size)
	}

	share_data, err := utils.Slice(data, 0, int64(size))
	if err != nil {
		return nil, err
	}
	cursor := utils.NewCursor(share_data)
	_ = cursor.Skip(4)

	result := &NetworkShare{Size: size}
	provider := uint32(0)
	for _, field := range []*uint32{
		&result.Flags, &result.NameOffset, &result.DeviceOffset, &provider} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}
	result.Provider = NetworkProviderName(provider)

	if result.NameOffset > network_unicode_names {
		unicode_name, _ := cursor.U32LE()
		unicode_device, _ := cursor.U32LE()
		result.UnicodeShareName = unicodeString(share_data, unicode_name)
		result.UnicodeDeviceName = unicodeString(share_data, unicode_device)
	}

	result.ShareName = nulString(share_data, result.NameOffset)
	if result.DeviceOffset != 0 {
		result.DeviceName = nulString(share_data, result.DeviceOffset)
	}

	return result, nil
}
