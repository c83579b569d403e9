package lnk

import (
	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type ShortcutInfo struct {
	SourcePath          string              `json:"source_path"`
	DataFlags           []string            `json:"data_flags"`
	AttributeFlags      []string            `json:"attribute_flags"`
	Created             string              `json:"created"`
	Modified            string              `json:"modified"`
	Accessed            string              `json:"accessed"`
	FileSize            uint32              `json:"file_size"`
	ShellItemCount      int                 `json:"shell_item_count"`
	LocationFlags       string              `json:"location_flags"`
	Path                string              `json:"path"`
	CommonPath          string              `json:"common_path"`
	DriveSerial         string              `json:"drive_serial"`
	DriveType           string              `json:"drive_type"`
	VolumeLabel         string              `json:"volume_label"`
	NetworkProvider     string              `json:"network_provider"`
	NetworkShareName    string              `json:"network_share_name"`
	NetworkDeviceName   string              `json:"network_device_name"`
	Description         string              `json:"description"`
	RelativePath        string              `json:"relative_path"`
	WorkingDirectory    string              `json:"working_directory"`
	CommandLineArgs     string              `json:"command_line_args"`
	IconLocation        string              `json:"icon_location"`
	Hostname            string              `json:"hostname"`
	DroidVolumeID       string              `json:"droid_volume_id"`
	DroidFileID         string              `json:"droid_file_id"`
	BirthDroidVolumeID  string              `json:"birth_droid_volume_id"`
	BirthDroidFileID    string              `json:"birth_droid_file_id"`
	Properties          []*ordereddict.Dict `json:"properties"`
	EnvironmentVariable string              `json:"environment_variable"`
	IconEnvironment     string              `json:"icon_environment"`
	Console             *ordereddict.Dict   `json:"console"`
	Codepage            uint32              `json:"codepage"`
	SpecialFolderID     uint32              `json:"special_folder_id"`
	DarwinID            string              `json:"darwin_id"`
	ShimLayer           string              `json:"shim_layer"`
	KnownFolder         string              `json:"known_folder"`
	ExtraBlocks         []string            `json:"extra_blocks"`
	IsAbnormal          bool                `json:"is_abnormal"`
}

func (self *ShortcutInfo) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("source_path", self.SourcePath).
		Set("data_flags", self.DataFlags).
		Set("attribute_flags", self.AttributeFlags).
		Set("created", self.Created).
		Set("modified", self.Modified).
		Set("accessed", self.Accessed).
		Set("file_size", self.FileSize).
		Set("shell_item_count", self.ShellItemCount).
		Set("location_flags", self.LocationFlags).
		Set("path", self.Path).
		Set("common_path", self.CommonPath).
		Set("drive_serial", self.DriveSerial).
		Set("drive_type", self.DriveType).
		Set("volume_label", self.VolumeLabel).
		Set("network_provider", self.NetworkProvider).
		Set("network_share_name", self.NetworkShareName).
		Set("network_device_name", self.NetworkDeviceName).
		Set("description", self.Description).
		Set("relative_path", self.RelativePath).
		Set("working_directory", self.WorkingDirectory).
		Set("command_line_args", self.CommandLineArgs).
		Set("icon_location", self.IconLocation).
		Set("hostname", self.Hostname).
		Set("droid_volume_id", self.DroidVolumeID).
		Set("droid_file_id", self.DroidFileID).
		Set("birth_droid_volume_id", self.BirthDroidVolumeID).
		Set("birth_droid_file_id", self.BirthDroidFileID).
		Set("properties", self.Properties).
		Set("environment_variable", self.EnvironmentVariable).
		Set("icon_environment", self.IconEnvironment).
		Set("console", self.Console).
		Set("codepage", self.Codepage).
		Set("special_folder_id", self.SpecialFolderID).
		Set("darwin_id", self.DarwinID).
		Set("shim_layer", self.ShimLayer).
		Set("known_folder", self.KnownFolder).
		Set("extra_blocks", self.ExtraBlocks).
		Set("is_abnormal", self.IsAbnormal)
}

// countShellItems walks the IDList items without decoding them.
func countShellItems(data []byte) int {
	count := 0
	cursor := utils.NewCursor(data)
	for {
		size, err := cursor.U16LE()
		if err != nil || size < 2 {
			return count
		}
		if cursor.Skip(int(size)-2) != nil {
			return count
		}
		count++
	}
}

// ParseLnkData decodes a shortcut file. The path is only used to
// label the result.
func ParseLnkData(data []byte, path string) (*ShortcutInfo, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	result := &ShortcutInfo{
		SourcePath:     path,
		DataFlags:      DataFlagNames(header.DataFlags),
		AttributeFlags: AttributeFlagNames(header.AttributeFlags),
		Created:        utils.FiletimeToISO(header.Created),
		Modified:       utils.FiletimeToISO(header.Modified),
		Accessed:       utils.FiletimeToISO(header.Accessed),
		FileSize:       header.FileSize,
		Properties:     []*ordereddict.Dict{},
		ExtraBlocks:    []string{},
	}

	cursor := utils.NewCursor(data)
	_ = cursor.Skip(HEADER_SIZE)

	if header.Has(HasTargetIdList) {
		size, err := cursor.U16LE()
		if err != nil {
			return nil, errors.Wrap(err, "Shortcut target id list")
		}
		id_list, err := cursor.Take(int(size))
		if err != nil {
			return nil, errors.Wrap(err, "Shortcut target id list")
		}
		result.ShellItemCount = countShellItems(id_list)
	}

	if header.Has(HasLinkInfo) {
		location, err := ParseLocation(cursor)
		if err != nil {
			return nil, errors.Wrap(err, "Shortcut location")
		}

		result.LocationFlags = location.Flags
		result.Path = location.LocalPath
		if result.Path == "" {
			result.Path = location.UnicodeLocalPath
		}
		result.CommonPath = location.CommonPath
		if result.CommonPath == "" {
			result.CommonPath = location.UnicodeCommonPath
		}

		if location.Volume != nil {
			result.DriveSerial = location.Volume.DriveSerial
			result.DriveType = location.Volume.DriveType
			result.VolumeLabel = location.Volume.Label
			if result.VolumeLabel == "" {
				result.VolumeLabel = location.Volume.UnicodeLabel
			}
		}

		if location.Network != nil {
			result.NetworkProvider = location.Network.Provider
			result.NetworkShareName = location.Network.ShareName
			result.NetworkDeviceName = location.Network.DeviceName
		}
	}

	unicode := header.Has(IsUnicode)
	for _, field := range []struct {
		flag  uint32
		name  string
		value *string
	}{
		{HasName, "description", &result.Description},
		{HasRelativePath, "relative path", &result.RelativePath},
		{HasWorkingDirectory, "working directory", &result.WorkingDirectory},
		{HasArguments, "arguments", &result.CommandLineArgs},
		{HasIconLocation, "icon location", &result.IconLocation},
	} {
		if !header.Has(field.flag) {
			continue
		}

		value, is_abnormal, err := ExtractString(cursor, unicode)
		if err != nil {
			return nil, errors.Wrapf(err, "Shortcut %v", field.name)
		}
		*field.value = value
		if is_abnormal {
			result.IsAbnormal = true
		}
	}

	extras := ParseExtras(cursor.Remaining())
	result.ExtraBlocks = extras.Blocks
	result.Properties = extras.Properties
	result.EnvironmentVariable = extras.EnvironmentVariable
	result.IconEnvironment = extras.IconEnvironment
	result.Console = extras.Console
	result.Codepage = extras.Codepage
	result.SpecialFolderID = extras.SpecialFolderID
	result.DarwinID = extras.DarwinID
	result.ShimLayer = extras.ShimLayer
	result.KnownFolder = extras.KnownFolder

	if extras.Tracker != nil {
		result.Hostname = extras.Tracker.MachineID
		result.DroidVolumeID = extras.Tracker.DroidVolumeID
		result.DroidFileID = extras.Tracker.DroidFileID
		result.BirthDroidVolumeID = extras.Tracker.BirthDroidVolumeID
		result.BirthDroidFileID = extras.Tracker.BirthDroidFileID
	}

	return result, nil
}
