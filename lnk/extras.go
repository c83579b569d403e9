package lnk

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Extra data block signatures.
const (
	ENVIRONMENT_SIGNATURE      = 0xA0000001
	CONSOLE_SIGNATURE          = 0xA0000002
	TRACKER_SIGNATURE          = 0xA0000003
	CODEPAGE_SIGNATURE         = 0xA0000004
	SPECIAL_FOLDER_SIGNATURE   = 0xA0000005
	DARWIN_SIGNATURE           = 0xA0000006
	ICON_ENVIRONMENT_SIGNATURE = 0xA0000007
	SHIM_SIGNATURE             = 0xA0000008
	PROPERTY_STORE_SIGNATURE   = 0xA0000009
	KNOWN_FOLDER_SIGNATURE     = 0xA000000B
	VISTA_ID_LIST_SIGNATURE    = 0xA000000C

	ansi_path_size    = 260
	unicode_path_size = 520
)

var block_names = map[uint32]string{
	ENVIRONMENT_SIGNATURE:      "EnvironmentVariableDataBlock",
	CONSOLE_SIGNATURE:          "ConsoleDataBlock",
	TRACKER_SIGNATURE:          "TrackerDataBlock",
	CODEPAGE_SIGNATURE:         "ConsoleFEDataBlock",
	SPECIAL_FOLDER_SIGNATURE:   "SpecialFolderDataBlock",
	DARWIN_SIGNATURE:           "DarwinDataBlock",
	ICON_ENVIRONMENT_SIGNATURE: "IconEnvironmentDataBlock",
	SHIM_SIGNATURE:             "ShimDataBlock",
	PROPERTY_STORE_SIGNATURE:   "PropertyStoreDataBlock",
	KNOWN_FOLDER_SIGNATURE:     "KnownFolderDataBlock",
	VISTA_ID_LIST_SIGNATURE:    "VistaAndAboveIDListDataBlock",
}

func BlockName(signature uint32) string {
	name, pres := block_names[signature]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", signature)
}

type Tracker struct {
	MachineID          string
	DroidVolumeID      string
	DroidFileID        string
	BirthDroidVolumeID string
	BirthDroidFileID   string
}

// Extras holds the decoded extra data blocks that follow the string
// fields.
type Extras struct {
	Blocks              []string
	Tracker             *Tracker
	Properties          []*ordereddict.Dict
	EnvironmentVariable string
	IconEnvironment     string
	Console             *ordereddict.Dict
	Codepage            uint32
	SpecialFolderID     uint32
	DarwinID            string
	ShimLayer           string
	KnownFolder         string
}

// pathBlock decodes the ANSI and unicode target fields shared by the
// environment, icon environment and darwin blocks. The unicode form
// wins when present.
func pathBlock(block []byte) string {
	unicode, err := utils.Slice(block, 8+ansi_path_size, unicode_path_size)
	if err == nil {
		value := utils.ExtractUTF16String(unicode)
		if value != "" {
			return value
		}
	}

	ansi, err := utils.Slice(block, 8, ansi_path_size)
	if err != nil {
		return ""
	}
	return utils.ExtractANSIString(ansi)
}

func parseTracker(block []byte) (*Tracker, error) {
	// size, signature, length, version
	if len(block) < 96 {
		return nil, utils.Incomplete("Tracker block needs 96 bytes, have %d",
			len(block))
	}

	machine := block[16:32]
	for i, c := range machine {
		if c == 0 {
			machine = machine[:i]
			break
		}
	}

	return &Tracker{
		MachineID:          utils.ExtractUTF8String(machine),
		DroidVolumeID:      utils.FormatGUIDLE(block[32:48]),
		DroidFileID:        utils.FormatGUIDLE(block[48:64]),
		BirthDroidVolumeID: utils.FormatGUIDLE(block[64:80]),
		BirthDroidFileID:   utils.FormatGUIDLE(block[80:96]),
	}, nil
}

func parseConsole(block []byte) (*ordereddict.Dict, error) {
	if len(block) < 0xCC {
		return nil, utils.Incomplete("Console block needs %d bytes, have %d",
			0xCC, len(block))
	}

	u16 := func(offset int64) uint16 {
		v, _ := utils.GetU16LE(block, offset)
		return v
	}
	u32 := func(offset int64) uint32 {
		v, _ := utils.GetU32LE(block, offset)
		return v
	}

	return ordereddict.NewDict().
		Set("fill_attributes", u16(8)).
		Set("popup_fill_attributes", u16(10)).
		Set("screen_width_buffer_size", u16(12)).
		Set("screen_height_buffer_size", u16(14)).
		Set("window_width", u16(16)).
		Set("window_height", u16(18)).
		Set("window_x_coordinate", u16(20)).
		Set("window_y_coordinate", u16(22)).
		Set("font_size", u32(32)).
		Set("font_family", u32(36)).
		Set("font_weight", u32(40)).
		Set("face_name", utils.ExtractUTF16String(block[44:108])).
		Set("cursor_size", u32(108)).
		Set("full_screen", u32(112)).
		Set("quick_edit", u32(116)).
		Set("insert_mode", u32(120)).
		Set("auto_position", u32(124)).
		Set("history_buffer_size", u32(128)).
		Set("number_history_buffers", u32(132)).
		Set("duplicates_allowed", u32(136)), nil
}

// ParseExtras walks the extra data blocks until the terminal block. A
// damaged block ends the walk but keeps what was decoded so far.
func ParseExtras(data []byte) *Extras {
	result := &Extras{
		Blocks:     []string{},
		Properties: []*ordereddict.Dict{},
	}
	cursor := utils.NewCursor(data)

	for !cursor.Empty() {
		size, err := utils.GetU32LE(cursor.Remaining(), 0)
		if err != nil || size < 8 {
			break
		}

		block, err := cursor.Take(int(size))
		if err != nil {
			log.WithError(err).Debug("[shortcuts] Truncated extra data block")
			break
		}

		signature, _ := utils.GetU32LE(block, 4)
		result.Blocks = append(result.Blocks, BlockName(signature))

		err = result.parseBlock(signature, block)
		if err != nil {
			log.WithError(err).WithField("block", BlockName(signature)).
				Warn("[shortcuts] Unable to parse extra data block")
		}
	}

	return result
}

func (self *Extras) parseBlock(signature uint32, block []byte) (err error) {
	switch signature {
	case TRACKER_SIGNATURE:
		self.Tracker, err = parseTracker(block)

	case PROPERTY_STORE_SIGNATURE:
		var properties []*ordereddict.Dict
		properties, err = ParsePropertyStore(block[8:])
		self.Properties = append(self.Properties, properties...)

	case ENVIRONMENT_SIGNATURE:
		self.EnvironmentVariable = pathBlock(block)

	case ICON_ENVIRONMENT_SIGNATURE:
		self.IconEnvironment = pathBlock(block)

	case DARWIN_SIGNATURE:
		self.DarwinID = pathBlock(block)

	case CONSOLE_SIGNATURE:
		self.Console, err = parseConsole(block)

	case CODEPAGE_SIGNATURE:
		self.Codepage, err = utils.GetU32LE(block, 8)

	case SPECIAL_FOLDER_SIGNATURE:
		self.SpecialFolderID, err = utils.GetU32LE(block, 8)

	case SHIM_SIGNATURE:
		self.ShimLayer = utils.ExtractUTF16String(block[8:])

	case KNOWN_FOLDER_SIGNATURE:
		var guid []byte
		guid, err = utils.Slice(block, 8, 16)
		if err == nil {
			self.KnownFolder = utils.FormatGUIDLE(guid)
		}
	}

	return err
}
