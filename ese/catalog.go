package ese

import (
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type CatalogType uint16

const (
	CATALOG_TABLE         CatalogType = 1
	CATALOG_COLUMN        CatalogType = 2
	CATALOG_INDEX         CatalogType = 3
	CATALOG_LONG_VALUE    CatalogType = 4
	CATALOG_CALLBACK      CatalogType = 5
	CATALOG_SLV_AVAIL     CatalogType = 6
	CATALOG_SLV_SPACE_MAP CatalogType = 7
)

func (self CatalogType) String() string {
	switch self {
	case CATALOG_TABLE:
		return "Table"
	case CATALOG_COLUMN:
		return "Column"
	case CATALOG_INDEX:
		return "Index"
	case CATALOG_LONG_VALUE:
		return "LongValue"
	case CATALOG_CALLBACK:
		return "Callback"
	case CATALOG_SLV_AVAIL:
		return "SlvAvail"
	case CATALOG_SLV_SPACE_MAP:
		return "SlvSpaceMap"
	}
	return fmt.Sprintf("Unknown(%d)", uint16(self))
}

// One row of the MSysObjects table. The catalog describes every
// table, column, index and long value tree in the database including
// itself.
type CatalogEntry struct {
	ObjIDTable int32
	Type       CatalogType
	ID         int32

	// Column type for columns, father data page otherwise.
	ColumnOrFDP int32
	SpaceUsage  int32
	Flags       int32

	// Codepage for columns, initial pages otherwise.
	PagesOrLocale  int32
	RootFlag       uint8
	RecordOffset   int16
	LCMapFlags     int32
	KeyMost        uint16
	LVChunkMax     int32
	FDPLastSetTime int64

	Name               string
	Stats              []byte
	TemplateTable      string
	DefaultValue       []byte
	KeyFieldIDs        []byte
	VarSegMac          []byte
	ConditionalColumns []byte
	TupleLimits        []byte
	Version            []byte
	SortID             []byte

	CallbackData         []byte
	CallbackDependencies []byte
	SeparateLV           []byte
	SpaceHints           []byte
	SpaceDeferredLVHints []byte
	LocalName            []byte
}

func (self *CatalogEntry) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("ObjIDTable", self.ObjIDTable).
		Set("Type", self.Type.String()).
		Set("ID", self.ID).
		Set("ColumnOrFDP", self.ColumnOrFDP).
		Set("SpaceUsage", self.SpaceUsage).
		Set("Flags", self.Flags).
		Set("PagesOrLocale", self.PagesOrLocale).
		Set("RootFlag", self.RootFlag).
		Set("Name", self.Name).
		Set("TemplateTable", self.TemplateTable)
}

// ParseCatalogEntry decodes one catalog row. Fixed columns 1 to 13 have
// known sizes so they are read positionally.
func ParseCatalogEntry(def *DataDefinition) (*CatalogEntry, error) {
	result := &CatalogEntry{}

	err := result.parseFixed(def)
	if err != nil {
		return result, err
	}

	variable, tagged_data, err := ParseVariableColumns(
		def.LastVariableColumn, def.VariableData)
	if err != nil {
		return result, err
	}

	for _, column := range variable {
		switch column.ID {
		case 128:
			result.Name = utils.ExtractUTF8String(column.Data)
		case 129:
			result.Stats = column.Data
		case 130:
			result.TemplateTable = utils.ExtractUTF8String(column.Data)
		case 131:
			result.DefaultValue = column.Data
		case 132:
			result.KeyFieldIDs = column.Data
		case 133:
			result.VarSegMac = column.Data
		case 134:
			result.ConditionalColumns = column.Data
		case 135:
			result.TupleLimits = column.Data
		case 136:
			result.Version = column.Data
		case 137:
			result.SortID = column.Data
		default:
			utils.DebugPrint("Catalog: unknown variable column %d\n", column.ID)
		}
	}

	tagged, err := ParseTaggedColumns(tagged_data)
	if err != nil {
		return result, err
	}

	for _, column := range tagged {
		switch column.ID {
		case 256:
			result.CallbackData = column.Data
		case 257:
			result.CallbackDependencies = column.Data
		case 258:
			result.SeparateLV = column.Data
		case 259:
			result.SpaceHints = column.Data
		case 260:
			result.SpaceDeferredLVHints = column.Data
		case 261:
			result.LocalName = column.Data
		default:
			utils.DebugPrint("Catalog: unknown tagged column %d\n", column.ID)
		}
	}

	return result, nil
}

func (self *CatalogEntry) parseFixed(def *DataDefinition) error {
	cursor := utils.NewCursor(def.FixedData)

	i32 := func(field *int32) error {
		v, err := cursor.I32LE()
		*field = v
		return err
	}

	var err error
	for column := 1; column <= int(def.LastFixedColumn); column++ {
		switch column {
		case 1:
			err = i32(&self.ObjIDTable)
		case 2:
			var v uint16
			v, err = cursor.U16LE()
			self.Type = CatalogType(v)
		case 3:
			err = i32(&self.ID)
		case 4:
			err = i32(&self.ColumnOrFDP)
		case 5:
			err = i32(&self.SpaceUsage)
		case 6:
			err = i32(&self.Flags)
		case 7:
			err = i32(&self.PagesOrLocale)
		case 8:
			self.RootFlag, err = cursor.U8()
		case 9:
			self.RecordOffset, err = cursor.I16LE()
		case 10:
			err = i32(&self.LCMapFlags)
		case 11:
			self.KeyMost, err = cursor.U16LE()
		case 12:
			err = i32(&self.LVChunkMax)
		case 13:
			self.FDPLastSetTime, err = cursor.I64LE()
		default:
			log.WithField("column", column).Debug("[ese] Unknown catalog fixed column")
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type Catalog struct {
	Entries []*CatalogEntry
}

// CatalogRows decodes the catalog rows of the tree rooted at page.
// Rows that only partly decode are kept with the fields that did.
func (self *Walker) CatalogRows(page uint32) ([]*CatalogEntry, error) {
	result := []*CatalogEntry{}
	err := self.Leaves(page, func(leaf *Leaf) {
		if leaf.Type != LEAF_DATA_DEFINITION {
			return
		}

		entry, err := ParseCatalogEntry(leaf.Definition)
		if err != nil {
			log.WithError(err).WithField("name", entry.Name).
				Warn("[ese] Partial catalog entry")
		}
		result = append(result, entry)
	})
	return result, err
}

// ReadCatalog walks the catalog tree which always starts at page 4.
func ReadCatalog(walker *Walker) (*Catalog, error) {
	entries, err := walker.CatalogRows(CATALOG_PAGE)
	if err != nil {
		return nil, err
	}
	return &Catalog{Entries: entries}, nil
}

func (self *Catalog) Tables() []string {
	result := []string{}
	for _, entry := range self.Entries {
		if entry.Type == CATALOG_TABLE {
			result = append(result, entry.Name)
		}
	}
	return result
}

func (self *Catalog) DebugString() string {
	result := []string{}
	for _, entry := range self.Entries {
		prefix := "  "
		if entry.Type == CATALOG_TABLE {
			prefix = ""
		}
		result = append(result, fmt.Sprintf("%s[%v] %v (id %d, fdp %d)",
			prefix, entry.Type, entry.Name, entry.ID, entry.ColumnOrFDP))
	}
	return strings.Join(result, "\n")
}
