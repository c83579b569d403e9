package wmi

import (
	"io"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	PAGE_SIZE = 8192

	unused_page = 0xffffffff

	INDEX_PAGE_ACTIVE  = 0xaccc
	INDEX_PAGE_ADMIN   = 0xaddd
	INDEX_PAGE_DELETED = 0xbadd

	CLASS_DEFINITION_PREFIX = "CD_"
	INSTANCE_LIST_PREFIX    = "IL_"
)

// MapInfo is one MAPPING file. The first section maps the objects
// file, the second the index.
type MapInfo struct {
	Sequence      uint32
	Pages         []uint32
	IndexSequence uint32
	IndexPages    []uint32
}

func parseMapSection(cursor *utils.Cursor) (uint32, []uint32, error) {
	// signature, sequence, 2 unknown, number of pages
	header := make([]uint32, 5)
	var err error
	for i := range header {
		header[i], err = cursor.U32LE()
		if err != nil {
			return 0, nil, err
		}
	}

	count, err := cursor.U32LE()
	if err != nil {
		return 0, nil, err
	}
	if int64(count)*24 > int64(cursor.Len()) {
		return 0, nil, utils.Incomplete("Map has %d entries but only %d bytes",
			count, cursor.Len())
	}

	// page, checksum, free space, used space, 2 unknown
	pages := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		page, _ := cursor.U32LE()
		pages = append(pages, page)
		_ = cursor.Skip(20)
	}

	// Free page table then footer.
	table_count, err := cursor.U32LE()
	if err != nil {
		return 0, nil, err
	}
	err = cursor.Skip(int(table_count)*4 + 4)
	if err != nil {
		return 0, nil, errors.Wrap(err, "Map table")
	}

	return header[1], pages, nil
}

func ParseMap(data []byte) (*MapInfo, error) {
	cursor := utils.NewCursor(data)
	result := &MapInfo{}

	var err error
	result.Sequence, result.Pages, err = parseMapSection(cursor)
	if err != nil {
		return nil, errors.Wrap(err, "Objects map")
	}

	result.IndexSequence, result.IndexPages, err = parseMapSection(cursor)
	if err != nil {
		return nil, errors.Wrap(err, "Index map")
	}

	return result, nil
}

// ActiveMap picks the mapping with the highest sequence number.
func ActiveMap(maps []*MapInfo) *MapInfo {
	var result *MapInfo
	for _, m := range maps {
		if result == nil || m.IndexSequence > result.IndexSequence {
			result = m
		}
	}
	return result
}

type ObjectRecord struct {
	RecordID uint32
	Offset   uint32
	Size     uint32
	Checksum uint32
	Data     []byte
}

// ParseObjects reads every record in the mapped pages of the objects
// file. Records larger than the rest of their page continue in the
// following mapped pages.
func ParseObjects(reader io.ReaderAt, pages []uint32) map[uint32]*ObjectRecord {
	result := make(map[uint32]*ObjectRecord)

	for index := 0; index < len(pages); index++ {
		page := pages[index]
		if page == unused_page {
			continue
		}

		page_data, err := utils.ReadExact(reader, int64(page)*PAGE_SIZE, PAGE_SIZE)
		if err != nil {
			log.WithError(err).WithField("page", page).
				Warn("[wmi] Unable to read objects page")
			continue
		}
		utils.STATS.Inc_PagesRead()

		index += parseObjectPage(reader, page_data, pages, index, result)
	}

	return result
}

// parseObjectPage returns the number of extra pages consumed.
func parseObjectPage(reader io.ReaderAt, page_data []byte, pages []uint32,
	index int, objects map[uint32]*ObjectRecord) int {
	cursor := utils.NewCursor(page_data)
	consumed := 0

	for {
		// record id, offset, size, checksum
		entry := make([]uint32, 4)
		for i := range entry {
			value, err := cursor.U32LE()
			if err != nil {
				return consumed
			}
			entry[i] = value
		}

		record := &ObjectRecord{
			RecordID: entry[0],
			Offset:   entry[1],
			Size:     entry[2],
			Checksum: entry[3],
		}

		// The entry list ends with an empty entry.
		if record.RecordID == 0 && record.Offset == 0 &&
			record.Size == 0 && record.Checksum == 0 {
			return consumed
		}

		if record.Offset >= PAGE_SIZE {
			log.WithField("record", record.RecordID).
				Warn("[wmi] Object offset outside the page")
			return consumed
		}

		data := page_data[record.Offset:]
		if int64(record.Size) <= int64(len(data)) {
			record.Data = data[:record.Size]
			objects[record.RecordID] = record
			continue
		}

		// Spans into the next mapped pages.
		extra := (int(record.Size) - len(data) + PAGE_SIZE - 1) / PAGE_SIZE
		buffer := append([]byte{}, data...)
		for i := 1; i <= extra; i++ {
			if index+i >= len(pages) {
				log.WithField("record", record.RecordID).
					Error("[wmi] Failed to get more pages for large data")
				return consumed
			}

			next, err := utils.ReadExact(reader,
				int64(pages[index+i])*PAGE_SIZE, PAGE_SIZE)
			if err != nil {
				log.WithError(err).WithField("record", record.RecordID).
					Error("[wmi] Failed to read continuation page")
				return consumed
			}
			buffer = append(buffer, next...)
		}

		record.Data = buffer[:record.Size]
		objects[record.RecordID] = record
		if extra > consumed {
			consumed = extra
		}
	}
}

type IndexPage struct {
	Type         uint32
	MappedNumber uint32
	RootNumber   uint32
	SubPages     []int32
	KeyOffsets   []uint16
	KeyData      []uint16
	ValueOffsets []uint16
	Values       []string
}

func ParseIndexPage(data []byte) (*IndexPage, error) {
	cursor := utils.NewCursor(data)

	// type, mapped number, unknown, root
	header := make([]uint32, 4)
	var err error
	for i := range header {
		header[i], err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	result := &IndexPage{
		Type:         header[0],
		MappedNumber: header[1],
		RootNumber:   header[3],
	}

	number_keys, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if int64(number_keys)*10 > int64(cursor.Len()) {
		return nil, utils.Incomplete("Index page with %d keys", number_keys)
	}
	_ = cursor.Skip(int(number_keys) * 4)

	for i := uint32(0); i <= number_keys; i++ {
		value, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		result.SubPages = append(result.SubPages, int32(value))
	}

	result.KeyOffsets, err = readU16Array(cursor, int(number_keys))
	if err != nil {
		return nil, errors.Wrap(err, "Index key offsets")
	}

	count, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}
	result.KeyData, err = readU16Array(cursor, int(count))
	if err != nil {
		return nil, errors.Wrap(err, "Index key data")
	}

	count, err = cursor.U16LE()
	if err != nil {
		return nil, err
	}
	result.ValueOffsets, err = readU16Array(cursor, int(count))
	if err != nil {
		return nil, errors.Wrap(err, "Index value offsets")
	}

	value_size, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}
	value_data, err := cursor.Take(int(value_size))
	if err != nil {
		return nil, errors.Wrap(err, "Index values")
	}

	// NUL separated strings
	for len(value_data) > 1 {
		end := 0
		for end < len(value_data) && value_data[end] != 0 {
			end++
		}
		result.Values = append(result.Values, utils.ExtractUTF8String(value_data[:end]))
		if end >= len(value_data) {
			break
		}
		value_data = value_data[end+1:]
	}

	return result, nil
}

func readU16Array(cursor *utils.Cursor, count int) ([]uint16, error) {
	result := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		value, err := cursor.U16LE()
		if err != nil {
			return result, err
		}
		result = append(result, value)
	}
	return result, nil
}

// ParseIndex decodes the active and administrative pages of the
// index. Deleted pages are skipped.
func ParseIndex(data []byte) []*IndexPage {
	result := []*IndexPage{}

	for offset := 0; offset+PAGE_SIZE <= len(data); offset += PAGE_SIZE {
		page, err := ParseIndexPage(data[offset : offset+PAGE_SIZE])
		if err != nil {
			log.WithError(err).WithField("offset", offset).
				Warn("[wmi] Unable to parse index page")
			continue
		}

		switch page.Type {
		case INDEX_PAGE_ACTIVE, INDEX_PAGE_ADMIN:
			result = append(result, page)
		default:
			utils.DebugPrint("Skipping index page %v with type %#x\n",
				page.MappedNumber, page.Type)
		}
	}

	return result
}

// ParseIndexKey splits an index key such as CD_<hash>.<hash>.<record>
// into the leading hash and the object record id.
func ParseIndexKey(key string) (string, uint32, error) {
	parts := strings.Split(key, ".")
	if len(parts) < 3 {
		return "", 0, utils.BadFormat("Index key %q has too few parts", key)
	}

	hash := strings.TrimPrefix(parts[0], CLASS_DEFINITION_PREFIX)
	hash = strings.TrimPrefix(hash, INSTANCE_LIST_PREFIX)

	record_id, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return "", 0, utils.BadFormat("Index key %q record id: %v", key, err)
	}

	return hash, uint32(record_id), nil
}

// Repository is a parsed WMI repository: the objects from the active
// mapping and the namespace entries of the index.
type Repository struct {
	Objects    map[uint32]*ObjectRecord
	Namespaces [][]string
}

// NewRepository takes the MAPPING files, the objects file and the
// index file contents.
func NewRepository(maps [][]byte, objects io.ReaderAt, index []byte) (
	*Repository, error) {
	map_info := []*MapInfo{}
	for i, data := range maps {
		info, err := ParseMap(data)
		if err != nil {
			log.WithError(err).WithField("map", i).Warn("[wmi] Could not parse map file")
			continue
		}
		map_info = append(map_info, info)
	}

	active := ActiveMap(map_info)
	if active == nil {
		return nil, utils.BadFormat("No usable mapping file")
	}

	result := &Repository{
		Objects: ParseObjects(objects, active.Pages),
	}

	for _, page := range ParseIndex(index) {
		for _, value := range page.Values {
			if strings.HasPrefix(value, CLASS_DEFINITION_PREFIX) ||
				strings.HasPrefix(value, INSTANCE_LIST_PREFIX) {
				result.Namespaces = append(result.Namespaces, page.Values)
				break
			}
		}
	}

	return result, nil
}

func (self *Repository) record(key string) *ObjectRecord {
	_, record_id, err := ParseIndexKey(key)
	if err != nil {
		log.WithError(err).Warn("[wmi] Could not split WMI index key")
		return nil
	}

	record, pres := self.Objects[record_id]
	if !pres {
		return nil
	}
	return record
}

// Classes decodes every class definition the index refers to.
func (self *Repository) Classes() []ClassMap {
	result := []ClassMap{}

	for _, entries := range self.Namespaces {
		for _, key := range entries {
			if !strings.HasPrefix(key, CLASS_DEFINITION_PREFIX) {
				continue
			}

			record := self.record(key)
			if record == nil {
				continue
			}

			class, err := ParseClassRecord(record.Data)
			if err != nil {
				utils.DebugPrint("Class record %v: %v\n", key, err)
				continue
			}
			result = append(result, ClassMap{class.ClassHash: class})
		}
	}

	return result
}

// Instances decodes every instance record the index refers to.
func (self *Repository) Instances() []*InstanceRecord {
	result := []*InstanceRecord{}

	for _, entries := range self.Namespaces {
		for _, key := range entries {
			if !strings.HasPrefix(key, INSTANCE_LIST_PREFIX) {
				continue
			}

			record := self.record(key)
			if record == nil {
				continue
			}

			instance, err := ParseInstance(record.Data)
			if err != nil {
				utils.DebugPrint("Instance record %v: %v\n", key, err)
				continue
			}
			result = append(result, instance)
		}
	}

	return result
}

// ClassValues joins all instances with their classes. When names are
// given only instances of those classes are kept.
func (self *Repository) ClassValues(names []string) []*ClassValues {
	classes := self.Classes()

	// Parents are merged from an untouched copy.
	lookup := make([]ClassMap, 0, len(classes))
	for _, class_map := range classes {
		copied := make(ClassMap, len(class_map))
		for k, v := range class_map {
			copied[k] = v.Copy()
		}
		lookup = append(lookup, copied)
	}

	instances := self.Instances()
	if len(names) > 0 {
		wanted := make(map[string]bool)
		for _, name := range names {
			wanted[HashName(name)] = true
		}

		filtered := []*InstanceRecord{}
		for _, instance := range instances {
			if wanted[instance.HashName] {
				filtered = append(filtered, instance)
			}
		}
		instances = filtered
	}

	return ParseInstances(classes, instances, lookup)
}
