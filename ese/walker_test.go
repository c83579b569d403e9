package ese

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const test_page_size = 4096

// testDatabase builds an in memory database of small pages.
type testDatabase struct {
	pages map[uint32][]byte
	last  uint32
}

func newTestDatabase() *testDatabase {
	header := make([]byte, test_page_size)
	binary.LittleEndian.PutUint32(header[4:], ESE_SIGNATURE)
	binary.LittleEndian.PutUint32(header[page_size_offset:], test_page_size)

	return &testDatabase{pages: map[uint32][]byte{0: header}}
}

// AddPage stores a page holding values in tag order. Tag 0 is the
// first value.
func (self *testDatabase) AddPage(number uint32, flags PageFlags,
	next uint32, values ...[]byte) {
	page := make([]byte, test_page_size)
	binary.LittleEndian.PutUint32(page[20:], next)
	binary.LittleEndian.PutUint16(page[34:], uint16(len(values)))
	binary.LittleEndian.PutUint32(page[36:], uint32(flags))

	offset := 0
	for i, value := range values {
		copy(page[PAGE_HEADER_SIZE+offset:], value)
		tag := test_page_size - (i+1)*tag_size
		binary.LittleEndian.PutUint16(page[tag:], uint16(len(value)))
		binary.LittleEndian.PutUint16(page[tag+2:], uint16(offset))
		offset += len(value)
	}

	self.pages[number+1] = page
	if number+1 > self.last {
		self.last = number + 1
	}
}

func (self *testDatabase) Bytes() []byte {
	result := make([]byte, (int(self.last)+1)*test_page_size)
	for number, page := range self.pages {
		copy(result[int(number)*test_page_size:], page)
	}
	return result
}

func rootHeader() []byte {
	return make([]byte, 16)
}

func branchTo(child uint32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{0, 0}, child)
}

// Builds a leaf value holding a data definition.
func row(key byte, last_fixed byte, fixed []byte,
	variable [][]byte, tagged []byte) []byte {
	result := []byte{1, 0, key}

	last_variable := byte(127)
	if len(variable) > 0 {
		last_variable = byte(127 + len(variable))
	}
	result = append(result, last_fixed, last_variable)
	result = binary.LittleEndian.AppendUint16(result, uint16(4+len(fixed)))
	result = append(result, fixed...)

	end := 0
	for _, v := range variable {
		end += len(v)
		result = binary.LittleEndian.AppendUint16(result, uint16(end))
	}
	for _, v := range variable {
		result = append(result, v...)
	}
	return append(result, tagged...)
}

// Catalog rows only use the first eight fixed columns.
func catalogRow(key byte, obj int32, catalog_type CatalogType, id int32,
	column_or_fdp int32, space int32, flags int32, name string) []byte {
	fixed := []byte{}
	fixed = binary.LittleEndian.AppendUint32(fixed, uint32(obj))
	fixed = binary.LittleEndian.AppendUint16(fixed, uint16(catalog_type))
	for _, v := range []int32{id, column_or_fdp, space, flags, 0} {
		fixed = binary.LittleEndian.AppendUint32(fixed, uint32(v))
	}
	fixed = append(fixed, 0)

	return row(key, 8, fixed, [][]byte{[]byte(name)}, nil)
}

func utf16le(s string) []byte {
	result := []byte{}
	for _, c := range s {
		result = append(result, byte(c), 0)
	}
	return result
}

func tableRow(key byte, id int32, name, note string) []byte {
	fixed := binary.LittleEndian.AppendUint32(nil, uint32(id))
	fixed = binary.LittleEndian.AppendUint64(fixed, 132000000000000000)

	tagged := []byte{0, 1, 4, 0, byte(TAGGED_VARIABLE)}
	tagged = append(tagged, []byte(note)...)

	return row(key, 2, fixed, [][]byte{utf16le(name)}, tagged)
}

func buildTestDatabase() []byte {
	db := newTestDatabase()

	db.AddPage(CATALOG_PAGE, PAGE_ROOT|PAGE_LEAF, 0,
		rootHeader(),
		catalogRow(1, 2, CATALOG_TABLE, 2, 4, 80, 0, "MSysObjects"),
		catalogRow(2, 10, CATALOG_TABLE, 10, 10, 80, 0, "Test"),
		catalogRow(3, 10, CATALOG_COLUMN, 1, int32(COLUMN_LONG), 4,
			int32(COLUMN_FLAG_NOT_NULL), "Id"),
		catalogRow(4, 10, CATALOG_COLUMN, 2, int32(COLUMN_DATETIME), 8,
			int32(COLUMN_FLAG_NOT_NULL), "Created"),
		catalogRow(5, 10, CATALOG_COLUMN, 128, int32(COLUMN_TEXT), 255, 0, "Name"),
		catalogRow(6, 10, CATALOG_COLUMN, 256, int32(COLUMN_LONG_TEXT), 0, 0, "Note"),
	)

	// Two leaves under one branch page.
	db.AddPage(10, PAGE_ROOT|PAGE_PARENT_BRANCH, 0,
		rootHeader(), branchTo(11), branchTo(12))
	db.AddPage(11, PAGE_LEAF, 12, []byte{},
		tableRow(1, 1, "alpha", "first"),
		tableRow(2, 2, "beta", "second"))
	db.AddPage(12, PAGE_LEAF, 0, []byte{},
		tableRow(3, 3, "gamma", "third"))

	// A branch whose second child is itself.
	db.AddPage(20, PAGE_ROOT|PAGE_PARENT_BRANCH, 0,
		rootHeader(), branchTo(21), branchTo(20), branchTo(22))
	db.AddPage(21, PAGE_LEAF, 0, []byte{}, tableRow(1, 7, "loop", "x"))
	db.AddPage(22, PAGE_LEAF, 0, []byte{}, tableRow(2, 8, "never", "y"))

	// Points at a page far past the end of the file.
	db.AddPage(30, PAGE_ROOT|PAGE_PARENT_BRANCH, 0,
		rootHeader(), branchTo(5000), branchTo(31))
	db.AddPage(31, PAGE_LEAF, 0, []byte{}, tableRow(1, 9, "after", "z"))

	return db.Bytes()
}

func TestDatabaseHeader(t *testing.T) {
	assert := assert.New(t)

	header, err := ReadDatabaseHeader(bytes.NewReader(buildTestDatabase()))
	assert.NoError(err)
	assert.Equal(uint32(test_page_size), header.PageSize)
	assert.Equal(int64(5*test_page_size), PageOffset(CATALOG_PAGE, header.PageSize))

	_, err = ParseDatabaseHeader(make([]byte, ESE_HEADER_SIZE))
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestCatalog(t *testing.T) {
	assert := assert.New(t)

	ctx, err := NewESEContext(bytes.NewReader(buildTestDatabase()))
	require.NoError(t, err)

	catalog, err := ctx.Catalog()
	require.NoError(t, err)
	assert.Equal(6, len(catalog.Entries))
	assert.Equal([]string{"MSysObjects", "Test"}, catalog.Tables())

	info, err := catalog.GetTableInfo("Test")
	assert.NoError(err)
	assert.Equal(uint32(10), info.Page)
	assert.Equal(4, len(info.Columns))
	assert.Equal(COLUMN_LONG_TEXT, info.Columns[3].Type)

	_, err = catalog.GetTableInfo("Missing")
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestDumpTable(t *testing.T) {
	assert := assert.New(t)

	ctx, err := NewESEContext(bytes.NewReader(buildTestDatabase()))
	require.NoError(t, err)

	rows := []*ordereddict.Dict{}
	err = ctx.DumpTable("Test", func(row *ordereddict.Dict) {
		rows = append(rows, row)
	})
	assert.NoError(err)
	require.Equal(t, 3, len(rows))

	// Rows come out in page then tag order.
	for i, name := range []string{"alpha", "beta", "gamma"} {
		value, _ := rows[i].Get("Name")
		assert.Equal(name, value)
	}

	id, _ := rows[2].Get("Id")
	assert.Equal(int32(3), id)

	created, _ := rows[0].Get("Created")
	assert.Equal("2019-04-17T18:40:00Z", created)

	note, _ := rows[1].Get("Note")
	assert.Equal("second", note)

	assert.Equal([]string{"Id", "Created", "Name", "Note"}, rows[0].Keys())
}

func TestWalkerCycle(t *testing.T) {
	assert := assert.New(t)
	utils.STATS.Reset()

	walker := NewWalker(bytes.NewReader(buildTestDatabase()), test_page_size)

	keys := [][]byte{}
	err := walker.Leaves(20, func(leaf *Leaf) {
		keys = append(keys, leaf.Key())
	})
	assert.NoError(err)

	// The walk stops at the self reference, keeping what it had.
	assert.Equal([][]byte{{1}}, keys)
	assert.Equal(1, utils.STATS.CyclesDetected)
}

func TestWalkerBadChild(t *testing.T) {
	assert := assert.New(t)

	walker := NewWalker(bytes.NewReader(buildTestDatabase()), test_page_size)

	keys := [][]byte{}
	err := walker.Leaves(30, func(leaf *Leaf) {
		keys = append(keys, leaf.Key())
	})
	assert.NoError(err)

	// The unreadable child is skipped and its sibling still read.
	assert.Equal([][]byte{{1}}, keys)

	// The first page itself must be readable.
	err = NewWalker(bytes.NewReader(buildTestDatabase()), test_page_size).
		Leaves(6000, func(leaf *Leaf) {})
	assert.True(utils.IsKind(err, utils.ErrIncomplete))
}

func TestPageNumbers(t *testing.T) {
	assert := assert.New(t)

	reader := bytes.NewReader(buildTestDatabase())

	pages, err := NewWalker(reader, test_page_size).PageNumbers(10)
	assert.NoError(err)
	assert.Equal([]uint32{10, 11, 12}, pages)

	pages, err = NewWalker(reader, test_page_size).PageNumbers(20)
	assert.NoError(err)
	assert.Equal([]uint32{20, 21}, pages)
}
