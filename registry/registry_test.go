package registry

import (
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// testHive assembles a hive in memory. Cells are appended to a single
// hbin in the order they are added.
type testHive struct {
	data []byte
}

func newTestHive() *testHive {
	data := make([]byte, HIVE_HEADER_SIZE+32)
	copy(data, "regf")
	binary.LittleEndian.PutUint32(data[4:], 7)
	binary.LittleEndian.PutUint32(data[8:], 7)
	binary.LittleEndian.PutUint32(data[20:], 1)
	binary.LittleEndian.PutUint32(data[24:], 5)
	binary.LittleEndian.PutUint32(data[32:], 1)
	binary.LittleEndian.PutUint32(data[44:], 1)
	copy(data[HIVE_HEADER_SIZE:], "hbin")
	return &testHive{data: data}
}

func (self *testHive) addCell(payload []byte, allocated bool) uint32 {
	offset := uint32(len(self.data) - HBIN_START)
	size := (len(payload) + CELL_HEADER_SIZE + 7) &^ 7

	header := make([]byte, 4)
	if allocated {
		binary.LittleEndian.PutUint32(header, uint32(-int32(size)))
	} else {
		binary.LittleEndian.PutUint32(header, uint32(size))
	}

	cell := make([]byte, size)
	copy(cell, header)
	copy(cell[4:], payload)
	self.data = append(self.data, cell...)
	return offset
}

func (self *testHive) addKey(name string, subkey_list uint32, subkeys int,
	value_list uint32, values int) uint32 {
	payload := make([]byte, nk_min_size+len(name))
	copy(payload, "nk")
	binary.LittleEndian.PutUint16(payload[0x02:], KEY_COMPRESSED_NAME)
	binary.LittleEndian.PutUint64(payload[0x04:], 132000000000000000)
	binary.LittleEndian.PutUint32(payload[0x14:], uint32(subkeys))
	binary.LittleEndian.PutUint32(payload[0x1C:], subkey_list)
	binary.LittleEndian.PutUint32(payload[0x24:], uint32(values))
	binary.LittleEndian.PutUint32(payload[0x28:], value_list)
	binary.LittleEndian.PutUint32(payload[0x2C:], 0x1234)
	binary.LittleEndian.PutUint32(payload[0x30:], INVALID_OFFSET)
	binary.LittleEndian.PutUint16(payload[0x48:], uint16(len(name)))
	copy(payload[nk_min_size:], name)
	return self.addCell(payload, true)
}

// Keys are added before their subkey lists are known so the list
// offset is patched in afterwards.
func (self *testHive) setSubkeys(key uint32, list uint32, count int) {
	base := HBIN_START + int(key) + CELL_HEADER_SIZE
	binary.LittleEndian.PutUint32(self.data[base+0x14:], uint32(count))
	binary.LittleEndian.PutUint32(self.data[base+0x1C:], list)
}

func (self *testHive) addValue(name string, reg_type RegType, data []byte) uint32 {
	payload := make([]byte, vk_min_size+len(name))
	copy(payload, "vk")
	binary.LittleEndian.PutUint16(payload[0x02:], uint16(len(name)))
	binary.LittleEndian.PutUint32(payload[0x0C:], uint32(reg_type))
	binary.LittleEndian.PutUint16(payload[0x10:], VALUE_COMPRESSED_NAME)
	copy(payload[vk_min_size:], name)

	switch {
	case len(data) == 0:
	case len(data) <= 4:
		binary.LittleEndian.PutUint32(payload[0x04:], uint32(len(data))|DATA_RESIDENT)
		copy(payload[0x08:0x0C], data)
	default:
		binary.LittleEndian.PutUint32(payload[0x04:], uint32(len(data)))
		binary.LittleEndian.PutUint32(payload[0x08:], self.addCell(data, true))
	}
	return self.addCell(payload, true)
}

func (self *testHive) addBigValue(name string, reg_type RegType, data []byte) uint32 {
	segments := []uint32{}
	for start := 0; start < len(data); start += BIG_DATA_SEGMENT_SIZE {
		end := start + BIG_DATA_SEGMENT_SIZE
		if end > len(data) {
			end = len(data)
		}
		segments = append(segments, self.addCell(data[start:end], true))
	}

	list := self.addCell(offsetList(segments), true)
	db := make([]byte, 8)
	copy(db, "db")
	binary.LittleEndian.PutUint16(db[2:], uint16(len(segments)))
	binary.LittleEndian.PutUint32(db[4:], list)
	db_offset := self.addCell(db, true)

	payload := make([]byte, vk_min_size+len(name))
	copy(payload, "vk")
	binary.LittleEndian.PutUint16(payload[0x02:], uint16(len(name)))
	binary.LittleEndian.PutUint32(payload[0x04:], uint32(len(data)))
	binary.LittleEndian.PutUint32(payload[0x08:], db_offset)
	binary.LittleEndian.PutUint32(payload[0x0C:], uint32(reg_type))
	binary.LittleEndian.PutUint16(payload[0x10:], VALUE_COMPRESSED_NAME)
	copy(payload[vk_min_size:], name)
	return self.addCell(payload, true)
}

func (self *testHive) addSubkeyList(signature string, offsets ...uint32) uint32 {
	payload := make([]byte, 4)
	copy(payload, signature)
	binary.LittleEndian.PutUint16(payload[2:], uint16(len(offsets)))
	for _, o := range offsets {
		payload = binary.LittleEndian.AppendUint32(payload, o)
		if signature == "lf" || signature == "lh" {
			payload = binary.LittleEndian.AppendUint32(payload, 0)
		}
	}
	return self.addCell(payload, true)
}

func (self *testHive) finish(root uint32) []byte {
	binary.LittleEndian.PutUint32(self.data[36:], root)
	binary.LittleEndian.PutUint32(self.data[40:], uint32(len(self.data)-HBIN_START))
	checksum, _ := HeaderChecksum(self.data)
	binary.LittleEndian.PutUint32(self.data[508:], checksum)
	return self.data
}

func offsetList(offsets []uint32) []byte {
	result := []byte{}
	for _, o := range offsets {
		result = binary.LittleEndian.AppendUint32(result, o)
	}
	return result
}

func utf16z(s string) []byte {
	result := []byte{}
	for _, u := range utf16.Encode([]rune(s)) {
		result = binary.LittleEndian.AppendUint16(result, u)
	}
	return append(result, 0, 0)
}

// ROOT
//   Software
//     Vendor   (values)
//   System
func buildSoftwareHive(t *testing.T) *Hive {
	h := newTestHive()

	values := []uint32{
		h.addValue("", REG_SZ, nil),
		h.addValue("Greeting", REG_SZ, utf16z("hello")),
		h.addValue("Count", REG_DWORD, []byte{42, 0, 0, 0}),
		h.addValue("Paths", REG_MULTI_SZ,
			append(utf16z("C:\\one"), utf16z("C:\\two")...)),
		h.addValue("Big", REG_QWORD, []byte{1, 0, 0, 0, 0, 0, 0, 0x80}),
		h.addValue("Odd", RegType(1000), []byte{1, 2, 3, 4, 5}),
	}
	value_list := h.addCell(offsetList(values), true)

	vendor := h.addKey("Vendor", INVALID_OFFSET, 0, value_list, len(values))
	software := h.addKey("Software", h.addSubkeyList("lh", vendor), 1, INVALID_OFFSET, 0)
	system := h.addKey("System", INVALID_OFFSET, 0, INVALID_OFFSET, 0)
	root := h.addKey("ROOT", h.addSubkeyList("lf", software, system), 2,
		INVALID_OFFSET, 0)

	hive, err := NewHive(h.finish(root))
	require.NoError(t, err)
	return hive
}

func TestHiveHeader(t *testing.T) {
	assert := assert.New(t)

	hive := buildSoftwareHive(t)
	assert.Equal(uint32(1), hive.Header.MajorVersion)
	assert.Equal(uint32(5), hive.Header.MinorVersion)
	assert.True(hive.SupportsBigData())
	assert.False(hive.Header.IsDirty())
	assert.True(hive.Header.ChecksumValid(hive.Data))

	binary.LittleEndian.PutUint32(hive.Data[8:], 8)
	header, err := ParseHiveHeader(hive.Data)
	require.NoError(t, err)
	assert.True(header.IsDirty())
	assert.False(header.ChecksumValid(hive.Data))

	// Reserved checksum values
	checksum, err := HeaderChecksum(make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(uint32(1), checksum)

	_, err = HeaderChecksum(make([]byte, 100))
	assert.ErrorIs(err, utils.ErrIncomplete)

	_, err = ParseHiveHeader([]byte("hbin0000000000000000"))
	assert.ErrorIs(err, utils.ErrBadFormat)
}

func TestWalkHive(t *testing.T) {
	assert := assert.New(t)

	hive := buildSoftwareHive(t)
	entries, err := GetRegistryKeys(hive, GetDefaultWalkOptions())
	require.NoError(t, err)

	paths := []string{}
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal([]string{"ROOT", "ROOT\\Software", "ROOT\\Software\\Vendor",
		"ROOT\\System"}, paths)

	vendor := entries[2]
	assert.Equal("ROOT\\Software", vendor.Key)
	assert.Equal("Vendor", vendor.Name)
	assert.Equal(2, vendor.Depth)
	assert.Equal(int32(0x1234), vendor.SecurityOffset)
	assert.Equal(utils.FiletimeToUnix(132000000000000000), vendor.LastModified)

	expected := map[string][2]string{
		"(default)": {"(NULL)", "REG_SZ"},
		"Greeting":  {"hello", "REG_SZ"},
		"Count":     {"42", "REG_DWORD"},
		"Paths":     {"C:\\one\nC:\\two", "REG_MULTI_SZ"},
		"Big":       {"-9223372036854775807", "REG_QWORD"},
		"Odd":       {"AQIDBAU=", "1000"},
	}
	require.Equal(t, len(expected), len(vendor.Values))
	for _, v := range vendor.Values {
		e, pres := expected[v.Name]
		if assert.True(pres, v.Name) {
			assert.Equal(e[0], v.Data, v.Name)
			assert.Equal(e[1], v.DataType, v.Name)
		}
	}

	count, pres := vendor.GetValue("Count")
	assert.True(pres)
	assert.Equal([]byte{42, 0, 0, 0}, count.Raw)
}

func TestWalkHiveFilters(t *testing.T) {
	assert := assert.New(t)
	hive := buildSoftwareHive(t)

	options := GetDefaultWalkOptions()
	options.StartPath = "root\\SOFTWARE"
	entries, err := GetRegistryKeys(hive, options)
	require.NoError(t, err)
	require.Equal(t, 2, len(entries))
	assert.Equal("ROOT\\Software", entries[0].Path)
	assert.Equal("ROOT\\Software\\Vendor", entries[1].Path)

	options = GetDefaultWalkOptions()
	options.PathFilter, err = CompilePathFilter(`\\vendor$`)
	require.NoError(t, err)
	entries, err = GetRegistryKeys(hive, options)
	require.NoError(t, err)
	require.Equal(t, 1, len(entries))
	assert.Equal("Vendor", entries[0].Name)

	options = GetDefaultWalkOptions()
	options.MaxDepth = 1
	entries, err = GetRegistryKeys(hive, options)
	require.NoError(t, err)
	assert.Equal(3, len(entries))

	_, err = CompilePathFilter("(")
	assert.ErrorIs(err, utils.ErrBadFormat)
}

func TestWalkHiveCycle(t *testing.T) {
	assert := assert.New(t)
	utils.STATS.Reset()

	h := newTestHive()
	child := h.addKey("Loop", INVALID_OFFSET, 0, INVALID_OFFSET, 0)
	root := h.addKey("ROOT", h.addSubkeyList("li", child), 1, INVALID_OFFSET, 0)

	// The child lists the root as its own subkey.
	h.setSubkeys(child, h.addSubkeyList("lf", root), 1)

	hive, err := NewHive(h.finish(root))
	require.NoError(t, err)

	entries, err := GetRegistryKeys(hive, GetDefaultWalkOptions())
	require.NoError(t, err)
	assert.Equal(2, len(entries))
	assert.Equal(1, utils.STATS.CyclesDetected)
}

func TestIndexRoot(t *testing.T) {
	assert := assert.New(t)

	h := newTestHive()
	a := h.addKey("A", INVALID_OFFSET, 0, INVALID_OFFSET, 0)
	b := h.addKey("B", INVALID_OFFSET, 0, INVALID_OFFSET, 0)
	c := h.addKey("C", INVALID_OFFSET, 0, INVALID_OFFSET, 0)
	ri := h.addSubkeyList("ri", h.addSubkeyList("lh", a, b), h.addSubkeyList("li", c))
	root := h.addKey("ROOT", ri, 3, INVALID_OFFSET, 0)

	hive, err := NewHive(h.finish(root))
	require.NoError(t, err)

	offsets, err := hive.SubkeyOffsets(ri)
	require.NoError(t, err)
	assert.Equal([]uint32{a, b, c}, offsets)

	_, err = hive.SubkeyOffsets(a)
	assert.ErrorIs(err, utils.ErrBadFormat)
}

func TestBigData(t *testing.T) {
	assert := assert.New(t)

	binary_data := make([]byte, 20000)
	for i := range binary_data {
		binary_data[i] = byte(i % 251)
	}
	text := strings.Repeat("A", 10000)

	h := newTestHive()
	values := []uint32{
		h.addBigValue("Blob", REG_BINARY, binary_data),
		h.addBigValue("Text", REG_SZ, utf16z(text)),
	}
	root := h.addKey("ROOT", INVALID_OFFSET, 0,
		h.addCell(offsetList(values), true), len(values))

	hive, err := NewHive(h.finish(root))
	require.NoError(t, err)

	entries, err := GetRegistryKeys(hive, GetDefaultWalkOptions())
	require.NoError(t, err)
	require.Equal(t, 1, len(entries))
	require.Equal(t, 2, len(entries[0].Values))

	blob := entries[0].Values[0]
	assert.Equal(utils.Base64Encode(binary_data), blob.Data)
	assert.Equal(binary_data, blob.Raw)

	str := entries[0].Values[1]
	assert.Equal(text, str.Data)
	assert.Equal(utils.ExtractUTF16String(utf16z(text)), str.Data)
}

func TestTruncatedCells(t *testing.T) {
	assert := assert.New(t)

	_, err := ParseNameKey([]byte("nk\x00\x00"), 0x20)
	assert.ErrorIs(err, utils.ErrIncomplete)

	_, err = ParseValueKey([]byte("vk"), 0x20)
	assert.ErrorIs(err, utils.ErrIncomplete)

	_, err = ParseValueKey(make([]byte, 0x20), 0x20)
	assert.ErrorIs(err, utils.ErrBadFormat)

	_, err = ParseCell(make([]byte, HBIN_START+2), 0x20)
	assert.ErrorIs(err, utils.ErrIncomplete)

	_, err = ParseCell(make([]byte, HBIN_START+64), INVALID_OFFSET)
	assert.ErrorIs(err, utils.ErrBadFormat)
}

func TestRegType(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("REG_FILETIME", REG_FILETIME.String())
	assert.Equal("1000", RegType(1000).String())
	assert.False(RegType(1000).IsKnown())
	assert.Equal("305419896", DecodeValueData(REG_DWORD_BIG_ENDIAN,
		[]byte{0x12, 0x34, 0x56, 0x78}))
	assert.Equal("AQI=", DecodeValueData(REG_DWORD, []byte{1, 2}))
}

func decoderError(err error) bool {
	return utils.IsKind(err, utils.ErrIncomplete) ||
		utils.IsKind(err, utils.ErrBadFormat) ||
		utils.IsKind(err, utils.ErrCycleDetected)
}

func TestTruncatedValueKey(t *testing.T) {
	h := newTestHive()
	offset := h.addValue("Greeting", REG_SZ, utf16z("hello"))
	hive, err := NewHive(h.finish(offset))
	require.NoError(t, err)

	cell, err := hive.Cell(offset)
	require.NoError(t, err)

	for i := 0; i < len(cell.Data); i++ {
		vk, err := ParseValueKey(cell.Data[:i], offset)
		if err != nil {
			assert.True(t, decoderError(err), "length %d: %v", i, err)
			continue
		}

		_, err = vk.Parse(hive)
		if err != nil {
			assert.True(t, decoderError(err), "length %d: %v", i, err)
		}
	}
}

// A hive cut anywhere still walks what it holds.
func TestTruncatedHive(t *testing.T) {
	data := buildSoftwareHive(t).Data

	for i := 0; i < len(data); i++ {
		hive, err := NewHive(data[:i])
		if err != nil {
			assert.True(t, decoderError(err), "length %d: %v", i, err)
			continue
		}

		err = WalkHive(hive, GetDefaultWalkOptions(), func(*RegistryEntry) {})
		if err != nil {
			assert.True(t, decoderError(err), "length %d: %v", i, err)
		}
	}
}
