package outlook

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/compression"
	"www.velocidex.com/golang/go-artifacts/utils"
)

var le = binary.LittleEndian

const (
	// 2020-01-01T00:00:00Z
	test_filetime = 132223104000000000

	nbt_root_offset  = 0x400
	nbt_leaf1_offset = 0x600
	nbt_leaf2_offset = 0x800
	bbt_root_offset  = 0xa00
	blocks_offset    = 0xc00
)

func utf16LE(value string) []byte {
	result := []byte{}
	for _, c := range utf16.Encode([]rune(value)) {
		result = le.AppendUint16(result, c)
	}
	return result
}

func buildHeader(format uint16, crypt byte) []byte {
	header := make([]byte, HEADER_SIZE)
	le.PutUint32(header[0:], PST_MAGIC)
	le.PutUint16(header[header_content_offset:], 0x4d53)
	le.PutUint16(header[header_format_offset:], format)
	le.PutUint16(header[header_client_offset:], 19)
	le.PutUint64(header[header_nbt_offset_offset:], nbt_root_offset)
	le.PutUint64(header[header_bbt_offset_offset:], bbt_root_offset)
	header[header_crypt_method_offset] = crypt
	return header
}

func buildPage(page_type, level uint8, entry_size int, entries [][]byte) []byte {
	page := make([]byte, 512)
	for i, entry := range entries {
		copy(page[i*entry_size:], entry)
	}
	page[488] = byte(len(entries))
	page[489] = byte(488 / entry_size)
	page[490] = byte(entry_size)
	page[491] = level
	page[496] = page_type
	page[497] = page_type
	return page
}

func branchEntry(key, offset uint64) []byte {
	entry := le.AppendUint64(nil, key)
	entry = le.AppendUint64(entry, 0)
	return le.AppendUint64(entry, offset)
}

// A heap block: header bytes (the page map offset is filled in), the
// allocations and then the page map.
func buildHeapData(header []byte, allocs [][]byte) []byte {
	buf := append([]byte{}, header...)
	offsets := []uint16{}
	for _, alloc := range allocs {
		offsets = append(offsets, uint16(len(buf)))
		buf = append(buf, alloc...)
	}
	offsets = append(offsets, uint16(len(buf)))
	if len(buf)%2 != 0 {
		buf = append(buf, 0)
	}

	le.PutUint16(buf[0:], uint16(len(buf)))
	buf = le.AppendUint16(buf, uint16(len(allocs)))
	buf = le.AppendUint16(buf, 0)
	for _, offset := range offsets {
		buf = le.AppendUint16(buf, offset)
	}
	return buf
}

func heapHeader(client byte, root uint32) []byte {
	header := make([]byte, heap_header_size)
	header[2] = HEAP_SIGNATURE
	header[3] = client
	le.PutUint32(header[4:], root)
	return header
}

func bthHeader(levels uint8, root uint32) []byte {
	header := []byte{CLIENT_SIG_BTH, 2, 6, levels}
	return le.AppendUint32(header, root)
}

func hid(index, block uint32) uint32 {
	return block<<16 | index<<5
}

type testProp struct {
	id      uint16
	ptype   uint16
	inline  uint32
	data    []byte
	subnode uint32
}

// A single block property context: allocation 1 is the BTH header, 2
// the records and the rest hold variable sized values.
func buildPC(props []testProp) []byte {
	allocs := [][]byte{nil, nil}
	records := []byte{}
	for _, prop := range props {
		value := prop.inline
		if prop.data != nil {
			allocs = append(allocs, prop.data)
			value = hid(uint32(len(allocs)), 0)
		}
		if prop.subnode != 0 {
			value = prop.subnode
		}
		records = le.AppendUint16(records, prop.id)
		records = le.AppendUint16(records, prop.ptype)
		records = le.AppendUint32(records, value)
	}
	allocs[0] = bthHeader(0, hid(2, 0))
	allocs[1] = records

	return buildHeapData(heapHeader(CLIENT_SIG_PROPERTY_CONTEXT, hid(1, 0)), allocs)
}

type testBlock struct {
	bid  uint64
	data []byte
}

type testNode struct {
	nid      uint32
	data_bid uint64
	sub_bid  uint64
	parent   uint32
}

type pstBuilder struct {
	blocks   []testBlock
	nodes    []testNode
	next_bid uint64
}

func (self *pstBuilder) addBlock(data []byte, internal bool) uint64 {
	self.next_bid += 4
	bid := self.next_bid
	if internal {
		bid |= 2
	}
	self.blocks = append(self.blocks, testBlock{bid: bid, data: data})
	return bid
}

func (self *pstBuilder) addNode(nid uint32, data_bid, sub_bid uint64, parent uint32) {
	self.nodes = append(self.nodes, testNode{
		nid: nid, data_bid: data_bid, sub_bid: sub_bid, parent: parent})
}

func (self *pstBuilder) Build() []byte {
	file := make([]byte, blocks_offset)
	copy(file, buildHeader(23, 0))

	bbt_entries := [][]byte{}
	for _, block := range self.blocks {
		offset := uint64(len(file))
		total := alignUp(int64(len(block.data))+block_trailer_size, 64)
		buf := make([]byte, total)
		copy(buf, block.data)
		le.PutUint16(buf[total-16:], uint16(len(block.data)))
		le.PutUint64(buf[total-8:], block.bid)
		file = append(file, buf...)

		entry := le.AppendUint64(nil, block.bid)
		entry = le.AppendUint64(entry, offset)
		entry = le.AppendUint16(entry, uint16(len(block.data)))
		entry = le.AppendUint16(entry, 1)
		entry = le.AppendUint32(entry, 0)
		bbt_entries = append(bbt_entries, entry)
	}

	nbt_entries := [][]byte{}
	for _, node := range self.nodes {
		entry := le.AppendUint64(nil, uint64(node.nid))
		entry = le.AppendUint64(entry, node.data_bid)
		entry = le.AppendUint64(entry, node.sub_bid)
		entry = le.AppendUint32(entry, node.parent)
		entry = le.AppendUint32(entry, 0)
		nbt_entries = append(nbt_entries, entry)
	}

	// Two leaves under a branch so the walk descends.
	half := len(nbt_entries) / 2
	copy(file[nbt_leaf1_offset:], buildPage(PAGE_TYPE_NBT, 0, nbt_entry_size,
		nbt_entries[:half]))
	copy(file[nbt_leaf2_offset:], buildPage(PAGE_TYPE_NBT, 0, nbt_entry_size,
		nbt_entries[half:]))
	copy(file[nbt_root_offset:], buildPage(PAGE_TYPE_NBT, 1, branch_entry_size,
		[][]byte{
			branchEntry(uint64(self.nodes[0].nid), nbt_leaf1_offset),
			branchEntry(uint64(self.nodes[half].nid), nbt_leaf2_offset),
		}))
	copy(file[bbt_root_offset:], buildPage(PAGE_TYPE_BBT, 0, bbt_entry_size,
		bbt_entries))

	return file
}

func rtfUncompressed(body string) []byte {
	data := le.AppendUint32(nil, uint32(len(body)+12))
	data = le.AppendUint32(data, uint32(len(body)))
	data = le.AppendUint32(data, compression.RTF_UNCOMPRESSED)
	data = le.AppendUint32(data, 0)
	return append(data, body...)
}

func entryID(nid uint32) []byte {
	data := make([]byte, entry_id_nid_offset)
	return le.AppendUint32(data, nid)
}

const (
	test_subnode_nid = 0x65

	inbox_nid   = 0x8022
	archive_nid = 0x8062
	lost_nid    = 0x8082
	message_nid = 0x200024
	broken_nid  = 0x200044
)

func buildTestPST() []byte {
	builder := &pstBuilder{}

	root_bid := builder.addBlock(buildPC([]testProp{
		{id: TAG_CONTENT_COUNT, ptype: PT_INT32, inline: 0},
	}), false)
	builder.addNode(NID_ROOT_FOLDER, root_bid, 0, NID_ROOT_FOLDER)

	inbox_bid := builder.addBlock(buildPC([]testProp{
		{id: TAG_DISPLAY_NAME, ptype: PT_UNICODE, data: utf16LE("Inbox")},
		{id: TAG_CREATION_TIME, ptype: PT_SYSTIME,
			data: le.AppendUint64(nil, test_filetime)},
		{id: TAG_CONTENT_COUNT, ptype: PT_INT32, inline: 1},
		{id: TAG_SUBFOLDERS, ptype: PT_BOOLEAN, inline: 1},
	}), false)
	builder.addNode(inbox_nid, inbox_bid, 0, NID_ROOT_FOLDER)

	// No parent in the node B-tree, only in the entry id.
	archive_bid := builder.addBlock(buildPC([]testProp{
		{id: TAG_DISPLAY_NAME, ptype: PT_UNICODE, data: utf16LE("Archive")},
		{id: TAG_PARENT_ENTRY_ID, ptype: PT_BINARY, data: entryID(inbox_nid)},
	}), false)
	builder.addNode(archive_nid, archive_bid, 0, 0)

	lost_bid := builder.addBlock(buildPC([]testProp{
		{id: TAG_DISPLAY_NAME, ptype: PT_STRING8, data: []byte("Lost\x00")},
	}), false)
	builder.addNode(lost_nid, lost_bid, 0, 0x9992)

	// A name split over an XBLOCK held in a subnode.
	part1 := builder.addBlock(utf16LE("Alice "), false)
	part2 := builder.addBlock(utf16LE("Smith"), false)
	xblock := []byte{BLOCK_TYPE_XBLOCK, 1}
	xblock = le.AppendUint16(xblock, 2)
	xblock = le.AppendUint32(xblock, 22)
	xblock = le.AppendUint64(xblock, part1)
	xblock = le.AppendUint64(xblock, part2)
	xblock_bid := builder.addBlock(xblock, true)

	slblock := []byte{BLOCK_TYPE_SUB, 0}
	slblock = le.AppendUint16(slblock, 1)
	slblock = le.AppendUint32(slblock, 0)
	slblock = le.AppendUint64(slblock, test_subnode_nid)
	slblock = le.AppendUint64(slblock, xblock_bid)
	slblock = le.AppendUint64(slblock, 0)
	slblock_bid := builder.addBlock(slblock, true)

	message_bid := builder.addBlock(buildPC([]testProp{
		{id: TAG_SUBJECT, ptype: PT_UNICODE, data: utf16LE("\x01\x04Quarterly report")},
		{id: TAG_SENT_REPRESENTING_NAME, ptype: PT_UNICODE, subnode: test_subnode_nid},
		{id: TAG_SENDER_EMAIL_ADDRESS, ptype: PT_UNICODE, data: utf16LE("alice@example.com")},
		{id: TAG_DISPLAY_TO, ptype: PT_UNICODE, data: utf16LE("Bob")},
		{id: TAG_MESSAGE_DELIVERY_TIME, ptype: PT_SYSTIME,
			data: le.AppendUint64(nil, test_filetime)},
		{id: TAG_MESSAGE_SIZE, ptype: PT_INT32, inline: 1234},
		{id: TAG_RTF_COMPRESSED, ptype: PT_BINARY, data: rtfUncompressed("{\\rtf1 hi}")},
	}), false)
	builder.addNode(message_nid, message_bid, slblock_bid, inbox_nid)

	// Data block missing from the block B-tree.
	builder.addNode(broken_nid, 0x999c, 0, inbox_nid)

	return builder.Build()
}

func TestParseHeader(t *testing.T) {
	assert := assert.New(t)

	header, err := ParseHeader(buildHeader(23, 0))
	require.NoError(t, err)
	assert.Equal("PST", header.Content)
	assert.Equal(FORMAT_UNICODE64, header.Format)
	assert.Equal(uint64(nbt_root_offset), header.NodeBTree.Offset)
	assert.Equal(uint64(bbt_root_offset), header.BlockBTree.Offset)

	header, err = ParseHeader(buildHeader(36, 0))
	require.NoError(t, err)
	assert.Equal(FORMAT_UNICODE64_4K, header.Format)

	_, err = ParseHeader(buildHeader(14, 0))
	assert.True(utils.IsKind(err, utils.ErrUnsupportedVariant))

	_, err = ParseHeader(buildHeader(23, 1))
	assert.True(utils.IsKind(err, utils.ErrUnsupportedVariant))

	_, err = ParseHeader(buildHeader(23, 0)[:100])
	assert.True(utils.IsKind(err, utils.ErrIncomplete))

	bad := buildHeader(23, 0)
	bad[0] = 'X'
	_, err = ParseHeader(bad)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestParseBTPage(t *testing.T) {
	assert := assert.New(t)

	page := buildPage(PAGE_TYPE_BBT, 0, bbt_entry_size, [][]byte{
		make([]byte, bbt_entry_size), make([]byte, bbt_entry_size)})
	parsed, err := ParseBTPage(page, unicode_layout)
	require.NoError(t, err)
	assert.Equal(2, parsed.Count)
	assert.Equal(uint8(PAGE_TYPE_BBT), parsed.Type)
	assert.Len(parsed.Entry(1), bbt_entry_size)

	// Type and repeat disagree.
	page[497] = PAGE_TYPE_NBT
	_, err = ParseBTPage(page, unicode_layout)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	// More entries than fit.
	page[497] = PAGE_TYPE_BBT
	page[488] = 30
	_, err = ParseBTPage(page, unicode_layout)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	_, err = ParseBTPage(page[:100], unicode_layout)
	assert.True(utils.IsKind(err, utils.ErrIncomplete))
}

func TestHeap(t *testing.T) {
	assert := assert.New(t)

	first := buildHeapData(heapHeader(CLIENT_SIG_PROPERTY_CONTEXT, hid(1, 0)),
		[][]byte{[]byte("first"), []byte("second")})
	// Later blocks only carry the page map offset.
	next := buildHeapData([]byte{0, 0}, [][]byte{[]byte("third")})

	heap, err := NewHeap([][]byte{first, next})
	require.NoError(t, err)
	assert.Equal(uint8(CLIENT_SIG_PROPERTY_CONTEXT), heap.ClientSig)
	assert.Equal(hid(1, 0), heap.UserRoot)

	data, err := heap.Get(hid(2, 0))
	require.NoError(t, err)
	assert.Equal("second", string(data))

	data, err = heap.Get(hid(1, 1))
	require.NoError(t, err)
	assert.Equal("third", string(data))

	data, err = heap.Get(0)
	assert.NoError(err)
	assert.Nil(data)

	_, err = heap.Get(hid(5, 0))
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	_, err = heap.Get(hid(1, 7))
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	// A subnode id is not a heap id.
	_, err = heap.Get(0x65)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	bad := append([]byte{}, first...)
	bad[2] = 0
	_, err = NewHeap([][]byte{bad})
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestBTHRecordsIndexed(t *testing.T) {
	assert := assert.New(t)

	record := func(id uint16, value uint32) []byte {
		data := le.AppendUint16(nil, id)
		data = le.AppendUint16(data, PT_INT32)
		return le.AppendUint32(data, value)
	}

	// 1: header, 2: index level, 3 and 4: leaves
	index := le.AppendUint16(nil, 0x0001)
	index = le.AppendUint32(index, hid(3, 0))
	index = le.AppendUint16(index, 0x3000)
	index = le.AppendUint32(index, hid(4, 0))

	leaf1 := append(record(0x0001, 1), record(0x0002, 2)...)
	leaf2 := record(0x3000, 3)

	block := buildHeapData(heapHeader(CLIENT_SIG_PROPERTY_CONTEXT, hid(1, 0)),
		[][]byte{bthHeader(1, hid(2, 0)), index, leaf1, leaf2})

	heap, err := NewHeap([][]byte{block})
	require.NoError(t, err)

	records, err := heap.BTHRecords(heap.UserRoot)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal([]byte{0x00, 0x30}, records[2].Key)

	// An index that points back at itself.
	looped := le.AppendUint16(nil, 0x0001)
	looped = le.AppendUint32(looped, hid(2, 0))
	block = buildHeapData(heapHeader(CLIENT_SIG_PROPERTY_CONTEXT, hid(1, 0)),
		[][]byte{bthHeader(2, hid(2, 0)), looped})
	heap, err = NewHeap([][]byte{block})
	require.NoError(t, err)

	_, err = heap.BTHRecords(heap.UserRoot)
	assert.True(utils.IsKind(err, utils.ErrCycleDetected))
}

func TestDecodeProperty(t *testing.T) {
	assert := assert.New(t)

	value, err := decodeProperty(PT_INT64, le.AppendUint64(nil, 0xfffffffffffffffe))
	require.NoError(t, err)
	assert.Equal(int64(-2), value)

	value, err = decodeProperty(PT_SYSTIME, le.AppendUint64(nil, test_filetime))
	require.NoError(t, err)
	assert.Equal("2020-01-01T00:00:00Z", value)

	value, err = decodeProperty(PT_GUID, []byte{
		0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	require.NoError(t, err)
	assert.Equal("00112233-4455-6677-8899-aabbccddeeff", value)

	value, err = decodeProperty(PT_STRING8, []byte("caf\xe9\x00"))
	require.NoError(t, err)
	assert.Equal("café", value)

	value, err = decodeProperty(PT_BINARY, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal("AQID", value)

	_, err = decodeProperty(PT_INT64, []byte{1, 2})
	assert.True(utils.IsKind(err, utils.ErrIncomplete))

	assert.Equal(true, decodeInline(PT_BOOLEAN, 1))
	assert.Equal(int16(-1), decodeInline(PT_INT16, 0xffff))

	ints := le.AppendUint32(nil, 7)
	ints = le.AppendUint32(ints, 8)
	value, err = decodeProperty(PT_MULTIPLE|PT_INT32, ints)
	require.NoError(t, err)
	assert.Equal([]interface{}{int32(7), int32(8)}, value)

	// count, offsets, data
	strings := le.AppendUint32(nil, 2)
	strings = le.AppendUint32(strings, 12)
	strings = le.AppendUint32(strings, 16)
	strings = append(strings, utf16LE("ab")...)
	strings = append(strings, utf16LE("cde")...)
	value, err = decodeProperty(PT_MULTIPLE|PT_UNICODE, strings)
	require.NoError(t, err)
	assert.Equal([]interface{}{"ab", "cde"}, value)

	_, err = decodeProperty(PT_MULTIPLE|PT_UNICODE, le.AppendUint32(nil, 100))
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestOpen(t *testing.T) {
	assert := assert.New(t)

	reader, err := Open(bytes.NewReader(buildTestPST()))
	require.NoError(t, err)

	assert.Len(reader.Nodes, 6)
	assert.Len(reader.Blocks, 9)
	assert.Equal(NID_TYPE_NORMAL_FOLDER, reader.Nodes[inbox_nid].Type)
	assert.Equal(NID_TYPE_NORMAL_MESSAGE, reader.Nodes[message_nid].Type)
	assert.Equal(uint32(inbox_nid), reader.Nodes[message_nid].ParentNID)

	folders := reader.NodesOfType(NID_TYPE_NORMAL_FOLDER)
	require.Len(t, folders, 4)
	assert.Equal(uint32(NID_ROOT_FOLDER), folders[0].NID)

	// ANSI files are refused up front.
	file := buildTestPST()
	le.PutUint16(file[header_format_offset:], 14)
	_, err = Open(bytes.NewReader(file))
	assert.True(utils.IsKind(err, utils.ErrUnsupportedVariant))
}

func TestBTreeCycle(t *testing.T) {
	assert := assert.New(t)

	file := make([]byte, blocks_offset)
	copy(file, buildHeader(23, 0))

	// The root branch names itself as its only child.
	copy(file[nbt_root_offset:], buildPage(PAGE_TYPE_NBT, 1, branch_entry_size,
		[][]byte{branchEntry(0, nbt_root_offset)}))
	copy(file[bbt_root_offset:], buildPage(PAGE_TYPE_BBT, 0, bbt_entry_size, nil))

	reader, err := Open(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Len(reader.Nodes, 0)

	// A root of the wrong type is fatal.
	copy(file[nbt_root_offset:], buildPage(PAGE_TYPE_BBT, 0, bbt_entry_size, nil))
	_, err = Open(bytes.NewReader(file))
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestBlocks(t *testing.T) {
	assert := assert.New(t)

	reader, err := Open(bytes.NewReader(buildTestPST()))
	require.NoError(t, err)

	message := reader.Nodes[message_nid]
	subnodes, err := reader.Subnodes(message.SubnodeBID)
	require.NoError(t, err)
	require.Contains(t, subnodes, uint32(test_subnode_nid))

	xblock_bid := subnodes[test_subnode_nid].DataBID
	assert.True(IsInternalBID(xblock_bid))

	blocks, err := reader.ReadDataBlocks(xblock_bid)
	require.NoError(t, err)
	assert.Len(blocks, 2)

	data, err := reader.ReadData(xblock_bid)
	require.NoError(t, err)
	assert.Equal("Alice Smith", utils.ExtractUTF16String(data))

	_, err = reader.ReadBlock(0x999c)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	// A data block is not a subnode block.
	_, err = reader.Subnodes(reader.Nodes[inbox_nid].DataBID)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	// Second reads come from the cache.
	_, err = reader.ReadBlock(xblock_bid)
	require.NoError(t, err)
	hits, _ := reader.block_cache.Stats()
	assert.True(hits > 0)
}

func TestPropertyContext(t *testing.T) {
	assert := assert.New(t)

	reader, err := Open(bytes.NewReader(buildTestPST()))
	require.NoError(t, err)

	props, err := reader.PropertyContext(message_nid)
	require.NoError(t, err)

	value, pres := props.Get("PidTagSentRepresentingName")
	assert.True(pres)
	assert.Equal("Alice Smith", value)

	value, pres = props.Get("PidTagMessageSize")
	assert.True(pres)
	assert.Equal(int32(1234), value)

	value, _ = props.Get("PidTagMessageDeliveryTime")
	assert.Equal("2020-01-01T00:00:00Z", value)

	_, err = reader.PropertyContext(broken_nid)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	_, err = reader.PropertyContext(0x12345)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestFolderTree(t *testing.T) {
	assert := assert.New(t)

	reader, err := Open(bytes.NewReader(buildTestPST()))
	require.NoError(t, err)

	folders := reader.FolderTree()
	require.Len(t, folders, 4)

	by_nid := make(map[uint32]*Folder)
	for _, folder := range folders {
		by_nid[folder.NID] = folder
	}

	root := by_nid[NID_ROOT_FOLDER]
	assert.Equal("/", root.Path)
	assert.Equal(int64(1), root.SubfolderCount)

	inbox := by_nid[inbox_nid]
	assert.Equal("Inbox", inbox.Name)
	assert.Equal("/Inbox", inbox.Path)
	assert.Equal(int64(1), inbox.MessageCount)
	assert.Equal(int64(1), inbox.SubfolderCount)
	assert.Equal("2020-01-01T00:00:00Z", inbox.Created)

	archive := by_nid[archive_nid]
	assert.Equal(uint32(inbox_nid), archive.ParentNID)
	assert.Equal("/Inbox/Archive", archive.Path)

	assert.Equal("/$Orphan/Lost", by_nid[lost_nid].Path)
}

func TestFolderPathCycle(t *testing.T) {
	by_nid := map[uint32]*Folder{
		1: {NID: 1, ParentNID: 2, Name: "a"},
		2: {NID: 2, ParentNID: 1, Name: "b"},
	}
	assert.Equal(t, "/$Cycle/b/a", folderPath(by_nid[1], by_nid))
}

func TestMessages(t *testing.T) {
	assert := assert.New(t)

	reader, err := Open(bytes.NewReader(buildTestPST()))
	require.NoError(t, err)

	messages := []*Message{}
	reader.Messages(reader.FolderTree(), func(message *Message) {
		messages = append(messages, message)
	})

	// The broken message is skipped.
	require.Len(t, messages, 1)
	message := messages[0]

	assert.Equal(uint32(message_nid), message.NID)
	assert.Equal("/Inbox", message.Folder)
	assert.Equal("Quarterly report", message.Subject)
	assert.Equal("alice@example.com", message.From)
	assert.Equal("Bob", message.To)
	assert.Equal("2020-01-01T00:00:00Z", message.Delivered)
	assert.Equal("{\\rtf1 hi}", message.Body)

	_, pres := message.Properties.Get("PidTagRtfCompressed")
	assert.False(pres)
	value, _ := message.Properties.Get("PidTagSentRepresentingName")
	assert.Equal("Alice Smith", value)
}

func TestCleanSubject(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Hello", cleanSubject("\x01\x03Hello"))
	assert.Equal("Hello", cleanSubject("Hello"))
	assert.Equal("\x01", cleanSubject("\x01"))
}

// Every prefix of a file either fails to open with a typed error or
// yields a partial folder tree.
func TestTruncatedFile(t *testing.T) {
	file := buildTestPST()

	for i := 0; i < len(file); i++ {
		reader, err := Open(bytes.NewReader(file[:i]))
		if err != nil {
			assert.True(t, utils.IsKind(err, utils.ErrIncomplete) ||
				utils.IsKind(err, utils.ErrBadFormat) ||
				utils.IsKind(err, utils.ErrIO), "length %d: %v", i, err)
			continue
		}

		folders := reader.FolderTree()
		assert.LessOrEqual(t, len(folders), 4, "length %d", i)
		reader.Messages(folders, func(*Message) {})
	}
}
