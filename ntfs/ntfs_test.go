package ntfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	test_record_size = 1024
	test_filetime    = uint64(132000000000000000)
)

func init() {
	spew.Config.DisablePointerAddresses = true
	spew.Config.SortKeys = true
}

func utf16le(s string) []byte {
	result := []byte{}
	for _, c := range utf16.Encode([]rune(s)) {
		result = binary.LittleEndian.AppendUint16(result, c)
	}
	return result
}

func align8(b []byte) []byte {
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

func residentAttr(attr_type AttributeType, id uint16, name string, content []byte) []byte {
	header := make([]byte, 24)
	binary.LittleEndian.PutUint32(header[0:], uint32(attr_type))
	binary.LittleEndian.PutUint16(header[14:], id)

	encoded_name := utf16le(name)
	header[9] = byte(len(name))
	binary.LittleEndian.PutUint16(header[10:], 24)

	content_offset := len(align8(append(append([]byte{}, header...), encoded_name...)))
	binary.LittleEndian.PutUint32(header[16:], uint32(len(content)))
	binary.LittleEndian.PutUint16(header[20:], uint16(content_offset))

	result := align8(append(header, encoded_name...))
	result = align8(append(result, content...))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(result)))
	return result
}

func nonResidentAttr(attr_type AttributeType, id uint16,
	start_vcn, end_vcn uint64, size int64, runlist []byte) []byte {
	result := make([]byte, 64)
	binary.LittleEndian.PutUint32(result[0:], uint32(attr_type))
	result[8] = 1
	binary.LittleEndian.PutUint16(result[14:], id)
	binary.LittleEndian.PutUint64(result[16:], start_vcn)
	binary.LittleEndian.PutUint64(result[24:], end_vcn)
	binary.LittleEndian.PutUint16(result[32:], 64)
	binary.LittleEndian.PutUint64(result[40:], uint64(size))
	binary.LittleEndian.PutUint64(result[48:], uint64(size))
	binary.LittleEndian.PutUint64(result[56:], uint64(size))

	result = align8(append(result, runlist...))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(result)))
	return result
}

func siContent(flags uint32) []byte {
	result := make([]byte, 72)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(result[i*8:], test_filetime)
	}
	binary.LittleEndian.PutUint32(result[32:], flags)
	binary.LittleEndian.PutUint64(result[64:], 0x1234)
	return result
}

func fnContent(parent uint64, parent_seq uint16, flags uint32,
	ns Namespace, name string) []byte {
	result := make([]byte, 66)
	binary.LittleEndian.PutUint64(result[0:], parent|uint64(parent_seq)<<48)
	for i := 1; i < 5; i++ {
		binary.LittleEndian.PutUint64(result[i*8:], test_filetime)
	}
	binary.LittleEndian.PutUint64(result[48:], 100)
	binary.LittleEndian.PutUint32(result[56:], flags)
	result[64] = byte(len(name))
	result[65] = byte(ns)
	return append(result, utf16le(name)...)
}

type testRecord struct {
	seq   uint16
	flags uint16
	base  uint64
	attrs [][]byte
}

func buildRecord(index uint32, rec testRecord) []byte {
	buf := make([]byte, test_record_size)
	copy(buf, "FILE")
	binary.LittleEndian.PutUint16(buf[4:], 48)
	binary.LittleEndian.PutUint16(buf[6:], 3)
	binary.LittleEndian.PutUint16(buf[16:], rec.seq)
	binary.LittleEndian.PutUint16(buf[18:], 1)
	binary.LittleEndian.PutUint16(buf[20:], 56)
	binary.LittleEndian.PutUint16(buf[22:], rec.flags)
	binary.LittleEndian.PutUint32(buf[28:], test_record_size)
	binary.LittleEndian.PutUint64(buf[32:], rec.base)
	binary.LittleEndian.PutUint32(buf[44:], index)

	offset := 56
	for _, attr := range rec.attrs {
		copy(buf[offset:], attr)
		offset += len(attr)
	}
	binary.LittleEndian.PutUint32(buf[offset:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(buf[24:], uint32(offset+8))

	// Update sequence array.
	binary.LittleEndian.PutUint16(buf[48:], 7)
	copy(buf[50:52], buf[510:512])
	copy(buf[52:54], buf[1022:1024])
	binary.LittleEndian.PutUint16(buf[510:], 7)
	binary.LittleEndian.PutUint16(buf[1022:], 7)

	return buf
}

func dirRecord(seq uint16, parent uint64, parent_seq uint16, name string) testRecord {
	return testRecord{
		seq:   seq,
		flags: MFT_FLAG_IN_USE | MFT_FLAG_DIRECTORY,
		attrs: [][]byte{
			residentAttr(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
				siContent(FILE_ATTRIBUTE_DIRECTORY)),
			residentAttr(ATTR_TYPE_FILE_NAME, 1, "",
				fnContent(parent, parent_seq, FILE_NAME_INDEX_PRESENT,
					NAMESPACE_WIN32, name)),
		},
	}
}

func fileRecord(seq uint16, parent uint64, parent_seq uint16,
	name string, data []byte) testRecord {
	return testRecord{
		seq:   seq,
		flags: MFT_FLAG_IN_USE,
		attrs: [][]byte{
			residentAttr(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
				siContent(FILE_ATTRIBUTE_ARCHIVE)),
			residentAttr(ATTR_TYPE_FILE_NAME, 1, "",
				fnContent(parent, parent_seq, FILE_ATTRIBUTE_ARCHIVE,
					NAMESPACE_WIN32, name)),
			residentAttr(ATTR_TYPE_DATA, 2, "", data),
		},
	}
}

const test_mft_entries = 16

// buildMFT lays out a small directory tree:
//
//	.\Users\bob\notes.txt (with a DOS name)
//	lost.txt whose parent slot was reused
//	loopA and loopB parenting each other, deep.txt inside loopA
func buildMFT(mft_data_attr []byte) []byte {
	records := make(map[uint32]testRecord)

	mft_attrs := [][]byte{
		residentAttr(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
			siContent(FILE_ATTRIBUTE_HIDDEN|FILE_ATTRIBUTE_SYSTEM)),
		residentAttr(ATTR_TYPE_FILE_NAME, 1, "",
			fnContent(ROOT_INDEX, ROOT_INDEX, 0, NAMESPACE_DOS_WIN32, "$MFT")),
	}
	if mft_data_attr != nil {
		mft_attrs = append(mft_attrs, mft_data_attr)
	}
	records[0] = testRecord{seq: 1, flags: MFT_FLAG_IN_USE, attrs: mft_attrs}

	records[5] = dirRecord(5, ROOT_INDEX, ROOT_INDEX, ".")
	records[6] = dirRecord(1, ROOT_INDEX, ROOT_INDEX, "Users")
	records[7] = dirRecord(1, 6, 1, "bob")

	notes := fileRecord(1, 7, 1, "notes.txt", []byte("hello world"))
	notes.attrs = append(notes.attrs, residentAttr(ATTR_TYPE_FILE_NAME, 3, "",
		fnContent(7, 1, FILE_ATTRIBUTE_ARCHIVE, NAMESPACE_DOS, "NOTES~1.TXT")))
	notes.attrs = append(notes.attrs, residentAttr(ATTR_TYPE_DATA, 4, "stream",
		[]byte("ads")))
	records[8] = notes

	records[9] = fileRecord(1, 10, 1, "lost.txt", []byte("lost"))
	records[10] = dirRecord(2, ROOT_INDEX, ROOT_INDEX, "reused")
	records[11] = dirRecord(1, 12, 1, "loopA")
	records[12] = dirRecord(1, 11, 1, "loopB")
	records[13] = fileRecord(1, 11, 1, "deep.txt", []byte("deep"))

	deleted := fileRecord(3, 6, 1, "gone.txt", []byte("gone"))
	deleted.flags = 0
	records[14] = deleted

	mft := make([]byte, test_mft_entries*test_record_size)
	for index, rec := range records {
		copy(mft[int(index)*test_record_size:], buildRecord(index, rec))
	}

	// A record with a broken update sequence.
	bad := buildRecord(15, fileRecord(1, 6, 1, "bad.txt", nil))
	bad[510] = 0
	copy(mft[15*test_record_size:], bad)

	return mft
}

func TestDecodeRunList(t *testing.T) {
	assert := assert.New(t)

	runs := DecodeRunList([]byte{
		0x21, 0x10, 0x00, 0x01,
		0x11, 0x08, 0xF0,
		0x01, 0x04,
		0x00, 0xFF})
	assert.Equal([]Run{
		{RelativeOffset: 256, Length: 16},
		{RelativeOffset: -16, Length: 8},
		{Length: 4, Sparse: true},
	}, runs)

	// Truncated pairs are dropped.
	assert.Equal(1, len(DecodeRunList([]byte{0x21, 0x10, 0x00, 0x01, 0x31, 0x01})))
	assert.Empty(DecodeRunList(nil))
}

func TestRunReader(t *testing.T) {
	assert := assert.New(t)

	disk := make([]byte, 512)
	for i := range disk {
		disk[i] = byte(i % 251)
	}

	runs := MakeReaderRuns([]Run{
		{RelativeOffset: 4, Length: 2},
		{Length: 1, Sparse: true},
		{RelativeOffset: -3, Length: 1},
	}, 0, bytes.NewReader(disk))

	reader := NewRunReader(runs, 16, 59)
	data, err := utils.ReadAtMost(reader, 0, 100)
	require.NoError(t, err)

	expected := append([]byte{}, disk[64:96]...)
	expected = append(expected, make([]byte, 16)...)
	expected = append(expected, disk[16:27]...)
	assert.Equal(expected, data)

	// Reads starting inside a run.
	buf := make([]byte, 8)
	n, err := reader.ReadAt(buf, 28)
	assert.NoError(err)
	assert.Equal(8, n)
	assert.Equal(append(append([]byte{}, disk[92:96]...), 0, 0, 0, 0), buf)

	_, err = reader.ReadAt(buf, 59)
	assert.Error(err)
}

func TestFixUp(t *testing.T) {
	assert := assert.New(t)

	rec := buildRecord(8, fileRecord(1, 5, 5, "a.txt", []byte("a")))
	assert.Equal([]byte{7, 0}, rec[510:512])

	require.NoError(t, FixUpMFTEntry(rec))
	assert.Equal([]byte{0, 0}, rec[510:512])

	rec = buildRecord(8, fileRecord(1, 5, 5, "a.txt", []byte("a")))
	rec[1023] = 9
	err := FixUpMFTEntry(rec)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestParseMFTEntry(t *testing.T) {
	assert := assert.New(t)

	mft := buildMFT(nil)

	entry, err := ParseMFTEntry(mft[8*test_record_size:9*test_record_size], 8)
	require.NoError(t, err)
	require.NotNil(t, entry, spew.Sdump(entry))

	assert.True(entry.InUse(), spew.Sdump(entry))
	assert.False(entry.IsDir())
	assert.Equal(uint16(1), entry.Sequence)
	assert.Equal(uint32(8), entry.RecordNumber)
	assert.Equal(int64(11), entry.Size())
	assert.Equal(2, len(entry.FileNames))
	assert.Equal("notes.txt", entry.FileNames[0].Name)
	assert.Equal("txt", entry.FileNames[0].Extension())
	assert.Equal(uint64(7), entry.FileNames[0].ParentIndex)
	assert.Equal(NAMESPACE_DOS, entry.FileNames[1].Namespace)
	assert.Equal(uint64(0x1234), entry.StandardInformation.USN)
	assert.Equal([]string{"$STANDARD_INFORMATION", "$FILE_NAME", "$DATA"},
		entry.AttributeNames())
	assert.NotNil(entry.FindAttribute(ATTR_TYPE_DATA, "stream"))

	// Free slots.
	entry, err = ParseMFTEntry(mft[1*test_record_size:2*test_record_size], 1)
	assert.NoError(err)
	assert.Nil(entry)

	_, err = ParseMFTEntry(mft[15*test_record_size:], 15)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	_, err = ParseMFTEntry([]byte("JUNKJUNK"), 3)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))
}

func TestResolvePaths(t *testing.T) {
	assert := assert.New(t)

	mft := buildMFT(nil)
	ntfs, err := NewMFTContext(bytes.NewReader(mft), int64(len(mft)),
		GetDefaultOptions())
	require.NoError(t, err)
	assert.Equal(uint64(test_mft_entries), ntfs.EntryCount())

	resolve := func(index uint64) (string, string) {
		entry, err := ntfs.GetEntry(index)
		require.NoError(t, err)
		require.NotNil(t, entry)
		return ntfs.ResolvePath(entry, entry.FileNames[0])
	}

	full_path, directory := resolve(5)
	assert.Equal(".", full_path)
	assert.Equal(".", directory)

	full_path, directory = resolve(6)
	assert.Equal(".\\Users", full_path)
	assert.Equal(".", directory)

	full_path, directory = resolve(8)
	assert.Equal(".\\Users\\bob\\notes.txt", full_path)
	assert.Equal(".\\Users\\bob", directory)

	utils.STATS.Reset()
	full_path, _ = resolve(9)
	assert.Equal("$Orphan\\lost.txt", full_path)
	assert.Equal(1, utils.STATS.UnresolvedPaths)

	full_path, _ = resolve(13)
	assert.Equal("$Cycle\\loopB\\loopA\\deep.txt", full_path)
	assert.Equal(1, utils.STATS.CyclesDetected)

	// Resolved directories are cached.
	cached, pres := ntfs.getCachedPath(pathKey(7, 1))
	assert.True(pres)
	assert.Equal(".\\Users\\bob", cached)
}

func TestMaxDirectoryDepth(t *testing.T) {
	assert := assert.New(t)

	mft := buildMFT(nil)
	options := GetDefaultOptions()
	options.MaxDirectoryDepth = 0

	ntfs, err := NewMFTContext(bytes.NewReader(mft), int64(len(mft)), options)
	require.NoError(t, err)

	entry, err := ntfs.GetEntry(8)
	require.NoError(t, err)

	full_path, _ := ntfs.ResolvePath(entry, entry.FileNames[0])
	assert.Equal("$Cycle\\bob\\notes.txt", full_path)
}

func collectRows(ntfs *MFTContext) map[string]*MFTRecord {
	result := make(map[string]*MFTRecord)
	for row := range ParseMFTFile(context.Background(), ntfs, 0) {
		result[row.Filename] = row
	}
	return result
}

func TestParseMFTFile(t *testing.T) {
	assert := assert.New(t)

	mft := buildMFT(nil)
	ntfs, err := NewMFTContext(bytes.NewReader(mft), int64(len(mft)),
		GetDefaultOptions())
	require.NoError(t, err)

	rows := collectRows(ntfs)
	assert.Equal(11, len(rows))

	notes := rows["notes.txt"]
	require.NotNil(t, notes)
	assert.Equal(uint64(8), notes.Index)
	assert.Equal(".\\Users\\bob\\notes.txt", notes.FullPath)
	assert.Equal(int64(11), notes.Size)
	assert.Equal("Win32", notes.Namespace)
	assert.Equal([]string{"Archive"}, notes.Attributes)
	assert.True(notes.IsFile)
	assert.False(notes.Deleted)
	assert.Equal(utils.FiletimeToISO(test_filetime), notes.Created)
	assert.Equal(notes.Created, notes.FNAccessed)

	// Short names are not reported by default.
	assert.Nil(rows["NOTES~1.TXT"])

	gone := rows["gone.txt"]
	require.NotNil(t, gone)
	assert.True(gone.Deleted)

	users := rows["Users"]
	require.NotNil(t, users)
	assert.True(users.IsDirectory)
	assert.Equal([]string{"Directory"}, users.Attributes)

	row := notes.ToDict()
	value, _ := row.Get("full_path")
	assert.Equal(".\\Users\\bob\\notes.txt", value)

	// Without path resolution only the names are reported.
	options := GetDefaultOptions()
	options.DisableFullPathResolution = true
	options.IncludeShortNames = true
	ntfs.SetOptions(options)
	ntfs.Purge()

	rows = collectRows(ntfs)
	assert.Equal("notes.txt", rows["notes.txt"].FullPath)
	assert.NotNil(rows["NOTES~1.TXT"])
}

// buildVolume places the $MFT at cluster 4 of a volume with 512 byte
// clusters.
func buildVolume() []byte {
	const cluster_size = 512
	const mft_cluster = 4
	const mft_clusters = test_mft_entries * test_record_size / cluster_size

	data_attr := nonResidentAttr(ATTR_TYPE_DATA, 2, 0, mft_clusters-1,
		test_mft_entries*test_record_size,
		[]byte{0x11, mft_clusters, mft_cluster, 0x00})

	volume := make([]byte, (mft_cluster+mft_clusters)*cluster_size)

	boot := volume[:512]
	copy(boot[3:], "NTFS    ")
	binary.LittleEndian.PutUint16(boot[0x0B:], 512)
	boot[0x0D] = 1
	binary.LittleEndian.PutUint64(boot[0x28:],
		uint64(len(volume)/512))
	binary.LittleEndian.PutUint64(boot[0x30:], mft_cluster)
	binary.LittleEndian.PutUint64(boot[0x38:], 2)
	boot[0x40] = 0xF6 // 1024 byte records
	boot[0x44] = 1
	binary.LittleEndian.PutUint64(boot[0x48:], 0x1122334455667788)
	binary.LittleEndian.PutUint16(boot[0x1FE:], 0xaa55)

	copy(volume[mft_cluster*cluster_size:], buildMFT(data_attr))
	return volume
}

func TestBootSector(t *testing.T) {
	assert := assert.New(t)

	volume := buildVolume()
	boot, err := ParseBootSector(volume[:512])
	require.NoError(t, err)
	assert.Equal(int64(512), boot.ClusterSize())
	assert.Equal(int64(1024), boot.RecordSize())
	assert.Equal(int64(2048), boot.MFTOffset())
	assert.Equal("NTFS    ", boot.OEMName)

	bad := append([]byte{}, volume[:512]...)
	bad[0x1FE] = 0
	_, err = ParseBootSector(bad)
	assert.True(utils.IsKind(err, utils.ErrBadFormat))

	bad = append([]byte{}, volume[:512]...)
	bad[0x0D] = 3
	_, err = ParseBootSector(bad)
	assert.Error(err)

	_, err = ParseBootSector(volume[:100])
	assert.True(utils.IsKind(err, utils.ErrIncomplete))
}

func TestGetNTFSContext(t *testing.T) {
	assert := assert.New(t)

	volume := buildVolume()
	ntfs, err := GetNTFSContext(bytes.NewReader(volume), 0, GetDefaultOptions())
	require.NoError(t, err)
	defer ntfs.Close()

	assert.Equal(int64(1024), ntfs.RecordSize)
	assert.Equal(uint64(test_mft_entries), ntfs.EntryCount())

	mft_entry, err := ntfs.GetEntry(0)
	require.NoError(t, err)
	assert.Equal(int64(test_mft_entries*test_record_size), mft_entry.Size())

	// The $MFT stream read back through its runs is the $MFT itself.
	data, err := ntfs.ReadAttribute(mft_entry.FindAttribute(ATTR_TYPE_DATA, ""))
	require.NoError(t, err)
	assert.Equal(volume[2048:2048+16*1024], data)

	rows := collectRows(ntfs)
	require.NotNil(t, rows["notes.txt"])
	assert.Equal(".\\Users\\bob\\notes.txt", rows["notes.txt"].FullPath)
	assert.Equal(".\\$MFT", rows["$MFT"].FullPath)

	stats := ntfs.Stats()
	cached, _ := stats.Get("CachedEntries")
	assert.NotEqual(0, cached)
}

func TestMaxAttributeSize(t *testing.T) {
	assert := assert.New(t)

	volume := buildVolume()
	options := GetDefaultOptions()
	options.MaxAttributeSize = 100

	ntfs, err := GetNTFSContext(bytes.NewReader(volume), 0, GetDefaultOptions())
	require.NoError(t, err)
	ntfs.SetOptions(options)

	mft_entry, err := ntfs.GetEntry(0)
	require.NoError(t, err)

	data, err := ntfs.ReadAttribute(mft_entry.FindAttribute(ATTR_TYPE_DATA, ""))
	require.NoError(t, err)
	assert.Equal(100, len(data))
}

// Fixups are applied in place so every prefix is parsed from a fresh
// copy.
func TestTruncatedMFTEntry(t *testing.T) {
	mft := buildMFT(nil)
	record := mft[8*test_record_size : 9*test_record_size]

	for i := 0; i < len(record); i++ {
		buf := append([]byte{}, record[:i]...)
		_, err := ParseMFTEntry(buf, 8)
		if err != nil {
			assert.True(t, utils.IsKind(err, utils.ErrIncomplete) ||
				utils.IsKind(err, utils.ErrBadFormat), "length %d: %v", i, err)
		}
	}
}
