package artifacts

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/utils"
)

var le = binary.LittleEndian

func testSink(t *testing.T) (*output.Sink, *bytes.Buffer) {
	out := &bytes.Buffer{}
	sink, err := output.NewSink(afero.NewMemMapFs(), out, output.GetDefaultOptions())
	require.NoError(t, err)
	return sink, out
}

func lines(out *bytes.Buffer) []string {
	text := strings.TrimSpace(out.String())
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestOpenSource(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "image.raw")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	source, err := OpenSource(path)
	require.NoError(t, err)
	defer source.Close()

	assert.Equal(int64(11), source.Size())
	data, err := utils.ReadExact(source, 6, 5)
	assert.NoError(err)
	assert.Equal("world", string(data))

	_, err = OpenSource(filepath.Join(t.TempDir(), "missing"))
	assert.True(utils.IsKind(err, utils.ErrIO))

	assert.True(isEWF("evidence/disk.E01"))
	assert.False(isEWF("evidence/disk.raw"))
	assert.True(isDevice(`\\.\C:`))
	assert.True(isDevice("/dev/sda1"))
	assert.False(isDevice("/tmp/dev/sda1"))
}

func TestOpenSourceAfero(t *testing.T) {
	assert := assert.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/file.bin", []byte{1, 2, 3, 4}, 0644))

	data, err := readSource(fs, "/data/file.bin")
	assert.NoError(err)
	assert.Equal([]byte{1, 2, 3, 4}, data)

	_, err = readSource(fs, "/data/missing.bin")
	assert.True(utils.IsKind(err, utils.ErrIO))
}

func TestParseShortcuts(t *testing.T) {
	assert := assert.New(t)
	utils.STATS.Reset()

	fixture, err := os.ReadFile("../lnk/fixtures/projects.lnk")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lnk/projects.lnk", fixture, 0644))
	require.NoError(t, afero.WriteFile(fs, "/lnk/broken.lnk", []byte("junk"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/lnk/notes.txt", []byte("text"), 0644))

	sink, out := testSink(t)
	err = ParseShortcuts(ShortcutOptions{Fs: fs, Paths: []string{"/lnk"}}, sink, false)
	require.NoError(t, err)

	rows := lines(out)
	require.Equal(t, 1, len(rows))
	assert.Contains(rows[0], `"source_path":"/lnk/projects.lnk"`)
	assert.True(utils.STATS.RecordsSkipped >= 1)

	err = ParseShortcuts(ShortcutOptions{Fs: fs, Paths: []string{"/missing"}}, sink, false)
	assert.True(utils.IsKind(err, utils.ErrIO))
}

func TestParsePrefetchSkipsBadFiles(t *testing.T) {
	assert := assert.New(t)

	fs := afero.NewMemMapFs()
	for _, name := range []string{"A.EXE-11111111.pf", "B.EXE-22222222.pf"} {
		require.NoError(t, afero.WriteFile(fs, "/prefetch/"+name, []byte("MAM\x04junk"), 0644))
	}

	options := GetDefaultPrefetchOptions()
	options.Fs = fs
	options.Path = "/prefetch"

	sink, out := testSink(t)
	assert.NoError(ParsePrefetch(options, sink, false))
	assert.Empty(lines(out))

	options.Path = "/nothing"
	assert.Error(ParsePrefetch(options, sink, false))
}

func TestWholeArtifactFailures(t *testing.T) {
	assert := assert.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/junk", make([]byte, 0x2000), 0644))
	sink, out := testSink(t)

	assert.Error(ParseWMI(WMIOptions{Fs: fs, Directory: "/wbem"}, sink, false))
	assert.Error(ParseOutlook(OutlookOptions{Fs: fs, Path: "/junk"}, sink, false))
	assert.Error(ParseESE(ESEOptions{Fs: fs, Path: "/junk"}, sink, false))
	assert.Error(ParseRegistry(RegistryOptions{Fs: fs, Paths: []string{"/junk"}}, sink, false))
	assert.Error(ParseUsers(UsersOptions{Fs: fs, Path: "/missing"}, sink, false))
	assert.Error(ParseSpotlight(SpotlightOptions{Fs: fs, Directory: "/store"}, sink, false))
	assert.Empty(lines(out))
}

// A store with one page holding one record.
func writeSpotlightStore(t *testing.T, fs afero.Fs, directory string) {
	name := append([]byte("_kMDItemFileName"), 0)
	props := append([]byte{0, 0, 0, 0, 0, 0x0b, 0}, name...)
	offsets := le.AppendUint32(le.AppendUint32(nil, 0), 4)

	record := []byte{0x0a, 0, 1, 2, 0, 1, 4, 'a', '.', 'b', 0}
	records := le.AppendUint32(nil, uint32(len(record)))
	records = append(records, record...)

	// An LZ4 block of literals only.
	compressed := append([]byte{0xf0, byte(len(records) - 15)}, records...)

	body := le.AppendUint32(nil, 0x31347662)
	body = le.AppendUint32(body, uint32(len(records)))
	body = le.AppendUint32(body, uint32(len(compressed)))
	body = append(body, compressed...)
	body = le.AppendUint32(body, 0x24347662)

	store := make([]byte, 0x3000)
	le.PutUint32(store[0:], 0x64737438)
	le.PutUint32(store[0x24:], 0x1000)
	le.PutUint32(store[0x28:], 16)
	le.PutUint32(store[0x1000:], 2)

	page := store[0x2000:]
	le.PutUint32(page[4:], 0x1000)
	le.PutUint32(page[12:], 0x1009)
	le.PutUint32(page[16:], uint32(20+len(records)))
	copy(page[20:], body)

	for name, data := range map[string][]byte{
		"dbStr-1.map.data":    props,
		"dbStr-1.map.offsets": offsets,
		"store.db":            store,
	} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(directory, name), data, 0644))
	}
}

func TestParseSpotlight(t *testing.T) {
	assert := assert.New(t)

	fs := afero.NewMemMapFs()
	writeSpotlightStore(t, fs, "/store")

	sink, out := testSink(t)
	require.NoError(t, ParseSpotlight(SpotlightOptions{Fs: fs, Directory: "/store"},
		sink, false))

	rows := lines(out)
	require.Equal(t, 1, len(rows))
	assert.Contains(rows[0], `"inode":10`)
	assert.Contains(rows[0], `"path":"/a.b"`)
	assert.Contains(rows[0], `"_kMDItemFileName":"a.b"`)
}

func usnRecord(index uint64, usn uint64, name string) []byte {
	record := make([]byte, 60)
	le.PutUint16(record[4:], 2)
	le.PutUint64(record[8:], index|1<<48)
	le.PutUint64(record[16:], 5|5<<48)
	le.PutUint64(record[24:], usn)
	le.PutUint32(record[40:], 0x100)
	le.PutUint16(record[56:], uint16(2*len(name)))
	le.PutUint16(record[58:], 60)
	for _, c := range name {
		record = le.AppendUint16(record, uint16(c))
	}
	for len(record)%8 != 0 {
		record = append(record, 0)
	}
	le.PutUint32(record[0:], uint32(len(record)))
	return record
}

func TestParseUsnJrnl(t *testing.T) {
	assert := assert.New(t)

	journal := make([]byte, 64)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		journal = append(journal, usnRecord(uint64(30+i), uint64(len(journal)), name)...)
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/J", journal, 0644))

	options := GetDefaultUsnJrnlOptions()
	options.Fs = fs
	options.Path = "/J"
	options.FromVolume = false

	sink, out := testSink(t)
	assert.Equal(output.DefaultBatchSize, sink.Options().BatchSize)
	require.NoError(t, ParseUsnJrnl(context.Background(), options, sink, false))

	rows := lines(out)
	require.Equal(t, 3, len(rows))
	assert.Contains(rows[0], `"filename":"a.txt"`)
	assert.Contains(rows[0], `"update_reason":["FileCreate"]`)
	assert.Contains(rows[0], `"offset":64`)
	assert.Contains(rows[2], `"mft_entry":32`)

	// Rows are written in batches.
	out_options := output.GetDefaultOptions()
	out_options.Directory = "/out"
	out_options.BatchSize = 2
	batched, err := output.NewSink(fs, nil, out_options)
	require.NoError(t, err)

	require.NoError(t, ParseUsnJrnl(context.Background(), options, batched, false))
	assert.Equal(2, len(batched.Files()))

	options.StartOffset = 65
	sink, out = testSink(t)
	require.NoError(t, ParseUsnJrnl(context.Background(), options, sink, false))
	assert.Equal(2, len(lines(out)))

	// A volume without a journal.
	options = GetDefaultUsnJrnlOptions()
	options.Fs = fs
	options.Path = "/J"
	assert.Error(ParseUsnJrnl(context.Background(), options, sink, false))

	options.Path = "/missing"
	options.FromVolume = false
	assert.True(utils.IsKind(
		ParseUsnJrnl(context.Background(), options, sink, false), utils.ErrIO))
}
