package output

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/go-artifacts/utils"
)

func testRow(idx int, deleted bool) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("index", idx).
		Set("deleted", deleted)
}

func readFile(t *testing.T, fs afero.Fs, filename string) string {
	data, err := afero.ReadFile(fs, filename)
	require.NoError(t, err)

	var reader io.Reader = bytes.NewReader(data)
	switch {
	case strings.HasSuffix(filename, ".gz"):
		gz, err := gzip.NewReader(reader)
		require.NoError(t, err)
		reader = gz

	case strings.HasSuffix(filename, ".zst"):
		zr, err := zstd.NewReader(reader)
		require.NoError(t, err)
		defer zr.Close()
		reader = zr
	}

	result, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(result)
}

func TestOptions(t *testing.T) {
	assert := assert.New(t)

	options := GetDefaultOptions()
	assert.NoError(options.Validate())
	assert.Equal(DefaultBatchSize, options.BatchSize)
	assert.Equal("jsonl", options.extension())

	options.Compression = COMPRESSION_ZSTD
	assert.Equal("jsonl.zst", options.extension())

	options.Format = "xml"
	assert.Error(options.Validate())

	_, err := NewSink(afero.NewMemMapFs(), nil, options)
	assert.Error(err)
}

func TestBatcherFlushes(t *testing.T) {
	assert := assert.New(t)
	utils.STATS.Reset()

	fs := afero.NewMemMapFs()
	options := GetDefaultOptions()
	options.Directory = "/out"
	options.BatchSize = 2

	sink, err := NewSink(fs, nil, options)
	require.NoError(t, err)

	batcher := sink.NewBatcher("mft", false)
	for i := 0; i < 5; i++ {
		assert.NoError(batcher.Add(testRow(i, i%2 == 0)))
	}
	assert.Equal(2, len(sink.Files()))
	assert.NoError(batcher.Close())

	files := sink.Files()
	require.Equal(t, 3, len(files))
	assert.Equal(3, utils.STATS.BatchesFlushed)
	for _, filename := range files {
		assert.True(strings.HasPrefix(filename, "/out/mft_"), filename)
		assert.True(strings.HasSuffix(filename, ".jsonl"), filename)
	}

	assert.Equal("{\"index\":0,\"deleted\":true}\n{\"index\":1,\"deleted\":false}\n",
		readFile(t, fs, files[0]))
	assert.Equal("{\"index\":4,\"deleted\":true}\n", readFile(t, fs, files[2]))

	records, size := sink.Stats()
	assert.Equal(5, records)
	assert.True(size > 0)

	// Closing again does not write an empty file.
	assert.NoError(batcher.Close())
	assert.Equal(3, len(sink.Files()))
}

func TestFilter(t *testing.T) {
	assert := assert.New(t)

	assert.True(Matches([]byte(`{"a":1}`), ""))
	assert.True(Matches([]byte(`{"a":1}`), "a"))
	assert.False(Matches([]byte(`{"a":1}`), "b"))
	assert.False(Matches([]byte(`{"a":false}`), "a"))
	assert.False(Matches([]byte(`{"a":null}`), "a"))
	assert.True(Matches([]byte(`{"a":{"b":"x"}}`), `a.b`))

	var out bytes.Buffer
	options := GetDefaultOptions()
	options.Filter = "deleted"
	sink, err := NewSink(afero.NewMemMapFs(), &out, options)
	require.NoError(t, err)

	// Filtering is only applied when asked for.
	unfiltered := sink.NewBatcher("mft", false)
	filtered := sink.NewBatcher("mft", true)
	for i := 0; i < 4; i++ {
		assert.NoError(unfiltered.Add(testRow(i, i == 1)))
		assert.NoError(filtered.Add(testRow(i, i == 1)))
	}
	assert.NoError(unfiltered.Close())
	assert.Equal(4, strings.Count(out.String(), "\n"))

	out.Reset()
	assert.NoError(filtered.Close())
	assert.Equal("{\"index\":1,\"deleted\":true}\n", out.String())
}

func TestCompressedJSON(t *testing.T) {
	for _, compression := range []Compression{
		COMPRESSION_NONE, COMPRESSION_GZIP, COMPRESSION_ZSTD} {
		fs := afero.NewMemMapFs()
		options := GetDefaultOptions()
		options.Directory = "/out"
		options.Format = FORMAT_JSON
		options.Compression = compression

		sink, err := NewSink(fs, nil, options)
		require.NoError(t, err)

		batcher := sink.NewBatcher("prefetch", false)
		require.NoError(t, batcher.Add(testRow(1, false)))
		require.NoError(t, batcher.Add(testRow(2, true)))
		require.NoError(t, batcher.Close())

		files := sink.Files()
		require.Equal(t, 1, len(files))
		assert.Equal(t, "[\n{\"index\":1,\"deleted\":false},\n{\"index\":2,\"deleted\":true}\n]\n",
			readFile(t, fs, files[0]), string(compression))
	}
}
