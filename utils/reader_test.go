package utils

import (
	"bytes"
	"io"
	"runtime"
	"testing"

	"github.com/alecthomas/assert"
)

func TestPagedReader(t *testing.T) {
	r, err := NewPagedReader(
		bytes.NewReader([]byte("abcd")),
		3 /* pagesize */, 100 /* cache_size */)
	assert.NoError(t, err)

	// Read 1 byte from the end of the buffer.
	buf := make([]byte, 1)
	c, err := r.ReadAt(buf, 3)
	assert.NoError(t, err)
	assert.Equal(t, c, 1)
	assert.Equal(t, buf, []byte{0x64})

	// Read past end (3 byte buffer from offset 3).
	buf = make([]byte, 3)
	c, err = r.ReadAt(buf, 3)
	assert.NoError(t, err)
	assert.Equal(t, c, 3)
	assert.Equal(t, buf, []byte{0x64, 0x00, 0x00})

	// Spanning two pages.
	buf = make([]byte, 4)
	c, err = r.ReadAt(buf, 0)
	assert.NoError(t, err)
	assert.Equal(t, c, 4)
	assert.Equal(t, buf, []byte("abcd"))

	// Entirely outside the file.
	c, err = r.ReadAt(buf, 30)
	assert.Equal(t, c, 0)
	assert.Equal(t, err, io.EOF)
}

func TestOffsetReader(t *testing.T) {
	r := &OffsetReader{Offset: 2, Reader: bytes.NewReader([]byte("abcdef"))}
	data, err := ReadExact(r, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, data, []byte("de"))

	_, err = ReadExact(r, 3, 10)
	assert.True(t, IsKind(err, ErrIncomplete))
}

// Bytes allocated while fn runs.
func allocatedBy(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestReadAtMostLargeLength(t *testing.T) {
	reader := bytes.NewReader([]byte("abcd"))

	var data []byte
	var err error
	allocated := allocatedBy(func() {
		data, err = ReadAtMost(reader, 1, 1<<32)
	})
	assert.NoError(t, err)
	assert.Equal(t, data, []byte("bcd"))
	assert.True(t, allocated < 4*1024*1024)

	_, err = ReadExact(reader, 0, 1<<32)
	assert.True(t, IsKind(err, ErrIncomplete))

	// Reads longer than one step are stitched together.
	source := bytes.Repeat([]byte("0123456789abcdef"), read_step_size/8)
	data, err = ReadExact(bytes.NewReader(source), 3, int64(len(source)-3))
	assert.NoError(t, err)
	assert.Equal(t, data, source[3:])

	_, err = ReadAtMost(reader, 10, 5)
	assert.True(t, IsKind(err, ErrIncomplete))
}
