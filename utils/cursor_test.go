package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor(t *testing.T) {
	assert := assert.New(t)

	c := NewCursor([]byte{1, 0, 2, 0, 0, 0, 0, 0, 0, 1, 0xff})
	v16, err := c.U16LE()
	assert.NoError(err)
	assert.Equal(uint16(1), v16)

	v32, err := c.U32LE()
	assert.NoError(err)
	assert.Equal(uint32(2), v32)

	be, err := c.U32BE()
	assert.NoError(err)
	assert.Equal(uint32(1), be)

	// Only one byte left, a wide read must fail without moving.
	_, err = c.U16LE()
	assert.True(IsKind(err, ErrIncomplete))
	assert.Equal(10, c.Offset())

	b, err := c.U8()
	assert.NoError(err)
	assert.Equal(uint8(0xff), b)
	assert.True(c.Empty())

	_, err = c.Take(-1)
	assert.Error(err)
}

func TestSliceBounds(t *testing.T) {
	assert := assert.New(t)

	buf := []byte{1, 2, 3, 4}
	_, err := Slice(buf, 2, 3)
	assert.True(IsKind(err, ErrIncomplete))

	_, err = Slice(buf, -1, 1)
	assert.Error(err)

	// Overflowing lengths are rejected rather than wrapping.
	_, err = Slice(buf, 1, 1<<62)
	assert.Error(err)

	res, err := Slice(buf, 1, 2)
	assert.NoError(err)
	assert.Equal([]byte{2, 3}, res)

	_, err = GetU64LE(buf, 0)
	assert.Error(err)
}
