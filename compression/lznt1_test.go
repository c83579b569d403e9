package compression

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestLZNT1(t *testing.T) {
	assert := assert.New(t)

	// Three literals followed by a back reference of length 6 at
	// distance 3.
	result, err := DecompressLZNT1([]byte{
		0x05, 0xB0, 0x08, 'a', 'b', 'c', 0x03, 0x20, 0, 0})
	assert.NoError(err)
	assert.Equal("abcabcabc", string(result))

	// Uncompressed chunk is copied as is.
	result, err = DecompressLZNT1([]byte{0x04, 0x30, 'h', 'e', 'l', 'l', 'o'})
	assert.NoError(err)
	assert.Equal("hello", string(result))
}

func TestLZNT1Bounds(t *testing.T) {
	assert := assert.New(t)

	// Chunk claims more data than we have.
	_, err := DecompressLZNT1([]byte{0x10, 0xB0, 0x00, 'a'})
	assert.True(errors.Is(err, ErrLZNT1BlockTooSmall))

	// Reference before the start of output.
	_, err = DecompressLZNT1([]byte{0x03, 0xB0, 0x02, 'a', 0x03, 0x20})
	assert.True(errors.Is(err, ErrLZNT1ShiftTooLarge))
}
