package compression

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"www.velocidex.com/golang/go-artifacts/utils"
)

var rtf_message = []byte{
	219, 0, 0, 0, 71, 1, 0, 0, 76, 90, 70, 117, 83, 82, 121, 25,
	97, 0, 10, 102, 98, 105, 100, 4, 0, 0, 99, 99, 192, 112, 103, 49,
	50, 53, 50, 0, 254, 3, 67, 240, 116, 101, 120, 116, 1, 247, 2, 164,
	3, 227, 2, 0, 4, 99, 104, 10, 192, 115, 101, 116, 48, 32, 239, 7,
	109, 2, 131, 0, 80, 17, 77, 50, 10, 128, 6, 180, 2, 128, 150, 125,
	10, 128, 8, 200, 59, 9, 98, 49, 57, 14, 192, 191, 9, 195, 22, 114,
	10, 50, 22, 113, 2, 128, 21, 98, 42, 9, 176, 115, 9, 240, 4, 144,
	97, 116, 5, 178, 14, 80, 3, 96, 115, 162, 111, 1, 128, 32, 69, 120,
	17, 193, 110, 24, 48, 93, 6, 82, 118, 4, 144, 23, 182, 2, 16, 114,
	0, 192, 116, 125, 8, 80, 110, 26, 49, 16, 32, 5, 192, 5, 160, 27,
	100, 100, 154, 32, 3, 82, 32, 16, 34, 23, 178, 92, 118, 8, 144, 228,
	119, 107, 11, 128, 100, 53, 29, 83, 4, 240, 7, 64, 13, 23, 112, 48,
	10, 113, 23, 242, 98, 107, 109, 107, 6, 115, 1, 144, 0, 32, 32, 66,
	77, 95, 66, 224, 69, 71, 73, 78, 125, 10, 252, 21, 81, 33, 96,}

var rtf_truncated = []byte{
	219, 0, 0, 0, 71, 1, 0, 0, 76, 90, 70, 117, 83, 82, 121, 25,
	97, 0, 10, 102, 98, 105, 100, 4, 0, 0, 99, 99, 192, 112, 103, 49,
	50, 53, 50, 0, 254, 3, 67, 240, 116, 101, 120, 116, 1, 247, 2, 164,
	3, 22,}

const rtf_expected = "{\\rtf1\\ansi\\fbidis\\ansicpg1252\\deff0\\deftab720\\fromtext" +
	"{\\fonttbl{\\f0\\fswiss\\fcharset0 Times New Roman;}{\\f1\\fswiss\\fcharset2\n\r" +
	"Symbol;}}\n\r{\\colortbl;\\red192\\green192\\blue192;}\n\r" +
	"{\\*\\generator Microsoft Exchange Server;}\n\r" +
	"{\\*\\formatConverter converted from text;}\n\r" +
	"\\viewkind5\\viewscale100\n\r{\\*\\bkmkstart BM_BEGIN}\\pard\\plain\\f0}\n\r"

func TestRTFHeader(t *testing.T) {
	assert := assert.New(t)

	header, err := ParseRTFHeader(rtf_message)
	assert.NoError(err)
	assert.Equal(uint32(219), header.CompressedSize)
	assert.Equal(uint32(327), header.RawSize)
	assert.Equal(uint32(RTF_COMPRESSED), header.Signature)

	_, err = ParseRTFHeader(rtf_message[:10])
	assert.True(errors.Is(err, utils.ErrIncomplete))
}

func TestDecompressRTF(t *testing.T) {
	assert := assert.New(t)

	result, err := DecompressRTF(rtf_message)
	assert.NoError(err)
	assert.Equal(327, len(result))
	assert.Equal(rtf_expected, string(result))
}

func TestDecompressRTFCorrupted(t *testing.T) {
	assert := assert.New(t)

	_, err := DecompressRTF(rtf_truncated)
	assert.True(errors.Is(err, ErrRTFCorrupted))
	assert.True(errors.Is(err, utils.ErrDecompress))
}

func TestDecompressRTFUncompressed(t *testing.T) {
	assert := assert.New(t)

	data := []byte{
		// Compressed size, raw size
		17, 0, 0, 0, 5, 0, 0, 0,
		// MELA
		0x4d, 0x45, 0x4c, 0x41,
		0, 0, 0, 0,
		'{', '\\', 'r', 't', 'f', 0, 0,
	}

	result, err := DecompressRTF(data)
	assert.NoError(err)
	assert.Equal("{\\rtf", string(result))
}

func TestDecompressRTFUnknownSignature(t *testing.T) {
	assert := assert.New(t)

	data := make([]byte, 20)
	data[8] = 0xff
	_, err := DecompressRTF(data)
	assert.True(errors.Is(err, utils.ErrBadFormat))
}
