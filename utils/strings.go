package utils

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/apex/log"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// Strings larger than this are never base64 encoded into the output.
const MAX_ENCODED_STRING = 2097152

var utf16_decoder = xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)

// ExtractUTF16String decodes a little endian UTF16 string terminated
// by a double NUL or the end of the buffer. Malformed data is first
// retried with a shifted alignment and finally base64 encoded so the
// caller always gets something displayable.
func ExtractUTF16String(data []byte) string {
	result, err := bytesToUTF16String(data, false)
	if err == nil {
		return result
	}

	result, err = bytesToUTF16String(data, true)
	if err == nil {
		return result
	}

	log.WithError(err).Debug("[strings] Failed to get UTF16 string")
	return Base64Encode(data)
}

func collectUTF16(data []byte, adjust bool) []uint16 {
	units := make([]uint16, 0, len(data)/2+1)
	for i := 0; i < len(data); i += 2 {
		if i+1 >= len(data) {
			if data[i] != 0 {
				units = append(units, uint16(data[i]))
			}
			break
		}

		a, b := data[i], data[i+1]
		if a == 0 && b == 0 {
			break
		}

		// Some writers emit single byte characters into a wide
		// buffer. In that mode each byte is its own code unit.
		if adjust && a != 0 && b != 0 {
			units = append(units, uint16(a), uint16(b))
			continue
		}

		if adjust && a == 0 {
			units = append(units, uint16(b))
			continue
		}

		units = append(units, uint16(a)|uint16(b)<<8)
	}
	return units
}

func validUTF16(units []uint16) error {
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] >= 0xE000 {
				return BadFormat("unpaired high surrogate %#x at %d", u, i)
			}
			i++
		case u >= 0xDC00 && u < 0xE000:
			return BadFormat("unpaired low surrogate %#x at %d", u, i)
		}
	}
	return nil
}

func bytesToUTF16String(data []byte, adjust bool) (string, error) {
	units := collectUTF16(data, adjust)
	err := validUTF16(units)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 0, len(units)*2)
	for _, u := range units {
		raw = append(raw, byte(u), byte(u>>8))
	}

	decoded, err := utf16_decoder.NewDecoder().Bytes(raw)
	if err != nil {
		return "", BadFormat("utf16: %v", err)
	}
	return string(decoded), nil
}

func bytesToUTF8String(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", BadFormat("invalid utf8")
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

func encodingIssue(data []byte) string {
	if len(data) < MAX_ENCODED_STRING {
		return Base64Encode(data)
	}
	return fmt.Sprintf("[strings] Binary data size larger than 2MB, size: %d",
		len(data))
}

// ExtractUTF8String never fails: invalid UTF8 is preserved as base64
// behind a marker prefix.
func ExtractUTF8String(data []byte) string {
	result, err := bytesToUTF8String(data)
	if err == nil {
		return result
	}
	log.WithError(err).Debug("[strings] Failed to get UTF8 string")
	return "[strings] Failed to get UTF8 string: " + encodingIssue(data)
}

func ExtractUTF8StringLossy(data []byte) string {
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// ExtractASCIIUTF16String guesses the encoding from the number of NUL
// bytes in the buffer.
func ExtractASCIIUTF16String(data []byte) string {
	nuls := 0
	for _, c := range data {
		if c == 0 {
			nuls++
		}
	}

	if nuls > 1 {
		return ExtractUTF16String(data)
	}

	result, err := bytesToUTF8String(data)
	if err == nil {
		return result
	}

	result, err = bytesToUTF16String(data, true)
	if err == nil {
		if !isPrintable(result) {
			return ExtractUTF16String(data)
		}
		return result
	}

	result, err = bytesToUTF16String(data, false)
	if err == nil {
		return result
	}
	return ExtractUTF16String(data)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// ExtractMultilineUTF16String splits a buffer of NUL separated UTF16
// strings and joins them with newlines.
func ExtractMultilineUTF16String(data []byte) string {
	result := []string{}
	current := []uint16{}

	flush := func() {
		if len(current) == 0 {
			return
		}
		err := validUTF16(current)
		if err != nil {
			result = append(result,
				"Failed to get UTF16 multi-line string: "+encodingIssue(data))
		} else {
			result = append(result, string(utf16.Decode(current)))
		}
		current = current[:0]
	}

	for i := 0; i+1 < len(data); i += 2 {
		u := uint16(data[i]) | uint16(data[i+1])<<8
		if u == 0 {
			flush()
			continue
		}
		current = append(current, u)
	}
	flush()

	return strings.TrimSpace(strings.Join(result, "\n"))
}

// ExtractANSIString decodes a Windows-1252 string up to the first NUL.
func ExtractANSIString(data []byte) string {
	for i, c := range data {
		if c == 0 {
			data = data[:i]
			break
		}
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return ExtractUTF8String(data)
	}
	return string(decoded)
}

// FormatGUIDLE renders a 16 byte mixed endian GUID.
func FormatGUIDLE(data []byte) string {
	if len(data) < 16 {
		return Base64Encode(data)
	}
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(data[0])|uint32(data[1])<<8|uint32(data[2])<<16|uint32(data[3])<<24,
		uint16(data[4])|uint16(data[5])<<8,
		uint16(data[6])|uint16(data[7])<<8,
		data[8], data[9], data[10], data[11], data[12], data[13],
		data[14], data[15])
}
