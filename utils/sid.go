package utils

import (
	"bytes"
	"fmt"
	"strings"
)

var sid_prefix = []byte{1, 5, 0, 0, 0, 0, 0}

// ParseSID renders a binary security identifier. The SID may be
// embedded in a larger structure, in which case the NT authority
// prefix is located first.
func ParseSID(data []byte) (string, error) {
	idx := bytes.Index(data, sid_prefix)
	if idx > 0 {
		data = data[idx:]
	}

	cursor := NewCursor(data)
	revision, err := cursor.U8()
	if err != nil {
		return "", err
	}

	count, err := cursor.U8()
	if err != nil {
		return "", err
	}

	authority_bytes, err := cursor.Take(6)
	if err != nil {
		return "", err
	}

	var authority uint64
	for _, b := range authority_bytes {
		authority = authority<<8 | uint64(b)
	}

	parts := []string{fmt.Sprintf("S-%d-%d", revision, authority)}
	for i := 0; i < int(count); i++ {
		sub, err := cursor.U32LE()
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%d", sub))
	}

	return strings.Join(parts, "-"), nil
}
