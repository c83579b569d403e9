package lnk

import (
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	// Windows truncates shortcut strings to MAX_PATH characters even
	// though the format allows 64k.
	max_string_size        = 260
	max_padded_string_size = 259
)

// ExtractString reads one of the counted StringData fields. Sizes
// beyond what Windows writes are clamped and reported as abnormal:
// oversized strings are a known way to hide arguments from tools.
func ExtractString(cursor *utils.Cursor, unicode bool) (
	value string, is_abnormal bool, err error) {

	size, err := cursor.U16LE()
	if err != nil {
		return "", false, err
	}

	max_size := uint16(max_string_size)
	if next := cursor.Remaining(); len(next) >= 2 && next[0] == 0 && next[1] == 0 {
		_ = cursor.Skip(2)
		max_size = max_padded_string_size
	}

	if unicode && size > max_size*2 {
		log.WithField("size", size).
			Warn("[shortcuts] Abnormal string size. LNK data may be malformed or malicious")
		size = max_size
		is_abnormal = true
	} else if !unicode && size > max_size {
		size = max_size
		is_abnormal = true
	}

	if unicode {
		data, err := cursor.Take(int(size) * 2)
		if err != nil {
			return "", is_abnormal, err
		}
		return utils.ExtractUTF16String(data), is_abnormal, nil
	}

	data, err := cursor.Take(int(size))
	if err != nil {
		return "", is_abnormal, err
	}
	return utils.ExtractUTF8String(data), is_abnormal, nil
}
