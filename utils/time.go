package utils

import (
	"time"
)

// Seconds between 1601-01-01 and 1970-01-01
const FILETIME_EPOCH_DELTA = 11644473600

func FiletimeToUnix(ft uint64) int64 {
	return int64(ft/10000000) - FILETIME_EPOCH_DELTA
}

func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Unix(0, 0).UTC()
	}
	seconds := int64(ft/10000000) - FILETIME_EPOCH_DELTA
	nsec := int64(ft%10000000) * 100
	return time.Unix(seconds, nsec).UTC()
}

func UnixToISO(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func FiletimeToISO(ft uint64) string {
	return FiletimeToTime(ft).Format(time.RFC3339Nano)
}

// Mac absolute time counts seconds since 2001-01-01.
const COCOA_EPOCH_DELTA = 978307200

func CocoaToTime(sec float64) time.Time {
	whole := int64(sec)
	nsec := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole+COCOA_EPOCH_DELTA, nsec).UTC()
}
