package utils

import (
	"github.com/pkg/errors"
)

// Error kinds shared by all decoders. Decoders wrap one of these with
// context so callers can test the kind with errors.Is().
var (
	ErrIncomplete         = errors.New("Incomplete")
	ErrBadFormat          = errors.New("Bad format")
	ErrCycleDetected      = errors.New("Cycle detected")
	ErrUnsupportedVariant = errors.New("Unsupported variant")
	ErrDecompress         = errors.New("Decompression failed")
	ErrSerialize          = errors.New("Serialization failed")
	ErrIO                 = errors.New("IO error")
	ErrDeviceOpen         = errors.New("Unable to open device")
)

func Incomplete(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIncomplete, format, args...)
}

func BadFormat(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadFormat, format, args...)
}

func CycleDetected(format string, args ...interface{}) error {
	STATS.Inc_CyclesDetected()
	return errors.Wrapf(ErrCycleDetected, format, args...)
}

func Unsupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupportedVariant, format, args...)
}

// IsKind returns true when err is (or wraps) the given kind.
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
