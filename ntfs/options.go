package ntfs

const (
	DefaultMaxLinks = 0

	// Attributes larger than this are never read into memory.
	DefaultMaxAttributeSize = 2 * 1024 * 1024 * 1024
)

type Options struct {
	// Include short (DOS) names as separate rows.
	IncludeShortNames bool

	// Max number of FILE_NAME attributes to report per entry.
	MaxLinks int

	// Maximum directory depth to analyze for paths.
	MaxDirectoryDepth int

	// Skip full path resolution. Rows then only carry their own
	// name. Useful for a quick listing of a damaged $MFT.
	DisableFullPathResolution bool

	MaxAttributeSize int64
}

func GetDefaultOptions() Options {
	return Options{
		IncludeShortNames: false,
		MaxLinks:          20,
		MaxDirectoryDepth: 64,
		MaxAttributeSize:  DefaultMaxAttributeSize,
	}
}
