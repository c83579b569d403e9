package output

import (
	"github.com/pkg/errors"
)

type Format string

const (
	FORMAT_JSON  Format = "json"
	FORMAT_JSONL Format = "jsonl"
)

type Compression string

const (
	COMPRESSION_NONE Compression = "none"
	COMPRESSION_GZIP Compression = "gzip"
	COMPRESSION_ZSTD Compression = "zstd"
)

// Large artifacts are flushed every this many rows.
const DefaultBatchSize = 10000

type Options struct {
	// Where output files go. Empty means the sink writer (usually
	// stdout).
	Directory string

	Format      Format
	Compression Compression

	BatchSize int

	// A gjson path. Rows are only kept when it selects a value that
	// is not false or null.
	Filter string
}

func GetDefaultOptions() Options {
	return Options{
		Format:      FORMAT_JSONL,
		Compression: COMPRESSION_NONE,
		BatchSize:   DefaultBatchSize,
	}
}

func (self Options) Validate() error {
	switch self.Format {
	case FORMAT_JSON, FORMAT_JSONL:
	default:
		return errors.Errorf("Unknown output format %q", self.Format)
	}

	switch self.Compression {
	case COMPRESSION_NONE, COMPRESSION_GZIP, COMPRESSION_ZSTD:
	default:
		return errors.Errorf("Unknown output compression %q", self.Compression)
	}

	if self.BatchSize < 0 {
		return errors.Errorf("Invalid batch size %d", self.BatchSize)
	}
	return nil
}

func (self Options) extension() string {
	ext := string(self.Format)
	switch self.Compression {
	case COMPRESSION_GZIP:
		ext += ".gz"
	case COMPRESSION_ZSTD:
		ext += ".zst"
	}
	return ext
}
