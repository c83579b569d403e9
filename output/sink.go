package output

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// A Sink receives serialized rows. With a Directory each batch goes
// to its own file, otherwise rows are streamed to Writer.
type Sink struct {
	mu sync.Mutex

	fs      afero.Fs
	writer  io.Writer
	options Options

	files   []string
	records int
	bytes   int64
}

func NewSink(fs afero.Fs, writer io.Writer, options Options) (*Sink, error) {
	err := options.Validate()
	if err != nil {
		return nil, err
	}
	if options.BatchSize == 0 {
		options.BatchSize = DefaultBatchSize
	}

	if options.Directory != "" {
		err = fs.MkdirAll(options.Directory, 0755)
		if err != nil {
			return nil, errors.Wrapf(utils.ErrIO, "Output directory %v: %v",
				options.Directory, err)
		}
	}

	return &Sink{
		fs:      fs,
		writer:  writer,
		options: options,
	}, nil
}

func (self *Sink) Options() Options {
	return self.options
}

// Files lists the output files written so far.
func (self *Sink) Files() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]string{}, self.files...)
}

// Stats returns the number of rows and uncompressed bytes written.
func (self *Sink) Stats() (records int, bytes int64) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.records, self.bytes
}

func (self *Sink) DebugString() string {
	records, bytes := self.Stats()
	return fmt.Sprintf("Sink: %d records, %d bytes in %d files",
		records, bytes, len(self.Files()))
}

// WriteBatch writes one batch of serialized rows for artifact.
func (self *Sink) WriteBatch(artifact string, rows [][]byte) error {
	if len(rows) == 0 {
		return nil
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	if self.options.Directory == "" {
		if self.writer == nil {
			return errors.Wrap(utils.ErrIO, "No output writer")
		}
		return self.encode(self.writer, rows)
	}

	filename := filepath.Join(self.options.Directory, fmt.Sprintf("%s_%s.%s",
		artifact, uuid.New().String(), self.options.extension()))

	fd, err := self.fs.Create(filename)
	if err != nil {
		return errors.Wrapf(utils.ErrIO, "Create %v: %v", filename, err)
	}
	defer fd.Close()

	err = self.compress(fd, rows)
	if err != nil {
		return err
	}

	log.WithField("file", filename).WithField("rows", len(rows)).
		Debug("[output] Wrote batch")
	self.files = append(self.files, filename)
	return nil
}

func (self *Sink) compress(fd io.Writer, rows [][]byte) error {
	switch self.options.Compression {
	case COMPRESSION_GZIP:
		writer := gzip.NewWriter(fd)
		err := self.encode(writer, rows)
		if err != nil {
			return err
		}
		return ioError(writer.Close())

	case COMPRESSION_ZSTD:
		writer, err := zstd.NewWriter(fd)
		if err != nil {
			return ioError(err)
		}
		err = self.encode(writer, rows)
		if err != nil {
			writer.Close()
			return err
		}
		return ioError(writer.Close())
	}

	return self.encode(fd, rows)
}

// encode writes the rows either as one JSON array or one row per line.
func (self *Sink) encode(writer io.Writer, rows [][]byte) error {
	out := bufio.NewWriter(writer)
	total := int64(0)
	write := func(data []byte) {
		n, _ := out.Write(data)
		total += int64(n)
	}

	switch self.options.Format {
	case FORMAT_JSON:
		write([]byte("[\n"))
		for idx, row := range rows {
			write(row)
			if idx < len(rows)-1 {
				write([]byte(",\n"))
			}
		}
		write([]byte("\n]\n"))

	default:
		for _, row := range rows {
			write(row)
			write([]byte("\n"))
		}
	}

	err := out.Flush()
	if err != nil {
		return ioError(err)
	}

	self.records += len(rows)
	self.bytes += total
	return nil
}

func ioError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(utils.ErrIO, err.Error())
}
