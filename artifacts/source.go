package artifacts

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Source is a random access view of an artifact file, an image or a
// raw device.
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// Raw devices are read through a page cache of this many pages.
const (
	device_page_size  = 0x1000
	device_cache_size = 10000
)

// OpenSource picks a reader from the path: EWF images by extension,
// raw devices by their prefix and everything else is mapped into
// memory.
func OpenSource(path string) (Source, error) {
	switch {
	case isEWF(path):
		return openEWF(path)

	case isDevice(path):
		device, err := openDevice(path)
		if err != nil {
			return nil, err
		}
		return newPagedSource(device)
	}

	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrIO, "Open %v: %v", path, err)
	}
	return &mmapSource{reader}, nil
}

func isEWF(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".e01"
}

func isDevice(path string) bool {
	return strings.HasPrefix(path, `\\.\`) || strings.HasPrefix(path, "/dev/")
}

type mmapSource struct {
	*mmap.ReaderAt
}

func (self *mmapSource) Size() int64 {
	return int64(self.Len())
}

// Devices only allow sector aligned reads, the paged reader takes
// care of that.
type pagedSource struct {
	*utils.PagedReader
	device Source
}

func newPagedSource(device Source) (Source, error) {
	reader, err := utils.NewPagedReader(device, device_page_size, device_cache_size)
	if err != nil {
		device.Close()
		return nil, err
	}
	return &pagedSource{PagedReader: reader, device: device}, nil
}

func (self *pagedSource) Size() int64 {
	return self.device.Size()
}

func (self *pagedSource) Close() error {
	return self.device.Close()
}

// aferoSource serves files from a non OS filesystem.
type aferoSource struct {
	afero.File
	size int64
}

func (self *aferoSource) Size() int64 {
	return self.size
}

// openSource opens path on fs. The OS filesystem goes through
// OpenSource so images and devices work.
func openSource(fs afero.Fs, path string) (Source, error) {
	if fs == nil {
		return OpenSource(path)
	}
	if _, ok := fs.(*afero.OsFs); ok {
		return OpenSource(path)
	}

	fd, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrIO, "Open %v: %v", path, err)
	}

	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, errors.Wrapf(utils.ErrIO, "Stat %v: %v", path, err)
	}
	return &aferoSource{File: fd, size: stat.Size()}, nil
}

// readSource reads a whole (small) artifact file.
func readSource(fs afero.Fs, path string) ([]byte, error) {
	source, err := openSource(fs, path)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	if source.Size() == 0 {
		return nil, nil
	}
	return utils.ReadAtMost(source, 0, source.Size())
}
