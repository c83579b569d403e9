//go:build !windows

package artifacts

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type deviceSource struct {
	fd   int
	size int64
}

func openDevice(path string) (Source, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "%v: %v", path, err)
	}

	size, err := unix.Seek(fd, 0, io.SeekEnd)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "%v: %v", path, err)
	}

	return &deviceSource{fd: fd, size: size}, nil
}

func (self *deviceSource) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= self.size {
		return 0, io.EOF
	}
	n, err := unix.Pread(self.fd, buf, offset)
	if err != nil {
		return 0, errors.Wrapf(utils.ErrIO, "Device read at %d: %v", offset, err)
	}
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (self *deviceSource) Size() int64 {
	return self.size
}

func (self *deviceSource) Close() error {
	return unix.Close(self.fd)
}
