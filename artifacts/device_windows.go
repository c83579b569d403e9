//go:build windows

package artifacts

import (
	"io"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const IOCTL_DISK_GET_LENGTH_INFO = 0x7405C

type deviceSource struct {
	handle windows.Handle
	size   int64
}

func openDevice(path string) (Source, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "%v: %v", path, err)
	}

	handle, err := windows.CreateFile(name, windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "%v: %v", path, err)
	}

	var size int64
	var returned uint32
	err = windows.DeviceIoControl(handle, IOCTL_DISK_GET_LENGTH_INFO,
		nil, 0, (*byte)(unsafe.Pointer(&size)), uint32(unsafe.Sizeof(size)),
		&returned, nil)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "%v: %v", path, err)
	}

	return &deviceSource{handle: handle, size: size}, nil
}

func (self *deviceSource) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= self.size {
		return 0, io.EOF
	}

	overlapped := &windows.Overlapped{
		Offset:     uint32(offset),
		OffsetHigh: uint32(offset >> 32),
	}

	var n uint32
	err := windows.ReadFile(self.handle, buf, &n, overlapped)
	if err != nil {
		return 0, errors.Wrapf(utils.ErrIO, "Device read at %d: %v", offset, err)
	}
	if int(n) < len(buf) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (self *deviceSource) Size() int64 {
	return self.size
}

func (self *deviceSource) Close() error {
	return windows.CloseHandle(self.handle)
}
