package utils

import (
	"encoding/binary"
)

type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (self Endian) order() binary.ByteOrder {
	if self == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// A Cursor is a read position over an immutable byte slice. Every read
// either advances the cursor and returns the value, or leaves it where
// it was and returns an ErrIncomplete.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (self *Cursor) Offset() int {
	return self.pos
}

func (self *Cursor) Len() int {
	return len(self.buf) - self.pos
}

func (self *Cursor) Empty() bool {
	return self.pos >= len(self.buf)
}

// Remaining returns the unread part of the buffer without advancing.
func (self *Cursor) Remaining() []byte {
	return self.buf[self.pos:]
}

func (self *Cursor) Take(n int) ([]byte, error) {
	if n < 0 || n > len(self.buf)-self.pos {
		return nil, Incomplete("need %d bytes at offset %d, have %d",
			n, self.pos, len(self.buf)-self.pos)
	}
	result := self.buf[self.pos : self.pos+n]
	self.pos += n
	return result, nil
}

func (self *Cursor) Skip(n int) error {
	_, err := self.Take(n)
	return err
}

// Seek moves to an absolute offset within the buffer.
func (self *Cursor) Seek(offset int) error {
	if offset < 0 || offset > len(self.buf) {
		return Incomplete("seek to %d past end %d", offset, len(self.buf))
	}
	self.pos = offset
	return nil
}

func (self *Cursor) U8() (uint8, error) {
	b, err := self.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (self *Cursor) U16(endian Endian) (uint16, error) {
	b, err := self.Take(2)
	if err != nil {
		return 0, err
	}
	return endian.order().Uint16(b), nil
}

func (self *Cursor) U32(endian Endian) (uint32, error) {
	b, err := self.Take(4)
	if err != nil {
		return 0, err
	}
	return endian.order().Uint32(b), nil
}

func (self *Cursor) U64(endian Endian) (uint64, error) {
	b, err := self.Take(8)
	if err != nil {
		return 0, err
	}
	return endian.order().Uint64(b), nil
}

func (self *Cursor) U16LE() (uint16, error) { return self.U16(LittleEndian) }
func (self *Cursor) U32LE() (uint32, error) { return self.U32(LittleEndian) }
func (self *Cursor) U64LE() (uint64, error) { return self.U64(LittleEndian) }
func (self *Cursor) U16BE() (uint16, error) { return self.U16(BigEndian) }
func (self *Cursor) U32BE() (uint32, error) { return self.U32(BigEndian) }
func (self *Cursor) U64BE() (uint64, error) { return self.U64(BigEndian) }

func (self *Cursor) I16LE() (int16, error) {
	v, err := self.U16LE()
	return int16(v), err
}

func (self *Cursor) I32LE() (int32, error) {
	v, err := self.U32LE()
	return int32(v), err
}

func (self *Cursor) I64LE() (int64, error) {
	v, err := self.U64LE()
	return int64(v), err
}

// Slice returns buf[offset:offset+length] or an ErrIncomplete if the
// range does not fit.
func Slice(buf []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset > int64(len(buf)) ||
		length > int64(len(buf))-offset {
		return nil, Incomplete("range %d+%d outside buffer of %d",
			offset, length, len(buf))
	}
	return buf[offset : offset+length], nil
}

func GetU8(buf []byte, offset int64) (uint8, error) {
	b, err := Slice(buf, offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func GetU16LE(buf []byte, offset int64) (uint16, error) {
	b, err := Slice(buf, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func GetU32LE(buf []byte, offset int64) (uint32, error) {
	b, err := Slice(buf, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func GetU64LE(buf []byte, offset int64) (uint64, error) {
	b, err := Slice(buf, offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func GetU16BE(buf []byte, offset int64) (uint16, error) {
	b, err := Slice(buf, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func GetU32BE(buf []byte, offset int64) (uint32, error) {
	b, err := Slice(buf, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
