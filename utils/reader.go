package utils

import (
	"errors"
	"io"
	"sync"
)

// PagedReader serves reads from whole pages kept in an LRU. Raw
// devices can only be read in sector aligned units, and the decoders
// tend to read the same page header many times while walking a tree.
type PagedReader struct {
	mu sync.Mutex

	reader   io.ReaderAt
	pagesize int64
	lru      *LRU[int64, []byte]
	pool     sync.Pool
}

// ReadAt has the following semantics:
//  1. A read fully inside the source fills the buffer with err = nil.
//  2. A read that starts inside the source and runs past its end is
//     zero padded and returns n = len(buf), err = nil.
//  3. A read starting outside the source returns n = 0 and io.EOF.
func (self *PagedReader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, io.EOF
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	buf_idx := 0
	for buf_idx < len(buf) {
		page := offset - offset%self.pagesize
		page_offset := int(offset - page)

		to_read := int(self.pagesize) - page_offset
		if to_read > len(buf)-buf_idx {
			to_read = len(buf) - buf_idx
		}

		page_buf, err := self.getPage(page)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return buf_idx, err
			}

			if buf_idx == 0 {
				return 0, io.EOF
			}

			for i := buf_idx; i < len(buf); i++ {
				buf[i] = 0
			}
			return len(buf), nil
		}

		copy(buf[buf_idx:buf_idx+to_read], page_buf[page_offset:])
		offset += int64(to_read)
		buf_idx += to_read
	}

	return buf_idx, nil
}

func (self *PagedReader) getPage(page int64) ([]byte, error) {
	cached, pres := self.lru.Get(page)
	if pres {
		return cached, nil
	}

	STATS.Inc_PagesRead()
	page_buf := self.pool.Get().([]byte)
	n, err := self.reader.ReadAt(page_buf, page)
	if err != nil && !errors.Is(err, io.EOF) {
		self.pool.Put(page_buf)
		return nil, err
	}

	if n == 0 {
		self.pool.Put(page_buf)
		return nil, io.EOF
	}

	for i := n; i < len(page_buf); i++ {
		page_buf[i] = 0
	}
	self.lru.Add(page, page_buf)

	return page_buf, nil
}

func (self *PagedReader) Flush() {
	self.lru.Purge()

	flusher, ok := self.reader.(Flusher)
	if ok {
		flusher.Flush()
	}
}

func (self *PagedReader) DebugString() string {
	return self.lru.DebugString()
}

func NewPagedReader(
	reader io.ReaderAt, pagesize int64, cache_size int) (*PagedReader, error) {
	DebugPrint("Creating cache of size %v\n", cache_size)

	if pagesize <= 0 {
		pagesize = 0x1000
	}

	self := &PagedReader{
		reader:   reader,
		pagesize: pagesize,
	}
	self.pool.New = func() interface{} {
		return make([]byte, pagesize)
	}

	cache, err := NewLRU[int64, []byte](cache_size,
		func(key int64, value []byte) {
			self.pool.Put(value)
		}, "PagedReader")
	if err != nil {
		return nil, err
	}
	self.lru = cache

	return self, nil
}

// Flusher is implemented by readers that keep their own caches.
type Flusher interface {
	Flush()
}

type OffsetReader struct {
	Offset int64
	Reader io.ReaderAt
}

func (self *OffsetReader) ReadAt(buf []byte, offset int64) (int, error) {
	return self.Reader.ReadAt(buf, offset+self.Offset)
}

// Lengths usually come from the data being parsed. Larger reads grow
// the buffer one step at a time so the allocation never exceeds what
// the source actually holds.
const read_step_size = 1024 * 1024

// ReadAtMost reads length bytes from offset. A short read at the end
// of the source is returned truncated rather than as an error.
func ReadAtMost(reader io.ReaderAt, offset, length int64) ([]byte, error) {
	if length < 0 {
		return nil, BadFormat("negative read of %d at %d", length, offset)
	}

	step := length
	if step > read_step_size {
		step = read_step_size
	}

	buf := make([]byte, 0, step)
	for int64(len(buf)) < length {
		want := length - int64(len(buf))
		if want > read_step_size {
			want = read_step_size
		}

		start := len(buf)
		buf = append(buf, make([]byte, want)...)
		n, err := reader.ReadAt(buf[start:], offset+int64(start))
		buf = buf[:start+n]
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err != nil || int64(n) < want {
			break
		}
	}

	if len(buf) == 0 && length > 0 {
		return nil, Incomplete("no data at offset %d", offset)
	}
	return buf, nil
}

// ReadExact reads exactly length bytes from offset.
func ReadExact(reader io.ReaderAt, offset, length int64) ([]byte, error) {
	buf, err := ReadAtMost(reader, offset, length)
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) < length {
		return nil, Incomplete("short read of %d bytes at %d, wanted %d",
			len(buf), offset, length)
	}
	return buf, nil
}
