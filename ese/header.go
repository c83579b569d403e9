package ese

import (
	"fmt"
	"io"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	ESE_SIGNATURE    = 0x89abcdef
	ESE_HEADER_SIZE  = 668
	CATALOG_PAGE     = 4
	page_size_offset = 236
)

// The file header page. The first page of the file is the header and
// the second one is a shadow copy, so page N lives at (N+1)*PageSize.
type DatabaseHeader struct {
	Checksum       uint32
	Signature      uint32
	FormatVersion  uint32
	FileType       uint32
	DatabaseState  uint32
	FormatRevision uint32
	PageSize       uint32
}

func (self *DatabaseHeader) DebugString() string {
	return fmt.Sprintf("DatabaseHeader: version %#x rev %#x page size %d state %d",
		self.FormatVersion, self.FormatRevision, self.PageSize,
		self.DatabaseState)
}

func ParseDatabaseHeader(data []byte) (*DatabaseHeader, error) {
	result := &DatabaseHeader{}
	cursor := utils.NewCursor(data)

	var err error
	for _, field := range []*uint32{&result.Checksum, &result.Signature,
		&result.FormatVersion, &result.FileType} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	if result.Signature != ESE_SIGNATURE {
		return nil, utils.BadFormat("ESE signature %#x is not valid",
			result.Signature)
	}

	// Database time (8) and database signature (28) precede the state.
	result.DatabaseState, err = utils.GetU32LE(data, 52)
	if err != nil {
		return nil, err
	}

	result.FormatRevision, err = utils.GetU32LE(data, page_size_offset-4)
	if err != nil {
		return nil, err
	}

	result.PageSize, err = utils.GetU32LE(data, page_size_offset)
	if err != nil {
		return nil, err
	}

	switch result.PageSize {
	case 2048, 4096, 8192, 16384, 32768:
	default:
		return nil, utils.BadFormat("ESE page size %d is not valid",
			result.PageSize)
	}

	return result, nil
}

func ReadDatabaseHeader(reader io.ReaderAt) (*DatabaseHeader, error) {
	data, err := utils.ReadExact(reader, 0, ESE_HEADER_SIZE)
	if err != nil {
		return nil, err
	}
	return ParseDatabaseHeader(data)
}

// PageOffset converts a page number into a file offset.
func PageOffset(page uint32, page_size uint32) int64 {
	return (int64(page) + 1) * int64(page_size)
}
