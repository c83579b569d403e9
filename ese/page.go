package ese

import (
	"fmt"
	"strings"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	PAGE_HEADER_SIZE          = 40
	PAGE_HEADER_EXTENDED_SIZE = 80
	tag_size                  = 4
	large_page_size           = 16384
)

type PageFlags uint32

const (
	PAGE_ROOT          PageFlags = 0x1
	PAGE_LEAF          PageFlags = 0x2
	PAGE_PARENT_BRANCH PageFlags = 0x4
	PAGE_EMPTY         PageFlags = 0x8
	PAGE_SPACE_TREE    PageFlags = 0x20
	PAGE_INDEX         PageFlags = 0x40
	PAGE_LONG_VALUE    PageFlags = 0x80
	PAGE_NEW_RECORD    PageFlags = 0x2000
	PAGE_SCRUBBED      PageFlags = 0x4000
)

var page_flag_names = []struct {
	flag PageFlags
	name string
}{
	{PAGE_ROOT, "Root"},
	{PAGE_LEAF, "Leaf"},
	{PAGE_PARENT_BRANCH, "ParentBranch"},
	{PAGE_EMPTY, "Empty"},
	{PAGE_SPACE_TREE, "SpaceTree"},
	{PAGE_INDEX, "Index"},
	{PAGE_LONG_VALUE, "LongValue"},
	{PAGE_NEW_RECORD, "NewRecord"},
	{PAGE_SCRUBBED, "Scrubbed"},
}

func (self PageFlags) Has(flag PageFlags) bool {
	return self&flag != 0
}

func (self PageFlags) Names() []string {
	result := []string{}
	for _, f := range page_flag_names {
		if self.Has(f.flag) {
			result = append(result, f.name)
		}
	}
	return result
}

func (self PageFlags) String() string {
	return strings.Join(self.Names(), ",")
}

type TagFlags uint16

const (
	TAG_VERSION    TagFlags = 0x1
	TAG_DEFUNCT    TagFlags = 0x2
	TAG_COMMON_KEY TagFlags = 0x4
)

func (self TagFlags) Has(flag TagFlags) bool {
	return self&flag != 0
}

// A page tag locates one value inside the page data area.
type Tag struct {
	Offset uint16
	Size   uint16
	Flags  TagFlags
}

type PageHeader struct {
	Checksum                 uint64
	PreviousPage             uint32
	NextPage                 uint32
	FatherDataPage           uint32
	AvailableSize            uint16
	AvailableUncommittedSize uint16
	FirstAvailableDataOffset uint16
	FirstAvailablePageTag    uint16
	Flags                    PageFlags
	PageNumber               uint64
	Tags                     []Tag
}

func (self *PageHeader) DebugString() string {
	return fmt.Sprintf("Page %d: flags %v prev %d next %d father %d tags %d",
		self.PageNumber, self.Flags, self.PreviousPage, self.NextPage,
		self.FatherDataPage, len(self.Tags))
}

// Page is a parsed page: the header plus the data area that tag
// offsets are relative to.
type Page struct {
	Header *PageHeader
	Data   []byte
}

// TagData returns the bytes described by the tag. Tags are validated
// against the data area so a corrupt tag never slices out of range.
func (self *Page) TagData(tag Tag) ([]byte, error) {
	return utils.Slice(self.Data, int64(tag.Offset), int64(tag.Size))
}

func ParsePage(data []byte) (*Page, error) {
	cursor := utils.NewCursor(data)
	header := &PageHeader{}

	var err error
	header.Checksum, err = cursor.U64LE()
	if err != nil {
		return nil, err
	}

	// Database modification time.
	err = cursor.Skip(8)
	if err != nil {
		return nil, err
	}

	for _, field := range []*uint32{&header.PreviousPage, &header.NextPage,
		&header.FatherDataPage} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	for _, field := range []*uint16{&header.AvailableSize,
		&header.AvailableUncommittedSize, &header.FirstAvailableDataOffset,
		&header.FirstAvailablePageTag} {
		*field, err = cursor.U16LE()
		if err != nil {
			return nil, err
		}
	}

	// Newer versions keep flags in the upper bits of the tag count.
	if int(header.FirstAvailablePageTag)*tag_size > len(data) {
		header.FirstAvailablePageTag &= 0xfff
	}

	flags, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	header.Flags = PageFlags(flags)

	large := len(data) >= large_page_size
	header_size := PAGE_HEADER_SIZE
	if large {
		header_size = PAGE_HEADER_EXTENDED_SIZE

		// Three extended checksums then the page number.
		err = cursor.Skip(24)
		if err != nil {
			return nil, err
		}
		header.PageNumber, err = cursor.U64LE()
		if err != nil {
			return nil, err
		}
	}

	if len(data) < header_size {
		return nil, utils.Incomplete("page of %d bytes is too small", len(data))
	}
	page := &Page{Header: header, Data: data[header_size:]}

	count := int(header.FirstAvailablePageTag)
	if count*tag_size > len(data)-header_size {
		return nil, utils.BadFormat("page claims %d tags which do not fit", count)
	}

	// Tags are stored backwards from the end of the page.
	header.Tags = make([]Tag, 0, count)
	for i := 0; i < count; i++ {
		offset := len(data) - (i+1)*tag_size
		size_word, _ := utils.GetU16LE(data, int64(offset))
		offset_word, _ := utils.GetU16LE(data, int64(offset+2))

		tag := Tag{}
		if large {
			tag.Size = size_word & 0x7fff
			tag.Offset = offset_word & 0x7fff

			// Flags are in the top bits of the first value word.
			first, err := utils.GetU16LE(page.Data, int64(tag.Offset))
			if err == nil {
				tag.Flags = TagFlags(first >> 13)
			}
		} else {
			tag.Size = size_word & 0x1fff
			tag.Offset = offset_word & 0x1fff
			tag.Flags = TagFlags(offset_word >> 13)
		}
		header.Tags = append(header.Tags, tag)
	}

	return page, nil
}

// The root tag of a root page describes the space allocation of the
// tree.
type RootHeader struct {
	InitialPages   uint32
	ParentDataPage uint32
	ExtentSpace    uint32
	SpaceTreePage  uint32
}

func ParseRootHeader(data []byte) (*RootHeader, error) {
	cursor := utils.NewCursor(data)
	result := &RootHeader{}
	var err error
	for _, field := range []*uint32{&result.InitialPages,
		&result.ParentDataPage, &result.ExtentSpace, &result.SpaceTreePage} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
