package outlook

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	PAGE_TYPE_BBT = 0x80
	PAGE_TYPE_NBT = 0x81

	branch_entry_size = 24
	nbt_entry_size    = 32
	bbt_entry_size    = 24

	// Both trees are a handful of levels deep in practice.
	DefaultMaxDepth = 32
)

// Layout holds the sizes that differ between the 512 byte and 4k
// page variants.
type Layout struct {
	PageSize      int64
	EntriesSize   int
	WideCounts    bool
	TrailerOffset int
	BlockAlign    int64
}

var (
	unicode_layout = &Layout{
		PageSize:      512,
		EntriesSize:   488,
		TrailerOffset: 496,
		BlockAlign:    64,
	}
	unicode_4k_layout = &Layout{
		PageSize:      4096,
		EntriesSize:   4056,
		WideCounts:    true,
		TrailerOffset: 4072,
		BlockAlign:    512,
	}
)

func LayoutFor(format FormatType) (*Layout, error) {
	switch format {
	case FORMAT_UNICODE64:
		return unicode_layout, nil
	case FORMAT_UNICODE64_4K:
		return unicode_4k_layout, nil
	}
	return nil, utils.Unsupported("No page layout for format %v", format)
}

type BTPage struct {
	Type      uint8
	Count     int
	MaxCount  int
	EntrySize int
	Level     uint8
	BID       uint64

	entries []byte
}

// Entry returns the raw bytes of entry idx.
func (self *BTPage) Entry(idx int) []byte {
	start := idx * self.EntrySize
	return self.entries[start : start+self.EntrySize]
}

func (self *BTPage) DebugString() string {
	return fmt.Sprintf("BTPage type %#x level %d: %d/%d entries of %d bytes",
		self.Type, self.Level, self.Count, self.MaxCount, self.EntrySize)
}

func ParseBTPage(data []byte, layout *Layout) (*BTPage, error) {
	if int64(len(data)) < layout.PageSize {
		return nil, utils.Incomplete("B-tree page needs %d bytes, have %d",
			layout.PageSize, len(data))
	}

	cursor := utils.NewCursor(data)
	entries, _ := cursor.Take(layout.EntriesSize)

	result := &BTPage{entries: entries}
	if layout.WideCounts {
		count, _ := cursor.U16LE()
		max_count, _ := cursor.U16LE()
		result.Count = int(count)
		result.MaxCount = int(max_count)
	} else {
		count, _ := cursor.U8()
		max_count, _ := cursor.U8()
		result.Count = int(count)
		result.MaxCount = int(max_count)
	}
	entry_size, _ := cursor.U8()
	result.EntrySize = int(entry_size)
	result.Level, _ = cursor.U8()

	// ptype, ptypeRepeat, wSig, dwCRC, bid
	trailer := utils.NewCursor(data[layout.TrailerOffset:])
	result.Type, _ = trailer.U8()
	repeat, _ := trailer.U8()
	_ = trailer.Skip(6)
	result.BID, _ = trailer.U64LE()

	if result.Type != repeat {
		return nil, utils.BadFormat("B-tree page type %#x does not match repeat %#x",
			result.Type, repeat)
	}

	if (result.Count > 0 && result.EntrySize == 0) ||
		result.Count*result.EntrySize > layout.EntriesSize {
		return nil, utils.BadFormat("B-tree page has %d entries of %d bytes",
			result.Count, result.EntrySize)
	}

	return result, nil
}

// Node types are the low 5 bits of a node id.
type NodeType uint8

const (
	NID_TYPE_HID                 NodeType = 0x00
	NID_TYPE_INTERNAL            NodeType = 0x01
	NID_TYPE_NORMAL_FOLDER       NodeType = 0x02
	NID_TYPE_SEARCH_FOLDER       NodeType = 0x03
	NID_TYPE_NORMAL_MESSAGE      NodeType = 0x04
	NID_TYPE_ATTACHMENT          NodeType = 0x05
	NID_TYPE_SEARCH_UPDATE_QUEUE NodeType = 0x06
	NID_TYPE_SEARCH_CRITERIA     NodeType = 0x07
	NID_TYPE_ASSOC_MESSAGE       NodeType = 0x08
	NID_TYPE_HIERARCHY_TABLE     NodeType = 0x0d
	NID_TYPE_CONTENTS_TABLE      NodeType = 0x0e
	NID_TYPE_ASSOC_CONTENTS      NodeType = 0x0f
	NID_TYPE_SEARCH_CONTENTS     NodeType = 0x10
	NID_TYPE_ATTACHMENT_TABLE    NodeType = 0x11
	NID_TYPE_RECIPIENT_TABLE     NodeType = 0x12
	NID_TYPE_LTP                 NodeType = 0x1f
)

var node_type_names = map[NodeType]string{
	NID_TYPE_HID:                 "HeapNode",
	NID_TYPE_INTERNAL:            "Internal",
	NID_TYPE_NORMAL_FOLDER:       "NormalFolder",
	NID_TYPE_SEARCH_FOLDER:       "SearchFolder",
	NID_TYPE_NORMAL_MESSAGE:      "Message",
	NID_TYPE_ATTACHMENT:          "Attachment",
	NID_TYPE_SEARCH_UPDATE_QUEUE: "SearchUpdateQueue",
	NID_TYPE_SEARCH_CRITERIA:     "SearchCriteria",
	NID_TYPE_ASSOC_MESSAGE:       "AssociatedMessage",
	NID_TYPE_HIERARCHY_TABLE:     "HierarchyTable",
	NID_TYPE_CONTENTS_TABLE:      "ContentsTable",
	NID_TYPE_ASSOC_CONTENTS:      "AssociatedContentsTable",
	NID_TYPE_SEARCH_CONTENTS:     "SearchContentsTable",
	NID_TYPE_ATTACHMENT_TABLE:    "AttachmentTable",
	NID_TYPE_RECIPIENT_TABLE:     "RecipientTable",
	NID_TYPE_LTP:                 "LocalDescriptors",
}

func (self NodeType) String() string {
	name, pres := node_type_names[self]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint8(self))
}

func NIDType(nid uint32) NodeType {
	return NodeType(nid & 0x1f)
}

func NIDIndex(nid uint32) uint32 {
	return nid >> 5
}

// Well known nodes
const (
	NID_MESSAGE_STORE = 0x21
	NID_NAME_TO_ID    = 0x61
	NID_ROOT_FOLDER   = 0x122
)

type Node struct {
	NID        uint32   `json:"nid"`
	Type       NodeType `json:"type"`
	DataBID    uint64   `json:"data_bid"`
	SubnodeBID uint64   `json:"subnode_bid"`
	ParentNID  uint32   `json:"parent_nid"`
}

func parseNodeEntry(entry []byte) (*Node, error) {
	cursor := utils.NewCursor(entry)
	nid, _ := cursor.U64LE()
	data_bid, _ := cursor.U64LE()
	subnode_bid, _ := cursor.U64LE()
	parent, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}

	return &Node{
		NID:        uint32(nid),
		Type:       NIDType(uint32(nid)),
		DataBID:    data_bid,
		SubnodeBID: subnode_bid,
		ParentNID:  parent,
	}, nil
}

type Block struct {
	BID      uint64 `json:"bid"`
	Offset   uint64 `json:"offset"`
	Size     uint16 `json:"size"`
	RefCount uint16 `json:"ref_count"`
}

// Internal blocks hold XBLOCKs or subnode blocks rather than data.
func (self *Block) Internal() bool {
	return IsInternalBID(self.BID)
}

func IsInternalBID(bid uint64) bool {
	return bid&0x2 != 0
}

// The lowest bit is reserved and masked off for lookups.
func blockKey(bid uint64) uint64 {
	return bid &^ 0x1
}

func parseBlockEntry(entry []byte) (*Block, error) {
	cursor := utils.NewCursor(entry)
	bid, _ := cursor.U64LE()
	offset, _ := cursor.U64LE()
	size, _ := cursor.U16LE()
	ref_count, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}

	return &Block{
		BID:      blockKey(bid),
		Offset:   offset,
		Size:     size,
		RefCount: ref_count,
	}, nil
}

// BTreeWalker visits the leaf entries of a node or block B-tree. The
// tracker is shared between walks so no page is read twice.
type BTreeWalker struct {
	Reader   io.ReaderAt
	Layout   *Layout
	MaxDepth int

	Tracker map[uint64]bool
}

func NewBTreeWalker(reader io.ReaderAt, layout *Layout) *BTreeWalker {
	return &BTreeWalker{
		Reader:   reader,
		Layout:   layout,
		MaxDepth: DefaultMaxDepth,
		Tracker:  make(map[uint64]bool),
	}
}

func (self *BTreeWalker) ReadPage(offset uint64) (*BTPage, error) {
	data, err := utils.ReadExact(self.Reader, int64(offset), self.Layout.PageSize)
	if err != nil {
		return nil, err
	}
	utils.STATS.Inc_PagesRead()

	return ParseBTPage(data, self.Layout)
}

// Walk calls cb with every leaf entry of the tree rooted at offset.
// Only a bad root page is an error.
func (self *BTreeWalker) Walk(offset uint64, page_type uint8,
	cb func(entry []byte)) error {
	self.Tracker[offset] = true

	page, err := self.ReadPage(offset)
	if err != nil {
		return err
	}
	if page.Type != page_type {
		return utils.BadFormat("Page at %#x has type %#x, expected %#x",
			offset, page.Type, page_type)
	}

	self.walkPage(offset, page, 0, cb)
	return nil
}

func (self *BTreeWalker) walkPage(offset uint64, page *BTPage, depth int,
	cb func(entry []byte)) {
	if page.Level == 0 {
		for i := 0; i < page.Count; i++ {
			cb(page.Entry(i))
		}
		return
	}

	if page.EntrySize < branch_entry_size {
		log.WithField("offset", offset).WithField("entry_size", page.EntrySize).
			Warn("[outlook] Branch entries too small")
		utils.STATS.Inc_RecordsSkipped()
		return
	}

	for i := 0; i < page.Count; i++ {
		// key, child bid, child offset
		child, _ := utils.GetU64LE(page.Entry(i), 16)

		if self.Tracker[child] {
			err := utils.CycleDetected("Page %#x points to %#x already visited",
				offset, child)
			log.WithError(err).Warn("[outlook] B-tree cycle")
			continue
		}
		self.Tracker[child] = true

		if depth+1 > self.MaxDepth {
			log.WithField("offset", offset).WithField("depth", depth).
				Warn("[outlook] B-tree too deep")
			return
		}

		child_page, err := self.ReadPage(child)
		if err != nil {
			log.WithError(err).WithField("offset", child).
				Warn("[outlook] Could not read B-tree page")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		if child_page.Type != page.Type {
			log.WithField("offset", child).WithField("type", child_page.Type).
				Warn("[outlook] B-tree child page has the wrong type")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		if child_page.Level >= page.Level {
			log.WithField("offset", child).WithField("level", child_page.Level).
				Warn("[outlook] B-tree child level does not descend")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		self.walkPage(child, child_page, depth+1, cb)
	}
}

// NodeBTree maps node ids to their data and subnode blocks.
type NodeBTree map[uint32]*Node

// BlockBTree maps block ids to their file location.
type BlockBTree map[uint64]*Block

func (self *BTreeWalker) NodeBTree(root uint64) (NodeBTree, error) {
	result := make(NodeBTree)
	err := self.Walk(root, PAGE_TYPE_NBT, func(entry []byte) {
		if len(entry) < nbt_entry_size {
			utils.STATS.Inc_RecordsSkipped()
			return
		}
		node, err := parseNodeEntry(entry)
		if err != nil {
			utils.STATS.Inc_RecordsSkipped()
			return
		}
		result[node.NID] = node
	})
	return result, err
}

func (self *BTreeWalker) BlockBTree(root uint64) (BlockBTree, error) {
	result := make(BlockBTree)
	err := self.Walk(root, PAGE_TYPE_BBT, func(entry []byte) {
		if len(entry) < bbt_entry_size {
			utils.STATS.Inc_RecordsSkipped()
			return
		}
		block, err := parseBlockEntry(entry)
		if err != nil {
			utils.STATS.Inc_RecordsSkipped()
			return
		}
		result[block.BID] = block
	})
	return result, err
}
