package outlook

import (
	"fmt"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	HEAP_SIGNATURE = 0xEC

	CLIENT_SIG_TABLE_CONTEXT    = 0x7C
	CLIENT_SIG_BTH              = 0xB5
	CLIENT_SIG_PROPERTY_CONTEXT = 0xBC

	heap_header_size = 12
	bth_header_size  = 8
)

// HID parts: 5 bits of type (always 0), an 11 bit one based
// allocation index and a 16 bit block index.
func HIDIndex(hid uint32) uint32 {
	return (hid >> 5) & 0x7ff
}

func HIDBlock(hid uint32) uint32 {
	return hid >> 16
}

// IsHID tells heap ids apart from subnode ids in a HNID.
func IsHID(hnid uint32) bool {
	return hnid&0x1f == 0
}

type pageMap struct {
	Allocations []uint16
	Free        uint16
}

func parsePageMap(data []byte, offset uint16) (*pageMap, error) {
	cursor := utils.NewCursor(data)
	err := cursor.Seek(int(offset))
	if err != nil {
		return nil, err
	}

	count, _ := cursor.U16LE()
	free, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}

	result := &pageMap{Free: free}
	for i := 0; i <= int(count); i++ {
		value, err := cursor.U16LE()
		if err != nil {
			return nil, errors.Wrap(err, "Heap page map")
		}
		result.Allocations = append(result.Allocations, value)
	}
	return result, nil
}

// Heap is a heap on node: an allocator spread over the data blocks of
// a node. Property and table contexts are built on it.
type Heap struct {
	ClientSig uint8
	UserRoot  uint32

	blocks [][]byte
	maps   []*pageMap
}

func NewHeap(blocks [][]byte) (*Heap, error) {
	if len(blocks) == 0 {
		return nil, utils.Incomplete("Heap has no blocks")
	}

	first := utils.NewCursor(blocks[0])
	_ = first.Skip(2)
	sig, _ := first.U8()
	client_sig, _ := first.U8()
	user_root, err := first.U32LE()
	if err != nil {
		return nil, err
	}

	if sig != HEAP_SIGNATURE {
		return nil, utils.BadFormat("Heap signature %#x", sig)
	}

	result := &Heap{
		ClientSig: client_sig,
		UserRoot:  user_root,
		blocks:    blocks,
	}

	// Every block starts with its page map offset, whatever the rest
	// of its header holds.
	for idx, block := range blocks {
		offset, err := utils.GetU16LE(block, 0)
		if err != nil {
			return nil, err
		}
		page_map, err := parsePageMap(block, offset)
		if err != nil {
			return nil, errors.Wrapf(err, "Heap block %d", idx)
		}
		result.maps = append(result.maps, page_map)
	}

	return result, nil
}

// Get returns the allocation a HID refers to. HID 0 is an empty item.
func (self *Heap) Get(hid uint32) ([]byte, error) {
	if hid == 0 {
		return nil, nil
	}
	if !IsHID(hid) {
		return nil, utils.BadFormat("%#x is not a heap id", hid)
	}

	block_idx := int(HIDBlock(hid))
	if block_idx >= len(self.blocks) {
		return nil, utils.BadFormat("HID %#x refers to block %d of %d",
			hid, block_idx, len(self.blocks))
	}

	page_map := self.maps[block_idx]
	idx := int(HIDIndex(hid))
	if idx == 0 || idx >= len(page_map.Allocations) {
		return nil, utils.BadFormat("HID %#x index %d out of range", hid, idx)
	}

	start := int64(page_map.Allocations[idx-1])
	end := int64(page_map.Allocations[idx])
	if end < start {
		return nil, utils.BadFormat("HID %#x allocation ends before it starts", hid)
	}

	return utils.Slice(self.blocks[block_idx], start, end-start)
}

func (self *Heap) DebugString() string {
	return fmt.Sprintf("Heap client %#x root %#x over %d blocks",
		self.ClientSig, self.UserRoot, len(self.blocks))
}

type BTHHeader struct {
	KeySize   uint8
	EntrySize uint8
	Levels    uint8
	Root      uint32
}

func (self *Heap) BTHHeader(hid uint32) (*BTHHeader, error) {
	data, err := self.Get(hid)
	if err != nil {
		return nil, err
	}

	cursor := utils.NewCursor(data)
	sig, _ := cursor.U8()
	result := &BTHHeader{}
	result.KeySize, _ = cursor.U8()
	result.EntrySize, _ = cursor.U8()
	result.Levels, _ = cursor.U8()
	result.Root, err = cursor.U32LE()
	if err != nil {
		return nil, errors.Wrap(err, "BTH header")
	}

	if sig != CLIENT_SIG_BTH {
		return nil, utils.BadFormat("BTH header signature %#x", sig)
	}
	if result.KeySize == 0 {
		return nil, utils.BadFormat("BTH key size is zero")
	}

	return result, nil
}

type BTHRecord struct {
	Key  []byte
	Data []byte
}

// BTHRecords returns the leaf records of the heap B-tree whose header
// is at hid, in key order.
func (self *Heap) BTHRecords(hid uint32) ([]*BTHRecord, error) {
	header, err := self.BTHHeader(hid)
	if err != nil {
		return nil, err
	}

	result := []*BTHRecord{}
	if header.Root == 0 {
		return result, nil
	}

	seen := make(map[uint32]bool)
	err = self.bthLevel(header, header.Root, int(header.Levels), seen, &result)
	return result, err
}

func (self *Heap) bthLevel(header *BTHHeader, hid uint32, level int,
	seen map[uint32]bool, result *[]*BTHRecord) error {
	if seen[hid] {
		return utils.CycleDetected("BTH node %#x already visited", hid)
	}
	seen[hid] = true

	data, err := self.Get(hid)
	if err != nil {
		return err
	}

	key_size := int(header.KeySize)
	record_size := key_size + int(header.EntrySize)
	if level > 0 {
		// Intermediate records point to the next level.
		record_size = key_size + 4
	}

	for offset := 0; offset+record_size <= len(data); offset += record_size {
		record := data[offset : offset+record_size]
		if level > 0 {
			child, _ := utils.GetU32LE(record, int64(key_size))
			err = self.bthLevel(header, child, level-1, seen, result)
			if err != nil {
				return err
			}
			continue
		}

		*result = append(*result, &BTHRecord{
			Key:  record[:key_size],
			Data: record[key_size:],
		})
	}

	return nil
}
