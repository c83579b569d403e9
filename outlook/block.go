package outlook

import (
	"bytes"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	block_trailer_size = 16

	BLOCK_TYPE_XBLOCK = 0x01
	BLOCK_TYPE_SUB    = 0x02

	// Data trees are at most an XXBLOCK over XBLOCKs.
	max_data_tree_level = 2
	max_subnode_depth   = 8

	sl_entry_size = 24
	si_entry_size = 16
)

func alignUp(value, align int64) int64 {
	return (value + align - 1) / align * align
}

// ReadBlock returns the payload of one block, without its trailer.
func (self *OutlookReader) ReadBlock(bid uint64) ([]byte, error) {
	key := blockKey(bid)

	cached, pres := self.block_cache.Get(key)
	if pres {
		return cached, nil
	}

	block, pres := self.Blocks[key]
	if !pres {
		return nil, utils.BadFormat("Block %#x is not in the block B-tree", key)
	}

	total := alignUp(int64(block.Size)+block_trailer_size, self.Layout.BlockAlign)
	data, err := utils.ReadExact(self.Reader, int64(block.Offset), total)
	if err != nil {
		return nil, errors.Wrapf(err, "Block %#x", key)
	}

	// cb, wSig, dwCRC, bid
	trailer := utils.NewCursor(data[total-block_trailer_size:])
	size, _ := trailer.U16LE()
	_ = trailer.Skip(6)
	trailer_bid, _ := trailer.U64LE()

	if size != block.Size {
		return nil, utils.BadFormat("Block %#x trailer size %d does not match %d",
			key, size, block.Size)
	}
	if blockKey(trailer_bid) != key {
		utils.DebugPrint("Block %#x trailer names block %#x\n", key, trailer_bid)
	}

	result := data[:block.Size]
	self.block_cache.Add(key, result)
	return result, nil
}

// ReadDataBlocks resolves a data tree into its data blocks in order.
// Heap on node items address these blocks by index so they are kept
// apart.
func (self *OutlookReader) ReadDataBlocks(bid uint64) ([][]byte, error) {
	if bid == 0 {
		return nil, nil
	}

	if !IsInternalBID(bid) {
		data, err := self.ReadBlock(bid)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	result := [][]byte{}
	err := self.readXBlock(bid, max_data_tree_level, &result)
	return result, err
}

// ReadData resolves a data tree into a single buffer.
func (self *OutlookReader) ReadData(bid uint64) ([]byte, error) {
	blocks, err := self.ReadDataBlocks(bid)
	if err != nil {
		return nil, err
	}
	return bytes.Join(blocks, nil), nil
}

type XBlock struct {
	Level uint8
	Total uint32
	BIDs  []uint64
}

func ParseXBlock(data []byte) (*XBlock, error) {
	cursor := utils.NewCursor(data)
	block_type, _ := cursor.U8()
	if block_type != BLOCK_TYPE_XBLOCK {
		return nil, utils.BadFormat("Block type %#x is not an XBLOCK", block_type)
	}

	result := &XBlock{}
	result.Level, _ = cursor.U8()
	count, _ := cursor.U16LE()
	total, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	result.Total = total

	if int(count)*8 > cursor.Len() {
		return nil, utils.BadFormat("XBLOCK with %d entries overflows block", count)
	}

	for i := 0; i < int(count); i++ {
		bid, _ := cursor.U64LE()
		result.BIDs = append(result.BIDs, bid)
	}

	return result, nil
}

// Levels are counted down so a corrupt tree can not nest forever.
func (self *OutlookReader) readXBlock(bid uint64, max_level int,
	result *[][]byte) error {
	data, err := self.ReadBlock(bid)
	if err != nil {
		return err
	}

	xblock, err := ParseXBlock(data)
	if err != nil {
		return errors.Wrapf(err, "Data tree %#x", bid)
	}

	if int(xblock.Level) > max_level || xblock.Level == 0 {
		return utils.BadFormat("Data tree %#x has level %d under limit %d",
			bid, xblock.Level, max_level)
	}

	for _, child := range xblock.BIDs {
		if xblock.Level > 1 {
			if !IsInternalBID(child) {
				return utils.BadFormat("XXBLOCK %#x child %#x is a data block",
					bid, child)
			}
			err = self.readXBlock(child, int(xblock.Level)-1, result)
			if err != nil {
				return err
			}
			continue
		}

		child_data, err := self.ReadBlock(child)
		if err != nil {
			return errors.Wrapf(err, "Data tree %#x", bid)
		}
		*result = append(*result, child_data)
	}

	return nil
}

// Subnode is an entry in a node's local subnode tree. Properties too
// large for the heap live in subnodes.
type Subnode struct {
	NID        uint32 `json:"nid"`
	DataBID    uint64 `json:"data_bid"`
	SubnodeBID uint64 `json:"subnode_bid"`
}

// Subnodes resolves the SLBLOCK/SIBLOCK tree at bid.
func (self *OutlookReader) Subnodes(bid uint64) (map[uint32]*Subnode, error) {
	result := make(map[uint32]*Subnode)
	if bid == 0 {
		return result, nil
	}

	seen := make(map[uint64]bool)
	err := self.readSubnodeBlock(bid, 0, seen, result)
	return result, err
}

func (self *OutlookReader) readSubnodeBlock(bid uint64, depth int,
	seen map[uint64]bool, result map[uint32]*Subnode) error {
	key := blockKey(bid)
	if seen[key] {
		return utils.CycleDetected("Subnode block %#x already visited", key)
	}
	seen[key] = true

	if depth > max_subnode_depth {
		return utils.BadFormat("Subnode tree too deep at %#x", key)
	}

	data, err := self.ReadBlock(bid)
	if err != nil {
		return err
	}

	cursor := utils.NewCursor(data)
	block_type, _ := cursor.U8()
	level, _ := cursor.U8()
	count, _ := cursor.U16LE()
	_, err = cursor.U32LE()
	if err != nil {
		return err
	}

	if block_type != BLOCK_TYPE_SUB {
		return utils.BadFormat("Block %#x type %#x is not a subnode block",
			key, block_type)
	}

	entry_size := sl_entry_size
	if level > 0 {
		entry_size = si_entry_size
	}
	if int(count)*entry_size > cursor.Len() {
		return utils.BadFormat("Subnode block %#x with %d entries overflows", key, count)
	}

	for i := 0; i < int(count); i++ {
		nid, _ := cursor.U64LE()
		child_bid, _ := cursor.U64LE()

		// SIBLOCK entries point at further subnode blocks.
		if level > 0 {
			err = self.readSubnodeBlock(child_bid, depth+1, seen, result)
			if err != nil {
				return err
			}
			continue
		}

		sub_bid, _ := cursor.U64LE()
		result[uint32(nid)] = &Subnode{
			NID:        uint32(nid),
			DataBID:    child_bid,
			SubnodeBID: sub_bid,
		}
	}

	return nil
}
