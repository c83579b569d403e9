package outlook

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const DefaultBlockCacheSize = 1000

// OutlookReader holds both B-trees of an open PST or OST file. The
// trees are read once when opening; every later lookup is a map hit.
type OutlookReader struct {
	Reader io.ReaderAt
	Header *Header
	Layout *Layout

	Nodes  NodeBTree
	Blocks BlockBTree

	block_cache *utils.LRU[uint64, []byte]
}

func Open(reader io.ReaderAt) (*OutlookReader, error) {
	data, err := utils.ReadAtMost(reader, 0, HEADER_SIZE)
	if err != nil {
		return nil, err
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	layout, err := LayoutFor(header.Format)
	if err != nil {
		return nil, err
	}

	cache, err := utils.NewLRU[uint64, []byte](DefaultBlockCacheSize, nil, "outlook blocks")
	if err != nil {
		return nil, err
	}

	result := &OutlookReader{
		Reader:      reader,
		Header:      header,
		Layout:      layout,
		block_cache: cache,
	}

	walker := NewBTreeWalker(reader, layout)
	result.Nodes, err = walker.NodeBTree(header.NodeBTree.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "Node B-tree")
	}

	result.Blocks, err = walker.BlockBTree(header.BlockBTree.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "Block B-tree")
	}

	utils.DebugPrint("Outlook %v: %d nodes %d blocks\n", header.Format,
		len(result.Nodes), len(result.Blocks))

	return result, nil
}

// NodesOfType lists nodes of one type in node id order.
func (self *OutlookReader) NodesOfType(node_type NodeType) []*Node {
	result := []*Node{}
	for _, node := range self.Nodes {
		if node.Type == node_type {
			result = append(result, node)
		}
	}
	sortNodes(result)
	return result
}

func (self *OutlookReader) DebugString() string {
	return fmt.Sprintf("OutlookReader %v: %d nodes, %d blocks, %v",
		self.Header.Format, len(self.Nodes), len(self.Blocks),
		self.block_cache.DebugString())
}
