package compression

import (
	"encoding/binary"
	"sort"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	XPRESS_CHUNK_SIZE = 65536
	XPRESS_TABLE_SIZE = 256
	xpress_max_nodes  = 1024
	xpress_symbols    = 512
)

var (
	ErrXpressBadOffset  = errors.Wrap(utils.ErrDecompress, "Xpress bad offset")
	ErrXpressNoMoreData = errors.Wrap(utils.ErrDecompress, "Xpress no more data")
	ErrXpressBadPrefix  = errors.Wrap(utils.ErrDecompress, "Xpress bad prefix table")
	ErrXpressNoChild    = errors.Wrap(utils.ErrDecompress, "Xpress missing child node")
)

type XpressOptions struct {
	// Keep what was decoded when the bit stream runs dry mid chunk
	// instead of failing the whole buffer.
	AllowPartial bool
}

func GetDefaultXpressOptions() XpressOptions {
	return XpressOptions{AllowPartial: true}
}

func DecompressXpressHuffman(input []byte, output_size int) ([]byte, error) {
	return DecompressXpressHuffmanWithOptions(
		input, output_size, GetDefaultXpressOptions())
}

// DecompressXpressHuffmanWithOptions decodes an LZ77+Huffman stream.
// Every 64kb chunk of output carries its own 256 byte table of code
// lengths followed by the bit stream for that chunk.
func DecompressXpressHuffmanWithOptions(
	input []byte, output_size int, options XpressOptions) ([]byte, error) {
	if output_size <= 0 {
		return []byte{}, nil
	}

	// Each chunk needs its own table and at least one word of bit
	// stream, and yields at most one chunk of output. A declared size
	// beyond that can not be produced by this input.
	max_chunks := len(input)/(XPRESS_TABLE_SIZE+4) + 1
	capacity := output_size
	if capacity > max_chunks*XPRESS_CHUNK_SIZE {
		capacity = max_chunks * XPRESS_CHUNK_SIZE
	}

	out := make([]byte, 0, capacity)
	in_index := 0

	for len(out) < output_size && in_index < len(input) {
		if in_index+XPRESS_TABLE_SIZE > len(input) {
			utils.DebugPrint("Xpress: table at %d does not fit in %d\n",
				in_index, len(input))
			break
		}

		chunk_size := output_size - len(out)
		if chunk_size > XPRESS_CHUNK_SIZE {
			chunk_size = XPRESS_CHUNK_SIZE
		}

		var err error
		in_index, out, err = decompressChunk(input, in_index, out, chunk_size)
		if err != nil {
			if errors.Is(err, ErrXpressNoMoreData) && options.AllowPartial {
				utils.STATS.Inc_PartialDecompressions()
				log.WithField("decoded", len(out)).
					WithField("expected", output_size).
					Warn("Xpress stream ended early, keeping partial data")
				break
			}
			utils.STATS.Inc_DecompressionFailures()
			return out, err
		}
	}

	if len(out) > output_size {
		out = out[:output_size]
	}
	return out, nil
}

func decompressChunk(input []byte, in_index int,
	out []byte, chunk_size int) (int, []byte, error) {
	tree, err := rebuildPrefixTree(input[in_index : in_index+XPRESS_TABLE_SIZE])
	if err != nil {
		return in_index, out, err
	}

	bstr, err := newBitStream(input, in_index+XPRESS_TABLE_SIZE)
	if err != nil {
		return in_index, out, err
	}

	end := len(out) + chunk_size
	for len(out) < end {
		symbol, err := tree.decode(bstr)
		if err != nil {
			return bstr.index, out, err
		}

		if symbol < 256 {
			out = append(out, byte(symbol))
			continue
		}

		symbol -= 256
		length := int(symbol & 15)
		symbol >>= 4

		offset := 0
		if symbol != 0 {
			offset = int(bstr.lookup(symbol))
		}
		offset |= 1 << symbol
		offset = -offset

		if length == 15 {
			if bstr.index >= len(bstr.source) {
				return bstr.index, out, ErrXpressNoMoreData
			}
			length = int(bstr.source[bstr.index]) + 15
			bstr.index++

			if length == 270 {
				if bstr.index+2 > len(bstr.source) {
					return bstr.index, out, ErrXpressNoMoreData
				}
				length = int(binary.LittleEndian.Uint16(
					bstr.source[bstr.index:]))
				bstr.index += 2
			}
		}

		err = bstr.skip(symbol)
		if err != nil {
			return bstr.index, out, err
		}

		length += 3
		for ; length > 0; length-- {
			position := len(out) + offset
			if position < 0 {
				return bstr.index, out, ErrXpressBadOffset
			}
			out = append(out, out[position])
		}
	}

	return bstr.index, out, nil
}

type bitStream struct {
	source []byte
	index  int
	mask   uint32
	bits   uint32
}

func newBitStream(source []byte, pos int) (*bitStream, error) {
	if pos+4 > len(source) {
		return nil, ErrXpressNoMoreData
	}
	return &bitStream{
		source: source,
		index:  pos + 4,
		bits:   32,
		mask: uint32(binary.LittleEndian.Uint16(source[pos:]))<<16 +
			uint32(binary.LittleEndian.Uint16(source[pos+2:])),
	}, nil
}

func (self *bitStream) lookup(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return self.mask >> (32 - n)
}

func (self *bitStream) skip(n uint32) error {
	self.mask <<= n
	if n > self.bits {
		self.bits = 0
	} else {
		self.bits -= n
	}

	if self.bits < 16 {
		if self.index+2 > len(self.source) {
			return ErrXpressNoMoreData
		}
		self.mask += uint32(binary.LittleEndian.Uint16(
			self.source[self.index:])) << (16 - self.bits)
		self.index += 2
		self.bits += 16
	}
	return nil
}

type prefixNode struct {
	symbol uint32
	leaf   bool
	child  [2]int
}

type prefixTree struct {
	nodes []prefixNode
}

type prefixSymbol struct {
	symbol uint32
	length uint32
}

// rebuildPrefixTree builds the canonical code from the nibble packed
// table of code lengths. Node 0 is the root.
func rebuildPrefixTree(table []byte) (*prefixTree, error) {
	if len(table) < XPRESS_TABLE_SIZE {
		return nil, ErrXpressBadPrefix
	}

	symbols := make([]prefixSymbol, 0, xpress_symbols)
	for i := 0; i < XPRESS_TABLE_SIZE; i++ {
		value := uint32(table[i])
		symbols = append(symbols,
			prefixSymbol{symbol: uint32(2 * i), length: value & 0xf},
			prefixSymbol{symbol: uint32(2*i + 1), length: value >> 4})
	}

	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].length != symbols[j].length {
			return symbols[i].length < symbols[j].length
		}
		return symbols[i].symbol < symbols[j].symbol
	})

	tree := &prefixTree{nodes: make([]prefixNode, xpress_max_nodes)}
	for i := range tree.nodes {
		tree.nodes[i].child = [2]int{-1, -1}
	}

	var mask, bits uint32 = 0, 1
	j := 1
	for _, symbol := range symbols {
		if symbol.length == 0 {
			continue
		}
		if j >= xpress_max_nodes {
			return nil, ErrXpressBadPrefix
		}

		tree.nodes[j].symbol = symbol.symbol
		tree.nodes[j].leaf = true

		mask <<= symbol.length - bits
		bits = symbol.length

		next, err := tree.addLeaf(j, mask, bits)
		if err != nil {
			return nil, err
		}
		j = next
		mask++
	}

	return tree, nil
}

func (self *prefixTree) addLeaf(leaf_index int, mask, bits uint32) (int, error) {
	node := 0
	i := leaf_index + 1

	for bits > 1 {
		bits--
		child_index := (mask >> bits) & 1
		if self.nodes[node].child[child_index] < 0 {
			if i >= len(self.nodes) {
				return 0, ErrXpressBadPrefix
			}
			self.nodes[node].child[child_index] = i
			self.nodes[i].leaf = false
			i++
		}
		node = self.nodes[node].child[child_index]
	}

	self.nodes[node].child[mask&1] = leaf_index
	return i, nil
}

func (self *prefixTree) decode(bstr *bitStream) (uint32, error) {
	node := 0
	for {
		bit := bstr.lookup(1)
		err := bstr.skip(1)
		if err != nil {
			return 0, err
		}

		next := self.nodes[node].child[bit]
		if next < 0 {
			return 0, ErrXpressNoChild
		}
		node = next
		if self.nodes[node].leaf {
			return self.nodes[node].symbol, nil
		}
	}
}
