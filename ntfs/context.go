package ntfs

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	DEFAULT_RECORD_SIZE = 1024

	mft_entry_cache_size = 10000
)

type MFTContext struct {
	// The reader over the disk. Only needed to read non resident
	// attributes.
	DiskReader io.ReaderAt

	// The reader over the $MFT stream.
	MFTReader io.ReaderAt
	MFTSize   int64

	Boot        *NTFSBootSector
	ClusterSize int64
	RecordSize  int64

	mu      sync.Mutex
	options Options

	entry_lru *utils.LRU[uint64, *MFTEntry]

	// Resolved directory paths keyed by index | sequence << 48.
	PathCache map[uint64]string
}

func newMFTContext(options Options) (*MFTContext, error) {
	entry_lru, err := utils.NewLRU[uint64, *MFTEntry](
		mft_entry_cache_size, nil, "MFTEntries")
	if err != nil {
		return nil, err
	}

	return &MFTContext{
		options:    options,
		RecordSize: DEFAULT_RECORD_SIZE,
		entry_lru:  entry_lru,
		PathCache:  make(map[uint64]string),
	}, nil
}

// NewMFTContext works over an extracted $MFT file. The record size is
// taken from the first record.
func NewMFTContext(mft io.ReaderAt, size int64, options Options) (*MFTContext, error) {
	self, err := newMFTContext(options)
	if err != nil {
		return nil, err
	}

	header, err := utils.ReadExact(mft, 0, MFT_ENTRY_HEADER_SIZE)
	if err != nil {
		return nil, err
	}

	signature, _ := utils.GetU32LE(header, 0)
	if signature != FILE_SIGNATURE {
		return nil, utils.BadFormat("$MFT starts with %#x", signature)
	}

	allocated, _ := utils.GetU32LE(header, 28)
	switch allocated {
	case 1024, 4096:
		self.RecordSize = int64(allocated)
	default:
		log.WithField("allocated", allocated).
			Warn("Unexpected MFT record size, using 1024")
	}

	err = self.setMFTReader(mft, size)
	if err != nil {
		return nil, err
	}

	return self, nil
}

// GetNTFSContext bootstraps from the boot sector of a volume starting
// at offset in the image.
func GetNTFSContext(image io.ReaderAt, offset int64, options Options) (*MFTContext, error) {
	disk, err := utils.NewPagedReader(
		&utils.OffsetReader{Offset: offset, Reader: image}, 0x1000, 10000)
	if err != nil {
		return nil, err
	}

	boot_data, err := utils.ReadExact(disk, 0, BOOT_SECTOR_SIZE)
	if err != nil {
		return nil, err
	}

	boot, err := ParseBootSector(boot_data)
	if err != nil {
		return nil, err
	}
	utils.DebugPrint(boot.DebugString())

	self, err := newMFTContext(options)
	if err != nil {
		return nil, err
	}
	self.DiskReader = disk
	self.Boot = boot
	self.ClusterSize = boot.ClusterSize()
	self.RecordSize = boot.RecordSize()

	raw, err := utils.ReadExact(disk, boot.MFTOffset(), self.RecordSize)
	if err != nil {
		return nil, err
	}

	root_entry, err := ParseMFTEntry(raw, 0)
	if err != nil {
		return nil, err
	}
	if root_entry == nil {
		return nil, utils.BadFormat("$MFT record is empty")
	}

	// Bootstrap from the $DATA in the first record. This is enough
	// to find any extension records holding the rest of the runs.
	data_attrs := root_entry.FindAttributes(ATTR_TYPE_DATA, "")
	if len(data_attrs) == 0 {
		return nil, utils.BadFormat("$MFT has no $DATA stream")
	}

	reader, size, err := self.AttributeReader(data_attrs...)
	if err != nil {
		return nil, err
	}

	err = self.setMFTReader(reader, size)
	if err != nil {
		return nil, err
	}

	if len(root_entry.AttributeList) > 0 {
		full_entry, err := self.GetEntry(0)
		if err != nil {
			return nil, err
		}

		all_data := full_entry.FindAttributes(ATTR_TYPE_DATA, "")
		if len(all_data) > len(data_attrs) {
			reader, size, err = self.AttributeReader(all_data...)
			if err != nil {
				return nil, err
			}

			err = self.setMFTReader(reader, size)
			if err != nil {
				return nil, err
			}
			self.entry_lru.Purge()
		}
	}

	return self, nil
}

func (self *MFTContext) setMFTReader(reader io.ReaderAt, size int64) error {
	paged, err := utils.NewPagedReader(reader, 0x1000, 1000)
	if err != nil {
		return err
	}
	self.MFTReader = paged
	self.MFTSize = size
	return nil
}

func (self *MFTContext) SetOptions(options Options) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.options = options
}

func (self *MFTContext) Options() Options {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.options
}

// EntryCount is the number of records in the $MFT stream.
func (self *MFTContext) EntryCount() uint64 {
	if self.RecordSize <= 0 {
		return 0
	}
	return uint64(self.MFTSize / self.RecordSize)
}

func (self *MFTContext) Close() {
	if utils.DebugEnabled() {
		fmt.Println(utils.STATS.DebugString())
		fmt.Println(self.entry_lru.DebugString())
	}
	self.Purge()
}

func (self *MFTContext) Purge() {
	self.entry_lru.Purge()

	self.mu.Lock()
	self.PathCache = make(map[uint64]string)
	self.mu.Unlock()

	// Try to flush our readers if possible
	for _, reader := range []io.ReaderAt{self.MFTReader, self.DiskReader} {
		flusher, ok := reader.(utils.Flusher)
		if ok {
			flusher.Flush()
		}
	}
}

func (self *MFTContext) Stats() *ordereddict.Dict {
	hits, miss := self.entry_lru.Stats()

	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("EntryCacheHits", hits).
		Set("EntryCacheMiss", miss).
		Set("CachedEntries", self.entry_lru.Len()).
		Set("CachedPaths", len(self.PathCache))
}

// getDirectEntry parses a record without following its attribute
// list.
func (self *MFTContext) getDirectEntry(index uint64) (*MFTEntry, error) {
	if self.MFTReader == nil {
		return nil, utils.BadFormat("No $MFT reader")
	}

	if index >= self.EntryCount() {
		return nil, utils.BadFormat("MFT entry %d out of range (%d entries)",
			index, self.EntryCount())
	}

	raw, err := utils.ReadExact(self.MFTReader,
		int64(index)*self.RecordSize, self.RecordSize)
	if err != nil {
		return nil, err
	}

	return ParseMFTEntry(raw, index)
}

// GetEntry returns the parsed record at index. Attributes held in
// extension records are merged in. Free slots return nil, nil.
func (self *MFTContext) GetEntry(index uint64) (*MFTEntry, error) {
	cached, pres := self.entry_lru.Get(index)
	if pres {
		return cached, nil
	}

	entry, err := self.getDirectEntry(index)
	if err != nil || entry == nil {
		return entry, err
	}

	self.expandAttributeList(entry)
	self.entry_lru.Add(index, entry)

	return entry, nil
}

func (self *MFTContext) expandAttributeList(entry *MFTEntry) {
	list_attr := entry.FindAttribute(ATTR_TYPE_ATTRIBUTE_LIST, "")
	if list_attr == nil {
		return
	}

	if !list_attr.Resident {
		data, err := self.ReadAttribute(list_attr)
		if err != nil {
			utils.DebugPrint("MFT %d: reading $ATTRIBUTE_LIST: %v\n",
				entry.Index, err)
			return
		}
		entry.AttributeList = ParseAttributeList(data)
	}

	// Extension records only ever point back to their base, so we
	// only go one level deep.
	extensions := make(map[uint64]*MFTEntry)
	for _, item := range entry.AttributeList {
		if item.BaseIndex == entry.Index {
			continue
		}

		ext, pres := extensions[item.BaseIndex]
		if !pres {
			var err error
			ext, err = self.getDirectEntry(item.BaseIndex)
			if err != nil || ext == nil {
				utils.DebugPrint("MFT %d: extension record %d: %v\n",
					entry.Index, item.BaseIndex, err)
				continue
			}

			if ext.BaseIndex != entry.Index {
				utils.DebugPrint("MFT %d: extension record %d belongs to %d\n",
					entry.Index, item.BaseIndex, ext.BaseIndex)
				continue
			}
			extensions[item.BaseIndex] = ext
		}

		for _, attr := range ext.Attributes {
			if attr.Type == item.Type && attr.ID == item.AttributeID {
				entry.addAttribute(attr)
				break
			}
		}
	}
}

// AttributeReader returns a reader over an attribute's stream. A non
// resident stream may be split over several attributes (one per VCN
// range). The stream is capped at Options.MaxAttributeSize.
func (self *MFTContext) AttributeReader(attrs ...*Attribute) (io.ReaderAt, int64, error) {
	if len(attrs) == 0 {
		return nil, 0, utils.BadFormat("No attribute")
	}

	if attrs[0].Resident {
		return bytes.NewReader(attrs[0].Content), int64(len(attrs[0].Content)), nil
	}

	if self.DiskReader == nil || self.ClusterSize <= 0 {
		return nil, 0, utils.Unsupported(
			"Non resident %v needs a volume", attrs[0].Type)
	}

	sorted := append([]*Attribute{}, attrs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartVCN < sorted[j].StartVCN
	})

	// Only the first attribute of the stream records its size.
	size := sorted[0].ActualSize
	max_size := self.Options().MaxAttributeSize
	if max_size > 0 && size > max_size {
		log.WithField("type", sorted[0].Type.String()).
			WithField("size", size).
			Warn("Attribute too large, truncating")
		size = max_size
	}

	runs := []ReaderRun{}
	for _, attr := range sorted {
		runs = append(runs, MakeReaderRuns(
			attr.Runs, int64(attr.StartVCN), self.DiskReader)...)
	}

	if sorted[0].IsCompressed() {
		return NewCompressedRunReader(runs, self.ClusterSize, size,
			int64(1)<<uint64(sorted[0].CompressionUnit)), size, nil
	}

	return NewRunReader(runs, self.ClusterSize, size), size, nil
}

// ReadAttribute reads an attribute's stream into memory.
func (self *MFTContext) ReadAttribute(attrs ...*Attribute) ([]byte, error) {
	reader, size, err := self.AttributeReader(attrs...)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		return []byte{}, nil
	}

	return utils.ReadAtMost(reader, 0, size)
}
