package spotlight

import (
	"io"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Records are handed out in batches this large.
const DefaultBatchSize = 10000

type Store struct {
	Reader io.ReaderAt
	Header *StoreHeader
	Blocks []uint32

	BatchSize int
}

// OpenStore reads the store header and its block map.
func OpenStore(reader io.ReaderAt) (*Store, error) {
	data, err := utils.ReadExact(reader, 0, STORE_HEADER_SIZE)
	if err != nil {
		return nil, err
	}

	header, err := ParseStoreHeader(data)
	if err != nil {
		return nil, err
	}

	// Some stores leave the map offset empty, the map then follows
	// the header.
	map_offset := int64(header.MapOffset)
	if map_offset == 0 {
		map_offset = STORE_HEADER_SIZE
	}

	map_data, err := utils.ReadExact(reader, map_offset, int64(header.MapSize))
	if err != nil {
		return nil, errors.Wrap(err, "Spotlight block map")
	}

	return &Store{
		Reader:    reader,
		Header:    header,
		Blocks:    ParseBlockMap(map_data),
		BatchSize: DefaultBatchSize,
	}, nil
}

// ReadPage returns the decompressed records area of the property
// page at block.
func (self *Store) ReadPage(block uint32) ([]byte, error) {
	offset := int64(block) * BLOCK_UNIT
	header_data, err := utils.ReadExact(self.Reader, offset, PAGE_HEADER_SIZE)
	if err != nil {
		return nil, err
	}
	utils.STATS.Inc_PagesRead()

	header, err := ParsePageHeader(header_data)
	if err != nil {
		return nil, err
	}

	if !header.Compressed() {
		return nil, utils.Unsupported("Property page type %#x is not LZ4 compressed",
			header.Type)
	}

	body, err := utils.ReadExact(self.Reader, offset+PAGE_HEADER_SIZE,
		int64(header.PageSize)-PAGE_HEADER_SIZE)
	if err != nil {
		return nil, err
	}

	data, err := DecompressPage(body)
	if err != nil {
		return nil, err
	}

	// The declared size counts the page header too.
	if header.UncompressedSize >= PAGE_HEADER_SIZE &&
		len(data) != int(header.UncompressedSize-PAGE_HEADER_SIZE) {
		log.WithField("block", block).WithField("size", len(data)).
			WithField("expected", header.UncompressedSize-PAGE_HEADER_SIZE).
			Warn("[spotlight] Decompressed page size mismatch")
	}

	return data, nil
}

// Walk decodes every property page once and calls cb with batches of
// at most BatchSize records. Pages that fail are logged and skipped.
func (self *Store) Walk(meta *Meta, cb func(batch []*Record)) {
	batch_size := self.BatchSize
	if batch_size <= 0 {
		batch_size = DefaultBatchSize
	}

	tracker := make(map[uint32]bool)
	batch := make([]*Record, 0, batch_size)

	for _, block := range self.Blocks {
		if tracker[block] {
			err := utils.CycleDetected("Block %d listed twice", block)
			log.WithError(err).Warn("[spotlight] Skipping block")
			continue
		}
		tracker[block] = true

		data, err := self.ReadPage(block)
		if err != nil {
			log.WithError(err).WithField("block", block).
				Warn("[spotlight] Could not read property page")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		ParseRecords(data, meta, self.Header.Path, func(record *Record) {
			batch = append(batch, record)
			if len(batch) >= batch_size {
				cb(batch)
				batch = make([]*Record, 0, batch_size)
			}
		})
	}

	if len(batch) > 0 {
		cb(batch)
	}
}
