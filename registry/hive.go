package registry

import (
	"io"

	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Hives are small enough to hold in memory. Cells reference each
// other all over the file so random access into a buffer is the
// simplest model.
type Hive struct {
	Data   []byte
	Header *HiveHeader
}

func NewHive(data []byte) (*Hive, error) {
	header, err := ParseHiveHeader(data)
	if err != nil {
		return nil, err
	}

	if header.IsDirty() {
		log.WithField("primary", header.PrimarySequence).
			WithField("secondary", header.SecondarySequence).
			Warn("Registry hive is dirty, recent changes may be missing")
	}

	if !header.ChecksumValid(data) {
		utils.DebugPrint("regf checksum mismatch: stored %#x\n", header.Checksum)
	}

	return &Hive{Data: data, Header: header}, nil
}

func NewHiveFromReader(reader io.ReaderAt, size int64) (*Hive, error) {
	data, err := utils.ReadAtMost(reader, 0, size)
	if err != nil {
		return nil, err
	}
	return NewHive(data)
}

// Big data segments only exist in hives newer than 1.3
func (self *Hive) SupportsBigData() bool {
	return self.Header.MinorVersion > 3
}

// Cell returns the cell at the hbin relative offset.
func (self *Hive) Cell(offset uint32) (*Cell, error) {
	return ParseCell(self.Data, offset)
}
