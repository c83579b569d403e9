package registry

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	REGF_SIGNATURE = 0x66676572 // regf

	HIVE_HEADER_SIZE = 4096

	// All cell offsets are relative to the first hbin, right after
	// the base block.
	HBIN_START = 0x1000

	checksum_dwords = 127
)

type HiveHeader struct {
	Signature         uint32
	PrimarySequence   uint32
	SecondarySequence uint32
	LastWritten       uint64
	MajorVersion      uint32
	MinorVersion      uint32
	FileType          uint32
	FileFormat        uint32
	RootCellOffset    uint32
	HiveBinsDataSize  uint32
	ClusteringFactor  uint32
	FileName          string
	Checksum          uint32
}

func (self *HiveHeader) DebugString() string {
	return fmt.Sprintf("regf v%d.%d root %#x seq %d/%d checksum %#x\n",
		self.MajorVersion, self.MinorVersion, self.RootCellOffset,
		self.PrimarySequence, self.SecondarySequence, self.Checksum)
}

// A hive is dirty when a write was interrupted between the two
// sequence number updates. The transaction logs hold the missing
// data.
func (self *HiveHeader) IsDirty() bool {
	return self.PrimarySequence != self.SecondarySequence
}

// HeaderChecksum is the XOR of the first 508 bytes taken as little
// endian dwords. The values 0 and -1 are reserved.
func HeaderChecksum(data []byte) (uint32, error) {
	if len(data) < checksum_dwords*4 {
		return 0, utils.Incomplete("regf checksum needs %d bytes, have %d",
			checksum_dwords*4, len(data))
	}

	var result uint32
	for i := 0; i < checksum_dwords; i++ {
		v, _ := utils.GetU32LE(data, int64(i*4))
		result ^= v
	}

	switch result {
	case 0xFFFFFFFF:
		result = 0xFFFFFFFE
	case 0:
		result = 1
	}
	return result, nil
}

func (self *HiveHeader) ChecksumValid(data []byte) bool {
	expected, err := HeaderChecksum(data)
	if err != nil {
		return false
	}
	return expected == self.Checksum
}

func ParseHiveHeader(data []byte) (*HiveHeader, error) {
	cursor := utils.NewCursor(data)
	result := &HiveHeader{}

	var err error
	for _, field := range []*uint32{
		&result.Signature, &result.PrimarySequence, &result.SecondarySequence} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	if result.Signature != REGF_SIGNATURE {
		return nil, utils.BadFormat("Invalid regf signature %#x", result.Signature)
	}

	result.LastWritten, err = cursor.U64LE()
	if err != nil {
		return nil, err
	}

	for _, field := range []*uint32{
		&result.MajorVersion, &result.MinorVersion, &result.FileType,
		&result.FileFormat, &result.RootCellOffset, &result.HiveBinsDataSize,
		&result.ClusteringFactor} {
		*field, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}

	name, err := cursor.Take(64)
	if err != nil {
		return nil, err
	}
	result.FileName = utils.ExtractUTF16String(name)

	result.Checksum, err = utils.GetU32LE(data, checksum_dwords*4)
	if err != nil {
		return nil, err
	}

	return result, nil
}
