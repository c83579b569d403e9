package ntfs

import (
	"fmt"

	"www.velocidex.com/golang/go-artifacts/utils"
)

const BOOT_SECTOR_SIZE = 512

type NTFSBootSector struct {
	OEMName           string
	SectorSize        uint16
	SectorsPerCluster uint8
	VolumeSize        uint64
	MFTCluster        uint64
	MFTMirrCluster    uint64
	RawRecordSize     int8
	RawIndexSize      int8
	Serial            uint64
	Magic             uint16
}

func ParseBootSector(data []byte) (*NTFSBootSector, error) {
	if len(data) < BOOT_SECTOR_SIZE {
		return nil, utils.Incomplete("Boot sector needs %d bytes, have %d",
			BOOT_SECTOR_SIZE, len(data))
	}

	result := &NTFSBootSector{
		OEMName: string(data[3:11]),
	}
	result.SectorSize, _ = utils.GetU16LE(data, 0x0B)
	result.SectorsPerCluster, _ = utils.GetU8(data, 0x0D)
	result.VolumeSize, _ = utils.GetU64LE(data, 0x28)
	result.MFTCluster, _ = utils.GetU64LE(data, 0x30)
	result.MFTMirrCluster, _ = utils.GetU64LE(data, 0x38)
	record_size, _ := utils.GetU8(data, 0x40)
	result.RawRecordSize = int8(record_size)
	index_size, _ := utils.GetU8(data, 0x44)
	result.RawIndexSize = int8(index_size)
	result.Serial, _ = utils.GetU64LE(data, 0x48)
	result.Magic, _ = utils.GetU16LE(data, 0x1FE)

	err := result.IsValid()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (self *NTFSBootSector) ClusterSize() int64 {
	// Values above 0x80 encode a negative power of two.
	spc := int64(self.SectorsPerCluster)
	if self.SectorsPerCluster > 0x80 {
		spc = 1 << uint(256-int(self.SectorsPerCluster))
	}
	return spc * int64(self.SectorSize)
}

func (self *NTFSBootSector) BlockCount() int64 {
	cluster_size := self.ClusterSize()
	if cluster_size == 0 {
		return 0
	}
	return int64(self.VolumeSize) * int64(self.SectorSize) / cluster_size
}

// A positive record size counts clusters, a negative one is a power
// of two in bytes.
func (self *NTFSBootSector) RecordSize() int64 {
	if self.RawRecordSize > 0 {
		return int64(self.RawRecordSize) * self.ClusterSize()
	}
	return 1 << uint32(-int32(self.RawRecordSize))
}

func (self *NTFSBootSector) MFTOffset() int64 {
	return int64(self.MFTCluster) * self.ClusterSize()
}

func (self *NTFSBootSector) DebugString() string {
	return fmt.Sprintf("NTFS boot: cluster %d record %d mft @ %#x serial %X\n",
		self.ClusterSize(), self.RecordSize(), self.MFTOffset(), self.Serial)
}

func (self *NTFSBootSector) IsValid() error {
	if self.Magic != 0xaa55 {
		return utils.BadFormat("Invalid boot sector magic %#x", self.Magic)
	}

	switch self.ClusterSize() {
	case 0x200, 0x400, 0x800, 0x1000, 0x2000, 0x4000, 0x8000,
		0x10000, 0x20000, 0x40000, 0x80000, 0x100000, 0x200000:
	default:
		return utils.BadFormat("Invalid cluster size %x", self.ClusterSize())
	}

	if self.SectorSize == 0 || self.SectorSize%512 != 0 {
		return utils.BadFormat("Invalid sector size %d", self.SectorSize)
	}

	if self.BlockCount() == 0 {
		return utils.BadFormat("Volume size is 0")
	}

	return nil
}
