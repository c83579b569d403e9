package prefetch

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	VERSION_XP    = 17
	VERSION_VISTA = 23
	VERSION_WIN8  = 26
	VERSION_WIN10 = 30

	max_run_times = 8

	// Version 30 comes in two sizes distinguished by where the file
	// metrics start.
	win10_variant_large = 304
	win10_variant_small = 296
)

// FileInformation follows the header and locates the other sections.
type FileInformation struct {
	MetricsOffset      uint32
	NumberFiles        uint32
	TraceChainOffset   uint32
	NumberTraceChains  uint32
	FilenameOffset     uint32
	FilenameSize       uint32
	VolumeInfoOffset   uint32
	NumberVolumes      uint32
	VolumeInfoSize     uint32
	RunTimes           []int64
	RunCount           uint32
	MetricsEntrySize   int64
	VolumeEntrySize    int64
}

func ParseFileInformation(data []byte, version uint32) (*FileInformation, error) {
	cursor := utils.NewCursor(data)
	if err := cursor.Seek(header_size); err != nil {
		return nil, err
	}

	result := &FileInformation{}
	for _, field := range []*uint32{
		&result.MetricsOffset, &result.NumberFiles,
		&result.TraceChainOffset, &result.NumberTraceChains,
		&result.FilenameOffset, &result.FilenameSize,
		&result.VolumeInfoOffset, &result.NumberVolumes,
		&result.VolumeInfoSize} {
		value, err := cursor.U32LE()
		if err != nil {
			return nil, err
		}
		*field = value
	}

	var run_time_count int
	var run_count_offset int

	switch version {
	case VERSION_XP:
		run_time_count = 1
		run_count_offset = 0x90
		result.MetricsEntrySize = 20
		result.VolumeEntrySize = 40

	case VERSION_VISTA:
		run_time_count = 1
		run_count_offset = 0x98
		result.MetricsEntrySize = 32
		result.VolumeEntrySize = 104

	case VERSION_WIN8:
		run_time_count = max_run_times
		run_count_offset = 0xD0
		result.MetricsEntrySize = 32
		result.VolumeEntrySize = 104

	case VERSION_WIN10:
		run_time_count = max_run_times
		result.MetricsEntrySize = 32
		result.VolumeEntrySize = 96

		switch result.MetricsOffset {
		case win10_variant_large:
			run_count_offset = 0xD0
		case win10_variant_small:
			run_count_offset = 0xC8
		default:
			return nil, utils.Unsupported(
				"Unknown version 30 variant with metrics at %d",
				result.MetricsOffset)
		}

	default:
		return nil, utils.Unsupported("Prefetch version %d", version)
	}

	// XP has no extra field before the run times.
	run_times_offset := 0x80
	if version == VERSION_XP {
		run_times_offset = 0x78
	}

	result.RunTimes = []int64{}
	for i := 0; i < run_time_count; i++ {
		run_time, err := utils.GetU64LE(data, int64(run_times_offset+i*8))
		if err != nil {
			return nil, err
		}

		// Unused slots are zero.
		if run_time == 0 {
			continue
		}
		result.RunTimes = append(result.RunTimes, utils.FiletimeToUnix(run_time))
	}

	var err error
	result.RunCount, err = utils.GetU32LE(data, int64(run_count_offset))
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (self *FileInformation) LastRunTime() int64 {
	if len(self.RunTimes) == 0 {
		return 0
	}
	return self.RunTimes[0]
}
