package prefetch

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/compression"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type Options struct {
	// Decode whatever the Xpress stream yielded when it ends early.
	AllowPartialDecompression bool
}

func GetDefaultOptions() Options {
	return Options{AllowPartialDecompression: true}
}

type PrefetchRecord struct {
	Path                     string   `json:"path"`
	Filename                 string   `json:"filename"`
	Hash                     string   `json:"hash"`
	LastRunTime              int64    `json:"last_run_time"`
	AllRunTimes              []int64  `json:"all_run_times"`
	RunCount                 uint32   `json:"run_count"`
	Size                     uint32   `json:"size"`
	VolumeSerial             []string `json:"volume_serial"`
	VolumeCreation           []int64  `json:"volume_creation"`
	VolumePath               []string `json:"volume_path"`
	AccessedFilesCount       uint32   `json:"accessed_files_count"`
	AccessedDirectoriesCount uint32   `json:"accessed_directories_count"`
	AccessedFiles            []string `json:"accessed_files"`
	AccessedDirectories      []string `json:"accessed_directories"`
}

func (self *PrefetchRecord) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("path", self.Path).
		Set("filename", self.Filename).
		Set("hash", self.Hash).
		Set("last_run_time", self.LastRunTime).
		Set("all_run_times", self.AllRunTimes).
		Set("run_count", self.RunCount).
		Set("size", self.Size).
		Set("volume_serial", self.VolumeSerial).
		Set("volume_creation", self.VolumeCreation).
		Set("volume_path", self.VolumePath).
		Set("accessed_files_count", self.AccessedFilesCount).
		Set("accessed_directories_count", self.AccessedDirectoriesCount).
		Set("accessed_files", self.AccessedFiles).
		Set("accessed_directories", self.AccessedDirectories)
}

// Decompress returns the plain prefetch data. Uncompressed files are
// returned as is.
func Decompress(data []byte, options Options) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}

	header, err := ParseCompressedHeader(data)
	if err != nil {
		return nil, err
	}

	xpress_options := compression.GetDefaultXpressOptions()
	xpress_options.AllowPartial = options.AllowPartialDecompression

	result, err := compression.DecompressXpressHuffmanWithOptions(
		data[compressed_header_size:], int(header.UncompressedSize),
		xpress_options)
	if err != nil {
		return nil, errors.Wrap(err, "Prefetch")
	}
	return result, nil
}

// ParsePrefetchData decodes a prefetch file in either its compressed
// or plain form.
func ParsePrefetchData(data []byte, path string, options Options) (
	*PrefetchRecord, error) {
	plain, err := Decompress(data, options)
	if err != nil {
		return nil, err
	}

	return parsePlain(plain, path)
}

func parsePlain(data []byte, path string) (*PrefetchRecord, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	info, err := ParseFileInformation(data, header.Version)
	if err != nil {
		return nil, err
	}

	metrics, err := ParseFileMetrics(data, info)
	if err != nil {
		return nil, err
	}

	volumes, err := ParseVolumes(data, info)
	if err != nil {
		return nil, err
	}

	result := &PrefetchRecord{
		Path:                path,
		Filename:            header.Filename,
		Hash:                header.Hash,
		LastRunTime:         info.LastRunTime(),
		AllRunTimes:         info.RunTimes,
		RunCount:            info.RunCount,
		Size:                header.Size,
		VolumeSerial:        []string{},
		VolumeCreation:      []int64{},
		VolumePath:          []string{},
		AccessedFilesCount:  info.NumberFiles,
		AccessedFiles:       AccessedFiles(data, info, metrics),
		AccessedDirectories: []string{},
	}

	for _, volume := range volumes {
		result.VolumeSerial = append(result.VolumeSerial,
			fmt.Sprintf("%X", volume.Serial))
		result.VolumeCreation = append(result.VolumeCreation, volume.Creation)
		result.VolumePath = append(result.VolumePath, volume.Path)
		result.AccessedDirectoriesCount += volume.NumberDirectories
		result.AccessedDirectories = append(result.AccessedDirectories,
			volume.Directories...)
	}

	return result, nil
}

type FileMetric struct {
	StartTime      uint32
	Duration       uint32
	FilenameOffset uint32
	FilenameLength uint32
	Flags          uint32
	FileReference  uint64
}

func ParseFileMetrics(data []byte, info *FileInformation) ([]*FileMetric, error) {
	result := []*FileMetric{}

	for i := int64(0); i < int64(info.NumberFiles); i++ {
		entry, err := utils.Slice(data,
			int64(info.MetricsOffset)+i*info.MetricsEntrySize,
			info.MetricsEntrySize)
		if err != nil {
			return nil, errors.Wrapf(err, "File metric %d", i)
		}

		metric := &FileMetric{}
		metric.StartTime, _ = utils.GetU32LE(entry, 0)
		metric.Duration, _ = utils.GetU32LE(entry, 4)

		if info.MetricsEntrySize == 20 {
			metric.FilenameOffset, _ = utils.GetU32LE(entry, 8)
			metric.FilenameLength, _ = utils.GetU32LE(entry, 12)
			metric.Flags, _ = utils.GetU32LE(entry, 16)
		} else {
			metric.FilenameOffset, _ = utils.GetU32LE(entry, 12)
			metric.FilenameLength, _ = utils.GetU32LE(entry, 16)
			metric.Flags, _ = utils.GetU32LE(entry, 20)
			metric.FileReference, _ = utils.GetU64LE(entry, 24)
		}

		result = append(result, metric)
	}

	return result, nil
}

// AccessedFiles resolves the metric filenames. A name outside the
// filename section is logged and skipped.
func AccessedFiles(data []byte, info *FileInformation,
	metrics []*FileMetric) []string {
	result := []string{}

	for idx, metric := range metrics {
		name, err := utils.Slice(data,
			int64(info.FilenameOffset)+int64(metric.FilenameOffset),
			int64(metric.FilenameLength)*2)
		if err != nil {
			log.WithError(err).WithField("metric", idx).
				Warn("Prefetch filename out of bounds")
			continue
		}
		result = append(result, utils.ExtractUTF16String(name))
	}

	return result
}

type Volume struct {
	Path              string
	Creation          int64
	Serial            uint32
	NumberDirectories uint32
	Directories       []string
}

func ParseVolumes(data []byte, info *FileInformation) ([]*Volume, error) {
	result := []*Volume{}
	base := int64(info.VolumeInfoOffset)

	for i := int64(0); i < int64(info.NumberVolumes); i++ {
		entry, err := utils.Slice(data, base+i*info.VolumeEntrySize,
			info.VolumeEntrySize)
		if err != nil {
			return nil, errors.Wrapf(err, "Volume %d", i)
		}

		path_offset, _ := utils.GetU32LE(entry, 0)
		path_length, _ := utils.GetU32LE(entry, 4)
		creation, _ := utils.GetU64LE(entry, 8)
		serial, _ := utils.GetU32LE(entry, 16)
		directories_offset, _ := utils.GetU32LE(entry, 28)
		number_directories, _ := utils.GetU32LE(entry, 32)

		volume := &Volume{
			Creation:          utils.FiletimeToUnix(creation),
			Serial:            serial,
			NumberDirectories: number_directories,
		}

		path, err := utils.Slice(data, base+int64(path_offset),
			int64(path_length)*2)
		if err != nil {
			return nil, errors.Wrapf(err, "Volume %d path", i)
		}
		volume.Path = utils.ExtractUTF16String(path)

		volume.Directories, err = parseDirectoryStrings(data,
			base+int64(directories_offset), number_directories)
		if err != nil {
			return nil, errors.Wrapf(err, "Volume %d directories", i)
		}

		result = append(result, volume)
	}

	return result, nil
}

// Each directory string is a u16 character count followed by the
// NUL terminated UTF-16 string.
func parseDirectoryStrings(data []byte, offset int64, count uint32) ([]string, error) {
	result := []string{}
	cursor := utils.NewCursor(data)
	if err := cursor.Seek(int(offset)); err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		length, err := cursor.U16LE()
		if err != nil {
			return nil, err
		}

		value, err := cursor.Take((int(length) + 1) * 2)
		if err != nil {
			return nil, err
		}
		result = append(result, utils.ExtractUTF16String(value))
	}

	return result, nil
}
