package ntfs

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Parse USN records
// https://docs.microsoft.com/en-us/windows/win32/api/winioctl/ns-winioctl-usn_record_v2

const (
	USN_RECORD_HEADER_SIZE = 60
	MAX_USN_RECORD_SIZE    = 1024

	// $Extend is always this entry. $UsnJrnl lives inside it.
	EXTEND_INDEX = 11

	USN_JOURNAL_NAME   = "$UsnJrnl"
	USN_JOURNAL_STREAM = "$J"

	usn_window_size = 1024 * 1024
)

var usn_reasons = []struct {
	flag uint32
	name string
}{
	{0x00000001, "Overwrite"},
	{0x00000002, "Extend"},
	{0x00000004, "Truncation"},
	{0x00000010, "NamedOverwrite"},
	{0x00000020, "NamedExtend"},
	{0x00000040, "NamedTruncation"},
	{0x00000100, "FileCreate"},
	{0x00000200, "FileDelete"},
	{0x00000400, "EAChange"},
	{0x00000800, "SecurityChange"},
	{0x00001000, "RenameOldName"},
	{0x00002000, "RenameNewName"},
	{0x00004000, "IndexableChange"},
	{0x00008000, "BasicInfoChange"},
	{0x00010000, "HardLinkChange"},
	{0x00020000, "CompressionChange"},
	{0x00040000, "EncryptionChange"},
	{0x00080000, "ObjectIDChange"},
	{0x00100000, "ReparsePointChange"},
	{0x00200000, "StreamChange"},
	{0x00400000, "TransactedChange"},
	{0x80000000, "Close"},
}

type USNRecord struct {
	// Offset of the record in the $J stream.
	Offset         int64
	Index          uint64
	Sequence       uint16
	ParentIndex    uint64
	ParentSequence uint16
	Usn            uint64
	Timestamp      uint64
	Reason         uint32
	SourceInfo     uint32
	SecurityID     uint32
	FileAttributes uint32
	Filename       string
	FullPath       string
}

func (self *USNRecord) Reasons() []string {
	result := []string{}
	for _, r := range usn_reasons {
		if self.Reason&r.flag != 0 {
			result = append(result, r.name)
		}
	}
	return result
}

func (self *USNRecord) Source() string {
	switch self.SourceInfo {
	case 1:
		return "DataManagement"
	case 2:
		return "AuxiliaryData"
	case 4:
		return "ReplicationManagement"
	}
	return "None"
}

func (self *USNRecord) Extension() string {
	idx := strings.LastIndex(self.Filename, ".")
	if idx < 0 {
		return ""
	}
	return self.Filename[idx+1:]
}

func (self *USNRecord) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("mft_entry", self.Index).
		Set("mft_sequence", self.Sequence).
		Set("parent_mft_entry", self.ParentIndex).
		Set("parent_mft_sequence", self.ParentSequence).
		Set("update_sequence_number", self.Usn).
		Set("update_time", utils.FiletimeToISO(self.Timestamp)).
		Set("update_reason", self.Reasons()).
		Set("update_source_flags", self.Source()).
		Set("security_descriptor_id", self.SecurityID).
		Set("file_attributes", FileAttributeNames(self.FileAttributes)).
		Set("filename", self.Filename).
		Set("extension", self.Extension()).
		Set("full_path", self.FullPath).
		Set("offset", self.Offset)
}

// ParseUSNRecord decodes a USN_RECORD_V2 at data[0]. offset is only
// used to label the record.
func ParseUSNRecord(data []byte, offset int64) (*USNRecord, error) {
	if len(data) < USN_RECORD_HEADER_SIZE {
		return nil, utils.Incomplete("USN record is %d bytes", len(data))
	}

	length, _ := utils.GetU32LE(data, 0)
	if length < USN_RECORD_HEADER_SIZE || length > MAX_USN_RECORD_SIZE ||
		length%8 != 0 {
		return nil, utils.BadFormat("USN record length %d", length)
	}
	if int(length) > len(data) {
		return nil, utils.Incomplete("USN record needs %d bytes, have %d",
			length, len(data))
	}

	major, _ := utils.GetU16LE(data, 4)
	switch major {
	case 2:
	case 3, 4:
		return nil, utils.Unsupported("USN_RECORD_V%d", major)
	default:
		return nil, utils.BadFormat("USN record version %d", major)
	}

	cursor := utils.NewCursor(data[:length])
	_ = cursor.Seek(8)

	result := &USNRecord{Offset: offset}
	ref, _ := cursor.U64LE()
	result.Index, result.Sequence = SplitReference(ref)
	ref, _ = cursor.U64LE()
	result.ParentIndex, result.ParentSequence = SplitReference(ref)
	result.Usn, _ = cursor.U64LE()
	result.Timestamp, _ = cursor.U64LE()
	result.Reason, _ = cursor.U32LE()
	result.SourceInfo, _ = cursor.U32LE()
	result.SecurityID, _ = cursor.U32LE()
	result.FileAttributes, _ = cursor.U32LE()

	name_length, _ := cursor.U16LE()
	name_offset, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}

	if name_offset < USN_RECORD_HEADER_SIZE {
		return nil, utils.BadFormat("USN name offset %d", name_offset)
	}

	name, err := utils.Slice(data[:length], int64(name_offset), int64(name_length))
	if err != nil {
		return nil, utils.BadFormat("USN name %d+%d outside record of %d",
			name_offset, name_length, length)
	}
	result.Filename = utils.ExtractUTF16String(name)

	return result, nil
}

// scanUSNRecords walks the records in data, which starts at stream
// offset base. Zero padding and garbage are skipped 8 bytes at a
// time. A record running off the end of a non final window is left
// for the next window. Returns how much of data was used, and false
// when the callback asked to stop.
func scanUSNRecords(data []byte, base int64, final bool,
	cb func(record *USNRecord) bool) (int, bool) {
	pos := 0
	for pos+8 <= len(data) {
		length, _ := utils.GetU32LE(data, int64(pos))
		if length == 0 {
			pos += 8
			continue
		}

		if pos+int(length) > len(data) && !final &&
			length <= MAX_USN_RECORD_SIZE {
			return pos, true
		}

		record, err := ParseUSNRecord(data[pos:], base+int64(pos))
		if err != nil {
			utils.DebugPrint("USN record at %d: %v\n", base+int64(pos), err)
			pos += 8
			continue
		}

		if !cb(record) {
			return pos, false
		}
		pos += int(length)
	}

	return len(data), true
}

// USNRange is a part of the $J stream which holds data. Most of a
// live journal is sparse.
type USNRange struct {
	Offset int64
	Length int64
}

type USNStream struct {
	Reader io.ReaderAt
	Size   int64
	Ranges []USNRange
}

// NewUSNStream wraps an extracted $J file. The whole file is scanned.
func NewUSNStream(reader io.ReaderAt, size int64) *USNStream {
	return &USNStream{
		Reader: reader,
		Size:   size,
		Ranges: []USNRange{{Offset: 0, Length: size}},
	}
}

// FindChild scans the MFT for an in use entry called name inside the
// directory parent. Directory indexes are not parsed so this is a
// linear walk.
func (self *MFTContext) FindChild(parent uint64, name string) (*MFTEntry, error) {
	count := self.EntryCount()
	for id := uint64(0); id < count; id++ {
		entry, err := self.getDirectEntry(id)
		if err != nil || entry == nil ||
			!entry.InUse() || entry.IsExtension() {
			continue
		}

		for _, fn := range entry.FileNames {
			if fn.ParentIndex == parent && strings.EqualFold(fn.Name, name) {
				return self.GetEntry(id)
			}
		}
	}

	return nil, utils.BadFormat("%v not found in MFT entry %d", name, parent)
}

// OpenUSNStream locates $Extend\$UsnJrnl:$J and maps its allocated
// ranges.
func (self *MFTContext) OpenUSNStream() (*USNStream, error) {
	entry, err := self.FindChild(EXTEND_INDEX, USN_JOURNAL_NAME)
	if err != nil {
		return nil, err
	}

	attrs := entry.FindAttributes(ATTR_TYPE_DATA, USN_JOURNAL_STREAM)
	if len(attrs) == 0 {
		return nil, utils.BadFormat("Can not find $Extend\\%v:%v",
			USN_JOURNAL_NAME, USN_JOURNAL_STREAM)
	}

	if attrs[0].Resident {
		return NewUSNStream(bytes.NewReader(attrs[0].Content),
			int64(len(attrs[0].Content))), nil
	}

	if self.DiskReader == nil || self.ClusterSize <= 0 {
		return nil, utils.Unsupported("Non resident %v needs a volume",
			USN_JOURNAL_STREAM)
	}

	sorted := append([]*Attribute{}, attrs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartVCN < sorted[j].StartVCN
	})

	// The journal is not capped by MaxAttributeSize since only the
	// allocated ranges are ever read.
	size := sorted[0].ActualSize
	runs := []ReaderRun{}
	for _, attr := range sorted {
		runs = append(runs, MakeReaderRuns(
			attr.Runs, int64(attr.StartVCN), self.DiskReader)...)
	}

	result := &USNStream{
		Reader: NewRunReader(runs, self.ClusterSize, size),
		Size:   size,
	}

	for _, run := range runs {
		if run.Sparse {
			continue
		}

		offset := run.FileOffset * self.ClusterSize
		length := run.Length * self.ClusterSize
		if offset >= size {
			continue
		}
		if offset+length > size {
			length = size - offset
		}

		last := len(result.Ranges) - 1
		if last >= 0 &&
			result.Ranges[last].Offset+result.Ranges[last].Length == offset {
			result.Ranges[last].Length += length
			continue
		}
		result.Ranges = append(result.Ranges, USNRange{
			Offset: offset, Length: length})
	}

	return result, nil
}

// ResolveUSNPath builds the path from the parent directory. The file
// itself may be gone by now but its parent usually is not. A parent
// whose slot was reused resolves to the orphan marker.
func (self *MFTContext) ResolveUSNPath(record *USNRecord) string {
	entry := &MFTEntry{Index: record.Index, Sequence: record.Sequence}
	full_path, _ := self.ResolvePath(entry, &FileName{
		ParentIndex:    record.ParentIndex,
		ParentSequence: record.ParentSequence,
		Name:           record.Filename,
	})
	return full_path
}

// ParseUSN sends every record of the stream at or after
// starting_offset. Paths are resolved when ntfs is not nil.
func ParseUSN(ctx context.Context, ntfs *MFTContext,
	stream *USNStream, starting_offset int64) chan *USNRecord {

	output := make(chan *USNRecord)

	resolve := ntfs != nil && !ntfs.Options().DisableFullPathResolution

	go func() {
		defer close(output)

		send := func(record *USNRecord) bool {
			if record.Offset < starting_offset {
				return true
			}

			if resolve {
				record.FullPath = ntfs.ResolveUSNPath(record)
			}

			select {
			case <-ctx.Done():
				return false
			case output <- record:
				return true
			}
		}

		for _, rng := range stream.Ranges {
			end := rng.Offset + rng.Length
			if end <= starting_offset {
				continue
			}

			for offset := rng.Offset; offset < end; {
				to_read := utils.CapInt64(end-offset, usn_window_size)
				data, err := utils.ReadAtMost(stream.Reader, offset, to_read)
				if err != nil || len(data) == 0 {
					log.WithError(err).WithField("offset", offset).
						Warn("[ntfs] Unable to read $J")
					break
				}

				final := offset+int64(len(data)) >= end
				used, ok := scanUSNRecords(data, offset, final, send)
				if !ok {
					return
				}
				if used == 0 {
					used = len(data)
				}
				offset += int64(used)
			}
		}
	}()

	return output
}
