package ntfs

import (
	"fmt"
	"io"

	"www.velocidex.com/golang/go-artifacts/compression"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// A Run is measured in clusters. Offset is relative to the previous
// run in the list.
type Run struct {
	RelativeOffset int64
	Length         int64
	Sparse         bool
}

func (self Run) String() string {
	if self.Sparse {
		return fmt.Sprintf("{sparse %d}", self.Length)
	}
	return fmt.Sprintf("{%d %d}", self.RelativeOffset, self.Length)
}

// DecodeRunList decodes the mapping pairs of a non resident
// attribute. A truncated pair ends the list.
func DecodeRunList(buffer []byte) []Run {
	result := []Run{}

	for offset := 0; offset < len(buffer); {
		// Consume the first byte off the stream.
		idx := buffer[offset]
		if idx == 0 {
			break
		}

		length_size := int(idx & 0xF)
		run_offset_size := int(idx >> 4)
		offset += 1

		if length_size > 8 || run_offset_size > 8 ||
			offset+length_size+run_offset_size > len(buffer) {
			utils.DebugPrint("Truncated run list at %d: %x\n", offset, idx)
			break
		}

		run_length := int64(0)
		for i := 0; i < length_size; i++ {
			run_length |= int64(buffer[offset+i]) << (8 * uint(i))
		}
		offset += length_size

		// Sign extend the last byte.
		relative_run_offset := int64(0)
		for i := 0; i < run_offset_size; i++ {
			relative_run_offset |= int64(buffer[offset+i]) << (8 * uint(i))
		}
		if run_offset_size > 0 && run_offset_size < 8 &&
			buffer[offset+run_offset_size-1]&0x80 != 0 {
			relative_run_offset -= 1 << (8 * uint(run_offset_size))
		}
		offset += run_offset_size

		result = append(result, Run{
			RelativeOffset: relative_run_offset,
			Length:         run_length,
			Sparse:         run_offset_size == 0,
		})
	}

	return result
}

// A ReaderRun maps FileOffset clusters of the stream to TargetOffset
// clusters of the disk.
type ReaderRun struct {
	FileOffset       int64
	TargetOffset     int64
	Length           int64
	CompressedLength int64
	Sparse           bool
	Reader           io.ReaderAt
}

func (self *ReaderRun) Decompress(cluster_size int64) ([]byte, error) {
	compressed, err := utils.ReadAtMost(self.Reader,
		self.TargetOffset*cluster_size, self.CompressedLength*cluster_size)
	if err != nil {
		return nil, err
	}

	return compression.DecompressLZNT1(compressed)
}

// Convert the NTFS relative runlist into an absolute run list.
func MakeReaderRuns(runs []Run, start_vcn int64, disk_reader io.ReaderAt) []ReaderRun {
	reader_runs := []ReaderRun{}
	file_offset := start_vcn
	target_offset := int64(0)

	for _, run := range runs {
		if !run.Sparse {
			target_offset += run.RelativeOffset
		}

		reader_runs = append(reader_runs, ReaderRun{
			FileOffset:   file_offset,
			TargetOffset: target_offset,
			Length:       run.Length,
			Sparse:       run.Sparse,
			Reader:       disk_reader,
		})
		file_offset += run.Length
	}
	return reader_runs
}

// An io.ReaderAt which works off runs. Reads are limited to size
// bytes.
type RunReader struct {
	runs         []ReaderRun
	cluster_size int64
	size         int64
}

func NewRunReader(runs []ReaderRun, cluster_size, size int64) *RunReader {
	return &RunReader{
		runs:         runs,
		cluster_size: cluster_size,
		size:         size,
	}
}

// NewCompressedRunReader splits the runs into compression units. A
// unit whose allocated clusters are followed by sparse clusters holds
// LZNT1 data.
func NewCompressedRunReader(runs []ReaderRun,
	cluster_size, size int64,
	compression_unit_size int64) *RunReader {

	normalized := []ReaderRun{}
	reader_runs := append([]ReaderRun{}, runs...)

	for i := 0; i < len(reader_runs); i++ {
		run := reader_runs[i]
		if run.Length <= 0 {
			continue
		}

		if run.Sparse {
			normalized = append(normalized, run)
			continue
		}

		if run.Length >= compression_unit_size {
			whole := run
			whole.Length = run.Length - run.Length%compression_unit_size
			normalized = append(normalized, whole)

			run.FileOffset += whole.Length
			run.TargetOffset += whole.Length
			run.Length -= whole.Length
		}

		if run.Length == 0 {
			continue
		}

		// The tail of the unit is sparse: this is compressed data.
		if i+1 < len(reader_runs) && reader_runs[i+1].Sparse &&
			reader_runs[i+1].Length+run.Length >= compression_unit_size {

			normalized = append(normalized, ReaderRun{
				FileOffset:       run.FileOffset,
				TargetOffset:     run.TargetOffset,
				Length:           compression_unit_size,
				CompressedLength: run.Length,
				Reader:           run.Reader,
			})
			reader_runs[i+1].Length -= compression_unit_size - run.Length
			reader_runs[i+1].FileOffset += compression_unit_size - run.Length
			continue
		}

		normalized = append(normalized, run)
	}

	utils.DebugPrint("compression_unit_size: %v\nRunlist: %v\nNormalized: %v\n",
		compression_unit_size, runs, normalized)

	return &RunReader{
		runs:         normalized,
		cluster_size: cluster_size,
		size:         size,
	}
}

func (self *RunReader) Size() int64 {
	return self.size
}

func (self *RunReader) readFromARun(
	run_idx int, buf []byte, run_offset int64) (int, error) {

	run := self.runs[run_idx]

	if run.CompressedLength > 0 {
		decompressed, err := run.Decompress(self.cluster_size)
		if err != nil {
			utils.STATS.Inc_DecompressionFailures()
			return 0, err
		}

		if run_offset >= int64(len(decompressed)) {
			// Decompressed units may be short; the rest is zeros.
			to_read := run.Length*self.cluster_size - run_offset
			if int64(len(buf)) < to_read {
				to_read = int64(len(buf))
			}
			for i := int64(0); i < to_read; i++ {
				buf[i] = 0
			}
			return int(to_read), nil
		}
		return copy(buf, decompressed[run_offset:]), nil
	}

	to_read := run.Length*self.cluster_size - run_offset
	if int64(len(buf)) < to_read {
		to_read = int64(len(buf))
	}

	// The run is sparse - zero fill.
	if run.Sparse {
		for i := int64(0); i < to_read; i++ {
			buf[i] = 0
		}
		return int(to_read), nil
	}

	return run.Reader.ReadAt(buf[:to_read],
		run.TargetOffset*self.cluster_size+run_offset)
}

func (self *RunReader) ReadAt(buf []byte, file_offset int64) (int, error) {
	if file_offset >= self.size {
		return 0, io.EOF
	}

	truncated := false
	if file_offset+int64(len(buf)) > self.size {
		buf = buf[:self.size-file_offset]
		truncated = true
	}

	buf_idx := 0

	// Find the run which covers the required offset.
	for j := 0; j < len(self.runs) && buf_idx < len(buf); j++ {
		run_file_offset := self.runs[j].FileOffset * self.cluster_size
		run_end_file_offset := run_file_offset +
			self.runs[j].Length*self.cluster_size

		if run_file_offset <= file_offset &&
			file_offset < run_end_file_offset {

			n, err := self.readFromARun(
				j, buf[buf_idx:], file_offset-run_file_offset)
			if err != nil && err != io.EOF {
				utils.DebugPrint("Reading run %v returned error %v\n",
					self.runs[j], err)
				return buf_idx, err
			}

			if n == 0 {
				utils.DebugPrint("Reading run %v returned no data\n",
					self.runs[j])
				break
			}

			buf_idx += n
			file_offset += int64(n)
		}
	}

	if buf_idx == 0 {
		utils.DebugPrint("Could not find runs for offset %d: %v\n",
			file_offset, self.runs)
		return 0, io.EOF
	}

	if truncated || buf_idx < len(buf) {
		return buf_idx, io.EOF
	}
	return buf_idx, nil
}
