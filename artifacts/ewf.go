package artifacts

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	ewfLib "github.com/aarsakian/EWF_Reader/ewf"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type ewfSource struct {
	image ewfLib.EWF_Image
	size  int64
}

// Segments of an image are named .E01, .E02 and so on next to the
// first one.
func findSegments(path string) ([]string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	matches, err := filepath.Glob(base + ".[Ee][0-9][0-9]")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []string{path}, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return strings.ToLower(matches[i]) < strings.ToLower(matches[j])
	})
	return matches, nil
}

func openEWF(path string) (Source, error) {
	segments, err := findSegments(path)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "EWF %v: %v", path, err)
	}

	result := &ewfSource{}
	result.image.ParseEvidence(segments)
	result.size = int64(result.image.Chuncksize) * int64(result.image.NofChunks)
	if result.size <= 0 {
		return nil, errors.Wrapf(utils.ErrDeviceOpen, "EWF %v: empty image", path)
	}

	utils.DebugPrint("EWF image %v: %d segments, %d bytes\n",
		path, len(segments), result.size)
	return result, nil
}

func (self *ewfSource) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= self.size {
		return 0, io.EOF
	}

	length := int64(len(buf))
	if offset+length > self.size {
		length = self.size - offset
	}

	data := self.image.RetrieveData(offset, length)
	n := copy(buf, data)
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (self *ewfSource) Size() int64 {
	return self.size
}

func (self *ewfSource) Close() error {
	return nil
}
