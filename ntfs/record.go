package ntfs

import (
	"context"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// MFTRecord is one row per file name of an MFT entry.
type MFTRecord struct {
	Index          uint64   `json:"inode"`
	Sequence       uint16   `json:"sequence"`
	Filename       string   `json:"filename"`
	Directory      string   `json:"directory"`
	FullPath       string   `json:"full_path"`
	Extension      string   `json:"extension"`
	Created        string   `json:"created"`
	Modified       string   `json:"modified"`
	Changed        string   `json:"changed"`
	Accessed       string   `json:"accessed"`
	FNCreated      string   `json:"filename_created"`
	FNModified     string   `json:"filename_modified"`
	FNChanged      string   `json:"filename_changed"`
	FNAccessed     string   `json:"filename_accessed"`
	Size           int64    `json:"size"`
	IsFile         bool     `json:"is_file"`
	IsDirectory    bool     `json:"is_directory"`
	Deleted        bool     `json:"deleted"`
	Attributes     []string `json:"attributes"`
	Namespace      string   `json:"namespace"`
	USN            uint64   `json:"usn"`
	ParentIndex    uint64   `json:"parent_inode"`
	ParentSequence uint16   `json:"parent_sequence"`
	AttributeList  []string `json:"attribute_list"`
	LinkCount      uint16   `json:"link_count"`
}

func (self *MFTRecord) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("inode", self.Index).
		Set("sequence", self.Sequence).
		Set("filename", self.Filename).
		Set("directory", self.Directory).
		Set("full_path", self.FullPath).
		Set("extension", self.Extension).
		Set("created", self.Created).
		Set("modified", self.Modified).
		Set("changed", self.Changed).
		Set("accessed", self.Accessed).
		Set("filename_created", self.FNCreated).
		Set("filename_modified", self.FNModified).
		Set("filename_changed", self.FNChanged).
		Set("filename_accessed", self.FNAccessed).
		Set("size", self.Size).
		Set("is_file", self.IsFile).
		Set("is_directory", self.IsDirectory).
		Set("deleted", self.Deleted).
		Set("attributes", self.Attributes).
		Set("namespace", self.Namespace).
		Set("usn", self.USN).
		Set("parent_inode", self.ParentIndex).
		Set("parent_sequence", self.ParentSequence).
		Set("attribute_list", self.AttributeList).
		Set("link_count", self.LinkCount)
}

// reportedNames applies the short name and link options.
func reportedNames(entry *MFTEntry, options Options) []*FileName {
	result := []*FileName{}
	for _, fn := range entry.FileNames {
		if fn.Namespace == NAMESPACE_DOS && !options.IncludeShortNames &&
			len(entry.FileNames) > 1 {
			continue
		}
		result = append(result, fn)
	}

	if options.MaxLinks > 0 && len(result) > options.MaxLinks {
		result = result[:options.MaxLinks]
	}
	return result
}

// Records converts an entry into one row per reported file name.
func (self *MFTContext) Records(entry *MFTEntry) []*MFTRecord {
	options := self.Options()
	result := []*MFTRecord{}

	for _, fn := range reportedNames(entry, options) {
		row := &MFTRecord{
			Index:          entry.Index,
			Sequence:       entry.Sequence,
			Filename:       fn.Name,
			FullPath:       fn.Name,
			Extension:      fn.Extension(),
			FNCreated:      utils.FiletimeToISO(fn.Created),
			FNModified:     utils.FiletimeToISO(fn.Modified),
			FNChanged:      utils.FiletimeToISO(fn.MFTModified),
			FNAccessed:     utils.FiletimeToISO(fn.Accessed),
			Size:           entry.Size(),
			IsDirectory:    entry.IsDir(),
			IsFile:         !entry.IsDir(),
			Deleted:        !entry.InUse(),
			Namespace:      fn.Namespace.String(),
			ParentIndex:    fn.ParentIndex,
			ParentSequence: fn.ParentSequence,
			AttributeList:  entry.AttributeNames(),
			LinkCount:      entry.LinkCount,
		}

		flags := fn.Flags
		si := entry.StandardInformation
		if si != nil {
			row.Created = utils.FiletimeToISO(si.Created)
			row.Modified = utils.FiletimeToISO(si.Modified)
			row.Changed = utils.FiletimeToISO(si.MFTModified)
			row.Accessed = utils.FiletimeToISO(si.Accessed)
			row.USN = si.USN
			flags = si.Flags
		}
		row.Attributes = FileAttributeNames(flags)

		// Directories do not carry a $DATA stream.
		if row.Size == 0 && !entry.IsDir() {
			row.Size = int64(fn.RealSize)
		}

		if !options.DisableFullPathResolution {
			row.FullPath, row.Directory = self.ResolvePath(entry, fn)
		}

		result = append(result, row)
	}

	return result
}

// ParseMFTFile streams rows for every base record starting at
// start_entry. Unreadable records are skipped.
func ParseMFTFile(ctx context.Context,
	ntfs *MFTContext, start_entry uint64) chan *MFTRecord {

	output := make(chan *MFTRecord)

	go func() {
		defer close(output)

		count := ntfs.EntryCount()
		for id := start_entry; id < count; id++ {
			entry, err := ntfs.GetEntry(id)
			if err != nil {
				utils.STATS.Inc_RecordsSkipped()
				utils.DebugPrint("MFT %d: %v\n", id, err)
				continue
			}

			// Extension records are merged into their base.
			if entry == nil || entry.IsExtension() {
				continue
			}

			for _, row := range ntfs.Records(entry) {
				select {
				case <-ctx.Done():
					return
				case output <- row:
				}
			}
		}
	}()

	return output
}
