package registry

import (
	"strings"

	"github.com/Velocidex/ordereddict"
)

// The Amcache.hve keys that describe executed files.
const AMCACHE_PATH_FILTER = `root\\(inventoryapplicationfile|file)\\.*`

// Windows 8 stores files under Root\File\<volume>\<id>
const legacy_amcache_depth = 5

type AmcacheEntry struct {
	FirstExecution int64  `json:"first_execution"`
	Path           string `json:"path"`
	Name           string `json:"name"`
	OriginalName   string `json:"original_name"`
	Version        string `json:"version"`
	BinaryType     string `json:"binary_type"`
	ProductVersion string `json:"product_version"`
	ProductName    string `json:"product_name"`
	Language       string `json:"language"`
	FileID         string `json:"file_id"`
	LinkDate       string `json:"link_date"`
	PathHash       string `json:"path_hash"`
	ProgramID      string `json:"program_id"`
	Publisher      string `json:"publisher"`
	Usn            string `json:"usn"`
	Size           string `json:"size"`
	SHA1           string `json:"sha1"`
	RegPath        string `json:"reg_path"`
}

func (self *AmcacheEntry) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("first_execution", self.FirstExecution).
		Set("path", self.Path).
		Set("name", self.Name).
		Set("original_name", self.OriginalName).
		Set("version", self.Version).
		Set("binary_type", self.BinaryType).
		Set("product_version", self.ProductVersion).
		Set("product_name", self.ProductName).
		Set("language", self.Language).
		Set("file_id", self.FileID).
		Set("link_date", self.LinkDate).
		Set("path_hash", self.PathHash).
		Set("program_id", self.ProgramID).
		Set("publisher", self.Publisher).
		Set("usn", self.Usn).
		Set("size", self.Size).
		Set("sha1", self.SHA1).
		Set("reg_path", self.RegPath)
}

// AdjustID drops the zero padding Windows prepends to ProgramId and
// FileId.
func AdjustID(id string, count int) string {
	if len(id) < count {
		return id
	}
	return id[count:]
}

// ParseAmcache converts the file keys of an Amcache hive. Entries
// should come from a walk filtered with AMCACHE_PATH_FILTER but
// anything else is ignored.
func ParseAmcache(entries []*RegistryEntry) []*AmcacheEntry {
	result := []*AmcacheEntry{}

	for _, entry := range entries {
		item := &AmcacheEntry{
			FirstExecution: entry.LastModified,
			RegPath:        entry.Path,
		}

		switch {
		case strings.Contains(entry.Path, "Root\\File\\") &&
			len(strings.Split(entry.Path, "\\")) == legacy_amcache_depth:
			extractLegacyEntry(entry, item)

		case strings.Contains(entry.Path, "InventoryApplicationFile"):
			extractEntry(entry, item)

		default:
			continue
		}

		result = append(result, item)
	}

	return result
}

// Older hives name their values with hex numbers.
func extractLegacyEntry(entry *RegistryEntry, item *AmcacheEntry) {
	for _, value := range entry.Values {
		switch value.Name {
		case "0":
			item.ProductName = value.Data
		case "1":
			item.Publisher = value.Data
		case "2":
			item.ProductVersion = value.Data
		case "3":
			item.Language = value.Data
		case "5":
			item.Version = value.Data
		case "6":
			item.Size = value.Data
		case "f":
			item.LinkDate = value.Data
		case "15":
			item.Path = value.Data
		case "100":
			item.ProgramID = AdjustID(value.Data, 3)
		case "101":
			item.SHA1 = AdjustID(value.Data, 4)
		}
	}
}

func extractEntry(entry *RegistryEntry, item *AmcacheEntry) {
	for _, value := range entry.Values {
		switch value.Name {
		case "Language":
			item.Language = value.Data
		case "LinkDate":
			item.LinkDate = value.Data
		case "LongPathHash":
			item.PathHash = value.Data
		case "LowerCaseLongPath":
			item.Path = value.Data
		case "Name":
			item.Name = value.Data
		case "OriginalFileName":
			item.OriginalName = value.Data
		case "ProductName":
			item.ProductName = value.Data
		case "ProductVersion":
			item.ProductVersion = value.Data
		case "ProgramId":
			item.ProgramID = AdjustID(value.Data, 3)
		case "Publisher":
			item.Publisher = value.Data
		case "Size":
			item.Size = value.Data
		case "Usn":
			item.Usn = value.Data
		case "Version":
			item.Version = value.Data
		case "BinaryType":
			item.BinaryType = value.Data
		case "FileId":
			item.FileID = AdjustID(value.Data, 4)
			item.SHA1 = item.FileID
		}
	}
}
