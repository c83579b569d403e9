package registry

import (
	"regexp"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type WalkOptions struct {
	// Only keys at or below this path are emitted. Matching is case
	// insensitive and includes the root key name.
	StartPath string

	// Only keys whose full path matches are emitted.
	PathFilter *regexp.Regexp

	MaxDepth int
}

func GetDefaultWalkOptions() WalkOptions {
	return WalkOptions{MaxDepth: 512}
}

// CompilePathFilter builds a case insensitive filter. An empty
// expression matches everything.
func CompilePathFilter(expression string) (*regexp.Regexp, error) {
	if expression == "" {
		return nil, nil
	}
	result, err := regexp.Compile("(?i)" + expression)
	if err != nil {
		return nil, utils.BadFormat("Invalid path filter %q: %v", expression, err)
	}
	return result, nil
}

type RegistryEntry struct {
	Path           string   `json:"path"`
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	Values         []*Value `json:"values"`
	LastModified   int64    `json:"last_modified"`
	Depth          int      `json:"depth"`
	SecurityOffset int32    `json:"security_offset"`
}

func (self *RegistryEntry) ToDict() *ordereddict.Dict {
	values := make([]*ordereddict.Dict, 0, len(self.Values))
	for _, v := range self.Values {
		values = append(values, v.ToDict())
	}

	return ordereddict.NewDict().
		Set("path", self.Path).
		Set("key", self.Key).
		Set("name", self.Name).
		Set("values", values).
		Set("last_modified", self.LastModified).
		Set("depth", self.Depth).
		Set("security_offset", self.SecurityOffset)
}

func (self *RegistryEntry) GetValue(name string) (*Value, bool) {
	for _, v := range self.Values {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// The offsets of the keys on the current path. A key that appears
// twice on the same path means the subkey lists loop.
type offsetTracker map[uint32]bool

type hiveWalker struct {
	hive       *Hive
	options    WalkOptions
	start_path string
	visited    offsetTracker
	cb         func(entry *RegistryEntry)
}

// WalkHive visits every key depth first starting at the root cell.
func WalkHive(hive *Hive, options WalkOptions, cb func(entry *RegistryEntry)) error {
	if options.MaxDepth <= 0 {
		options.MaxDepth = GetDefaultWalkOptions().MaxDepth
	}

	root, err := hive.NameKey(hive.Header.RootCellOffset)
	if err != nil {
		return err
	}

	walker := &hiveWalker{
		hive:       hive,
		options:    options,
		start_path: strings.ToLower(strings.Trim(options.StartPath, "\\")),
		visited:    offsetTracker{},
		cb:         cb,
	}

	walker.walk(root, "", 0)
	return nil
}

func (self *hiveWalker) walk(key *NameKey, parent_path string, depth int) {
	path := key.Name
	if parent_path != "" {
		path = parent_path + "\\" + key.Name
	}

	if !self.onStartPath(path) {
		return
	}

	self.visited[key.Offset] = true
	defer delete(self.visited, key.Offset)

	if self.wanted(path) {
		self.cb(&RegistryEntry{
			Path:           path,
			Key:            parent_path,
			Name:           key.Name,
			Values:         self.hive.Values(key),
			LastModified:   utils.FiletimeToUnix(key.LastWritten),
			Depth:          depth,
			SecurityOffset: int32(key.SecurityOffset),
		})
	}

	if key.SubkeyCount == 0 || key.SubkeyListOff == INVALID_OFFSET {
		return
	}

	if depth+1 > self.options.MaxDepth {
		log.WithField("path", path).
			WithField("depth", depth).
			Warn("Registry key nesting exceeds maximum depth, skipping subkeys")
		return
	}

	offsets, err := self.hive.SubkeyOffsets(key.SubkeyListOff)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Bad subkey list")
		return
	}

	for _, offset := range offsets {
		if self.visited[offset] {
			err := utils.CycleDetected("key %#x revisited under %v", offset, path)
			log.WithError(err).Warn("Registry walk")
			continue
		}

		child, err := self.hive.NameKey(offset)
		if err != nil {
			utils.STATS.Inc_RecordsSkipped()
			utils.DebugPrint("Subkey %#x of %v: %v\n", offset, path, err)
			continue
		}
		self.walk(child, path, depth+1)
	}
}

// A key is on the start path when either path is a prefix of the
// other: ancestors still need to be descended into.
func (self *hiveWalker) onStartPath(path string) bool {
	if self.start_path == "" {
		return true
	}
	lower := strings.ToLower(path)
	return isBelow(lower, self.start_path) ||
		strings.HasPrefix(self.start_path, lower+"\\")
}

func isBelow(path, ancestor string) bool {
	return path == ancestor || strings.HasPrefix(path, ancestor+"\\")
}

func (self *hiveWalker) wanted(path string) bool {
	if self.start_path != "" &&
		!isBelow(strings.ToLower(path), self.start_path) {
		return false
	}
	if self.options.PathFilter != nil && !self.options.PathFilter.MatchString(path) {
		return false
	}
	return true
}

// GetRegistryKeys collects all matching entries.
func GetRegistryKeys(hive *Hive, options WalkOptions) ([]*RegistryEntry, error) {
	result := []*RegistryEntry{}
	err := WalkHive(hive, options, func(entry *RegistryEntry) {
		result = append(result, entry)
	})
	return result, err
}
