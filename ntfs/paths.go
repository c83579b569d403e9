package ntfs

import (
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	ORPHAN_MARKER = "$Orphan"
	CYCLE_MARKER  = "$Cycle"
)

func pathKey(index uint64, sequence uint16) uint64 {
	return index | uint64(sequence)<<48
}

// preferredName picks the name used for path building. Short DOS
// names are only used when nothing else exists.
func preferredName(entry *MFTEntry) *FileName {
	var result *FileName
	for _, fn := range entry.FileNames {
		if fn.Namespace != NAMESPACE_DOS {
			return fn
		}
		if result == nil {
			result = fn
		}
	}
	return result
}

func (self *MFTContext) getCachedPath(key uint64) (string, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	path, pres := self.PathCache[key]
	return path, pres
}

func (self *MFTContext) setCachedPath(key uint64, path string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.PathCache[key] = path
}

// ResolvePath builds the full path of the entry as reached through
// this $FILE_NAME, and the directory holding it. Unresolvable parents
// produce a marker component instead of an error.
func (self *MFTContext) ResolvePath(entry *MFTEntry, fn *FileName) (
	full_path string, directory string) {

	if entry.Index == ROOT_INDEX {
		return ".", "."
	}

	if fn.ParentIndex == ROOT_INDEX {
		directory = "."

	} else if cached, pres := self.getCachedPath(
		pathKey(fn.ParentIndex, fn.ParentSequence)); pres {
		directory = cached

	} else {
		visited := map[uint64]bool{entry.Index: true}
		directory = self.lookupParent(fn.ParentIndex, fn.ParentSequence,
			visited, 0)
	}

	full_path = directory + "\\" + fn.Name

	// Only directories are ever parents.
	if entry.IsDir() && fn.Namespace != NAMESPACE_DOS {
		self.setCachedPath(pathKey(entry.Index, entry.Sequence), full_path)
	}

	return full_path, directory
}

func (self *MFTContext) lookupParent(index uint64, sequence uint16,
	visited map[uint64]bool, depth int) string {

	if index == ROOT_INDEX {
		return "."
	}

	key := pathKey(index, sequence)
	cached, pres := self.getCachedPath(key)
	if pres {
		return cached
	}

	max_depth := self.Options().MaxDirectoryDepth
	if depth > max_depth {
		utils.STATS.Inc_UnresolvedPaths()
		log.WithField("index", index).WithField("depth", depth).
			Warn("Directory too deep")
		return CYCLE_MARKER
	}

	if visited[index] {
		err := utils.CycleDetected("MFT entry %d revisited", index)
		log.WithError(err).WithField("index", index).Warn("Parent cycle")
		return CYCLE_MARKER
	}
	visited[index] = true

	parent, err := self.GetEntry(index)
	if err != nil || parent == nil {
		return self.orphan(index, "Parent unreadable")
	}

	// The parent slot was reused so the original directory is gone.
	if parent.Sequence != sequence || !parent.InUse() {
		return self.orphan(index, "Parent reallocated")
	}

	if !parent.IsDir() {
		return self.orphan(index, "Parent is not a directory")
	}

	fn := preferredName(parent)
	if fn == nil {
		return self.orphan(index, "Parent has no name")
	}

	var path string
	if fn.ParentIndex == ROOT_INDEX {
		path = ".\\" + fn.Name
	} else {
		path = self.lookupParent(fn.ParentIndex, fn.ParentSequence,
			visited, depth+1) + "\\" + fn.Name
	}

	self.setCachedPath(key, path)
	return path
}

func (self *MFTContext) orphan(index uint64, reason string) string {
	utils.STATS.Inc_UnresolvedPaths()
	utils.DebugPrint("MFT %d: %s\n", index, reason)
	return ORPHAN_MARKER
}
