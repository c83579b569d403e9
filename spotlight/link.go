package spotlight

import (
	"strings"

	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	DefaultMaxPathDepth = 256

	// The volume root and its parent.
	root_inode        = 2
	root_parent_inode = 1
)

type linkEntry struct {
	parent uint64
	name   string
}

// Linker remembers the name and parent of every inode it is given so
// paths can be built for records seen in an earlier batch.
type Linker struct {
	entries  map[uint64]linkEntry
	MaxDepth int
}

func NewLinker() *Linker {
	return &Linker{
		entries:  make(map[uint64]linkEntry),
		MaxDepth: DefaultMaxPathDepth,
	}
}

func (self *Linker) Add(records []*Record) {
	for _, record := range records {
		self.entries[record.Inode] = linkEntry{
			parent: record.ParentInode,
			name:   record.Name(),
		}
	}
}

// LinkEntries sets Path on every record by following parent inodes.
// Chains that leave the set of records are rooted under $Orphan and
// chains that loop under $Cycle.
func LinkEntries(records []*Record) {
	linker := NewLinker()
	linker.Add(records)
	for _, record := range records {
		record.Path = linker.Path(record)
	}
}

func (self *Linker) Path(record *Record) string {
	components := []string{}
	seen := make(map[uint64]bool)
	prefix := ""

	inode := record.Inode
	current := linkEntry{parent: record.ParentInode, name: record.Name()}
	for depth := 0; ; depth++ {
		seen[inode] = true
		if inode == root_inode {
			break
		}

		if current.name != "" {
			components = append(components, current.name)
		}

		parent_inode := current.parent
		if parent_inode == root_inode || parent_inode == root_parent_inode ||
			parent_inode == 0 {
			break
		}

		if depth >= self.MaxDepth {
			prefix = "$Cycle"
			utils.STATS.Inc_UnresolvedPaths()
			break
		}

		parent, pres := self.entries[parent_inode]
		if !pres {
			prefix = "$Orphan"
			utils.STATS.Inc_UnresolvedPaths()
			break
		}

		if seen[parent_inode] {
			err := utils.CycleDetected("Inode %d parent chain revisits %d",
				record.Inode, parent_inode)
			log.WithError(err).Warn("[spotlight] Path cycle")
			prefix = "$Cycle"
			break
		}
		inode = parent_inode
		current = parent
	}

	if prefix != "" {
		components = append(components, prefix)
	}

	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return "/" + strings.Join(components, "/")
}
