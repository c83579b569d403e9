package ese

import (
	"io"

	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// ESE trees are shallow, a few levels even for very large tables.
const DefaultMaxDepth = 64

// Walker follows branch pages down to leaves. The page tracker is
// shared by every walk started from the same Walker so a page is
// visited at most once, which makes corrupt trees with cycles finite.
type Walker struct {
	Reader   io.ReaderAt
	PageSize uint32
	MaxDepth int

	Tracker map[uint32]bool
}

func NewWalker(reader io.ReaderAt, page_size uint32) *Walker {
	return &Walker{
		Reader:   reader,
		PageSize: page_size,
		MaxDepth: DefaultMaxDepth,
		Tracker:  make(map[uint32]bool),
	}
}

func (self *Walker) ReadPage(number uint32) (*Page, error) {
	data, err := utils.ReadExact(self.Reader,
		PageOffset(number, self.PageSize), int64(self.PageSize))
	if err != nil {
		return nil, err
	}
	utils.STATS.Inc_PagesRead()

	return ParsePage(data)
}

// Leaves walks the tree rooted at page depth first and calls cb for
// every leaf in tag order. Only a failure to read the starting page
// is an error, problems further down are logged and skipped.
func (self *Walker) Leaves(page uint32, cb func(leaf *Leaf)) error {
	self.Tracker[page] = true

	root, err := self.ReadPage(page)
	if err != nil {
		return err
	}

	self.walkPage(page, root, 0, true, cb)
	return nil
}

// Calls cb with the leaves on this page. Branches are followed only
// when recurse is set.
func (self *Walker) walkPage(number uint32, page *Page, depth int,
	recurse bool, cb func(leaf *Leaf)) {
	var common_key []byte
	is_leaf := page.Header.Flags.Has(PAGE_LEAF)

	for idx, tag := range page.Header.Tags {
		if tag.Flags.Has(TAG_DEFUNCT) {
			continue
		}

		data, err := page.TagData(tag)
		if err != nil {
			log.WithError(err).WithField("page", number).
				WithField("tag", idx).Warn("[ese] Tag outside page")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		// The first tag is the root header on root pages and the
		// common key prefix on all others.
		if idx == 0 {
			if page.Header.Flags.Has(PAGE_ROOT) {
				_, err = ParseRootHeader(data)
				if err != nil {
					log.WithError(err).WithField("page", number).
						Warn("[ese] Bad root header")
				}
			} else {
				common_key = data
			}
			continue
		}

		if is_leaf {
			if len(data) == 0 {
				continue
			}

			leaf, err := ParseLeaf(data, page.Header.Flags, common_key, tag.Flags)
			if err != nil {
				log.WithError(err).WithField("page", number).
					WithField("tag", idx).Warn("[ese] Failed to parse leaf")
				utils.STATS.Inc_RecordsSkipped()
				continue
			}
			cb(leaf)
			continue
		}

		if !recurse {
			continue
		}

		branch, err := ParseBranch(data, tag.Flags)
		if err != nil {
			log.WithError(err).WithField("page", number).
				WithField("tag", idx).Warn("[ese] Failed to parse branch")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		child := branch.ChildPage
		if self.Tracker[child] {
			utils.STATS.Inc_CyclesDetected()
			log.WithField("page", number).WithField("child", child).
				Warn("[ese] Branch points to a page already visited")
			return
		}
		self.Tracker[child] = true

		if depth+1 > self.MaxDepth {
			log.WithField("page", number).WithField("depth", depth).
				Warn("[ese] Tree too deep")
			return
		}

		child_page, err := self.ReadPage(child)
		if err != nil {
			log.WithError(err).WithField("child", child).
				Error("[ese] Could not read child page")
			continue
		}

		self.walkPage(child, child_page, depth+1, recurse, cb)
	}
}

// PageNumbers lists the pages of the tree rooted at first without
// decoding any rows, so a caller can drive the row decoding itself.
// The result is in depth first order and starts with first.
func (self *Walker) PageNumbers(first uint32) ([]uint32, error) {
	self.Tracker[first] = true

	page, err := self.ReadPage(first)
	if err != nil {
		return nil, err
	}

	pages := []uint32{first}
	self.collectPages(first, page, 0, &pages)
	return pages, nil
}

// Returns the next page pointer of this page.
func (self *Walker) collectPages(number uint32, page *Page,
	depth int, pages *[]uint32) uint32 {
	header := page.Header
	if header.Flags.Has(PAGE_EMPTY) || header.Flags.Has(PAGE_LEAF) {
		return header.NextPage
	}

	last := uint32(0)
	for idx, tag := range header.Tags {
		if idx == 0 || tag.Flags.Has(TAG_DEFUNCT) {
			continue
		}

		data, err := page.TagData(tag)
		if err != nil {
			log.WithError(err).WithField("page", number).
				Warn("[ese] Tag outside page")
			continue
		}

		branch, err := ParseBranch(data, tag.Flags)
		if err != nil {
			log.WithError(err).WithField("page", number).
				Warn("[ese] Failed to parse branch")
			continue
		}

		child := branch.ChildPage
		if self.Tracker[child] {
			utils.STATS.Inc_CyclesDetected()
			log.WithField("page", number).WithField("child", child).
				Warn("[ese] Branch points to a page already visited")
			return 0
		}
		self.Tracker[child] = true
		*pages = append(*pages, child)

		if depth+1 > self.MaxDepth {
			return 0
		}

		child_page, err := self.ReadPage(child)
		if err != nil {
			log.WithError(err).WithField("child", child).
				Error("[ese] Could not read child page")
			continue
		}
		last = self.collectPages(child, child_page, depth+1, pages)
	}

	// The last leaf normally has no next page. If it does there is
	// one more page the branch keys did not cover.
	if last != 0 && !self.Tracker[last] {
		self.Tracker[last] = true
		*pages = append(*pages, last)
	}

	return header.NextPage
}

// PageLeaves returns the leaves stored directly on one page.
func (self *Walker) PageLeaves(number uint32, cb func(leaf *Leaf)) error {
	page, err := self.ReadPage(number)
	if err != nil {
		return err
	}
	self.walkPage(number, page, 0, false, cb)
	return nil
}

// LongValues collects the long value tree of a table. Keys are the
// full leaf keys.
func (self *Walker) LongValues(page uint32) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := self.Leaves(page, func(leaf *Leaf) {
		if leaf.Type != LEAF_LONG_VALUE {
			return
		}
		result[string(leaf.Key())] = leaf.Data
	})
	return result, err
}
