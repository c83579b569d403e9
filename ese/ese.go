package ese

import (
	"io"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type ESEContext struct {
	Reader io.ReaderAt
	Header *DatabaseHeader

	mu      sync.Mutex
	catalog *Catalog
}

func NewESEContext(reader io.ReaderAt) (*ESEContext, error) {
	header, err := ReadDatabaseHeader(reader)
	if err != nil {
		return nil, err
	}

	return &ESEContext{
		Reader: reader,
		Header: header,
	}, nil
}

// Every walk gets its own page tracker. Walks over different trees
// must not see each other's pages.
func (self *ESEContext) NewWalker() *Walker {
	return NewWalker(self.Reader, self.Header.PageSize)
}

// Catalog is read once on first use.
func (self *ESEContext) Catalog() (*Catalog, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.catalog != nil {
		return self.catalog, nil
	}

	catalog, err := ReadCatalog(self.NewWalker())
	if err != nil {
		return nil, errors.Wrap(err, "Reading catalog")
	}
	self.catalog = catalog
	return catalog, nil
}

// DumpTable calls cb with each row of the named table. A table
// missing from the catalog is an error, bad rows are not.
func (self *ESEContext) DumpTable(name string, cb func(row *ordereddict.Dict)) error {
	catalog, err := self.Catalog()
	if err != nil {
		return err
	}

	table, err := catalog.GetTableInfo(name)
	if err != nil {
		return err
	}

	parser := &RowParser{Table: table}
	if table.LongValuePage != 0 {
		parser.LongValues, err = self.NewWalker().LongValues(table.LongValuePage)
		if err != nil {
			utils.DebugPrint("ESE: long values for %v: %v\n", name, err)
		}
	}

	return self.NewWalker().TableRows(table.Page, parser.ParseRow, cb)
}
