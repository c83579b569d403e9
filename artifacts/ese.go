package artifacts

import (
	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/ese"
	"www.velocidex.com/golang/go-artifacts/output"
)

type ESEOptions struct {
	Fs   afero.Fs
	Path string

	// Tables to dump. All tables when empty.
	Tables []string
}

func GetDefaultESEOptions() ESEOptions {
	return ESEOptions{
		Path: `C:\ProgramData\Microsoft\Search\Data\Applications\Windows\Windows.edb`,
	}
}

// ParseESE dumps tables of an ESE database. Rows carry the name of
// their table.
func ParseESE(options ESEOptions, sink *output.Sink, filter bool) error {
	source, err := openSource(defaultFs(options.Fs), options.Path)
	if err != nil {
		return err
	}
	defer source.Close()

	context, err := ese.NewESEContext(source)
	if err != nil {
		return errors.Wrapf(err, "ESE %v", options.Path)
	}

	catalog, err := context.Catalog()
	if err != nil {
		return errors.Wrapf(err, "ESE %v", options.Path)
	}

	tables := options.Tables
	if len(tables) == 0 {
		tables = catalog.Tables()
	}

	batcher := sink.NewBatcher(ESE, filter)

	var add_err error
	for _, table := range tables {
		err := context.DumpTable(table, func(row *ordereddict.Dict) {
			if add_err == nil {
				add_err = batcher.Add(ordereddict.NewDict().
					Set("table", table).
					Set("row", row))
			}
		})
		if add_err != nil {
			break
		}
		if err != nil {
			logSkipped(ESE, table, err)
		}
	}

	return closeBatcher(batcher, add_err)
}
