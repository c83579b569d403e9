package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/spotlight"
)

const spotlight_store_file = "store.db"

type SpotlightOptions struct {
	Fs afero.Fs

	// A Store-V2 directory holding store.db and the dbStr files.
	Directory string
}

// dbStr tables come as a pair of files.
func readStrTable(fs afero.Fs, directory string, number int) (
	data []byte, offsets []uint32, err error) {
	base := filepath.Join(directory, fmt.Sprintf("dbStr-%d.map", number))
	data, err = readSource(fs, base+".data")
	if err != nil {
		return nil, nil, err
	}
	offset_data, err := readSource(fs, base+".offsets")
	if err != nil {
		return nil, nil, err
	}
	return data, spotlight.ParseOffsets(offset_data), nil
}

// ReadSpotlightMeta loads the property, category and index tables.
// Only the property table is required.
func ReadSpotlightMeta(fs afero.Fs, directory string) (*spotlight.Meta, error) {
	meta := spotlight.NewMeta()

	data, offsets, err := readStrTable(fs, directory, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Spotlight property table")
	}
	meta.Props = spotlight.ParsePropertiesData(data, offsets)

	data, offsets, err = readStrTable(fs, directory, 2)
	if err == nil {
		meta.Categories = spotlight.ParseCategoriesData(data, offsets)
	} else {
		logSkipped(SPOTLIGHT, "dbStr-2", err)
	}

	data, offsets, err = readStrTable(fs, directory, 4)
	if err == nil {
		meta.Indexes1 = spotlight.ParseIndexData(data, offsets, false)
	} else {
		logSkipped(SPOTLIGHT, "dbStr-4", err)
	}

	data, offsets, err = readStrTable(fs, directory, 5)
	if err == nil {
		meta.Indexes2 = spotlight.ParseIndexData(data, offsets, true)
	} else {
		logSkipped(SPOTLIGHT, "dbStr-5", err)
	}

	return meta, nil
}

// ParseSpotlight walks the store twice: once to learn every inode's
// name and parent, then again to emit records with full paths. This
// keeps only one batch of records in memory.
func ParseSpotlight(options SpotlightOptions, sink *output.Sink, filter bool) error {
	fs := defaultFs(options.Fs)

	meta, err := ReadSpotlightMeta(fs, options.Directory)
	if err != nil {
		return err
	}

	source, err := openSource(fs, filepath.Join(options.Directory, spotlight_store_file))
	if err != nil {
		return err
	}
	defer source.Close()

	store, err := spotlight.OpenStore(source)
	if err != nil {
		return errors.Wrapf(err, "Spotlight %v", options.Directory)
	}
	store.BatchSize = sink.Options().BatchSize

	linker := spotlight.NewLinker()
	store.Walk(meta, func(batch []*spotlight.Record) {
		linker.Add(batch)
	})

	batcher := sink.NewBatcher(SPOTLIGHT, filter)
	count := 0
	store.Walk(meta, func(batch []*spotlight.Record) {
		for _, record := range batch {
			if err != nil {
				return
			}
			record.Path = linker.Path(record)
			err = batcher.Add(record.ToDict())
			count++
		}
	})

	log.WithField("records", count).WithField("blocks", len(store.Blocks)).
		Info("[artifacts] Spotlight done")
	return closeBatcher(batcher, err)
}
