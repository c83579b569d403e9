package artifacts

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/wmi"
)

var wmi_map_files = []string{"MAPPING1.MAP", "MAPPING2.MAP", "MAPPING3.MAP"}

const (
	wmi_objects_file = "OBJECTS.DATA"
	wmi_index_file   = "INDEX.BTR"
)

type WMIOptions struct {
	Fs afero.Fs

	// The repository directory.
	Directory string

	// Classes to emit. Every instance when empty.
	Classes []string

	// Only emit the filter to consumer bindings.
	PersistenceOnly bool
}

func GetDefaultWMIOptions() WMIOptions {
	return WMIOptions{Directory: `C:\Windows\System32\wbem\Repository`}
}

func ParseWMI(options WMIOptions, sink *output.Sink, filter bool) error {
	fs := defaultFs(options.Fs)

	maps := [][]byte{}
	for _, name := range wmi_map_files {
		data, err := readSource(fs, filepath.Join(options.Directory, name))
		if err != nil {
			logSkipped(WMI, name, err)
			continue
		}
		maps = append(maps, data)
	}

	index, err := readSource(fs, filepath.Join(options.Directory, wmi_index_file))
	if err != nil {
		return err
	}

	objects, err := openSource(fs, filepath.Join(options.Directory, wmi_objects_file))
	if err != nil {
		return err
	}
	defer objects.Close()

	repository, err := wmi.NewRepository(maps, objects, index)
	if err != nil {
		return errors.Wrapf(err, "WMI %v", options.Directory)
	}

	var values []*wmi.ClassValues
	if options.PersistenceOnly {
		values = repository.ClassValues(nil)
	} else {
		values = repository.ClassValues(options.Classes)

		batcher := sink.NewBatcher(WMI, filter)
		for _, value := range values {
			err = batcher.Add(value.ToDict())
			if err != nil {
				break
			}
		}
		err = closeBatcher(batcher, err)
		if err != nil {
			return err
		}

		// Persistence needs the consumer, binding and filter classes.
		if len(options.Classes) > 0 {
			values = repository.ClassValues(nil)
		}
	}

	batcher := sink.NewBatcher(WMI_PERSISTENCE, filter)
	for _, persist := range wmi.Persistence(values) {
		err = batcher.Add(persist.ToDict())
		if err != nil {
			break
		}
	}
	return closeBatcher(batcher, err)
}
