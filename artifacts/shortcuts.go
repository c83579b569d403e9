package artifacts

import (
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/lnk"
	"www.velocidex.com/golang/go-artifacts/output"
)

type ShortcutOptions struct {
	Fs afero.Fs

	// Directories of .lnk files or single files.
	Paths []string
}

func ParseShortcuts(options ShortcutOptions, sink *output.Sink, filter bool) error {
	fs := defaultFs(options.Fs)

	files := []string{}
	for _, path := range options.Paths {
		matches, err := listFiles(fs, path, "*.lnk")
		if err != nil {
			if len(options.Paths) == 1 {
				return err
			}
			logSkipped(SHORTCUTS, path, err)
			continue
		}
		files = append(files, matches...)
	}

	batcher := sink.NewBatcher(SHORTCUTS, filter)
	for _, path := range files {
		data, err := readSource(fs, path)
		if err != nil {
			logSkipped(SHORTCUTS, path, err)
			continue
		}

		info, err := lnk.ParseLnkData(data, path)
		if err != nil {
			logSkipped(SHORTCUTS, path, err)
			continue
		}

		err = batcher.Add(info.ToDict())
		if err != nil {
			return closeBatcher(batcher, err)
		}
	}
	return closeBatcher(batcher, nil)
}
