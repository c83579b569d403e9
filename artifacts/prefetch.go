package artifacts

import (
	"github.com/apex/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/prefetch"
)

type PrefetchOptions struct {
	Fs afero.Fs

	// A directory of .pf files or a single file.
	Path string

	// Files decoded at the same time.
	Workers int

	Prefetch prefetch.Options
}

func GetDefaultPrefetchOptions() PrefetchOptions {
	return PrefetchOptions{
		Path:     `C:\Windows\Prefetch`,
		Workers:  4,
		Prefetch: prefetch.GetDefaultOptions(),
	}
}

// ParsePrefetch decodes every prefetch file. Files are independent so
// they are decoded in parallel.
func ParsePrefetch(options PrefetchOptions, sink *output.Sink, filter bool) error {
	fs := defaultFs(options.Fs)
	files, err := listFiles(fs, options.Path, "*.pf")
	if err != nil {
		return err
	}

	batcher := sink.NewBatcher(PREFETCH, filter)

	workers := options.Workers
	if workers <= 0 {
		workers = 1
	}

	group := errgroup.Group{}
	group.SetLimit(workers)

	for _, path := range files {
		path := path
		group.Go(func() error {
			data, err := readSource(fs, path)
			if err != nil {
				logSkipped(PREFETCH, path, err)
				return nil
			}

			record, err := prefetch.ParsePrefetchData(data, path, options.Prefetch)
			if err != nil {
				logSkipped(PREFETCH, path, err)
				return nil
			}

			// Only a failing sink stops the run.
			return batcher.Add(record.ToDict())
		})
	}

	err = group.Wait()
	log.WithField("files", len(files)).Info("[artifacts] Prefetch done")
	return closeBatcher(batcher, err)
}
