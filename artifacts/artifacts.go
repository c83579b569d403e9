// Package artifacts ties the decoders to the output sink. Each Parse
// function reads one artifact type to completion. Bad records are
// logged and skipped. Only failures that stop the whole artifact are
// returned.
package artifacts

import (
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Artifact names, used to label output files.
const (
	PREFETCH         = "prefetch"
	MFT              = "mft"
	USNJRNL          = "usnjrnl"
	REGISTRY         = "registry"
	USERS            = "users"
	AMCACHE          = "amcache"
	ESE              = "ese"
	OUTLOOK_FOLDERS  = "outlook_folders"
	OUTLOOK_MESSAGES = "outlook_messages"
	WMI              = "wmi"
	WMI_PERSISTENCE  = "wmi_persistence"
	SPOTLIGHT        = "spotlight"
	SHORTCUTS        = "shortcuts"
)

func defaultFs(fs afero.Fs) afero.Fs {
	if fs == nil {
		return afero.NewOsFs()
	}
	return fs
}

// listFiles globs pattern inside directory. A missing directory is a
// whole artifact failure.
func listFiles(fs afero.Fs, directory, pattern string) ([]string, error) {
	stat, err := fs.Stat(directory)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrIO, "%v: %v", directory, err)
	}
	if !stat.IsDir() {
		return []string{directory}, nil
	}

	matches, err := afero.Glob(fs, filepath.Join(directory, pattern))
	if err != nil {
		return nil, errors.Wrapf(utils.ErrIO, "%v: %v", directory, err)
	}
	return matches, nil
}

// closeBatcher flushes the last rows. Earlier errors win.
func closeBatcher(batcher *output.Batcher, err error) error {
	close_err := batcher.Close()
	if err != nil {
		return err
	}
	return close_err
}

func logSkipped(artifact, path string, err error) {
	log.WithError(err).WithField("artifact", artifact).WithField("path", path).
		Warn("[artifacts] Skipping")
	utils.STATS.Inc_RecordsSkipped()
}
