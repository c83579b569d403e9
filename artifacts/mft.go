package artifacts

import (
	"context"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/ntfs"
	"www.velocidex.com/golang/go-artifacts/output"
)

type MFTOptions struct {
	Fs afero.Fs

	// An extracted $MFT, or a volume (image or device) when
	// FromVolume is set.
	Path        string
	FromVolume  bool
	ImageOffset int64

	NTFS ntfs.Options
}

func GetDefaultMFTOptions() MFTOptions {
	return MFTOptions{
		Path: `C:\$MFT`,
		NTFS: ntfs.GetDefaultOptions(),
	}
}

func ParseMFT(ctx context.Context, options MFTOptions,
	sink *output.Sink, filter bool) error {
	source, err := openSource(defaultFs(options.Fs), options.Path)
	if err != nil {
		return err
	}
	defer source.Close()

	var mft *ntfs.MFTContext
	if options.FromVolume {
		mft, err = ntfs.GetNTFSContext(source, options.ImageOffset, options.NTFS)
	} else {
		mft, err = ntfs.NewMFTContext(source, source.Size(), options.NTFS)
	}
	if err != nil {
		return errors.Wrapf(err, "MFT %v", options.Path)
	}
	defer mft.Close()

	batcher := sink.NewBatcher(MFT, filter)

	sub_ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	count := 0
	for record := range ntfs.ParseMFTFile(sub_ctx, mft, 0) {
		err = batcher.Add(record.ToDict())
		if err != nil {
			break
		}
		count++
	}

	log.WithField("records", count).WithField("entries", mft.EntryCount()).
		Info("[artifacts] MFT done")
	return closeBatcher(batcher, err)
}
