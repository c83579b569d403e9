package artifacts

import (
	"context"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/ntfs"
	"www.velocidex.com/golang/go-artifacts/output"
)

type UsnJrnlOptions struct {
	Fs afero.Fs

	// A volume (image or device) when FromVolume is set, otherwise
	// an extracted $J stream.
	Path        string
	FromVolume  bool
	ImageOffset int64

	// An extracted $MFT used to resolve the paths of an extracted
	// $J. Without it only the names are reported.
	MFTPath string

	// Records before this offset of the $J stream are skipped.
	StartOffset int64

	NTFS ntfs.Options
}

func GetDefaultUsnJrnlOptions() UsnJrnlOptions {
	return UsnJrnlOptions{
		Path:       `\\.\C:`,
		FromVolume: true,
		NTFS:       ntfs.GetDefaultOptions(),
	}
}

// openJournal returns the $J stream and, when there is one, the MFT
// used for paths. The returned closer releases everything.
func openJournal(options UsnJrnlOptions) (
	*ntfs.MFTContext, *ntfs.USNStream, func(), error) {
	fs := defaultFs(options.Fs)

	source, err := openSource(fs, options.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	if options.FromVolume {
		mft, err := ntfs.GetNTFSContext(source, options.ImageOffset, options.NTFS)
		if err != nil {
			source.Close()
			return nil, nil, nil, errors.Wrapf(err, "UsnJrnl %v", options.Path)
		}

		stream, err := mft.OpenUSNStream()
		if err != nil {
			mft.Close()
			source.Close()
			return nil, nil, nil, errors.Wrapf(err, "UsnJrnl %v", options.Path)
		}

		return mft, stream, func() {
			mft.Close()
			source.Close()
		}, nil
	}

	stream := ntfs.NewUSNStream(source, source.Size())
	if options.MFTPath == "" {
		return nil, stream, func() { source.Close() }, nil
	}

	mft_source, err := openSource(fs, options.MFTPath)
	if err != nil {
		source.Close()
		return nil, nil, nil, err
	}

	mft, err := ntfs.NewMFTContext(mft_source, mft_source.Size(), options.NTFS)
	if err != nil {
		mft_source.Close()
		source.Close()
		return nil, nil, nil, errors.Wrapf(err, "MFT %v", options.MFTPath)
	}

	return mft, stream, func() {
		mft.Close()
		mft_source.Close()
		source.Close()
	}, nil
}

// ParseUsnJrnl emits one row per $UsnJrnl:$J change record.
func ParseUsnJrnl(ctx context.Context, options UsnJrnlOptions,
	sink *output.Sink, filter bool) error {
	mft, stream, closer, err := openJournal(options)
	if err != nil {
		return err
	}
	defer closer()

	batcher := sink.NewBatcher(USNJRNL, filter)

	sub_ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	count := 0
	for record := range ntfs.ParseUSN(sub_ctx, mft, stream, options.StartOffset) {
		err = batcher.Add(record.ToDict())
		if err != nil {
			break
		}
		count++
	}

	log.WithField("records", count).WithField("ranges", len(stream.Ranges)).
		Info("[artifacts] UsnJrnl done")
	return closeBatcher(batcher, err)
}
