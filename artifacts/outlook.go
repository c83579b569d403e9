package artifacts

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/outlook"
	"www.velocidex.com/golang/go-artifacts/output"
)

type OutlookOptions struct {
	Fs   afero.Fs
	Path string

	// Only list the folder tree.
	FoldersOnly bool
}

// ParseOutlook emits the folder tree and then every message.
func ParseOutlook(options OutlookOptions, sink *output.Sink, filter bool) error {
	source, err := openSource(defaultFs(options.Fs), options.Path)
	if err != nil {
		return err
	}
	defer source.Close()

	reader, err := outlook.Open(source)
	if err != nil {
		return errors.Wrapf(err, "Outlook %v", options.Path)
	}

	folders := reader.FolderTree()
	folder_batcher := sink.NewBatcher(OUTLOOK_FOLDERS, filter)
	for _, folder := range folders {
		err = folder_batcher.Add(folder.ToDict())
		if err != nil {
			return closeBatcher(folder_batcher, err)
		}
	}
	err = folder_batcher.Close()
	if err != nil || options.FoldersOnly {
		return err
	}

	message_batcher := sink.NewBatcher(OUTLOOK_MESSAGES, filter)
	count := 0
	reader.Messages(folders, func(message *outlook.Message) {
		if err == nil {
			err = message_batcher.Add(message.ToDict())
			count++
		}
	})

	log.WithField("folders", len(folders)).WithField("messages", count).
		Info("[artifacts] Outlook done")
	return closeBatcher(message_batcher, err)
}
