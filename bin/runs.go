package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/ntfs"
)

var (
	runs_command = app.Command(
		"runs", "Display the data runs of a stream.")

	runs_command_file_arg = runs_command.Arg(
		"file", "The image file or device to inspect",
	).Required().String()

	runs_command_image_offset = runs_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	runs_command_stream = runs_command.Flag(
		"stream", "The name of an alternate data stream.",
	).Default("").String()

	runs_command_raw_runs = runs_command.Flag(
		"raw_runs", "Also show the relative runs.",
	).Bool()

	runs_command_arg = runs_command.Arg(
		"inode", "The MFT entry holding the stream.",
	).Required().Uint64()
)

func doRuns() {
	mft_ctx := getMFTContext(*runs_command_file_arg,
		*runs_command_image_offset, false)
	defer mft_ctx.Close()

	mft_entry, err := mft_ctx.GetEntry(*runs_command_arg)
	kingpin.FatalIfError(err, "Can not read entry")

	attrs := mft_entry.FindAttributes(ntfs.ATTR_TYPE_DATA, *runs_command_stream)
	if len(attrs) == 0 {
		kingpin.Fatalf("No $DATA stream %q in entry %d",
			*runs_command_stream, mft_entry.Index)
	}

	table := newTable(fmt.Sprintf("Entry %d", mft_entry.Index),
		"VCN", "Cluster", "Length", "Sparse")
	defer table.Render()

	for _, attr := range attrs {
		if attr.Resident {
			fmt.Printf("Resident stream of %d bytes\n", len(attr.Content))
			continue
		}

		if *runs_command_raw_runs {
			fmt.Println(attr.DebugString())
		}

		for _, run := range ntfs.MakeReaderRuns(
			attr.Runs, int64(attr.StartVCN), nil) {
			table.Append([]string{
				fmt.Sprintf("%d", run.FileOffset),
				fmt.Sprintf("%d", run.TargetOffset),
				fmt.Sprintf("%d", run.Length),
				fmt.Sprintf("%v", run.Sparse),
			})
		}
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "runs":
			doRuns()
		default:
			return false
		}
		return true
	})
}
