package main

import (
	"encoding/json"
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
	"www.velocidex.com/golang/go-artifacts/ntfs"
)

var (
	stat_command = app.Command(
		"stat", "inspect the MFT record.")

	stat_command_file_arg = stat_command.Arg(
		"file", "The image file or device to inspect",
	).Required().String()

	stat_command_image_offset = stat_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	stat_command_mft = stat_command.Flag(
		"mft", "The file is an extracted $MFT rather than a volume.",
	).Bool()

	stat_command_arg = stat_command.Arg(
		"inode", "The MFT entry to inspect.",
	).Default("5").Uint64()
)

func getMFTContext(path string, image_offset int64, is_mft bool) *ntfs.MFTContext {
	source, err := artifacts.OpenSource(path)
	kingpin.FatalIfError(err, "Open")

	var mft_ctx *ntfs.MFTContext
	if is_mft {
		mft_ctx, err = ntfs.NewMFTContext(source, source.Size(),
			ntfs.GetDefaultOptions())
	} else {
		mft_ctx, err = ntfs.GetNTFSContext(source, image_offset,
			ntfs.GetDefaultOptions())
	}
	kingpin.FatalIfError(err, "Can not open filesystem")
	return mft_ctx
}

func doSTAT() {
	mft_ctx := getMFTContext(*stat_command_file_arg,
		*stat_command_image_offset, *stat_command_mft)
	defer mft_ctx.Close()

	mft_entry, err := mft_ctx.GetEntry(*stat_command_arg)
	kingpin.FatalIfError(err, "Can not read entry")

	if *verbose_flag {
		fmt.Println(mft_entry.DebugString())
		for _, attr := range mft_entry.Attributes {
			fmt.Println(attr.DebugString())
		}
	}

	for _, record := range mft_ctx.Records(mft_entry) {
		serialized, err := json.MarshalIndent(record.ToDict(), " ", " ")
		kingpin.FatalIfError(err, "Marshal")

		fmt.Println(string(serialized))
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "stat":
			doSTAT()
		default:
			return false
		}
		return true
	})
}
