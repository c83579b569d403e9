package main

import (
	"context"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
)

var (
	prefetch_command = app.Command(
		"prefetch", "Parse prefetch files.")

	prefetch_command_arg = prefetch_command.Arg(
		"path", "A prefetch directory or file.",
	).Default(artifacts.GetDefaultPrefetchOptions().Path).String()

	prefetch_command_workers = prefetch_command.Flag(
		"workers", "Files decoded in parallel.",
	).Default("4").Int()

	mft_command = app.Command(
		"mft", "Parse the MFT.")

	mft_command_arg = mft_command.Arg(
		"path", "An extracted $MFT, or a volume with --volume.",
	).Default(artifacts.GetDefaultMFTOptions().Path).String()

	mft_command_volume = mft_command.Flag(
		"volume", "The path is an image or device.",
	).Bool()

	mft_command_image_offset = mft_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	mft_command_short_names = mft_command.Flag(
		"short_names", "Also report DOS names.",
	).Bool()

	mft_command_no_paths = mft_command.Flag(
		"no_paths", "Do not resolve full paths.",
	).Bool()

	shortcuts_command = app.Command(
		"lnk", "Parse shell link files.")

	shortcuts_command_args = shortcuts_command.Arg(
		"path", "Directories of .lnk files or single files.",
	).Required().Strings()
)

func doPrefetch() {
	options := artifacts.GetDefaultPrefetchOptions()
	options.Path = *prefetch_command_arg
	options.Workers = *prefetch_command_workers

	sink := getSink()
	err := artifacts.ParsePrefetch(options, sink, wantFilter())
	kingpin.FatalIfError(err, "Prefetch")
	reportSink(sink)
}

func doMFT() {
	options := artifacts.GetDefaultMFTOptions()
	options.Path = *mft_command_arg
	options.FromVolume = *mft_command_volume
	options.ImageOffset = *mft_command_image_offset
	options.NTFS.IncludeShortNames = *mft_command_short_names
	options.NTFS.DisableFullPathResolution = *mft_command_no_paths

	sink := getSink()
	err := artifacts.ParseMFT(context.Background(), options, sink, wantFilter())
	kingpin.FatalIfError(err, "MFT")
	reportSink(sink)
}

func doShortcuts() {
	sink := getSink()
	err := artifacts.ParseShortcuts(artifacts.ShortcutOptions{
		Paths: *shortcuts_command_args,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "Shortcuts")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "prefetch":
			doPrefetch()
		case "mft":
			doMFT()
		case "lnk":
			doShortcuts()
		default:
			return false
		}
		return true
	})
}
