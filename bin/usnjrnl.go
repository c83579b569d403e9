package main

import (
	"context"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
)

var (
	usnjrnl_command = app.Command(
		"usnjrnl", "Parse the $UsnJrnl:$J change journal.")

	usnjrnl_command_arg = usnjrnl_command.Arg(
		"path", "A volume, or an extracted $J with --extracted.",
	).Default(artifacts.GetDefaultUsnJrnlOptions().Path).String()

	usnjrnl_command_extracted = usnjrnl_command.Flag(
		"extracted", "The path is an extracted $J stream.",
	).Bool()

	usnjrnl_command_mft = usnjrnl_command.Flag(
		"mft", "An extracted $MFT to resolve paths of an extracted $J.",
	).String()

	usnjrnl_command_image_offset = usnjrnl_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	usnjrnl_command_start = usnjrnl_command.Flag(
		"start", "Skip records before this $J offset.",
	).Int64()

	usnjrnl_command_no_paths = usnjrnl_command.Flag(
		"no_paths", "Do not resolve full paths.",
	).Bool()
)

func doUsnJrnl() {
	options := artifacts.GetDefaultUsnJrnlOptions()
	options.Path = *usnjrnl_command_arg
	options.FromVolume = !*usnjrnl_command_extracted
	options.MFTPath = *usnjrnl_command_mft
	options.ImageOffset = *usnjrnl_command_image_offset
	options.StartOffset = *usnjrnl_command_start
	options.NTFS.DisableFullPathResolution = *usnjrnl_command_no_paths

	sink := getSink()
	err := artifacts.ParseUsnJrnl(context.Background(), options, sink, wantFilter())
	kingpin.FatalIfError(err, "UsnJrnl")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "usnjrnl":
			doUsnJrnl()
		default:
			return false
		}
		return true
	})
}
