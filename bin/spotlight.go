package main

import (
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
)

var (
	spotlight_command = app.Command(
		"spotlight", "Parse a Spotlight store.")

	spotlight_command_arg = spotlight_command.Arg(
		"directory", "The Store-V2 directory holding store.db.",
	).Required().String()
)

func doSpotlight() {
	sink := getSink()
	err := artifacts.ParseSpotlight(artifacts.SpotlightOptions{
		Directory: *spotlight_command_arg,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "Spotlight")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "spotlight":
			doSpotlight()
		default:
			return false
		}
		return true
	})
}
