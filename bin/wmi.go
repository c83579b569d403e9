package main

import (
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
)

var (
	wmi_command = app.Command(
		"wmi", "Parse the WMI repository.")

	wmi_command_arg = wmi_command.Arg(
		"directory", "The repository directory.",
	).Default(artifacts.GetDefaultWMIOptions().Directory).String()

	wmi_command_classes = wmi_command.Flag(
		"class", "Classes to emit. Every instance when not given.",
	).Strings()

	wmi_command_persistence = wmi_command.Flag(
		"persistence", "Only emit filter to consumer bindings.",
	).Bool()
)

func doWMI() {
	options := artifacts.GetDefaultWMIOptions()
	options.Directory = *wmi_command_arg
	options.Classes = *wmi_command_classes
	options.PersistenceOnly = *wmi_command_persistence

	sink := getSink()
	err := artifacts.ParseWMI(options, sink, wantFilter())
	kingpin.FatalIfError(err, "WMI")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "wmi":
			doWMI()
		default:
			return false
		}
		return true
	})
}
