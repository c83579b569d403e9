package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
	"www.velocidex.com/golang/go-artifacts/outlook"
)

var (
	outlook_command = app.Command(
		"outlook", "Parse a PST or OST file.")

	outlook_command_arg = outlook_command.Arg(
		"file", "The PST or OST file.",
	).Required().String()

	outlook_command_folders = outlook_command.Flag(
		"folders", "Only emit the folder tree.",
	).Bool()

	outlook_command_table = outlook_command.Flag(
		"table", "Show the folder tree as a table.",
	).Bool()
)

func doOutlookTable() {
	source, err := artifacts.OpenSource(*outlook_command_arg)
	kingpin.FatalIfError(err, "Open")
	defer source.Close()

	reader, err := outlook.Open(source)
	kingpin.FatalIfError(err, "Outlook")

	if *verbose_flag {
		fmt.Println(reader.DebugString())
	}

	folders := reader.FolderTree()
	table := newTable(plural(len(folders), "folder"),
		"NID", "Path", "Messages", "Subfolders")
	defer table.Render()

	for _, folder := range folders {
		table.Append([]string{
			fmt.Sprintf("%d", folder.NID),
			folder.Path,
			fmt.Sprintf("%d", folder.MessageCount),
			fmt.Sprintf("%d", folder.SubfolderCount),
		})
	}
}

func doOutlook() {
	if *outlook_command_table {
		doOutlookTable()
		return
	}

	sink := getSink()
	err := artifacts.ParseOutlook(artifacts.OutlookOptions{
		Path:        *outlook_command_arg,
		FoldersOnly: *outlook_command_folders,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "Outlook")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "outlook":
			doOutlook()
		default:
			return false
		}
		return true
	})
}
