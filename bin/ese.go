package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
	"www.velocidex.com/golang/go-artifacts/ese"
)

var (
	ese_command = app.Command(
		"ese", "Dump tables of an ESE database.")

	ese_command_arg = ese_command.Arg(
		"file", "The database file.",
	).Required().String()

	ese_command_tables = ese_command.Flag(
		"table", "Tables to dump. All tables when not given.",
	).Strings()

	ese_command_list = ese_command.Flag(
		"list", "Only list the catalog.",
	).Bool()
)

func doESECatalog() {
	source, err := artifacts.OpenSource(*ese_command_arg)
	kingpin.FatalIfError(err, "Open")
	defer source.Close()

	ese_ctx, err := ese.NewESEContext(source)
	kingpin.FatalIfError(err, "ESE")

	catalog, err := ese_ctx.Catalog()
	kingpin.FatalIfError(err, "Catalog")

	if *verbose_flag {
		fmt.Println(catalog.DebugString())
		return
	}

	tables := catalog.Tables()
	table := newTable(plural(len(tables), "table"), "Table")
	defer table.Render()

	for _, name := range tables {
		table.Append([]string{name})
	}
}

func doESE() {
	if *ese_command_list {
		doESECatalog()
		return
	}

	sink := getSink()
	err := artifacts.ParseESE(artifacts.ESEOptions{
		Path:   *ese_command_arg,
		Tables: *ese_command_tables,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "ESE")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "ese":
			doESE()
		default:
			return false
		}
		return true
	})
}
