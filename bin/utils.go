package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/output"
)

var (
	output_flag = app.Flag(
		"output", "Directory to write results to. Prints to stdout when empty.",
	).Default("").String()

	format_flag = app.Flag(
		"format", "Output format.",
	).Default("jsonl").Enum("json", "jsonl")

	compression_flag = app.Flag(
		"compression", "Compress output files.",
	).Default("none").Enum("none", "gzip", "zstd")

	batch_size_flag = app.Flag(
		"batch_size", "Rows per output file.",
	).Default(fmt.Sprintf("%d", output.DefaultBatchSize)).Int()

	filter_flag = app.Flag(
		"filter", "Only keep rows where this gjson path selects a true value.",
	).Default("").String()
)

func getSink() *output.Sink {
	options := output.GetDefaultOptions()
	options.Directory = *output_flag
	options.Format = output.Format(*format_flag)
	options.Compression = output.Compression(*compression_flag)
	options.BatchSize = *batch_size_flag
	options.Filter = *filter_flag

	sink, err := output.NewSink(afero.NewOsFs(), os.Stdout, options)
	kingpin.FatalIfError(err, "Output")
	return sink
}

// Filtering is only asked for when there is a filter.
func wantFilter() bool {
	return *filter_flag != ""
}

func reportSink(sink *output.Sink) {
	if *output_flag == "" {
		return
	}
	for _, filename := range sink.Files() {
		fmt.Fprintln(os.Stderr, filename)
	}
	fmt.Fprintln(os.Stderr, sink.DebugString())
}

func newTable(caption string, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	if caption != "" {
		table.SetCaption(true, caption)
	}
	return table
}

func plural(count int, name string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", name)
	}
	return fmt.Sprintf("%d %ss", count, name)
}
