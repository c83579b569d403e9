package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
	"www.velocidex.com/golang/go-artifacts/ntfs"
	"www.velocidex.com/golang/go-artifacts/utils"
)

var (
	boot_command = app.Command(
		"boot", "inspect the boot record.")

	boot_command_arg = boot_command.Arg(
		"file", "The image file or device to inspect",
	).Required().String()

	boot_command_image_offset = boot_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func doBoot() {
	source, err := artifacts.OpenSource(*boot_command_arg)
	kingpin.FatalIfError(err, "Open")
	defer source.Close()

	data, err := utils.ReadExact(source, *boot_command_image_offset,
		ntfs.BOOT_SECTOR_SIZE)
	kingpin.FatalIfError(err, "Boot sector")

	boot, err := ntfs.ParseBootSector(data)
	kingpin.FatalIfError(err, "Boot record")

	table := newTable(boot.DebugString(), "Field", "Value")
	defer table.Render()

	for _, row := range [][]string{
		{"OEM", boot.OEMName},
		{"Sector size", fmt.Sprintf("%d", boot.SectorSize)},
		{"Cluster size", fmt.Sprintf("%d", boot.ClusterSize())},
		{"Volume size", fmt.Sprintf("%d", boot.VolumeSize)},
		{"Record size", fmt.Sprintf("%d", boot.RecordSize())},
		{"MFT offset", fmt.Sprintf("%#x", boot.MFTOffset())},
		{"Serial", fmt.Sprintf("%X", boot.Serial)},
	} {
		table.Append(row)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "boot":
			doBoot()
		default:
			return false
		}
		return true
	})
}
