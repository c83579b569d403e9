package main

import (
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/artifacts"
)

var (
	registry_command = app.Command(
		"registry", "Dump registry hives.")

	registry_command_args = registry_command.Arg(
		"hive", "Hive files to walk.",
	).Strings()

	registry_command_start = registry_command.Flag(
		"start", "Only keys below this path.",
	).Default("").String()

	registry_command_regex = registry_command.Flag(
		"regex", "Case insensitive regex on the key path.",
	).Default("").String()

	users_command = app.Command(
		"users", "List accounts from the SAM hive.")

	users_command_arg = users_command.Arg(
		"hive", "The SAM hive.",
	).Default(artifacts.GetDefaultUsersOptions().Path).String()

	amcache_command = app.Command(
		"amcache", "List programs from the Amcache hive.")

	amcache_command_arg = amcache_command.Arg(
		"hive", "The Amcache hive.",
	).Default(artifacts.GetDefaultAmcacheOptions().Path).String()
)

func doRegistry() {
	options := artifacts.GetDefaultRegistryOptions()
	if len(*registry_command_args) > 0 {
		options.Paths = *registry_command_args
	}
	options.StartPath = *registry_command_start
	options.PathFilter = *registry_command_regex

	sink := getSink()
	err := artifacts.ParseRegistry(options, sink, wantFilter())
	kingpin.FatalIfError(err, "Registry")
	reportSink(sink)
}

func doUsers() {
	sink := getSink()
	err := artifacts.ParseUsers(artifacts.UsersOptions{
		Path: *users_command_arg,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "Users")
	reportSink(sink)
}

func doAmcache() {
	sink := getSink()
	err := artifacts.ParseAmcache(artifacts.AmcacheOptions{
		Path: *amcache_command_arg,
	}, sink, wantFilter())
	kingpin.FatalIfError(err, "Amcache")
	reportSink(sink)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "registry":
			doRegistry()
		case "users":
			doUsers()
		case "amcache":
			doAmcache()
		default:
			return false
		}
		return true
	})
}
