package main

import (
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("go-artifacts",
		"A tool for parsing forensic artifacts.")

	verbose_flag = app.Flag("verbose", "Show debug logging.").Short('v').Bool()
	debug_flag   = app.Flag("debug", "Trace the decoders.").Bool()

	command_handlers []CommandHandler
)

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	log.SetHandler(text.New(os.Stderr))
	if *verbose_flag {
		log.SetLevel(log.DebugLevel)
	}
	if *debug_flag {
		utils.SetDebug(true)
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}

	if *debug_flag {
		utils.Debug(utils.STATS.DebugString())
	}
}
