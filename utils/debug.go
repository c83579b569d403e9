package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
)

var (
	debug_once    sync.Once
	debug_enabled atomic.Bool
)

func Debug(arg interface{}) {
	spew.Dump(arg)
}

type Debugger interface {
	DebugString() string
}

// DebugString indents the output of a Debugger. Anything else renders
// as an empty string.
func DebugString(arg interface{}, indent string) string {
	debugger, ok := arg.(Debugger)
	if ok {
		lines := strings.Split(debugger.DebugString(), "\n")
		for idx, line := range lines {
			lines[idx] = indent + line
		}
		return strings.Join(lines, "\n")
	}

	return ""
}

// SetDebug overrides the ARTIFACTS_DEBUG environment variable.
func SetDebug(value bool) {
	debug_once.Do(func() {})
	debug_enabled.Store(value)
}

func DebugEnabled() bool {
	// The environment is only consulted once.
	debug_once.Do(func() {
		_, ok := os.LookupEnv("ARTIFACTS_DEBUG")
		debug_enabled.Store(ok)
	})
	return debug_enabled.Load()
}

func DebugPrint(fmt_str string, v ...interface{}) {
	if DebugEnabled() {
		fmt.Printf(fmt_str, v...)
	}
}
