package log

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Debug categories. Each debug line names the subsystem it comes from; a
// logger emits it only when the category's bit is set in its mask.
const (
	DebugProtocol = 1 << iota
	DebugStream
	DebugSocket
	DebugReceptor
	DebugSignal
	DebugTree

	// DebugAll turns every category on.
	DebugAll = DebugProtocol | DebugStream | DebugSocket | DebugReceptor |
		DebugSignal | DebugTree
)

// Severity levels for non-debug output. Debug lines log at the category's
// bit value, which is always > 0.
const (
	lvlInfo = -(iota + 1)
	lvlWarning
	lvlError
	lvlFatal
	lvlPanic
)

var categoryNames = map[string]int{
	"protocol": DebugProtocol,
	"stream":   DebugStream,
	"socket":   DebugSocket,
	"receptor": DebugReceptor,
	"signal":   DebugSignal,
	"tree":     DebugTree,
	"all":      DebugAll,
}

var debugMut sync.RWMutex

var regexpPaths, _ = regexp.Compile(".*/")

func init() {
	key := RegisterLogger(newStdLogger())
	if key != 0 {
		panic("standard logger must register first")
	}
	ParseEnv()
}

// ParseCategories turns a comma-separated category list ("receptor,signal",
// "all") into a mask. Unknown names are ignored.
func ParseCategories(s string) int {
	mask := 0
	for _, name := range strings.Split(s, ",") {
		mask |= categoryNames[strings.TrimSpace(strings.ToLower(name))]
	}
	return mask
}

// SetDebugMask sets the standard logger's category mask.
func SetDebugMask(mask int) {
	debugMut.Lock()
	defer debugMut.Unlock()
	loggers[0].GetLoggerInfo().Mask = mask
}

// DebugMask returns the standard logger's category mask.
func DebugMask() int {
	debugMut.RLock()
	defer debugMut.RUnlock()
	return loggers[0].GetLoggerInfo().Mask
}

// SetShowTime toggles the timestamp prefix on the standard logger.
func SetShowTime(show bool) {
	debugMut.Lock()
	defer debugMut.Unlock()
	loggers[0].GetLoggerInfo().ShowTime = show
}

// SetUseColors toggles severity coloring on the standard logger.
func SetUseColors(use bool) {
	debugMut.Lock()
	defer debugMut.Unlock()
	loggers[0].GetLoggerInfo().UseColors = use
}

// ParseEnv reads the startup configuration from the environment:
//
//	CEPTR_DEBUG  - comma-separated category list, e.g. "receptor,signal"
//	CEPTR_DEBUG_TIME  - "1" prefixes lines with a timestamp
//	CEPTR_DEBUG_COLOR - "1" colors lines by severity
func ParseEnv() {
	if dv := os.Getenv("CEPTR_DEBUG"); dv != "" {
		SetDebugMask(ParseCategories(dv))
	}
	if dt := os.Getenv("CEPTR_DEBUG_TIME"); dt != "" {
		SetShowTime(dt == "1" || strings.EqualFold(dt, "true"))
	}
	if dc := os.Getenv("CEPTR_DEBUG_COLOR"); dc != "" {
		SetUseColors(dc == "1" || strings.EqualFold(dc, "true"))
	}
}

func lvlLabel(lvl int) string {
	switch lvl {
	case lvlInfo:
		return "I"
	case lvlWarning:
		return "W"
	case lvlError:
		return "E"
	case lvlFatal:
		return "F"
	case lvlPanic:
		return "P"
	}
	for name, bit := range categoryNames {
		if bit == lvl {
			return "D:" + name
		}
	}
	return "D"
}

// write formats one line and fans it out to every registered logger whose
// gate admits it. skip is the caller depth for position reporting.
func write(lvl, skip int, args ...interface{}) {
	debugMut.Lock()
	defer debugMut.Unlock()
	pc, _, line, _ := runtime.Caller(skip)
	name := regexpPaths.ReplaceAllString(runtime.FuncForPC(pc).Name(), "")
	message := fmt.Sprintln(args...)
	for _, l := range loggers {
		lInfo := l.GetLoggerInfo()
		if lvl > 0 && lInfo.Mask&lvl == 0 {
			continue
		}
		str := fmt.Sprintf("%-2s: (%s: %d) - %s", lvlLabel(lvl), name, line, message)
		if lInfo.ShowTime {
			str = time.Now().Format("06/01/02 15:04:05") + " " + str
		}
		l.Log(lvl, str)
	}
}

// Cat emits a debug line in the given category.
func Cat(category int, args ...interface{}) {
	write(category, 2, args...)
}

// Catf is Cat with a format string.
func Catf(category int, f string, args ...interface{}) {
	write(category, 2, fmt.Sprintf(f, args...))
}
