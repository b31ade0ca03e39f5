// Package log is the runtime's debug and error output substrate. Debug
// output is gated by a bitmask selecting categories (protocol, stream,
// socket, receptor, signal, tree), configured at startup; severities
// (info, warning, error, fatal, panic) are always emitted. Multiple
// loggers can be registered; each carries its own mask and formatting
// preferences.
package log

import (
	"fmt"
	"os"

	ct "github.com/daviddengcn/go-colortext"
)

// LoggerInfo carries a registered logger's gating and formatting state.
type LoggerInfo struct {
	// Mask selects which debug categories this logger emits.
	Mask int
	// ShowTime prefixes every line with a timestamp.
	ShowTime bool
	// UseColors colors lines by severity.
	UseColors bool
}

// Logger is one output sink for log lines.
type Logger interface {
	Log(lvl int, msg string)
	Close()
	GetLoggerInfo() *LoggerInfo
}

var (
	loggers    = make(map[int]Logger)
	loggersKey int
)

// RegisterLogger adds a sink and returns the key to unregister it with.
// The standard stderr logger is registered at init with key 0.
func RegisterLogger(l Logger) int {
	debugMut.Lock()
	defer debugMut.Unlock()
	key := loggersKey
	loggersKey++
	loggers[key] = l
	return key
}

// UnregisterLogger closes and removes the sink registered under key.
func UnregisterLogger(key int) {
	debugMut.Lock()
	defer debugMut.Unlock()
	if l, ok := loggers[key]; ok {
		l.Close()
		delete(loggers, key)
	}
}

type stdLogger struct {
	lInfo *LoggerInfo
}

func newStdLogger() *stdLogger {
	setNonblock()
	return &stdLogger{lInfo: &LoggerInfo{}}
}

func (sl *stdLogger) Log(lvl int, msg string) {
	if sl.lInfo.UseColors {
		switch {
		case lvl <= lvlError:
			ct.Foreground(ct.Red, false)
		case lvl == lvlWarning:
			ct.Foreground(ct.Yellow, false)
		}
	}
	fmt.Fprint(os.Stderr, msg)
	if sl.lInfo.UseColors {
		ct.ResetColor()
	}
}

func (sl *stdLogger) Close() {}

func (sl *stdLogger) GetLoggerInfo() *LoggerInfo {
	return sl.lInfo
}

// fileLogger appends plain lines to an already-open file.
type fileLogger struct {
	lInfo *LoggerInfo
	file  *os.File
}

// NewFileLogger creates a logger appending to the file at path, emitting
// the categories selected by mask.
func NewFileLogger(path string, mask int) (Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0660)
	if err != nil {
		return nil, err
	}
	return &fileLogger{lInfo: &LoggerInfo{Mask: mask, ShowTime: true}, file: f}, nil
}

func (fl *fileLogger) Log(lvl int, msg string) {
	_, _ = fl.file.WriteString(msg)
}

func (fl *fileLogger) Close() {
	_ = fl.file.Close()
}

func (fl *fileLogger) GetLoggerInfo() *LoggerInfo {
	return fl.lInfo
}
