package log

import (
	"fmt"
	"os"
)

// Info prints an informational line, always.
func Info(args ...interface{}) {
	write(lvlInfo, 2, args...)
}

// Infof is Info with a format string.
func Infof(f string, args ...interface{}) {
	write(lvlInfo, 2, fmt.Sprintf(f, args...))
}

// Warn prints a warning line, always.
func Warn(args ...interface{}) {
	write(lvlWarning, 2, args...)
}

// Warnf is Warn with a format string.
func Warnf(f string, args ...interface{}) {
	write(lvlWarning, 2, fmt.Sprintf(f, args...))
}

// Error prints an error line, always.
func Error(args ...interface{}) {
	write(lvlError, 2, args...)
}

// Errorf is Error with a format string.
func Errorf(f string, args ...interface{}) {
	write(lvlError, 2, fmt.Sprintf(f, args...))
}

// Fatal prints an error line and exits with status 1.
func Fatal(args ...interface{}) {
	write(lvlFatal, 2, args...)
	os.Exit(1)
}

// Fatalf is Fatal with a format string.
func Fatalf(f string, args ...interface{}) {
	write(lvlFatal, 2, fmt.Sprintf(f, args...))
	os.Exit(1)
}

// Panic prints an error line and panics with the same message.
func Panic(args ...interface{}) {
	write(lvlPanic, 2, args...)
	panic(fmt.Sprintln(args...))
}

// ErrFatal calls Fatal when err is non-nil, prefixed by the optional
// message arguments.
func ErrFatal(err error, args ...interface{}) {
	if err == nil {
		return
	}
	write(lvlFatal, 2, append(args, err.Error())...)
	os.Exit(1)
}
