// Package tracing forwards the runtime's log output to a honeycomb
// dataset, one event per line, so a host's receptor and signal activity can
// be inspected off-box. It plugs in as just another log sink; nothing in
// the runtime knows it exists.
package tracing

import (
	"context"
	"os"
	"strings"

	beeline "github.com/honeycombio/beeline-go"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
)

// TraceLogger is a log.Logger sending every admitted line to honeycomb.
type TraceLogger struct {
	lInfo *log.LoggerInfo
	key   int
}

// NewHoneycombLogger connects to a honeycomb trace-storage with the given
// API key and dataset and registers the logger for the debug categories in
// mask. Severity lines are always forwarded.
func NewHoneycombLogger(api, dataset string, mask int) *TraceLogger {
	beeline.Init(beeline.Config{
		WriteKey: api,
		Dataset:  dataset,
	})
	return register(mask)
}

// NewHoneycombLoggerDebug sets up a logger that prints all events to
// stdout instead of sending them out. Perfect for debugging the tracing
// itself.
func NewHoneycombLoggerDebug(mask int) *TraceLogger {
	beeline.Init(beeline.Config{
		WriteKey: "1234",
		Dataset:  "test",
		STDOUT:   true,
	})
	return register(mask)
}

// NewHoneycombLoggerFromEnv reads "api_key:dataset" from the
// CEPTR_HONEYCOMB environment variable. An unset variable yields a nil
// logger and no error.
func NewHoneycombLoggerFromEnv(mask int) (*TraceLogger, error) {
	env := os.Getenv("CEPTR_HONEYCOMB")
	if env == "" {
		return nil, nil
	}
	keyData := strings.SplitN(env, ":", 2)
	if len(keyData) != 2 {
		return nil, xerrors.New("need 'api_key:dataset' in CEPTR_HONEYCOMB")
	}
	return NewHoneycombLogger(keyData[0], keyData[1], mask), nil
}

func register(mask int) *TraceLogger {
	tl := &TraceLogger{lInfo: &log.LoggerInfo{Mask: mask}}
	tl.key = log.RegisterLogger(tl)
	return tl
}

// Log sends one line as a span with the message and level attached.
func (tl *TraceLogger) Log(lvl int, msg string) {
	ctx, span := beeline.StartSpan(context.Background(), "log")
	beeline.AddField(ctx, "message", msg)
	beeline.AddField(ctx, "level", lvl)
	span.Send()
}

// Close flushes pending events and shuts the honeycomb client down. It does
// not unregister the logger; log.UnregisterLogger calls it, as Stop does.
func (tl *TraceLogger) Close() {
	beeline.Close()
}

// GetLoggerInfo implements log.Logger.
func (tl *TraceLogger) GetLoggerInfo() *log.LoggerInfo {
	return tl.lInfo
}

// Stop removes the logger from the log fan-out and flushes it.
func (tl *TraceLogger) Stop() {
	log.UnregisterLogger(tl.key)
}
