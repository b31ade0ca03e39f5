package tracing

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/ceptr/log"
)

func TestHoneycombLoggerDebug(t *testing.T) {
	tl := NewHoneycombLoggerDebug(log.DebugReceptor)
	defer tl.Stop()

	require.Equal(t, log.DebugReceptor, tl.GetLoggerInfo().Mask)

	// the events go to stdout in debug mode; this exercises the send path
	log.Cat(log.DebugReceptor, "trace me")
	log.Cat(log.DebugStream, "not me")
}

func TestFromEnv(t *testing.T) {
	old := os.Getenv("CEPTR_HONEYCOMB")
	defer os.Setenv("CEPTR_HONEYCOMB", old)

	require.NoError(t, os.Setenv("CEPTR_HONEYCOMB", ""))
	tl, err := NewHoneycombLoggerFromEnv(0)
	require.NoError(t, err)
	require.Nil(t, tl)

	require.NoError(t, os.Setenv("CEPTR_HONEYCOMB", "no-separator"))
	_, err = NewHoneycombLoggerFromEnv(0)
	require.Error(t, err)
}
