package streamio

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenerFramesConnections(t *testing.T) {
	units := make(chan string, 16)
	lst, err := NewListener(0, DelimLF, func(st *Stream, arg interface{}) {
		require.Equal(t, "opaque", arg)
		go func() {
			for {
				unit, err := st.Next()
				if err != nil {
					return
				}
				units <- string(unit)
			}
		}()
	}, "opaque")
	require.NoError(t, err)
	defer lst.Close()

	conn, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("fish\nchips\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	for _, want := range []string{"fish", "chips"} {
		select {
		case got := <-units:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for unit", want)
		}
	}
}

func TestListenerCloseUnblocksStreams(t *testing.T) {
	done := make(chan error, 1)
	lst, err := NewListener(0, DelimLF, func(st *Stream, arg interface{}) {
		go func() {
			_, err := st.Next()
			done <- err
		}()
	}, nil)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// no data arrives; closing the listener must unblock the reader
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, lst.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		require.NotEqual(t, io.EOF, err, "killed, not cleanly finished")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not unblock on close")
	}
}
