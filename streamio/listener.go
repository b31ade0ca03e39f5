package streamio

import (
	"net"
	"strconv"
	"sync"

	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
)

// ConnFunc is called once per accepted connection with the framed stream
// and the caller's opaque argument.
type ConnFunc func(st *Stream, arg interface{})

// Listener accepts TCP connections on a port and hands each one to a
// callback as a new Stream, the delimiter inherited from the listener.
type Listener struct {
	l     net.Listener
	delim []byte
	cb    ConnFunc
	arg   interface{}

	mu      sync.Mutex
	streams []*Stream
	closed  bool
	done    chan struct{}
}

// NewListener binds port on all interfaces (IPv4 and IPv6) and starts the
// accept goroutine.
func NewListener(port int, delim []byte, cb ConnFunc, arg interface{}) (*Listener, error) {
	nl, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, xerrors.Errorf("listen on %d: %w", port, err)
	}
	lst := &Listener{
		l:     nl,
		delim: delim,
		cb:    cb,
		arg:   arg,
		done:  make(chan struct{}),
	}
	go lst.accept()
	log.Catf(log.DebugSocket, "listening on %s", nl.Addr())
	return lst, nil
}

// Addr returns the bound address, useful when port 0 was requested.
func (lst *Listener) Addr() net.Addr {
	return lst.l.Addr()
}

func (lst *Listener) accept() {
	defer close(lst.done)
	for {
		conn, err := lst.l.Accept()
		if err != nil {
			lst.mu.Lock()
			closed := lst.closed
			lst.mu.Unlock()
			if !closed {
				log.Error("accept:", err)
			}
			return
		}
		log.Catf(log.DebugSocket, "accepted connection from %s", conn.RemoteAddr())
		st := NewStream(conn, lst.delim, conn)
		lst.mu.Lock()
		lst.streams = append(lst.streams, st)
		lst.mu.Unlock()
		lst.cb(st, lst.arg)
	}
}

// Close shuts the listening socket down, kills every stream it accepted,
// and waits for the accept goroutine to exit.
func (lst *Listener) Close() error {
	lst.mu.Lock()
	if lst.closed {
		lst.mu.Unlock()
		<-lst.done
		return nil
	}
	lst.closed = true
	streams := lst.streams
	lst.mu.Unlock()

	err := lst.l.Close()
	for _, st := range streams {
		st.Kill()
	}
	<-lst.done
	return err
}
