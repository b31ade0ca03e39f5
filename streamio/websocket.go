package streamio

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
)

// wsReader adapts a websocket connection to io.Reader: each received
// message comes out followed by the stream delimiter, so the ordinary unit
// scanner frames messages like any other input.
type wsReader struct {
	conn  *websocket.Conn
	delim []byte
	rest  []byte
}

func (wr *wsReader) Read(p []byte) (int, error) {
	if len(wr.rest) == 0 {
		_, msg, err := wr.conn.ReadMessage()
		if err != nil {
			return 0, io.EOF
		}
		wr.rest = append(append([]byte(nil), msg...), wr.delim...)
	}
	n := copy(p, wr.rest)
	wr.rest = wr.rest[n:]
	return n, nil
}

func (wr *wsReader) Close() error {
	return wr.conn.Close()
}

// WSListener serves websocket upgrades on a port and hands each accepted
// connection to a callback as a Stream, one unit per websocket message.
type WSListener struct {
	l      net.Listener
	server *http.Server
	delim  []byte
	cb     ConnFunc
	arg    interface{}

	mu      sync.Mutex
	streams []*Stream
	closed  bool
	done    chan struct{}
}

// NewWSListener binds port and upgrades every request on pattern (use "/"
// to accept all paths). Cross-origin requests are accepted: the peers are
// not browsers under our control.
func NewWSListener(port int, pattern string, delim []byte, cb ConnFunc, arg interface{}) (*WSListener, error) {
	nl, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, xerrors.Errorf("ws listen on %d: %w", port, err)
	}
	if len(delim) == 0 {
		delim = DelimLF
	}
	wl := &WSListener{
		l:     nl,
		delim: delim,
		cb:    cb,
		arg:   arg,
		done:  make(chan struct{}),
	}

	u := websocket.Upgrader{
		EnableCompression: false,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		conn, err := u.Upgrade(w, r, nil)
		if err != nil {
			log.Error("ws upgrade:", err)
			return
		}
		log.Catf(log.DebugSocket, "ws connection from %s", conn.RemoteAddr())
		st := NewStream(&wsReader{conn: conn, delim: wl.delim}, wl.delim, conn)
		wl.mu.Lock()
		wl.streams = append(wl.streams, st)
		wl.mu.Unlock()
		wl.cb(st, wl.arg)
	})
	wl.server = &http.Server{Handler: mux}

	go func() {
		defer close(wl.done)
		err := wl.server.Serve(nl)
		wl.mu.Lock()
		closed := wl.closed
		wl.mu.Unlock()
		if err != nil && err != http.ErrServerClosed && !closed {
			log.Error("ws serve:", err)
		}
	}()
	log.Catf(log.DebugSocket, "ws listening on %s", nl.Addr())
	return wl, nil
}

// Addr returns the bound address, useful when port 0 was requested.
func (wl *WSListener) Addr() net.Addr {
	return wl.l.Addr()
}

// Close shuts the HTTP server down, kills every accepted stream, and waits
// for the serve goroutine to exit.
func (wl *WSListener) Close() error {
	wl.mu.Lock()
	if wl.closed {
		wl.mu.Unlock()
		<-wl.done
		return nil
	}
	wl.closed = true
	streams := wl.streams
	wl.mu.Unlock()

	err := wl.server.Close()
	for _, st := range streams {
		st.Kill()
	}
	<-wl.done
	return err
}
