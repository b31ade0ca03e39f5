// Package streamio frames byte streams into delimiter-terminated units and
// feeds accepted socket connections to a callback as new streams. It is the
// boundary between raw I/O and the signal subsystem: an adapter wraps each
// unit a stream yields as a signal body and hands it to the host.
package streamio

import (
	"io"
	"sync"

	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
)

// Unit delimiters. LF is the default; CRLF is for line-oriented network
// protocols.
var (
	DelimLF   = []byte("\n")
	DelimCRLF = []byte("\r\n")
)

const initialBufSize = 256

// ScanState tracks where the unit scanner is inside the read buffer.
type ScanState int

const (
	ScanInitial ScanState = iota
	ScanPartial
	ScanSuccess
	ScanComplete
)

// Stream turns an io.Reader into a sequence of delimiter-terminated units.
// A dedicated reader goroutine loads the buffer and blocks on a condition
// variable while unconsumed data is pending; Next consumes units and wakes
// it. On end of input a non-empty partial buffer is delivered as a final
// unit before io.EOF.
type Stream struct {
	mu   sync.Mutex
	cond *sync.Cond

	r      io.Reader
	closer io.Closer
	delim  []byte

	buf     []byte
	used    int
	start   int
	hasData bool
	eof     bool
	readErr error
	dying   bool
	done    chan struct{}
}

// NewStream frames r with the given delimiter and starts the reader
// goroutine. closer, if non-nil, is closed by Kill to unblock a pending
// read (a socket, typically).
func NewStream(r io.Reader, delim []byte, closer io.Closer) *Stream {
	if len(delim) == 0 {
		delim = DelimLF
	}
	st := &Stream{
		r:      r,
		closer: closer,
		delim:  delim,
		buf:    make([]byte, initialBufSize),
		done:   make(chan struct{}),
	}
	st.cond = sync.NewCond(&st.mu)
	go st.reader()
	return st
}

// reader loads data into the buffer, doubling it when full, and waits for
// the consumer whenever loaded data is pending. It reads into its own
// scratch slab so a blocked Read never touches the shared buffer.
func (st *Stream) reader() {
	defer close(st.done)
	scratch := make([]byte, initialBufSize)
	for {
		st.mu.Lock()
		for st.hasData && !st.dying {
			st.cond.Wait()
		}
		if st.dying {
			st.mu.Unlock()
			return
		}
		st.mu.Unlock()

		n, err := st.r.Read(scratch)

		st.mu.Lock()
		for st.used+n > len(st.buf) {
			grown := make([]byte, len(st.buf)*2)
			copy(grown, st.buf[:st.used])
			st.buf = grown
			log.Catf(log.DebugStream, "stream buffer grown to %d", len(st.buf))
		}
		copy(st.buf[st.used:], scratch[:n])
		st.used += n
		if n > 0 {
			st.hasData = true
		}
		if err != nil {
			st.eof = true
			if err != io.EOF {
				st.readErr = err
			}
			st.hasData = true
			st.cond.Broadcast()
			st.mu.Unlock()
			return
		}
		st.cond.Broadcast()
		st.mu.Unlock()
	}
}

// scan looks for the delimiter in the unconsumed region, returning the unit
// bounds and the resulting scan state.
func (st *Stream) scan() (unit []byte, state ScanState) {
	region := st.buf[st.start:st.used]
	matched := 0
	for i, b := range region {
		if b == st.delim[matched] {
			matched++
		} else {
			matched = 0
			if b == st.delim[0] {
				matched = 1
			}
		}
		if matched == len(st.delim) {
			unit = region[: i+1-len(st.delim) : i+1-len(st.delim)]
			st.start += i + 1
			return unit, ScanSuccess
		}
	}
	if len(region) == 0 {
		return nil, ScanComplete
	}
	return nil, ScanPartial
}

// compact discards the consumed prefix so the reader can keep loading into
// a bounded buffer.
func (st *Stream) compact() {
	if st.start == 0 {
		return
	}
	copy(st.buf, st.buf[st.start:st.used])
	st.used -= st.start
	st.start = 0
}

// Next blocks until a full unit is available and returns a copy of it. At
// end of input a non-empty partial is returned as the final unit; after
// that Next returns io.EOF (or the underlying read error).
func (st *Stream) Next() ([]byte, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		if unit, state := st.scan(); state == ScanSuccess {
			out := append([]byte(nil), unit...)
			st.compact()
			if st.start == 0 && st.used == 0 {
				st.hasData = false
			}
			st.cond.Broadcast()
			return out, nil
		}
		if st.eof {
			if st.start < st.used {
				out := append([]byte(nil), st.buf[st.start:st.used]...)
				st.start = st.used
				return out, nil
			}
			if st.readErr != nil {
				return nil, st.readErr
			}
			return nil, io.EOF
		}
		if st.dying {
			return nil, xerrors.New("stream: killed")
		}
		st.hasData = false
		st.cond.Broadcast()
		for !st.hasData && !st.dying {
			st.cond.Wait()
		}
	}
}

// Kill shuts the stream down: the underlying closer is closed to unblock
// the reader, the condition variable is signalled, and Kill returns once
// the reader goroutine has exited.
func (st *Stream) Kill() {
	st.mu.Lock()
	if st.dying {
		st.mu.Unlock()
		<-st.done
		return
	}
	st.dying = true
	st.cond.Broadcast()
	st.mu.Unlock()
	if st.closer != nil {
		_ = st.closer.Close()
	}
	<-st.done
}

// Close implements io.Closer so a receptor can own the stream.
func (st *Stream) Close() error {
	st.Kill()
	return nil
}
