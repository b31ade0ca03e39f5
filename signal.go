// Package ceptr is a single-process semantic computing runtime. A Host owns
// a routing table of Receptors; receptors exchange Signals (addressed
// semantic trees) over named aspects, match them against installed
// Expectations, and reduce the resulting run trees with the sem package's
// process reducer. Declarative Protocols compose the expectations and
// initiations a receptor installs when it expresses a role.
package ceptr

import (
	"time"

	"github.com/google/uuid"

	"go.dedis.ch/ceptr/sem"
)

// AddressKind selects the addressing scheme of a receptor address.
type AddressKind int

const (
	// VMAddr addresses a routing-table slot within this process's Host.
	VMAddr AddressKind = iota
	// UnixDomainAddr is reserved for receptors bridged over a local socket.
	UnixDomainAddr
)

// SelfReceptorAddr is the placeholder address replaced at delivery time with
// the sending receptor's own routing-table slot.
const SelfReceptorAddr = -1

// Address names a receptor: a kind plus a small integer.
type Address struct {
	Kind AddressKind
	Addr int
}

// SelfAddress returns the placeholder address resolved against the sender
// during delivery.
func SelfAddress() Address {
	return Address{Kind: VMAddr, Addr: SelfReceptorAddr}
}

// SignalOptions carries the optional header fields of a signal.
type SignalOptions struct {
	UUID         string
	InResponseTo string
	Conversation string
}

// NewSignalUUID returns a fresh random identifier for a signal's UUID or
// conversation header field.
func NewSignalUUID() string {
	return uuid.New().String()
}

// Header child positions inside MESSAGE_HEADER.
const (
	headerFromIdx      = 1
	headerToIdx        = 2
	headerAspectIdx    = 3
	headerCarrierIdx   = 4
	headerTimestampIdx = 5
)

// MakeSignal builds a complete signal tree in f:
//
//	SIGNAL{ENVELOPE{MESSAGE_HEADER{FROM, TO, ASPECT, CARRIER, TIMESTAMP, ...}}, BODY{body}}
//
// The timestamp is the wall clock at construction, second resolution. body
// must be an orphan in f; ownership transfers into the signal. opts may be
// nil when no optional header fields are wanted.
func MakeSignal(sys *sem.Sys, f *sem.Forest, from, to Address, aspect string, carrier sem.SemanticID, body sem.Handle, opts *SignalOptions) sem.Handle {
	s := f.NewRoot(sys.Signal)
	env := f.New(s, sys.Envelope)
	head := f.New(env, sys.MessageHeader)

	addAddress(sys, f, head, sys.FromAddress, from)
	addAddress(sys, f, head, sys.ToAddress, to)
	f.NewString(head, sys.Aspect, aspect)
	f.NewSym(head, sys.Carrier, carrier)
	f.NewInt(head, sys.Timestamp, time.Now().Unix())
	if opts != nil {
		if opts.UUID != "" {
			f.NewString(head, sys.UUID, opts.UUID)
		}
		if opts.InResponseTo != "" {
			f.NewString(head, sys.InResponseToUUID, opts.InResponseTo)
		}
		if opts.Conversation != "" {
			f.NewString(head, sys.Conversation, opts.Conversation)
		}
	}

	b := f.New(s, sys.Body)
	if !body.IsNil() {
		_ = f.Add(b, body)
	}
	return s
}

func addAddress(sys *sem.Sys, f *sem.Forest, parent sem.Handle, tag sem.SemanticID, a Address) {
	n := f.New(parent, tag)
	f.NewInt(n, sys.AddressKind, int64(a.Kind))
	f.NewInt(n, sys.AddressValue, int64(a.Addr))
}

func signalHeader(f *sem.Forest, s sem.Handle) sem.Handle {
	return f.Get(s, sem.Path{1, 1})
}

func readAddress(f *sem.Forest, addrNode sem.Handle) Address {
	return Address{
		Kind: AddressKind(f.SurfaceInt(f.Child(addrNode, 1))),
		Addr: int(f.SurfaceInt(f.Child(addrNode, 2))),
	}
}

// SignalFrom reads the sender address out of a signal's header.
func SignalFrom(f *sem.Forest, s sem.Handle) Address {
	return readAddress(f, f.Child(signalHeader(f, s), headerFromIdx))
}

// SignalTo reads the destination address out of a signal's header.
func SignalTo(f *sem.Forest, s sem.Handle) Address {
	return readAddress(f, f.Child(signalHeader(f, s), headerToIdx))
}

// SignalAspect reads the aspect name out of a signal's header.
func SignalAspect(f *sem.Forest, s sem.Handle) string {
	return string(f.SurfaceBytes(f.Child(signalHeader(f, s), headerAspectIdx)))
}

// SignalCarrier reads the carrier symbol out of a signal's header.
func SignalCarrier(f *sem.Forest, s sem.Handle) sem.SemanticID {
	return f.SurfaceSymbol(f.Child(signalHeader(f, s), headerCarrierIdx))
}

// SignalTimestamp reads the construction timestamp out of a signal's header.
func SignalTimestamp(f *sem.Forest, s sem.Handle) int64 {
	return f.SurfaceInt(f.Child(signalHeader(f, s), headerTimestampIdx))
}

// SignalBody returns the payload tree (the first child of BODY), or
// NilHandle for an empty body.
func SignalBody(f *sem.Forest, s sem.Handle) sem.Handle {
	return f.Get(s, sem.Path{2, 1})
}

// patchSelfAddresses rewrites the self placeholder in a signal's from/to
// header fields with the concrete sender address, in place.
func patchSelfAddresses(f *sem.Forest, s sem.Handle, sender Address) {
	head := signalHeader(f, s)
	for _, idx := range []int{headerFromIdx, headerToIdx} {
		addrNode := f.Child(head, idx)
		valNode := f.Child(addrNode, 2)
		if f.SurfaceInt(valNode) == SelfReceptorAddr {
			f.SetSurfaceInt(valNode, int64(sender.Addr))
		}
	}
}
