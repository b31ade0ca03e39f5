package ceptr

import (
	"io"
	"sync"

	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

// ReceptorState is the lifecycle state of a receptor. Only Alive receptors
// reduce and receive deliveries.
type ReceptorState int32

const (
	Spawned ReceptorState = iota
	Alive
	Dying
	Dead
)

func (s ReceptorState) String() string {
	switch s {
	case Spawned:
		return "spawned"
	case Alive:
		return "alive"
	case Dying:
		return "dying"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// DeliveryStatus reports the outcome of delivering a signal to a receptor.
// NoMatch is informational, not a failure.
type DeliveryStatus int

const (
	DeliverySuccess DeliveryStatus = iota
	DeliveryNoMatch
)

// Expectation is an installed (pattern, action) pair triggered by incoming
// signals on an aspect. Pattern is a semtrex tree in the owning receptor's
// forest, matched against each incoming signal's body. Action names the
// process to run on a match: a user-defined process, or a built-in head
// symbol whose code node takes the captures as direct children. ActionTree,
// when set, is an inline process tree cloned as the run-tree code instead.
//
// An expectation is persistent by default. Once removes it after its first
// match; Until is a semtrex that, once it matches an incoming body on the
// aspect (clock ticks, typically), expires the expectation without firing.
type Expectation struct {
	Protocol   sem.SemanticID
	Pattern    sem.Handle
	Action     sem.SemanticID
	ActionTree sem.Handle
	Where      sem.Handle
	Until      sem.Handle
	Once       bool
}

// aspect is one named channel within a receptor: the expectations installed
// on it plus the log of signals it accepted.
type aspect struct {
	expectations []*Expectation
	signals      []sem.Handle
}

// Receptor is an isolated actor: a forest for its signals and run trees, a
// set of aspects with expectations, a pending-signals outbox, a process
// queue, and an address in the host's routing table.
//
// All of a receptor's tree state is guarded by its own mutex. The host's
// main loop and any auxiliary emitter (the clock goroutine) take it before
// touching the forest, so there is never concurrency inside a receptor.
type Receptor struct {
	Sem   *sem.SemTable
	Sys   *sem.Sys
	Vocab *semtrex.Vocab
	F     *sem.Forest
	Name  sem.SemanticID
	Q     *sem.Queue

	mu      sync.Mutex
	addr    Address
	state   ReceptorState
	aspects map[string]*aspect
	pending []sem.Handle
	streams []io.Closer
}

// NewReceptor returns a Spawned receptor sharing the given semantic table.
// The host assigns its address when it is registered.
func NewReceptor(s *sem.SemTable, sys *sem.Sys, v *semtrex.Vocab, name sem.SemanticID) *Receptor {
	return &Receptor{
		Sem:     s,
		Sys:     sys,
		Vocab:   v,
		F:       sem.NewForest(),
		Name:    name,
		Q:       sem.NewQueue(),
		aspects: make(map[string]*aspect),
		addr:    Address{Kind: VMAddr, Addr: SelfReceptorAddr},
	}
}

// Addr returns the receptor's routing-table address.
func (r *Receptor) Addr() Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

func (r *Receptor) setAddr(a Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addr = a
}

// State returns the receptor's lifecycle state.
func (r *Receptor) State() ReceptorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start transitions a Spawned receptor to Alive.
func (r *Receptor) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Spawned {
		r.state = Alive
	}
}

// Kill drains in-flight reductions, closes any owned streams and
// transitions the receptor to Dead. It is idempotent.
func (r *Receptor) Kill() {
	r.mu.Lock()
	if r.state == Dead {
		r.mu.Unlock()
		return
	}
	r.state = Dying
	streams := r.streams
	r.streams = nil
	r.mu.Unlock()

	r.Q.Cleanup()
	for _, c := range streams {
		_ = c.Close()
	}

	r.mu.Lock()
	r.state = Dead
	r.mu.Unlock()
}

// OwnStream registers a stream for teardown when the receptor is killed.
func (r *Receptor) OwnStream(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, c)
}

func (r *Receptor) aspectFor(name string) *aspect {
	a, ok := r.aspects[name]
	if !ok {
		a = &aspect{}
		r.aspects[name] = a
	}
	return a
}

// AddExpectation installs e on the named aspect.
func (r *Receptor) AddExpectation(aspectName string, e *Expectation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.aspectFor(aspectName)
	a.expectations = append(a.expectations, e)
	log.Catf(log.DebugReceptor, "receptor %d: expectation installed on aspect %q", r.addr.Addr, aspectName)
}

// Expectations returns the expectations currently installed on an aspect.
func (r *Receptor) Expectations(aspectName string) []*Expectation {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.aspects[aspectName]
	if !ok {
		return nil
	}
	return append([]*Expectation(nil), a.expectations...)
}

// AcceptedSignals returns the signals an aspect has matched so far.
func (r *Receptor) AcceptedSignals(aspectName string) []sem.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.aspects[aspectName]
	if !ok {
		return nil
	}
	return append([]sem.Handle(nil), a.signals...)
}

// Send appends a signal (ownership transferred) to the receptor's
// pending-signals outbox. The host's main loop drains and delivers it.
func (r *Receptor) Send(s sem.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Alive {
		return xerrors.Errorf("send: %w", sem.NewError(sem.ErrDeadReceptor, "receptor is not alive"))
	}
	r.pending = append(r.pending, s)
	return nil
}

// drainPending pops every queued outgoing signal.
func (r *Receptor) drainPending() []sem.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// normalizeCapturePath converts a semtrex capture path (whose leading index
// refers to the synthetic one-element sibling list Match wraps the target
// in) into a path relative to the matched body tree itself.
func normalizeCapturePath(p sem.Path) sem.Path {
	if len(p) == 0 {
		return nil
	}
	return append(sem.Path(nil), p[1:]...)
}

// Deliver matches a signal against the expectations installed on its
// destination aspect. The first matching expectation instantiates a run
// tree from its action with the capture groups as PARAMS and enqueues it on
// the receptor's process queue. When no expectation matches, the result is
// DeliveryNoMatch with no error.
func (r *Receptor) Deliver(s sem.Handle) (DeliveryStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Alive {
		return DeliveryNoMatch, xerrors.Errorf("deliver: %w", sem.NewError(sem.ErrDeadReceptor, "receptor is not alive"))
	}

	aspectName := SignalAspect(r.F, s)
	body := SignalBody(r.F, s)
	a, ok := r.aspects[aspectName]
	if !ok {
		return DeliveryNoMatch, nil
	}

	kept := a.expectations[:0]
	var fired *Expectation
	var caps []semtrex.Capture
	for i, e := range a.expectations {
		if fired != nil {
			kept = append(kept, a.expectations[i:]...)
			break
		}
		if !e.Until.IsNil() {
			if ok, _ := semtrex.Match(r.F, r.Vocab, e.Until, body); ok {
				log.Catf(log.DebugReceptor, "receptor %d: expectation expired on aspect %q", r.addr.Addr, aspectName)
				continue
			}
		}
		ok, c := semtrex.Match(r.F, r.Vocab, e.Pattern, body)
		if ok && !e.Where.IsNil() {
			ok, _ = semtrex.Match(r.F, r.Vocab, e.Where, body)
		}
		if !ok {
			kept = append(kept, e)
			continue
		}
		fired, caps = e, c
		if !e.Once {
			kept = append(kept, e)
		}
	}
	a.expectations = kept
	if fired == nil {
		return DeliveryNoMatch, nil
	}

	a.signals = append(a.signals, s)
	root, err := r.instantiate(fired, body, caps)
	if err != nil {
		return DeliveryNoMatch, xerrors.Errorf("deliver: %w", err)
	}
	r.Q.Enqueue(&sem.RunContext{Forest: r.F, Root: root})
	log.Catf(log.DebugSignal, "receptor %d: signal matched on aspect %q, run tree enqueued", r.addr.Addr, aspectName)
	return DeliverySuccess, nil
}

// instantiate builds the run tree for a fired expectation: the action's
// code with the capture groups, in capture order, as PARAMS.
func (r *Receptor) instantiate(e *Expectation, body sem.Handle, caps []semtrex.Capture) (sem.Handle, error) {
	var args []sem.Arg
	for _, c := range caps {
		h := r.F.Get(body, normalizeCapturePath(c.Path))
		if h.IsNil() {
			continue
		}
		args = append(args, sem.Arg{Forest: r.F, Handle: h})
	}

	if !e.ActionTree.IsNil() {
		root := r.F.NewRoot(r.Sys.RunTree)
		_ = r.F.Add(root, r.F.Clone(e.ActionTree))
		params := r.F.New(root, r.Sys.Params)
		for _, arg := range args {
			_ = r.F.Add(params, r.F.Clone(arg.Handle))
		}
		return root, nil
	}

	if e.Action.Kind == sem.KindProcess {
		return sem.MakeRunTree(r.Sem, r.Sys, r.F, e.Action, args)
	}

	// A built-in head symbol: its code node takes the captures directly.
	if e.Action.Kind == sem.KindSymbol && !e.Action.IsNil() {
		root := r.F.NewRoot(r.Sys.RunTree)
		code := r.F.New(root, e.Action)
		for _, arg := range args {
			_ = r.F.Add(code, r.F.Clone(arg.Handle))
		}
		r.F.New(root, r.Sys.Params)
		return root, nil
	}

	return sem.NilHandle, sem.NewError(sem.ErrBadSymbol, "expectation action is neither a process nor a tree")
}

// processRound advances the receptor one main-loop turn: one reduction step
// for each runnable context, then returns the outgoing signals generated so
// far, then sweeps completed contexts.
func (r *Receptor) processRound() []sem.Handle {
	if r.State() != Alive {
		return nil
	}
	r.mu.Lock()
	r.Q.ReduceRound(r.Sem, r.Sys)
	r.mu.Unlock()
	out := r.drainPending()
	r.Q.Cleanup()
	return out
}
