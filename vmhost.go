package ceptr

import (
	"sync"
	"time"

	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

const (
	// MaxReceptors bounds the host's routing table.
	MaxReceptors = 100
	// MaxActiveReceptors bounds the host's active list.
	MaxActiveReceptors = 100
)

// ClockAspect is the aspect the built-in clock receptor ticks on.
const ClockAspect = "CLOCK"

// DefaultClockPeriod is the tick period of the clock receptor unless
// SetClockPeriod is called before activation.
const DefaultClockPeriod = time.Second

type routeEntry struct {
	r    *Receptor
	name sem.SemanticID
}

// Host is the single-process runtime that owns receptors and drives their
// reduction and signal delivery. It holds the shared semantic table, a
// bounded routing table indexed by address, the active-receptor list, and
// the auxiliary clock goroutine.
type Host struct {
	Sem   *sem.SemTable
	Sys   *sem.Sys
	Vocab *semtrex.Vocab
	ID    HostID

	root  *Receptor
	clock *Receptor

	mu          sync.Mutex
	routing     []routeEntry
	active      []*Receptor
	clockPeriod time.Duration
	clockStop   chan struct{}

	// sendMu serializes external senders, which all allocate their signal
	// trees in the root receptor's forest.
	sendMu sync.Mutex

	wg sync.WaitGroup

	lat *latencyRecorder
}

// NewHost builds a host with a fresh semantic table, the semtrex vocabulary
// registered, a root receptor installed at routing slot 0, and the built-in
// clock receptor registered (but not yet activated) at slot 1.
func NewHost() (*Host, error) {
	semTable, sys := sem.NewSysSemTable()
	vocab, err := semtrex.NewVocab(semTable)
	if err != nil {
		return nil, xerrors.Errorf("new host: %w", err)
	}
	hostCtx := semTable.NewContext()
	rootSym, err := semTable.DefineSymbol(hostCtx, sys.StrTree, "SYS_RECEPTOR")
	if err != nil {
		return nil, xerrors.Errorf("new host: %w", err)
	}
	clockSym, err := semTable.DefineSymbol(hostCtx, sys.StrTree, "CLOCK_RECEPTOR")
	if err != nil {
		return nil, xerrors.Errorf("new host: %w", err)
	}

	h := &Host{
		Sem:         semTable,
		Sys:         sys,
		Vocab:       vocab,
		ID:          NewHostID(),
		clockPeriod: DefaultClockPeriod,
		lat:         newLatencyRecorder(),
	}

	h.root = NewReceptor(semTable, sys, vocab, rootSym)
	if _, err := h.NewReceptor(rootSym, h.root); err != nil {
		return nil, err
	}
	h.root.Start()

	h.clock = NewReceptor(semTable, sys, vocab, clockSym)
	if _, err := h.NewReceptor(clockSym, h.clock); err != nil {
		return nil, err
	}
	return h, nil
}

// Root returns the host's own receptor, routing slot 0. External signals
// enter through it.
func (h *Host) Root() *Receptor {
	return h.root
}

// Clock returns the built-in clock receptor.
func (h *Host) Clock() *Receptor {
	return h.clock
}

// SetClockPeriod adjusts the clock tick period; it takes effect when the
// clock receptor is activated.
func (h *Host) SetClockPeriod(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clockPeriod = d
}

// NewReceptor assigns the next routing-table slot to r and records it under
// name. Overflowing the table is a host-level invariant violation: the host
// transitions to Dying.
func (h *Host) NewReceptor(name sem.SemanticID, r *Receptor) (Address, error) {
	h.mu.Lock()
	if len(h.routing) >= MaxReceptors {
		h.mu.Unlock()
		h.fatal("routing table full")
		return Address{}, xerrors.Errorf("new receptor: %w", sem.NewError(sem.ErrTooManyReceptors, "routing table full"))
	}
	addr := Address{Kind: VMAddr, Addr: len(h.routing)}
	h.routing = append(h.routing, routeEntry{r: r, name: name})
	h.mu.Unlock()
	r.setAddr(addr)
	log.Catf(log.DebugReceptor, "receptor %d registered", addr.Addr)
	return addr, nil
}

// Activate adds a registered receptor to the active list and starts it. If
// it is the clock receptor, the dedicated clock goroutine starts too.
func (h *Host) Activate(r *Receptor) error {
	h.mu.Lock()
	if len(h.active) >= MaxActiveReceptors {
		h.mu.Unlock()
		h.fatal("active list full")
		return xerrors.Errorf("activate: %w", sem.NewError(sem.ErrTooManyActive, "active list full"))
	}
	h.active = append(h.active, r)
	isClock := r == h.clock
	period := h.clockPeriod
	h.mu.Unlock()

	r.Start()
	if isClock {
		h.startClock(period)
	}
	return nil
}

func (h *Host) startClock(period time.Duration) {
	h.mu.Lock()
	if h.clockStop != nil {
		h.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	h.clockStop = stop
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.emitTick()
			}
		}
	}()
}

// emitTick queues one CLOCK_TICK signal from the clock receptor to itself.
func (h *Host) emitTick() {
	r := h.clock
	if r.State() != Alive {
		return
	}
	r.mu.Lock()
	body := r.F.NewInt(sem.NilHandle, h.Sys.ClockTick, time.Now().Unix())
	s := MakeSignal(h.Sys, r.F, SelfAddress(), SelfAddress(), ClockAspect, h.Sys.ClockTick, body, nil)
	r.pending = append(r.pending, s)
	r.mu.Unlock()
	log.Cat(log.DebugSignal, "clock tick queued")
}

func (h *Host) receptorAt(addr int) (*Receptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if addr < 0 || addr >= len(h.routing) {
		return nil, false
	}
	return h.routing[addr].r, true
}

// fatal reacts to a host-level invariant violation by shutting the main
// loop down: the root receptor leaves Alive, which breaks Process.
func (h *Host) fatal(reason string) {
	log.Error("host fatal:", reason)
	h.root.Kill()
}

// lockPair takes two receptor mutexes in address order, so concurrent
// deliveries in opposite directions cannot deadlock.
func lockPair(a, b *Receptor) {
	if a.addr.Addr > b.addr.Addr {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
}

func unlockPair(a, b *Receptor) {
	a.mu.Unlock()
	if a != b {
		b.mu.Unlock()
	}
}

// deliverSignal resolves self addresses against the sender, looks the
// destination up in the routing table, and delivers. A bad address returns
// a BAD_ADDRESS error without delivering; the main loop logs it and drops
// the signal.
func (h *Host) deliverSignal(sender *Receptor, s sem.Handle) (DeliveryStatus, error) {
	sender.mu.Lock()
	patchSelfAddresses(sender.F, s, sender.addr)
	to := SignalTo(sender.F, s)
	sender.mu.Unlock()

	dest, ok := h.receptorAt(to.Addr)
	if !ok {
		return DeliveryNoMatch, xerrors.Errorf("deliver signal: to %d: %w", to.Addr, sem.NewError(sem.ErrBadAddress, "no such routing slot"))
	}
	sig := s
	if dest != sender {
		// signals live in their sender's forest; crossing receptors means
		// crossing forests
		lockPair(sender, dest)
		sig = sender.F.CloneTo(dest.F, s)
		unlockPair(sender, dest)
	}
	return dest.Deliver(sig)
}

// SendExternal wraps body (an orphan in the root receptor's forest, built
// under the same sendMu via SendExternalString or by a single external
// goroutine) as a signal from the root receptor and immediately delivers.
func (h *Host) SendExternal(from, to Address, aspectName string, carrier sem.SemanticID, body sem.Handle) (DeliveryStatus, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	return h.sendExternal(from, to, aspectName, carrier, body)
}

// SendExternalString is SendExternal for a text payload: the body is a
// carrier-tagged string node, allocated safely in the root forest.
func (h *Host) SendExternalString(from, to Address, aspectName string, carrier sem.SemanticID, text string) (DeliveryStatus, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	h.root.mu.Lock()
	body := h.root.F.NewString(sem.NilHandle, carrier, text)
	h.root.mu.Unlock()
	return h.sendExternal(from, to, aspectName, carrier, body)
}

func (h *Host) sendExternal(from, to Address, aspectName string, carrier sem.SemanticID, body sem.Handle) (DeliveryStatus, error) {
	h.root.mu.Lock()
	s := MakeSignal(h.Sys, h.root.F, from, to, aspectName, carrier, body, nil)
	h.root.mu.Unlock()
	return h.deliverSignal(h.root, s)
}

// Process is the host's main monitoring and execution loop: while the root
// receptor is alive, every active receptor gets one reduction round, its
// pending signals are drained and delivered, and its completed run trees
// are swept. On exit every active receptor is killed.
func (h *Host) Process() {
	for h.root.State() == Alive {
		h.mu.Lock()
		active := append([]*Receptor(nil), h.active...)
		h.mu.Unlock()

		busy := false
		for _, r := range active {
			if h.root.State() != Alive {
				break
			}
			if r.Q.Len() > 0 {
				busy = true
			}
			start := time.Now()
			out := r.processRound()
			if r.Q.Len() > 0 || len(out) > 0 {
				h.lat.record(time.Since(start))
			}
			for _, s := range out {
				busy = true
				if _, err := h.deliverSignal(r, s); err != nil {
					log.Error("dropping signal:", err)
				}
			}
		}
		if !busy {
			time.Sleep(time.Millisecond)
		}
	}

	h.mu.Lock()
	active := append([]*Receptor(nil), h.active...)
	h.mu.Unlock()
	for _, r := range active {
		r.Kill()
	}
}

// Start runs Process on its own goroutine.
func (h *Host) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Process()
	}()
}

// Shutdown stops the main loop, the clock goroutine, and every active
// receptor, then waits for all host goroutines to exit.
func (h *Host) Shutdown() {
	h.mu.Lock()
	if h.clockStop != nil {
		close(h.clockStop)
		h.clockStop = nil
	}
	h.mu.Unlock()
	h.root.Kill()
	h.wg.Wait()
}
