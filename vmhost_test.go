package ceptr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

func hostEnv(t *testing.T) (*Host, sem.SemanticID, sem.ProcessID) {
	t.Helper()
	h, err := NewHost()
	require.NoError(t, err)

	ctx := h.Sem.NewContext()
	num, err := h.Sem.DefineSymbol(ctx, h.Sys.StrInteger, "NUM")
	require.NoError(t, err)

	code := h.Sem.Defs.NewRoot(h.Sys.AddInt)
	ref1 := h.Sem.Defs.New(code, h.Sys.ParamRef)
	h.Sem.Defs.NewInt(ref1, num, 1)
	ref2 := h.Sem.Defs.New(code, h.Sys.ParamRef)
	h.Sem.Defs.NewInt(ref2, num, 1)
	double, err := h.Sem.DefineProcess(ctx, code, "DOUBLE", "doubles its argument", sem.NilHandle, sem.NilHandle)
	require.NoError(t, err)
	return h, num, double
}

func addReceptor(t *testing.T, h *Host, label string) *Receptor {
	t.Helper()
	ctx := h.Sem.NewContext()
	name, err := h.Sem.DefineSymbol(ctx, h.Sys.StrTree, label)
	require.NoError(t, err)
	r := NewReceptor(h.Sem, h.Sys, h.Vocab, name)
	_, err = h.NewReceptor(name, r)
	require.NoError(t, err)
	require.NoError(t, h.Activate(r))
	return r
}

func expectNum(h *Host, r *Receptor, num sem.SemanticID, action sem.ProcessID, aspectName string) {
	b := semtrex.NewBuilder(r.F, h.Vocab)
	r.AddExpectation(aspectName, &Expectation{
		Pattern: b.Group(num, b.SymbolLiteral(num)),
		Action:  action,
	})
}

func TestHostRegistersRootAndClock(t *testing.T) {
	h, _, _ := hostEnv(t)
	defer h.Shutdown()

	require.Equal(t, 0, h.Root().Addr().Addr)
	require.Equal(t, 1, h.Clock().Addr().Addr)
	require.Equal(t, Alive, h.Root().State())
	require.Equal(t, Spawned, h.Clock().State())
}

func TestSendExternalDelivers(t *testing.T) {
	h, num, double := hostEnv(t)
	defer h.Shutdown()

	r := addReceptor(t, h, "WORKER")
	expectNum(h, r, num, double, "LINES")

	h.sendMu.Lock()
	body := h.Root().F.NewInt(sem.NilHandle, num, 7)
	h.sendMu.Unlock()
	status, err := h.SendExternal(SelfAddress(), r.Addr(), "LINES", num, body)
	require.NoError(t, err)
	require.Equal(t, DeliverySuccess, status)
	require.Equal(t, 1, r.Q.Len())

	// the delivered signal carries the root receptor's address, not the
	// self placeholder
	got := r.AcceptedSignals("LINES")
	require.Len(t, got, 1)
	require.Equal(t, h.Root().Addr(), SignalFrom(r.F, got[0]))
}

func TestSendExternalBadAddress(t *testing.T) {
	h, num, _ := hostEnv(t)
	defer h.Shutdown()

	_, err := h.SendExternalString(SelfAddress(), Address{Kind: VMAddr, Addr: 99}, "LINES", num, "nobody home")
	require.Error(t, err)

	var semErr *sem.Error
	require.True(t, xerrors.As(err, &semErr))
	require.Equal(t, sem.ErrBadAddress, semErr.Kind)
}

func TestMainLoopDeliversBetweenReceptors(t *testing.T) {
	h, num, double := hostEnv(t)

	a := addReceptor(t, h, "A")
	b := addReceptor(t, h, "B")
	expectNum(h, b, num, double, "DEFAULT")

	// a queues a signal for b with the self placeholder as sender
	a.mu.Lock()
	body := a.F.NewInt(sem.NilHandle, num, 5)
	s := MakeSignal(h.Sys, a.F, SelfAddress(), b.Addr(), "DEFAULT", num, body, nil)
	a.mu.Unlock()
	require.NoError(t, a.Send(s))

	h.Start()
	require.Eventually(t, func() bool {
		return len(b.AcceptedSignals("DEFAULT")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	got := b.AcceptedSignals("DEFAULT")[0]
	require.Equal(t, a.Addr(), SignalFrom(b.F, got), "self placeholder resolved to the sender")

	h.Shutdown()
	require.Equal(t, Dead, a.State())
	require.Equal(t, Dead, b.State())
}

func TestClockTicks(t *testing.T) {
	h, _, double := hostEnv(t)
	h.SetClockPeriod(10 * time.Millisecond)

	clock := h.Clock()
	b := semtrex.NewBuilder(clock.F, h.Vocab)
	clock.AddExpectation(ClockAspect, &Expectation{
		Pattern: b.Group(h.Sys.ClockTick, b.SymbolLiteral(h.Sys.ClockTick)),
		Action:  double,
	})

	require.NoError(t, h.Activate(clock))
	h.Start()

	require.Eventually(t, func() bool {
		return len(clock.AcceptedSignals(ClockAspect)) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// tick timestamps are monotonically non-decreasing
	ticks := clock.AcceptedSignals(ClockAspect)
	clock.mu.Lock()
	var prev int64
	for _, s := range ticks {
		ts := SignalTimestamp(clock.F, s)
		require.GreaterOrEqual(t, ts, prev)
		prev = ts
	}
	clock.mu.Unlock()

	h.Shutdown()
}

func TestTooManyReceptors(t *testing.T) {
	h, _, _ := hostEnv(t)

	ctx := h.Sem.NewContext()
	name, err := h.Sem.DefineSymbol(ctx, h.Sys.StrTree, "FILLER")
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < MaxReceptors; i++ {
		_, lastErr = h.NewReceptor(name, NewReceptor(h.Sem, h.Sys, h.Vocab, name))
		if lastErr != nil {
			break
		}
	}
	require.Error(t, lastErr)

	var semErr *sem.Error
	require.True(t, xerrors.As(lastErr, &semErr))
	require.Equal(t, sem.ErrTooManyReceptors, semErr.Kind)

	// the overflow is fatal for the host
	require.Equal(t, Dead, h.Root().State())
}

func TestInstallPackageNotFinalized(t *testing.T) {
	h, _, _ := hostEnv(t)
	defer h.Shutdown()

	_, err := h.InstallPackage(nil, PackageNameToID("demo"))
	require.Error(t, err)
}
