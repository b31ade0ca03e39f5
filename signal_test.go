package ceptr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/ceptr/sem"
)

func TestMakeSignalHeaderAndBody(t *testing.T) {
	s, sys := sem.NewSysSemTable()
	ctx := s.NewContext()
	line, err := s.DefineSymbol(ctx, sys.StrCString, "LINE")
	require.NoError(t, err)

	f := sem.NewForest()
	body := f.NewString(sem.NilHandle, line, "fish")
	from := Address{Kind: VMAddr, Addr: 0}
	to := Address{Kind: VMAddr, Addr: 0}

	before := time.Now().Unix()
	sig := MakeSignal(sys, f, from, to, "DEFAULT", line, body, nil)
	after := time.Now().Unix()

	require.Equal(t, from, SignalFrom(f, sig))
	require.Equal(t, to, SignalTo(f, sig))
	require.Equal(t, "DEFAULT", SignalAspect(f, sig))
	require.True(t, SignalCarrier(f, sig).Equal(line))

	ts := SignalTimestamp(f, sig)
	require.GreaterOrEqual(t, ts, before)
	require.LessOrEqual(t, ts, after)

	b := SignalBody(f, sig)
	require.True(t, f.Symbol(b).Equal(line))
	require.Equal(t, "fish", string(f.SurfaceBytes(b)))
}

func TestMakeSignalOptionalFields(t *testing.T) {
	s, sys := sem.NewSysSemTable()
	ctx := s.NewContext()
	line, _ := s.DefineSymbol(ctx, sys.StrCString, "LINE")

	f := sem.NewForest()
	opts := &SignalOptions{
		UUID:         NewSignalUUID(),
		InResponseTo: NewSignalUUID(),
		Conversation: "haggling",
	}
	sig := MakeSignal(sys, f, SelfAddress(), SelfAddress(), "DEFAULT", line, sem.NilHandle, opts)

	head := signalHeader(f, sig)
	require.Equal(t, 8, f.Children(head))

	u, ok := f.FindChild(head, sys.UUID)
	require.True(t, ok)
	require.Equal(t, opts.UUID, string(f.SurfaceBytes(u)))

	conv, ok := f.FindChild(head, sys.Conversation)
	require.True(t, ok)
	require.Equal(t, "haggling", string(f.SurfaceBytes(conv)))
}

func TestPatchSelfAddresses(t *testing.T) {
	s, sys := sem.NewSysSemTable()
	ctx := s.NewContext()
	line, _ := s.DefineSymbol(ctx, sys.StrCString, "LINE")

	f := sem.NewForest()
	sig := MakeSignal(sys, f, SelfAddress(), Address{Kind: VMAddr, Addr: 3}, "DEFAULT", line, sem.NilHandle, nil)

	patchSelfAddresses(f, sig, Address{Kind: VMAddr, Addr: 7})
	require.Equal(t, 7, SignalFrom(f, sig).Addr)
	require.Equal(t, 3, SignalTo(f, sig).Addr, "concrete addresses stay untouched")
}
