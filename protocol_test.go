package ceptr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

type protoEnv struct {
	*testEnv

	speaker  sem.SemanticID
	listener sem.SemanticID
	respond  sem.SemanticID // goal
	word     sem.SemanticID // usage
}

func newProtoEnv(t *testing.T) *protoEnv {
	t.Helper()
	e := &protoEnv{testEnv: newTestEnv(t)}
	var err error
	e.speaker, err = e.s.DefineSymbol(e.ctx, e.sys.StrTree, "SPEAKER")
	require.NoError(t, err)
	e.listener, err = e.s.DefineSymbol(e.ctx, e.sys.StrTree, "LISTENER")
	require.NoError(t, err)
	e.respond, err = e.s.DefineSymbol(e.ctx, e.sys.StrTree, "RESPOND")
	require.NoError(t, err)
	e.word, err = e.s.DefineSymbol(e.ctx, e.sys.StrTree, "WORD")
	require.NoError(t, err)
	return e
}

// echoProtocol defines a protocol whose listener expects a WORD-shaped
// signal and responds via the RESPOND goal; the pattern's symbol slot is
// the abstract WORD usage.
func (e *protoEnv) echoProtocol(t *testing.T, label string) sem.SemanticID {
	t.Helper()
	b := semtrex.NewBuilder(e.s.Defs, e.vocab)
	pattern := b.Group(e.word, b.SymbolLiteral(e.word))
	id, err := NewProtocolDef(e.s, e.sys, e.ctx, label).
		Role(e.speaker).
		Role(e.listener).
		Goal(e.respond).
		Usage(e.word).
		Interaction(label + ".speaking").
		ExpectGoal(e.listener, e.speaker, pattern, e.respond).
		Build()
	require.NoError(t, err)
	return id
}

func TestProtocolBuilderShape(t *testing.T) {
	e := newProtoEnv(t)
	id := e.echoProtocol(t, "echo")

	f := e.s.Defs
	def, ok := e.s.GetProtocolDef(id)
	require.True(t, ok)
	require.True(t, f.Symbol(def).Equal(e.sys.ProtocolDefinition))
	require.Equal(t, "echo", string(f.SurfaceBytes(f.Child(def, 1))))

	semantics := f.Child(def, protocolDefSemanticsIdx)
	require.Equal(t, 4, f.Children(semantics))

	interaction := f.Child(def, 3)
	require.True(t, isInteraction(e.s, e.sys, f.Symbol(interaction)))
	expect := f.Child(interaction, 1)
	require.True(t, f.Symbol(expect).Equal(e.sys.Expect))
	require.Equal(t, 4, f.Children(expect))
	require.True(t, f.SurfaceSymbol(f.Child(expect, expectRoleIdx)).Equal(e.listener))
	require.True(t, f.Symbol(f.Child(expect, expectActionIdx)).Equal(e.sys.Goal))
}

func TestProtocolBuilderMisuse(t *testing.T) {
	e := newProtoEnv(t)
	b := semtrex.NewBuilder(e.s.Defs, e.vocab)
	pattern := b.SymbolLiteral(e.num)

	_, err := NewProtocolDef(e.s, e.sys, e.ctx, "broken").
		Role(e.speaker).
		Expect(e.listener, e.speaker, pattern, e.double).
		Build()
	require.Error(t, err)

	var semErr *sem.Error
	require.True(t, xerrors.As(err, &semErr))
	require.Equal(t, sem.ErrProtocolBuildError, semErr.Kind)
}

func TestUnwrapIdempotentWithoutInclusions(t *testing.T) {
	e := newProtoEnv(t)
	id := e.echoProtocol(t, "echo")
	def, _ := e.s.GetProtocolDef(id)
	f := e.s.Defs

	once, err := Unwrap(e.s, e.sys, e.vocab, def)
	require.NoError(t, err)
	twice, err := Unwrap(e.s, e.sys, e.vocab, once)
	require.NoError(t, err)

	want := f.Hash(e.s, def)
	require.Equal(t, want, f.Hash(e.s, once))
	require.Equal(t, want, f.Hash(e.s, twice))
	require.NotEqual(t, def, once, "unwrap clones")
}

func TestUnwrapExpandsInclusion(t *testing.T) {
	e := newProtoEnv(t)
	echo := e.echoProtocol(t, "echo")

	guard, err := e.s.DefineSymbol(e.ctx, e.sys.StrTree, "GUARD")
	require.NoError(t, err)

	parent, err := NewProtocolDef(e.s, e.sys, e.ctx, "guarded-echo").
		Role(guard).
		Include(echo).
		ConnectRole(e.listener, guard).
		ResolveProcess(e.respond, e.double).
		ResolveSymbol(e.word, e.num).
		Build()
	require.NoError(t, err)

	def, _ := e.s.GetProtocolDef(parent)
	f := e.s.Defs
	unwrapped, err := Unwrap(e.s, e.sys, e.vocab, def)
	require.NoError(t, err)

	// no INCLUSION left, the interaction spliced in
	_, hasInclusion := f.FindChild(unwrapped, e.sys.Inclusion)
	require.False(t, hasInclusion)
	var interactions []sem.Handle
	for i := 1; i <= f.Children(unwrapped); i++ {
		c := f.Child(unwrapped, i)
		if isInteraction(e.s, e.sys, f.Symbol(c)) {
			interactions = append(interactions, c)
		}
	}
	require.Len(t, interactions, 1)

	// the expectation's role was connected to GUARD and its goal resolved
	// to a concrete action
	expect := f.Child(interactions[0], 1)
	require.True(t, f.SurfaceSymbol(f.Child(expect, expectRoleIdx)).Equal(guard))
	actionSlot := f.Child(expect, expectActionIdx)
	require.True(t, f.Symbol(actionSlot).Equal(e.sys.Action))
	require.True(t, f.SurfaceProcess(actionSlot).Equal(e.double))

	// the pattern's usage slot was resolved to NUM
	pattern := f.Child(expect, expectPatternIdx)
	found := false
	f.Visit(pattern, func(depth int, h sem.Handle) {
		if f.Symbol(h).Equal(e.vocab.SymbolLiteral) && f.SurfaceSymbol(h).Equal(e.num) {
			found = true
		}
	})
	require.True(t, found)

	// resolved semantics entries were dropped; unresolved ones merged.
	// GUARD comes from the parent, SPEAKER merges up from the inclusion.
	semantics := f.Child(unwrapped, protocolDefSemanticsIdx)
	var roles, goals, usages int
	for i := 1; i <= f.Children(semantics); i++ {
		c := f.Child(semantics, i)
		switch {
		case f.Symbol(c).Equal(e.sys.Role):
			roles++
		case f.Symbol(c).Equal(e.sys.Goal):
			goals++
		case f.Symbol(c).Equal(e.sys.Usage):
			usages++
		}
	}
	require.Equal(t, 0, goals, "resolved goal must not merge up")
	require.Equal(t, 0, usages, "resolved usage must not merge up")
	// the connection renamed LISTENER to GUARD inside the inclusion, so the
	// merged roles are GUARD (already declared) plus SPEAKER
	require.Equal(t, 2, roles)
}

func TestExpressRole(t *testing.T) {
	e := newProtoEnv(t)
	echo := e.echoProtocol(t, "echo")
	r := e.newReceptor(t, "R")

	bindings := NewBindings(e.s, e.sys)
	BindProcess(e.s, e.sys, bindings, e.respond, e.double)
	BindSymbol(e.s, e.sys, bindings, e.word, e.num)

	require.NoError(t, ExpressRole(r, echo, e.listener, "DEFAULT", bindings))
	require.Len(t, r.Expectations("DEFAULT"), 1)

	// the installed expectation fires on a NUM signal
	status, err := r.Deliver(e.numSignal(r, SelfAddress(), 21))
	require.NoError(t, err)
	require.Equal(t, DeliverySuccess, status)
	require.Equal(t, 1, r.Q.Len())
}

func TestExpressRoleUnboundGoal(t *testing.T) {
	e := newProtoEnv(t)
	echo := e.echoProtocol(t, "echo")
	r := e.newReceptor(t, "R")

	err := ExpressRole(r, echo, e.listener, "DEFAULT", sem.NilHandle)
	require.Error(t, err)

	var semErr *sem.Error
	require.True(t, xerrors.As(err, &semErr))
	require.Equal(t, sem.ErrUnboundGoal, semErr.Kind)
	require.Empty(t, r.Expectations("DEFAULT"))
}

func TestExpressRoleUnknownProtocol(t *testing.T) {
	e := newProtoEnv(t)
	r := e.newReceptor(t, "R")

	bogus := sem.SemanticID{Context: e.ctx, Kind: sem.KindProtocol, ID: 42}
	err := ExpressRole(r, bogus, e.listener, "DEFAULT", sem.NilHandle)
	require.Error(t, err)

	var semErr *sem.Error
	require.True(t, xerrors.As(err, &semErr))
	require.Equal(t, sem.ErrProtocolNotFound, semErr.Kind)
}
