package sem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefineAndLookup(t *testing.T) {
	s, sys := NewSysSemTable()
	ctx := s.NewContext()

	age, err := s.DefineSymbol(ctx, sys.StrInteger, "AGE")
	require.NoError(t, err)
	require.Equal(t, ctx, age.Context)
	require.Equal(t, KindSymbol, age.Kind)

	name, ok := s.GetName(age)
	require.True(t, ok)
	require.Equal(t, "AGE", name)

	id, ok := s.Lookup(ctx, "AGE")
	require.True(t, ok)
	require.True(t, Semeq(id, age))

	st, ok := s.GetSymbolStructure(age)
	require.True(t, ok)
	require.True(t, st.Equal(sys.StrInteger))

	_, ok = s.Lookup(ctx, "MISSING")
	require.False(t, ok)
}

func TestSemeqIsComponentWise(t *testing.T) {
	s, sys := NewSysSemTable()
	c1 := s.NewContext()
	c2 := s.NewContext()

	a, _ := s.DefineSymbol(c1, sys.StrInteger, "A")
	b, _ := s.DefineSymbol(c2, sys.StrInteger, "A")

	require.False(t, Semeq(a, b), "same label, different context")
	require.True(t, Semeq(a, a))
	require.Equal(t, a.ID, b.ID)
}

func TestMonotonicIDs(t *testing.T) {
	s, sys := NewSysSemTable()
	ctx := s.NewContext()

	var prev int32 = -1
	for _, label := range []string{"ONE", "TWO", "THREE"} {
		id, err := s.DefineSymbol(ctx, sys.StrInteger, label)
		require.NoError(t, err)
		require.Equal(t, prev+1, id.ID)
		prev = id.ID
	}
}

func TestCompositeStructure(t *testing.T) {
	s, sys := NewSysSemTable()
	ctx := s.NewContext()

	x, _ := s.DefineSymbol(ctx, sys.StrInteger, "X")
	y, _ := s.DefineSymbol(ctx, sys.StrInteger, "Y")
	point, err := s.DefineStructure(ctx, "POINT", PrimNone, x, y)
	require.NoError(t, err)

	def, ok := s.GetStructureDef(point)
	require.True(t, ok)
	require.Equal(t, PrimNone, def.Primitive)
	require.Len(t, def.Children, 2)
	require.False(t, def.Literal)

	params, ok := s.GetStructureDef(sysStructureOf(t, s, sys.Params))
	require.True(t, ok)
	require.True(t, params.Literal)
}

func sysStructureOf(t *testing.T, s *SemTable, symbol SemanticID) SemanticID {
	t.Helper()
	st, ok := s.GetSymbolStructure(symbol)
	require.True(t, ok)
	return st
}

func TestDefineProcessAndProtocol(t *testing.T) {
	s, sys := NewSysSemTable()
	ctx := s.NewContext()

	code := s.Defs.NewRoot(sys.AddInt)
	proc, err := s.DefineProcess(ctx, code, "NOOP", "does nothing useful", NilHandle, NilHandle)
	require.NoError(t, err)
	require.Equal(t, KindProcess, proc.Kind)

	pd, ok := s.GetProcessDef(proc)
	require.True(t, ok)
	require.Equal(t, code, pd.Code)
	require.Equal(t, "NOOP", pd.Label)

	def := s.Defs.NewRoot(sys.ProtocolDefinition)
	prot, err := s.DefineProtocol(ctx, def, "empty")
	require.NoError(t, err)
	require.Equal(t, KindProtocol, prot.Kind)

	got, ok := s.GetProtocolDef(prot)
	require.True(t, ok)
	require.Equal(t, def, got)
}

func TestIsDefined(t *testing.T) {
	s, sys := NewSysSemTable()
	ctx := s.NewContext()
	age, _ := s.DefineSymbol(ctx, sys.StrInteger, "AGE")

	require.True(t, s.IsDefined(age))
	require.True(t, s.IsDefined(sys.StrInteger))
	require.False(t, s.IsDefined(SemanticID{Context: 99, Kind: KindSymbol, ID: 0}))
	require.False(t, s.IsDefined(SemanticID{Context: ctx, Kind: KindSymbol, ID: 99}))
}
