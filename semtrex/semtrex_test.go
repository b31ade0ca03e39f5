package semtrex_test

import (
	"testing"

	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

func setup(t *testing.T) (*sem.SemTable, *sem.Sys, *semtrex.Vocab) {
	t.Helper()
	st, sys := sem.NewSysSemTable()
	v, err := semtrex.NewVocab(st)
	if err != nil {
		t.Fatal(err)
	}
	return st, sys, v
}

func TestMatchSymbolLiteral(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := sem.NewForest()
	target := f.NewInt(sem.NilHandle, testInt, 42)

	b := semtrex.NewBuilder(f, v)
	stx := b.SymbolLiteral(testInt)

	ok, caps := semtrex.Match(f, v, stx, target)
	if !ok {
		t.Fatal("expected match")
	}
	if len(caps) != 0 {
		t.Fatalf("expected no captures, got %v", caps)
	}
}

func TestMatchGroupCapturesValue(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	captureName, _ := st.DefineSymbol(ctx, sys.StrCString, "CAPTURED")

	f := sem.NewForest()
	target := f.NewInt(sem.NilHandle, testInt, 7)

	b := semtrex.NewBuilder(f, v)
	stx := b.Group(captureName, b.SymbolLiteral(testInt))

	ok, caps := semtrex.Match(f, v, stx, target)
	if !ok || len(caps) != 1 {
		t.Fatalf("expected one capture, got ok=%v caps=%v", ok, caps)
	}
	if caps[0].Name != captureName {
		t.Fatalf("unexpected capture name %v", caps[0].Name)
	}
}

func TestMatchSequenceOfChildren(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	container, _ := st.DefineSymbol(ctx, sys.StrTree, "CONTAINER")

	f := sem.NewForest()
	parent := f.NewRoot(container)
	f.NewInt(parent, testInt, 1)
	f.NewInt(parent, testInt, 2)
	f.NewInt(parent, testInt, 3)

	b := semtrex.NewBuilder(f, v)
	one := b.SymbolLiteral(testInt)
	rest := b.OneOrMore(b.SymbolLiteral(testInt))
	stx := b.SymbolLiteral(container, one, rest)

	ok, _ := semtrex.Match(f, v, stx, parent)
	if !ok {
		t.Fatal("expected sequence match over three int children")
	}
}

func TestReplaceEverywhere(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	other, _ := st.DefineSymbol(ctx, sys.StrInteger, "OTHER")
	container, _ := st.DefineSymbol(ctx, sys.StrTree, "CONTAINER")

	f := sem.NewForest()
	root := f.NewRoot(container)
	f.NewInt(root, testInt, 1)
	f.NewInt(root, testInt, 2)

	b := semtrex.NewBuilder(f, v)
	stx := b.SymbolLiteral(testInt)
	replacement := f.NewInt(sem.NilHandle, other, 99)

	n := semtrex.Replace(f, v, stx, root, replacement)
	if n != 2 {
		t.Fatalf("expected 2 replacements, got %d", n)
	}
	for i := 1; i <= f.Children(root); i++ {
		c := f.Child(root, i)
		if f.Symbol(c) != other || f.SurfaceInt(c) != 99 {
			t.Fatalf("child %d not replaced: symbol=%v val=%d", i, f.Symbol(c), f.SurfaceInt(c))
		}
	}
}

func TestMatchValueLiteral(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := sem.NewForest()
	target := f.NewInt(sem.NilHandle, testInt, 42)

	b := semtrex.NewBuilder(f, v)
	match := b.ValueLiteral(f.NewInt(sem.NilHandle, testInt, 42))
	miss := b.ValueLiteral(f.NewInt(sem.NilHandle, testInt, 43))

	if ok, _ := semtrex.Match(f, v, match, target); !ok {
		t.Fatal("expected value literal to match equal surface")
	}
	if ok, _ := semtrex.Match(f, v, miss, target); ok {
		t.Fatal("expected value literal to reject different surface")
	}
}

func TestMatchOrAndNot(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	a, _ := st.DefineSymbol(ctx, sys.StrInteger, "A")
	c, _ := st.DefineSymbol(ctx, sys.StrInteger, "C")

	f := sem.NewForest()
	target := f.NewInt(sem.NilHandle, a, 1)

	b := semtrex.NewBuilder(f, v)
	either := b.Or(b.SymbolLiteral(c), b.SymbolLiteral(a))
	if ok, _ := semtrex.Match(f, v, either, target); !ok {
		t.Fatal("expected OR to take the second alternative")
	}

	not := b.Not(b.SymbolLiteral(c))
	if ok, _ := semtrex.Match(f, v, not, target); !ok {
		t.Fatal("expected NOT C to match an A node")
	}
	notA := b.Not(b.SymbolLiteral(a))
	if ok, _ := semtrex.Match(f, v, notA, target); ok {
		t.Fatal("expected NOT A to reject an A node")
	}
}

func TestMatchZeroOrOne(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	opt, _ := st.DefineSymbol(ctx, sys.StrInteger, "OPT")
	container, _ := st.DefineSymbol(ctx, sys.StrTree, "CONTAINER")

	f := sem.NewForest()
	bare := f.NewRoot(container)
	f.NewInt(bare, testInt, 1)
	full := f.NewRoot(container)
	f.NewInt(full, testInt, 1)
	f.NewInt(full, opt, 2)

	b := semtrex.NewBuilder(f, v)
	stx := b.SymbolLiteral(container, b.SymbolLiteral(testInt), b.ZeroOrOne(b.SymbolLiteral(opt)))
	if ok, _ := semtrex.Match(f, v, stx, bare); !ok {
		t.Fatal("expected match without the optional child")
	}
	if ok, _ := semtrex.Match(f, v, stx, full); !ok {
		t.Fatal("expected match with the optional child")
	}
}

func TestWalkFindsNestedMatches(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	container, _ := st.DefineSymbol(ctx, sys.StrTree, "CONTAINER")

	f := sem.NewForest()
	root := f.NewRoot(container)
	inner := f.New(root, container)
	f.NewInt(inner, testInt, 1)
	f.NewInt(root, testInt, 2)

	b := semtrex.NewBuilder(f, v)
	stx := b.SymbolLiteral(testInt)

	matches := semtrex.Walk(f, v, stx, root)
	if len(matches) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(matches))
	}
	if got := matches[0].Path; len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("unexpected first path %v", got)
	}
	if got := matches[1].Path; len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected second path %v", got)
	}
}

func TestBuildResultsShape(t *testing.T) {
	st, sys, v := setup(t)
	ctx := st.NewContext()
	testInt, _ := st.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	captureName, _ := st.DefineSymbol(ctx, sys.StrCString, "CAPTURED")

	f := sem.NewForest()
	target := f.NewInt(sem.NilHandle, testInt, 7)

	b := semtrex.NewBuilder(f, v)
	stx := b.Group(captureName, b.SymbolLiteral(testInt))
	ok, caps := semtrex.Match(f, v, stx, target)
	if !ok {
		t.Fatal("expected match")
	}

	results := semtrex.BuildResults(sys, f, caps)
	if f.Symbol(results) != sys.SemtrexMatchResults {
		t.Fatal("wrong results root symbol")
	}
	if f.Children(results) != 1 {
		t.Fatalf("expected one match entry, got %d", f.Children(results))
	}
	m := f.Child(results, 1)
	if f.SurfaceSymbol(m) != captureName {
		t.Fatal("match entry should carry the group name")
	}
	if _, ok := f.FindChild(m, sys.SemtrexMatchedPath); !ok {
		t.Fatal("match entry is missing its path")
	}
	if c, ok := f.FindChild(m, sys.SemtrexMatchSiblingsCount); !ok || f.SurfaceInt(c) != 1 {
		t.Fatal("match entry should record one consumed sibling")
	}
}
