package sem

import "testing"

func TestRunTreeArithmetic(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, err := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	if err != nil {
		t.Fatal(err)
	}

	f := NewForest()
	root := f.NewRoot(sys.RunTree)
	add := f.New(root, sys.AddInt)
	f.NewInt(add, testInt, 99)
	f.NewInt(add, testInt, 100)
	f.New(root, sys.Params)

	rc := &RunContext{Forest: f, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	got := f.SurfaceInt(rc.Code())
	if got != 199 {
		t.Fatalf("got %d, want 199", got)
	}
	if f.Symbol(rc.Code()) != testInt {
		t.Fatalf("result lost the first operand's symbol")
	}
}

func TestRunTreeDivisionByZero(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := NewForest()
	root := f.NewRoot(sys.RunTree)
	div := f.New(root, sys.DivInt)
	f.NewInt(div, testInt, 10)
	f.NewInt(div, testInt, 0)
	f.New(root, sys.Params)

	rc := &RunContext{Forest: f, Root: root}
	err := Reduce(sem, sys, rc)
	if err == nil {
		t.Fatal("expected ZERO_DIVISION error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != ErrZeroDivision {
		t.Fatalf("got %v, want ZERO_DIVISION", err)
	}

	// the offending subtree is replaced in place with an error tree
	code := rc.Code()
	if f.Symbol(code) != sys.ErrorSym {
		t.Fatalf("expected ERROR tree, got %v", f.Symbol(code))
	}
	if got := string(f.SurfaceBytes(f.Child(code, 1))); got != "ZERO_DIVISION" {
		t.Fatalf("error tree kind = %q", got)
	}
	if got := string(f.SurfaceBytes(f.Child(code, 3))); got != "/" {
		t.Fatalf("offending path = %q", got)
	}
}

func TestRunTreeIf(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := NewForest()
	root := f.NewRoot(sys.RunTree)
	ifNode := f.New(root, sys.If)
	f.NewInt(ifNode, sys.TrueFalse, 1)
	f.NewInt(ifNode, testInt, 42)
	f.NewInt(ifNode, testInt, 7)
	f.New(root, sys.Params)

	rc := &RunContext{Forest: f, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got := f.SurfaceInt(rc.Code()); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestRunTreeComparisons(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := NewForest()
	root := f.NewRoot(sys.RunTree)
	lt := f.New(root, sys.LtInt)
	f.NewInt(lt, testInt, 3)
	f.NewInt(lt, testInt, 5)
	f.New(root, sys.Params)

	rc := &RunContext{Forest: f, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got := f.SurfaceInt(rc.Code()); got != 1 {
		t.Fatalf("got %d, want 1 (true)", got)
	}
	if f.Symbol(rc.Code()) != sys.TrueFalse {
		t.Fatalf("comparison result should be tagged TRUE_FALSE")
	}
}

func TestRunTreeParamRef(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := NewForest()
	root := f.NewRoot(sys.RunTree)
	ref := f.New(root, sys.ParamRef)
	f.NewInt(ref, testInt, 1)
	params := f.New(root, sys.Params)
	f.NewInt(params, testInt, 314)

	rc := &RunContext{Forest: f, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got := f.SurfaceInt(rc.Code()); got != 314 {
		t.Fatalf("got %d, want 314", got)
	}
}

func TestMakeRunTreeFromUserProcess(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	// Defines a process whose code doubles PARAM 1 via ADD_INT(PARAM_REF(1), PARAM_REF(1)).
	codeRoot := sem.Defs.NewRoot(sys.AddInt)
	ref1 := sem.Defs.New(codeRoot, sys.ParamRef)
	sem.Defs.NewInt(ref1, testInt, 1)
	ref2 := sem.Defs.New(codeRoot, sys.ParamRef)
	sem.Defs.NewInt(ref2, testInt, 1)

	proc, err := sem.DefineProcess(ctx, codeRoot, "DOUBLE", "doubles its argument", NilHandle, NilHandle)
	if err != nil {
		t.Fatal(err)
	}

	argF := NewForest()
	argH := argF.NewInt(NilHandle, testInt, 21)

	dst := NewForest()
	root, err := MakeRunTree(sem, sys, dst, proc, []Arg{{Forest: argF, Handle: argH}})
	if err != nil {
		t.Fatal(err)
	}

	rc := &RunContext{Forest: dst, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got := dst.SurfaceInt(rc.Code()); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestInterpolateFromMatch(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")
	testInt2, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT2")

	f := NewForest()

	source := f.NewInt(NilHandle, testInt, 314)

	matchResults := f.NewRoot(sys.SemtrexMatchResults)
	m := f.NewSym(matchResults, sys.SemtrexMatch, testInt)
	f.NewBytes(m, sys.SemtrexMatchedPath, encodePath(nil))

	template := f.NewInt(NilHandle, testInt2, 0)
	f.NewSym(template, sys.InterpolateSymbol, testInt)

	root := f.NewRoot(sys.RunTree)
	interp := f.New(root, sys.InterpolateFromMatch)
	if err := f.Add(interp, template); err != nil {
		t.Fatal(err)
	}
	if err := f.Add(interp, matchResults); err != nil {
		t.Fatal(err)
	}
	if err := f.Add(interp, source); err != nil {
		t.Fatal(err)
	}
	f.New(root, sys.Params)

	rc := &RunContext{Forest: f, Root: root}
	if err := Reduce(sem, sys, rc); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	code := rc.Code()
	if f.Symbol(code) != testInt2 {
		t.Fatalf("template's own symbol should survive interpolation")
	}
	if got := f.Children(code); got != 1 {
		t.Fatalf("expected spliced child, got %d children", got)
	}
	spliced := f.Child(code, 1)
	if f.Symbol(spliced) != testInt || f.SurfaceInt(spliced) != 314 {
		t.Fatalf("expected spliced TEST_INT:314, got symbol=%v val=%d", f.Symbol(spliced), f.SurfaceInt(spliced))
	}
}

func TestQueueReduceRoundAndCleanup(t *testing.T) {
	sem, sys := NewSysSemTable()
	ctx := sem.NewContext()
	testInt, _ := sem.DefineSymbol(ctx, sys.StrInteger, "TEST_INT")

	f := NewForest()
	mk := func(v int64) *RunContext {
		root := f.NewRoot(sys.RunTree)
		add := f.New(root, sys.AddInt)
		f.NewInt(add, testInt, v)
		f.NewInt(add, testInt, 1)
		f.New(root, sys.Params)
		return &RunContext{Forest: f, Root: root}
	}

	q := NewQueue()
	q.Enqueue(mk(1))
	q.Enqueue(mk(2))

	q.ReduceRound(sem, sys)
	if removed := q.Cleanup(); removed != 2 {
		t.Fatalf("expected both contexts done after one round, removed=%d", removed)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after cleanup, got %d", q.Len())
	}
}
