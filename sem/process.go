package sem

import (
	"encoding/binary"
	"sync"

	"golang.org/x/xerrors"
)

// StepResult is the explicit terminal state of a single reduction step: a
// driver loop calls Step until it returns anything other than StepContinue.
type StepResult int

const (
	StepContinue StepResult = iota
	StepDone
	StepError
)

func (r StepResult) String() string {
	switch r {
	case StepContinue:
		return "continue"
	case StepDone:
		return "done"
	case StepError:
		return "error"
	default:
		return "unknown"
	}
}

// RunContext is a run tree (root RUN_TREE, child 1 the code being reduced
// in place, child 2 PARAMS) plus the forest it lives in and any terminal
// error recorded against it.
type RunContext struct {
	Forest *Forest
	Root   Handle
	Err    *Error
}

// Code returns the currently-reducing code subtree (RUN_TREE child 1).
func (rc *RunContext) Code() Handle { return rc.Forest.Child(rc.Root, 1) }

// ParamsHandle returns the PARAMS subtree (RUN_TREE child 2).
func (rc *RunContext) ParamsHandle() Handle { return rc.Forest.Child(rc.Root, 2) }

// Arg pairs a handle with the forest it lives in, since make_run_tree's
// arguments may come from a caller-owned forest distinct from the
// destination run tree's forest.
type Arg struct {
	Forest *Forest
	Handle Handle
}

// MakeRunTree builds RUN_TREE{clone(code_of(action)), PARAMS{clone(args)...}}
// in dst. All arguments are cloned; the caller retains the originals.
// action must be a process defined in
// sem (built-in symbol heads are invoked by embedding them directly in a
// hand-built code tree instead; this constructor is for user-defined
// processes referenced by a protocol ACTION or an explicit invocation).
func MakeRunTree(sem *SemTable, sys *Sys, dst *Forest, action ProcessID, args []Arg) (Handle, error) {
	pd, ok := sem.GetProcessDef(action)
	if !ok {
		return NilHandle, xerrors.Errorf("make run tree: %w", NewError(ErrUnknownSymbol, "action process not defined"))
	}
	if pd.Code.IsNil() {
		return NilHandle, xerrors.Errorf("make run tree: %w", NewError(ErrBadTreeShape, "process has no code"))
	}
	root := dst.NewRoot(sys.RunTree)
	code := sem.Defs.CloneTo(dst, pd.Code)
	if err := dst.Add(root, code); err != nil {
		return NilHandle, xerrors.Errorf("make run tree: %w", err)
	}
	params := dst.New(root, sys.Params)
	for _, a := range args {
		clone := a.Forest.CloneTo(dst, a.Handle)
		if err := dst.Add(params, clone); err != nil {
			return NilHandle, xerrors.Errorf("make run tree: %w", err)
		}
	}
	return root, nil
}

// isValue reports whether h is already reduced: its symbol's structure is
// primitive or marked literal. A node whose symbol has no known structure is treated
// as irreducible too, so malformed trees fail fast as NOT_REDUCIBLE rather
// than looping.
func isValue(sem *SemTable, f *Forest, h Handle) bool {
	sym := f.Symbol(h)
	st, ok := sem.GetSymbolStructure(sym)
	if !ok {
		return true
	}
	sd, ok := sem.GetStructureDef(st)
	if !ok {
		return true
	}
	return sd.Primitive != PrimNone || sd.Literal
}

// findRedex performs the eager innermost-first search: it recurses into
// non-value children first, and only once every child of h is
// a value does h itself become the candidate redex (unless h is already a
// value, in which case there is nothing to do here).
func findRedex(sem *SemTable, f *Forest, h Handle) (Handle, bool) {
	allValues := true
	n := f.Children(h)
	for i := 1; i <= n; i++ {
		c := f.Child(h, i)
		if isValue(sem, f, c) {
			continue
		}
		if r, ok := findRedex(sem, f, c); ok {
			return r, true
		}
		allValues = false
		break
	}
	if allValues && !isValue(sem, f, h) {
		return h, true
	}
	return NilHandle, false
}

// replaceNode substitutes newNode for old in old's parent's child list; old
// is orphaned (not freed — the arena never reclaims nodes, matching the
// spec's allocate-only arena model).
func replaceNode(f *Forest, old, newNode Handle) {
	f.Replace(old, newNode)
}

// Step performs exactly one rewrite of rc's code tree and reports whether
// reduction should continue, is done, or has errored (rc.Err holds the
// detail).
func Step(sem *SemTable, sys *Sys, rc *RunContext) StepResult {
	if rc.Err != nil {
		return StepError
	}
	f := rc.Forest
	code := rc.Code()
	if isValue(sem, f, code) {
		return StepDone
	}
	redex, ok := findRedex(sem, f, code)
	if !ok {
		rc.Err = NewError(ErrNotReducible, "no child became fully reduced")
		return StepError
	}
	if err := rewrite(sem, sys, rc, redex); err != nil {
		path, _ := f.PathOf(code, redex)
		e, ok := err.(*Error)
		if !ok {
			e = NewError(ErrNotReducible, err.Error())
		}
		rc.Err = NewErrorAt(e.Kind, e.Description, path)
		// the offending subtree becomes an error tree in place, so the
		// owning receptor can introspect the failure
		errTree := f.NewRoot(sys.ErrorSym)
		f.NewString(errTree, sys.Kind, e.Kind.String())
		f.NewString(errTree, sys.Description, e.Description)
		f.NewString(errTree, sys.OffendingSubtreePath, pathString(path))
		replaceNode(f, redex, errTree)
		return StepError
	}
	if isValue(sem, f, rc.Code()) {
		return StepDone
	}
	return StepContinue
}

// Reduce drives Step to completion or to the first error; reduction
// terminates when the code tree has become a value.
func Reduce(sem *SemTable, sys *Sys, rc *RunContext) error {
	for {
		switch Step(sem, sys, rc) {
		case StepDone:
			return nil
		case StepError:
			return rc.Err
		}
	}
}

func rewrite(sem *SemTable, sys *Sys, rc *RunContext, redex Handle) error {
	f := rc.Forest
	sym := f.Symbol(redex)
	switch {
	case sym.Equal(sys.If):
		return rewriteIf(f, redex)
	case sym.Equal(sys.AddInt):
		return rewriteArith(f, redex, func(a, b int64) int64 { return a + b })
	case sym.Equal(sys.SubInt):
		return rewriteArith(f, redex, func(a, b int64) int64 { return a - b })
	case sym.Equal(sys.MultInt):
		return rewriteArith(f, redex, func(a, b int64) int64 { return a * b })
	case sym.Equal(sys.DivInt):
		return rewriteDivMod(f, redex, true)
	case sym.Equal(sys.ModInt):
		return rewriteDivMod(f, redex, false)
	case sym.Equal(sys.EqInt):
		return rewriteCompare(sys, f, redex, func(a, b int64) bool { return a == b })
	case sym.Equal(sys.LtInt):
		return rewriteCompare(sys, f, redex, func(a, b int64) bool { return a < b })
	case sym.Equal(sys.GtInt):
		return rewriteCompare(sys, f, redex, func(a, b int64) bool { return a > b })
	case sym.Equal(sys.ParamRef):
		return rewriteParamRef(f, rc, redex)
	case sym.Equal(sys.InterpolateFromMatch):
		return rewriteInterpolate(sys, f, redex)
	default:
		return NewError(ErrBadSymbol, "no built-in rewrite rule for this symbol")
	}
}

func requireArity(f *Forest, h Handle, n int) error {
	if f.Children(h) != n {
		return NewError(ErrBadArity, "wrong number of children")
	}
	return nil
}

func rewriteIf(f *Forest, redex Handle) error {
	if err := requireArity(f, redex, 3); err != nil {
		return err
	}
	cond, then, els := f.Child(redex, 1), f.Child(redex, 2), f.Child(redex, 3)
	var src Handle
	if f.SurfaceInt(cond) == 1 {
		src = then
	} else {
		src = els
	}
	replaceNode(f, redex, f.Clone(src))
	return nil
}

func rewriteArith(f *Forest, redex Handle, op func(a, b int64) int64) error {
	if err := requireArity(f, redex, 2); err != nil {
		return err
	}
	a, b := f.Child(redex, 1), f.Child(redex, 2)
	result := op(f.SurfaceInt(a), f.SurfaceInt(b))
	newNode := f.NewInt(NilHandle, f.Symbol(a), result)
	replaceNode(f, redex, newNode)
	return nil
}

func rewriteDivMod(f *Forest, redex Handle, div bool) error {
	if err := requireArity(f, redex, 2); err != nil {
		return err
	}
	a, b := f.Child(redex, 1), f.Child(redex, 2)
	bv := f.SurfaceInt(b)
	if bv == 0 {
		return NewError(ErrZeroDivision, "division by zero")
	}
	av := f.SurfaceInt(a)
	var result int64
	if div {
		result = av / bv
	} else {
		result = av % bv
	}
	newNode := f.NewInt(NilHandle, f.Symbol(a), result)
	replaceNode(f, redex, newNode)
	return nil
}

func rewriteCompare(sys *Sys, f *Forest, redex Handle, cmp func(a, b int64) bool) error {
	if err := requireArity(f, redex, 2); err != nil {
		return err
	}
	a, b := f.Child(redex, 1), f.Child(redex, 2)
	v := int64(0)
	if cmp(f.SurfaceInt(a), f.SurfaceInt(b)) {
		v = 1
	}
	newNode := f.NewInt(NilHandle, sys.TrueFalse, v)
	replaceNode(f, redex, newNode)
	return nil
}

func rewriteParamRef(f *Forest, rc *RunContext, redex Handle) error {
	if err := requireArity(f, redex, 1); err != nil {
		return err
	}
	idx := f.SurfaceInt(f.Child(redex, 1))
	params := rc.ParamsHandle()
	arg := f.Child(params, int(idx))
	if arg.IsNil() {
		return NewError(ErrParamOutOfRange, "PARAM_REF index out of range")
	}
	replaceNode(f, redex, f.Clone(arg))
	return nil
}

// encodePath/decodePath turn a Path into the SEMTREX_MATCHED_PATH byte
// surface and back: four big-endian bytes per index, no sentinel needed
// since the byte slice carries its own length.
func encodePath(p Path) []byte {
	b := make([]byte, 4*len(p))
	for i, v := range p {
		binary.BigEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}

func decodePath(b []byte) Path {
	p := make(Path, len(b)/4)
	for i := range p {
		p[i] = int(binary.BigEndian.Uint32(b[i*4:]))
	}
	return p
}

// rewriteInterpolate implements INTERPOLATE_FROM_MATCH: it clones the
// template and, for every INTERPOLATE_SYMBOL(sym) leaf inside it,
// substitutes a clone of the subtree that sym's SEMTREX_MATCH recorded in
// source. Interpolating into a non-leaf template site has no defined splice
// semantics, so the rewrite fails explicitly with NOT_REDUCIBLE there
// rather than guessing.
func rewriteInterpolate(sys *Sys, f *Forest, redex Handle) error {
	if err := requireArity(f, redex, 3); err != nil {
		return err
	}
	template, matchResults, source := f.Child(redex, 1), f.Child(redex, 2), f.Child(redex, 3)
	work := f.Clone(template)
	if err := interpolateWalk(sys, f, work, matchResults, source); err != nil {
		return err
	}
	replaceNode(f, redex, work)
	return nil
}

func interpolateWalk(sys *Sys, f *Forest, node, matchResults, source Handle) error {
	if f.Symbol(node).Equal(sys.InterpolateSymbol) {
		if f.Children(node) > 0 {
			return NewError(ErrNotReducible, "interpolation into a non-leaf template site is unsupported")
		}
		target := f.SurfaceSymbol(node)
		path, found := findMatchPath(sys, f, matchResults, target)
		if !found {
			return NewError(ErrNotReducible, "no SEMTREX_MATCH recorded for interpolated symbol")
		}
		resolved := f.Get(source, path)
		if resolved.IsNil() {
			return NewError(ErrNotReducible, "match path does not resolve in source")
		}
		replaceNode(f, node, f.Clone(resolved))
		return nil
	}
	for i := 1; i <= f.Children(node); i++ {
		if err := interpolateWalk(sys, f, f.Child(node, i), matchResults, source); err != nil {
			return err
		}
	}
	return nil
}

func findMatchPath(sys *Sys, f *Forest, matchResults Handle, target SemanticID) (Path, bool) {
	for i := 1; i <= f.Children(matchResults); i++ {
		m := f.Child(matchResults, i)
		if !f.Symbol(m).Equal(sys.SemtrexMatch) {
			continue
		}
		if !f.SurfaceSymbol(m).Equal(target) {
			continue
		}
		pathNode, ok := f.FindChild(m, sys.SemtrexMatchedPath)
		if !ok {
			continue
		}
		return decodePath(f.SurfaceBytes(pathNode)), true
	}
	return nil, false
}

// reductionEntry is one queued run tree plus its completion state (spec
// §4.4: "q... an ordered list of contexts").
type reductionEntry struct {
	rc        *RunContext
	completed bool
	errored   bool
}

// Queue is a receptor's process queue: multiple suspended reduction
// contexts, advanced round-robin one step at a time and swept explicitly
// via Cleanup.
type Queue struct {
	mu      sync.Mutex
	entries []*reductionEntry
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue adds rc as a new in-flight reduction context.
func (q *Queue) Enqueue(rc *RunContext) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &reductionEntry{rc: rc})
}

// Len returns the number of tracked contexts, completed or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ReduceRound performs one Step on each runnable (not completed, not
// errored) context, in order.
func (q *Queue) ReduceRound(sem *SemTable, sys *Sys) {
	q.mu.Lock()
	entries := append([]*reductionEntry(nil), q.entries...)
	q.mu.Unlock()
	for _, e := range entries {
		if e.completed || e.errored {
			continue
		}
		switch Step(sem, sys, e.rc) {
		case StepDone:
			e.completed = true
		case StepError:
			e.errored = true
		}
	}
}

// Cleanup removes every completed or errored context from the queue and
// returns how many were removed.
func (q *Queue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.completed || e.errored {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

// Errored returns the RunContexts currently marked errored, for
// introspection by the owning receptor.
func (q *Queue) Errored() []*RunContext {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*RunContext
	for _, e := range q.entries {
		if e.errored {
			out = append(out, e.rc)
		}
	}
	return out
}
