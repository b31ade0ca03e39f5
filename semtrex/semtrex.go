// Package semtrex implements a tree regular expression engine: patterns
// are built from the same SemanticID/Forest primitives as any other tree
// and matched structurally (symbol plus children) against a target tree,
// with optional named captures and surface-value checks.
//
// A pattern is a tree whose nodes are combinators: the two literal kinds,
// ANY, GROUP, SEQUENCE, OR, NOT, the three repetition operators, and WALK.
// A match reports where it occurred and what its groups captured, not just
// a boolean, so callers can interpolate from the captured paths.
package semtrex

import (
	"go.dedis.ch/ceptr/sem"
)

// Vocab holds the combinator symbols a semtrex pattern tree is built from,
// registered in their own context the way Sys registers the core vocabulary
// (sem/symbols.go's NewSysSemTable).
type Vocab struct {
	Context int32

	SymbolLiteral sem.SemanticID
	SymbolAny     sem.SemanticID
	ValueLiteral  sem.SemanticID
	Group         sem.SemanticID
	Sequence      sem.SemanticID
	Or            sem.SemanticID
	Not           sem.SemanticID
	ZeroOrMore    sem.SemanticID
	OneOrMore     sem.SemanticID
	ZeroOrOne     sem.SemanticID
	Walk          sem.SemanticID
}

// NewVocab registers the semtrex combinator symbols in a fresh context of
// sem and returns them bound into a Vocab.
func NewVocab(st *sem.SemTable) (*Vocab, error) {
	ctx := st.NewContext()
	v := &Vocab{Context: ctx}

	pattern, err := st.DefineStructure(ctx, "SEMTREX_PATTERN", sem.PrimNone)
	if err != nil {
		return nil, err
	}
	define := func(label string) (sem.SemanticID, error) {
		return st.DefineSymbol(ctx, pattern, label)
	}

	if v.SymbolLiteral, err = define("SEMTREX_SYMBOL_LITERAL"); err != nil {
		return nil, err
	}
	if v.SymbolAny, err = define("SEMTREX_SYMBOL_ANY"); err != nil {
		return nil, err
	}
	if v.ValueLiteral, err = define("SEMTREX_VALUE_LITERAL"); err != nil {
		return nil, err
	}
	if v.Group, err = define("SEMTREX_GROUP"); err != nil {
		return nil, err
	}
	if v.Sequence, err = define("SEMTREX_SEQUENCE"); err != nil {
		return nil, err
	}
	if v.Or, err = define("SEMTREX_OR"); err != nil {
		return nil, err
	}
	if v.Not, err = define("SEMTREX_NOT"); err != nil {
		return nil, err
	}
	if v.ZeroOrMore, err = define("SEMTREX_ZERO_OR_MORE"); err != nil {
		return nil, err
	}
	if v.OneOrMore, err = define("SEMTREX_ONE_OR_MORE"); err != nil {
		return nil, err
	}
	if v.ZeroOrOne, err = define("SEMTREX_ZERO_OR_ONE"); err != nil {
		return nil, err
	}
	if v.Walk, err = define("SEMTREX_WALK"); err != nil {
		return nil, err
	}
	return v, nil
}

// Capture is one named SEMTREX_GROUP hit: path is relative to the tree
// Match/Walk was called against, siblings is how many consecutive siblings
// starting at path's last index were consumed by the group. Because a
// single target node is matched as a synthetic one-element sibling list, a
// GROUP wrapping Match's top-level pattern reports path [1] rather than
// []; captures produced while descending into real children (via a
// literal's or SEQUENCE's child pattern list) carry accurate paths.
type Capture struct {
	Name     sem.SemanticID
	Path     sem.Path
	Siblings int
}

// Builder constructs pattern trees fluently in a caller-supplied forest;
// one typed method per combinator.
type Builder struct {
	f *sem.Forest
	v *Vocab
}

// NewBuilder returns a Builder that allocates pattern nodes in f.
func NewBuilder(f *sem.Forest, v *Vocab) *Builder { return &Builder{f: f, v: v} }

// SymbolLiteral builds SEMTREX_SYMBOL_LITERAL(sym){children...}.
func (b *Builder) SymbolLiteral(sym sem.SemanticID, children ...sem.Handle) sem.Handle {
	h := b.f.NewSym(sem.NilHandle, b.v.SymbolLiteral, sym)
	b.attachAll(h, children)
	return h
}

// SymbolAny builds SEMTREX_SYMBOL_ANY{children...}.
func (b *Builder) SymbolAny(children ...sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.SymbolAny)
	b.attachAll(h, children)
	return h
}

// ValueLiteral builds SEMTREX_VALUE_LITERAL{proto}, where proto is a node
// whose own symbol and surface are the exact value the target must equal.
func (b *Builder) ValueLiteral(proto sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.ValueLiteral)
	_ = b.f.Add(h, proto)
	return h
}

// Group builds SEMTREX_GROUP(name){sub}.
func (b *Builder) Group(name sem.SemanticID, sub sem.Handle) sem.Handle {
	h := b.f.NewSym(sem.NilHandle, b.v.Group, name)
	_ = b.f.Add(h, sub)
	return h
}

// Sequence builds SEMTREX_SEQUENCE{patterns...}.
func (b *Builder) Sequence(patterns ...sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.Sequence)
	b.attachAll(h, patterns)
	return h
}

// Or builds SEMTREX_OR{alternatives...}.
func (b *Builder) Or(alts ...sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.Or)
	b.attachAll(h, alts)
	return h
}

// Not builds SEMTREX_NOT{sub}.
func (b *Builder) Not(sub sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.Not)
	_ = b.f.Add(h, sub)
	return h
}

// ZeroOrMore builds SEMTREX_ZERO_OR_MORE{sub}.
func (b *Builder) ZeroOrMore(sub sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.ZeroOrMore)
	_ = b.f.Add(h, sub)
	return h
}

// OneOrMore builds SEMTREX_ONE_OR_MORE{sub}.
func (b *Builder) OneOrMore(sub sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.OneOrMore)
	_ = b.f.Add(h, sub)
	return h
}

// ZeroOrOne builds SEMTREX_ZERO_OR_ONE{sub}.
func (b *Builder) ZeroOrOne(sub sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.ZeroOrOne)
	_ = b.f.Add(h, sub)
	return h
}

// Walk builds SEMTREX_WALK{sub}.
func (b *Builder) Walk(sub sem.Handle) sem.Handle {
	h := b.f.NewRoot(b.v.Walk)
	_ = b.f.Add(h, sub)
	return h
}

func (b *Builder) attachAll(parent sem.Handle, children []sem.Handle) {
	for _, c := range children {
		_ = b.f.Add(parent, c)
	}
}

// Match reports whether stx matches target exactly, returning the
// captured groups on success.
func Match(f *sem.Forest, v *Vocab, stx, target sem.Handle) (bool, []Capture) {
	ok, consumed, caps := consume(f, v, stx, []sem.Handle{target}, 0, nil)
	if !ok || consumed != 1 {
		return false, nil
	}
	return true, caps
}

// WalkMatch is one hit from Walk: the node the pattern matched (with its
// path from the root Walk was called on) plus any captures inside it.
type WalkMatch struct {
	Path     sem.Path
	Node     sem.Handle
	Captures []Capture
}

// Walk searches every node of root, depth-first pre-order, for a match of
// stx. Protocol resolution leans on it to rebind GOAL/USAGE leaves, as
// does Replace below.
func Walk(f *sem.Forest, v *Vocab, stx, root sem.Handle) []WalkMatch {
	var out []WalkMatch
	var rec func(h sem.Handle, path sem.Path)
	rec = func(h sem.Handle, path sem.Path) {
		if ok, consumed, caps := consume(f, v, stx, []sem.Handle{h}, 0, path); ok && consumed == 1 {
			out = append(out, WalkMatch{Path: append(sem.Path(nil), path...), Node: h, Captures: caps})
		}
		for i := 1; i <= f.Children(h); i++ {
			rec(f.Child(h, i), append(append(sem.Path(nil), path...), i))
		}
	}
	rec(root, nil)
	return out
}

// Replace substitutes a clone of replacement for every node Walk(stx,
// root) finds. replacement is never consumed; each substitution splices in
// a fresh clone, and the returned count reports how many were made.
func Replace(f *sem.Forest, v *Vocab, stx, root, replacement sem.Handle) int {
	matches := Walk(f, v, stx, root)
	count := 0
	for _, m := range matches {
		if len(m.Path) == 0 {
			// root itself matched: nothing owns it to splice into, skip.
			continue
		}
		f.Replace(m.Node, f.Clone(replacement))
		count++
	}
	return count
}

// BuildResults renders captures into the SEMTREX_MATCH_RESULTS tree shape
// the reducer's INTERPOLATE_FROM_MATCH and the protocol engine expect.
func BuildResults(sys *sem.Sys, f *sem.Forest, caps []Capture) sem.Handle {
	root := f.NewRoot(sys.SemtrexMatchResults)
	for _, c := range caps {
		m := f.NewSym(root, sys.SemtrexMatch, c.Name)
		f.NewBytes(m, sys.SemtrexMatchedPath, EncodePath(c.Path))
		f.NewInt(m, sys.SemtrexMatchSiblingsCount, int64(c.Siblings))
	}
	return root
}

func consume(f *sem.Forest, v *Vocab, p sem.Handle, siblings []sem.Handle, si int, path sem.Path) (ok bool, consumed int, caps []Capture) {
	sym := f.Symbol(p)
	switch sym {
	case v.SymbolLiteral:
		if si >= len(siblings) {
			return false, 0, nil
		}
		t := siblings[si]
		if !f.Symbol(t).Equal(f.SurfaceSymbol(p)) {
			return false, 0, nil
		}
		childOK, childCaps := matchChildren(f, v, p, t, append(path, si+1))
		if !childOK {
			return false, 0, nil
		}
		return true, 1, childCaps
	case v.SymbolAny:
		if si >= len(siblings) {
			return false, 0, nil
		}
		t := siblings[si]
		childOK, childCaps := matchChildren(f, v, p, t, append(path, si+1))
		if !childOK {
			return false, 0, nil
		}
		return true, 1, childCaps
	case v.ValueLiteral:
		if si >= len(siblings) {
			return false, 0, nil
		}
		t := siblings[si]
		proto := f.Child(p, 1)
		if !valuesEqual(f, proto, t) {
			return false, 0, nil
		}
		return true, 1, nil
	case v.Group:
		sub := f.Child(p, 1)
		ok, consumed, subCaps := consume(f, v, sub, siblings, si, path)
		if !ok {
			return false, 0, nil
		}
		name := f.SurfaceSymbol(p)
		cap := Capture{Name: name, Path: append(append(sem.Path(nil), path...), si+1), Siblings: consumed}
		return true, consumed, append([]Capture{cap}, subCaps...)
	case v.Or:
		for i := 1; i <= f.Children(p); i++ {
			if ok, consumed, caps := consume(f, v, f.Child(p, i), siblings, si, path); ok {
				return true, consumed, caps
			}
		}
		return false, 0, nil
	case v.Not:
		if si >= len(siblings) {
			return false, 0, nil
		}
		sub := f.Child(p, 1)
		if ok, _, _ := consume(f, v, sub, siblings, si, path); ok {
			return false, 0, nil
		}
		return true, 1, nil
	case v.ZeroOrMore:
		return consumeRepeat(f, v, f.Child(p, 1), siblings, si, path, 0, -1)
	case v.OneOrMore:
		return consumeRepeat(f, v, f.Child(p, 1), siblings, si, path, 1, -1)
	case v.ZeroOrOne:
		return consumeRepeat(f, v, f.Child(p, 1), siblings, si, path, 0, 1)
	case v.Sequence:
		ok, finalSi, caps := matchSeqFrom(f, v, childList(f, p), 0, siblings, si, path)
		if !ok {
			return false, 0, nil
		}
		return true, finalSi - si, caps
	case v.Walk:
		if si >= len(siblings) {
			return false, 0, nil
		}
		sub := f.Child(p, 1)
		if deepFind(f, v, sub, siblings[si]) {
			return true, 1, nil
		}
		return false, 0, nil
	default:
		return false, 0, nil
	}
}

// consumeRepeat greedily matches as many repetitions of sub (each
// consuming exactly one sibling) as possible, then enforces min/max.
func consumeRepeat(f *sem.Forest, v *Vocab, sub sem.Handle, siblings []sem.Handle, si int, path sem.Path, min, max int) (bool, int, []Capture) {
	var caps []Capture
	n := 0
	for si+n < len(siblings) {
		if max >= 0 && n >= max {
			break
		}
		ok, consumed, subCaps := consume(f, v, sub, siblings, si+n, path)
		if !ok || consumed == 0 {
			break
		}
		caps = append(caps, subCaps...)
		n += consumed
	}
	if n < min {
		return false, 0, nil
	}
	return true, n, caps
}

func matchSeqFrom(f *sem.Forest, v *Vocab, patterns []sem.Handle, pi int, siblings []sem.Handle, si int, path sem.Path) (bool, int, []Capture) {
	if pi == len(patterns) {
		return true, si, nil
	}
	ok, consumed, caps := consume(f, v, patterns[pi], siblings, si, path)
	if !ok {
		return false, 0, nil
	}
	okRest, finalSi, restCaps := matchSeqFrom(f, v, patterns, pi+1, siblings, si+consumed, path)
	if !okRest {
		return false, 0, nil
	}
	return true, finalSi, append(caps, restCaps...)
}

// matchChildren applies p's own children, if any, as the pattern list
// target's children must fully match; a pattern with no children places no
// constraint on target's substructure.
func matchChildren(f *sem.Forest, v *Vocab, p, target sem.Handle, path sem.Path) (bool, []Capture) {
	if f.Children(p) == 0 {
		return true, nil
	}
	targetChildren := childList(f, target)
	ok, finalSi, caps := matchSeqFrom(f, v, childList(f, p), 0, targetChildren, 0, path)
	if !ok || finalSi != len(targetChildren) {
		return false, nil
	}
	return true, caps
}

func childList(f *sem.Forest, h sem.Handle) []sem.Handle {
	n := f.Children(h)
	out := make([]sem.Handle, n)
	for i := 1; i <= n; i++ {
		out[i-1] = f.Child(h, i)
	}
	return out
}

// valuesEqual compares two nodes' symbol and inline surface for exact
// equality, ignoring children.
func valuesEqual(f *sem.Forest, a, b sem.Handle) bool {
	if !f.Symbol(a).Equal(f.Symbol(b)) {
		return false
	}
	if f.SurfaceInt(a) != f.SurfaceInt(b) {
		return false
	}
	if !f.SurfaceSymbol(a).Equal(f.SurfaceSymbol(b)) {
		return false
	}
	if !f.SurfaceProcess(a).Equal(f.SurfaceProcess(b)) {
		return false
	}
	ab, bb := f.SurfaceBytes(a), f.SurfaceBytes(b)
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

func deepFind(f *sem.Forest, v *Vocab, sub, root sem.Handle) bool {
	if ok, consumed, _ := consume(f, v, sub, []sem.Handle{root}, 0, nil); ok && consumed == 1 {
		return true
	}
	for i := 1; i <= f.Children(root); i++ {
		if deepFind(f, v, sub, f.Child(root, i)) {
			return true
		}
	}
	return false
}

// EncodePath mirrors the sem package's internal path encoding (four big-endian bytes
// per index) so semtrex match results are byte-compatible with what the
// reducer's INTERPOLATE_FROM_MATCH decodes.
func EncodePath(p sem.Path) []byte {
	b := make([]byte, 4*len(p))
	for i, idx := range p {
		b[i*4] = byte(idx >> 24)
		b[i*4+1] = byte(idx >> 16)
		b[i*4+2] = byte(idx >> 8)
		b[i*4+3] = byte(idx)
	}
	return b
}
