package sem

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Handle is an arena index into a Forest. The zero value is the null handle;
// valid handles are always >= 1. Parent/child links are integer handles
// rather than Go pointers, so a detached subtree can never leave a dangling
// pointer behind, and clone is a plain arena copy.
type Handle int32

// NilHandle is the null tree reference, returned by lookups that find
// nothing.
const NilHandle Handle = 0

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool { return h == NilHandle }

// Path is a finite sequence of 1-based child indices. An empty Path refers
// to the node itself.
type Path []int

type surfaceKind uint8

const (
	surfNone surfaceKind = iota
	surfInt
	surfSymbol
	surfProcess
	surfBytes
	surfTree
)

// node is one arena slot. Children are stored in insertion order; the
// order is semantic.
type node struct {
	symbol   SemanticID
	kind     surfaceKind
	ival     int64
	symval   SemanticID
	procval  ProcessID
	bytes    []byte
	subtree  Handle
	parent   Handle
	children []Handle
	cloned   bool
	freed    bool
}

// Forest is an arena of tree nodes. Every Tree (a definition tree, a run
// tree, a signal body, ...) lives in some Forest; a Handle is only
// meaningful relative to the Forest that allocated it.
type Forest struct {
	nodes []node
}

// NewForest returns an empty arena.
func NewForest() *Forest {
	return &Forest{nodes: make([]node, 0, 64)}
}

func (f *Forest) alloc(n node) Handle {
	f.nodes = append(f.nodes, n)
	return Handle(len(f.nodes))
}

func (f *Forest) at(h Handle) *node {
	if h.IsNil() || int(h) > len(f.nodes) {
		return nil
	}
	return &f.nodes[h-1]
}

// NewRoot allocates a parentless node (spec: new_root).
func (f *Forest) NewRoot(sym SemanticID) Handle {
	return f.alloc(node{symbol: sym})
}

// New allocates a node and attaches it under parent (spec: new), with no
// surface payload (a pure container node, e.g. RUN_TREE, PARAMS).
func (f *Forest) New(parent Handle, sym SemanticID) Handle {
	h := f.alloc(node{symbol: sym})
	f.mustAttach(parent, h)
	return h
}

// NewInt attaches an inline integer surface (spec: newi).
func (f *Forest) NewInt(parent Handle, sym SemanticID, v int64) Handle {
	h := f.alloc(node{symbol: sym, kind: surfInt, ival: v})
	f.mustAttach(parent, h)
	return h
}

// NewSym attaches an inline symbol-value surface (spec: news).
func (f *Forest) NewSym(parent Handle, sym SemanticID, val SemanticID) Handle {
	h := f.alloc(node{symbol: sym, kind: surfSymbol, symval: val})
	f.mustAttach(parent, h)
	return h
}

// NewProcess attaches an inline process-id surface (spec: newp).
func (f *Forest) NewProcess(parent Handle, sym SemanticID, p ProcessID) Handle {
	h := f.alloc(node{symbol: sym, kind: surfProcess, procval: p})
	f.mustAttach(parent, h)
	return h
}

// NewString attaches a length-prefixed byte-blob surface holding a C string
// (spec: new_str).
func (f *Forest) NewString(parent Handle, sym SemanticID, s string) Handle {
	return f.NewBytes(parent, sym, []byte(s))
}

// NewBytes attaches a raw byte-blob surface (binary structures).
func (f *Forest) NewBytes(parent Handle, sym SemanticID, b []byte) Handle {
	cp := append([]byte(nil), b...)
	h := f.alloc(node{symbol: sym, kind: surfBytes, bytes: cp})
	f.mustAttach(parent, h)
	return h
}

// NewTreePtr attaches a node whose surface is an owned sub-tree (the rare
// "pointer to an owned sub-tree" surface used for receptor embedding, spec
// §3). sub must already live in f.
func (f *Forest) NewTreePtr(parent Handle, sym SemanticID, sub Handle) Handle {
	h := f.alloc(node{symbol: sym, kind: surfTree, subtree: sub})
	f.mustAttach(parent, h)
	if n := f.at(sub); n != nil {
		n.parent = h
	}
	return h
}

func (f *Forest) mustAttach(parent Handle, child Handle) {
	if parent.IsNil() {
		return
	}
	if err := f.Add(parent, child); err != nil {
		panic(err)
	}
}

// Child returns the i-th child (1-based) of t, or NilHandle if out of range.
func (f *Forest) Child(t Handle, i int) Handle {
	n := f.at(t)
	if n == nil || i < 1 || i > len(n.children) {
		return NilHandle
	}
	return n.children[i-1]
}

// Children returns the number of children of t.
func (f *Forest) Children(t Handle) int {
	n := f.at(t)
	if n == nil {
		return 0
	}
	return len(n.children)
}

// Parent returns t's parent, or NilHandle if t is a root.
func (f *Forest) Parent(t Handle) Handle {
	n := f.at(t)
	if n == nil {
		return NilHandle
	}
	return n.parent
}

// Symbol returns t's tagging symbol.
func (f *Forest) Symbol(t Handle) SemanticID {
	n := f.at(t)
	if n == nil {
		return SemanticID{}
	}
	return n.symbol
}

// SurfaceInt returns the inline integer surface of t (0 if t has none).
func (f *Forest) SurfaceInt(t Handle) int64 {
	n := f.at(t)
	if n == nil || n.kind != surfInt {
		return 0
	}
	return n.ival
}

// SurfaceSymbol returns the inline symbol-value surface of t.
func (f *Forest) SurfaceSymbol(t Handle) SemanticID {
	n := f.at(t)
	if n == nil || n.kind != surfSymbol {
		return SemanticID{}
	}
	return n.symval
}

// SurfaceProcess returns the inline process-id surface of t.
func (f *Forest) SurfaceProcess(t Handle) ProcessID {
	n := f.at(t)
	if n == nil || n.kind != surfProcess {
		return ProcessID{}
	}
	return n.procval
}

// SurfaceBytes returns the byte-blob surface of t (nil if t has none).
func (f *Forest) SurfaceBytes(t Handle) []byte {
	n := f.at(t)
	if n == nil || n.kind != surfBytes {
		return nil
	}
	return n.bytes
}

// SurfaceTree returns the owned sub-tree handle of t, for the rare
// tree-pointer surface kind.
func (f *Forest) SurfaceTree(t Handle) Handle {
	n := f.at(t)
	if n == nil || n.kind != surfTree {
		return NilHandle
	}
	return n.subtree
}

// SurfaceKind identifies which payload variant a node carries.
type SurfaceKind uint8

const (
	SurfaceNone SurfaceKind = iota
	SurfaceInt
	SurfaceSymbol
	SurfaceProcess
	SurfaceBytes
	SurfaceTree
)

// SurfaceKind reports which payload variant t carries, so serializers can
// switch on it without probing every accessor.
func (f *Forest) SurfaceKind(t Handle) SurfaceKind {
	n := f.at(t)
	if n == nil {
		return SurfaceNone
	}
	switch n.kind {
	case surfInt:
		return SurfaceInt
	case surfSymbol:
		return SurfaceSymbol
	case surfProcess:
		return SurfaceProcess
	case surfBytes:
		return SurfaceBytes
	case surfTree:
		return SurfaceTree
	default:
		return SurfaceNone
	}
}

// SetSurfaceInt overwrites the inline integer surface of t. It is a no-op
// on nodes whose surface is not an integer; delivery uses it to patch the
// self-address placeholder in an outgoing signal header.
func (f *Forest) SetSurfaceInt(t Handle, v int64) {
	if n := f.at(t); n != nil && n.kind == surfInt {
		n.ival = v
	}
}

// SetSurfaceSymbol overwrites the inline symbol-value surface of t. It is a
// no-op on nodes whose surface is not a symbol; protocol resolution uses it
// to rebind located USAGE slots in place.
func (f *Forest) SetSurfaceSymbol(t Handle, v SemanticID) {
	if n := f.at(t); n != nil && n.kind == surfSymbol {
		n.symval = v
	}
}

// HasSurface reports whether t carries any payload at all.
func (f *Forest) HasSurface(t Handle) bool {
	n := f.at(t)
	return n != nil && n.kind != surfNone
}

// Add attaches the orphan child under parent, transferring ownership. It
// fails if child already has a parent: a child is exclusively owned by its
// parent.
func (f *Forest) Add(parent Handle, child Handle) error {
	pn := f.at(parent)
	cn := f.at(child)
	if pn == nil || cn == nil {
		return xerrors.Errorf("add: %w", NewError(ErrBadTreeShape, "nil parent or child"))
	}
	if !cn.parent.IsNil() {
		return xerrors.Errorf("add: %w", NewError(ErrBadTreeShape, "child already owned"))
	}
	cn.parent = parent
	pn.children = append(pn.children, child)
	return nil
}

// DetachByIdx removes the i-th child (1-based) from t and returns it as an
// orphan (NilHandle parent); ownership transfers to the caller.
func (f *Forest) DetachByIdx(t Handle, i int) Handle {
	n := f.at(t)
	if n == nil || i < 1 || i > len(n.children) {
		return NilHandle
	}
	child := n.children[i-1]
	n.children = append(n.children[:i-1], n.children[i:]...)
	if cn := f.at(child); cn != nil {
		cn.parent = NilHandle
	}
	return child
}

// DetachByPtr removes child from t's children list by identity and returns
// it as an orphan.
func (f *Forest) DetachByPtr(t Handle, child Handle) Handle {
	n := f.at(t)
	if n == nil {
		return NilHandle
	}
	for i, c := range n.children {
		if c == child {
			return f.DetachByIdx(t, i+1)
		}
	}
	return NilHandle
}

// Replace substitutes newChild for old in old's parent's child list in
// place (preserving sibling order), transferring ownership of newChild and
// orphaning old. Used by the reducer to rewrite a redex in place and by
// semtrex.Replace to splice in a substitution at a matched position.
func (f *Forest) Replace(old, newChild Handle) {
	parent := f.Parent(old)
	if on := f.at(old); on != nil {
		on.parent = NilHandle
	}
	if parent.IsNil() {
		return
	}
	pn := f.at(parent)
	for i, c := range pn.children {
		if c == old {
			pn.children[i] = newChild
			break
		}
	}
	if nn := f.at(newChild); nn != nil {
		nn.parent = parent
	}
}

// Clone deep-copies the subtree rooted at t within the same forest,
// producing an alias-free orphan that shares no nodes with the original.
func (f *Forest) Clone(t Handle) Handle {
	return f.CloneTo(f, t)
}

// CloneTo deep-copies the subtree rooted at t into dst (which may be f
// itself), returning the orphan root of the copy. Used by make_run_tree to
// clone process code/args across a receptor's definitions forest into a
// fresh run-tree forest.
func (f *Forest) CloneTo(dst *Forest, t Handle) Handle {
	n := f.at(t)
	if n == nil {
		return NilHandle
	}
	cp := node{
		symbol: n.symbol,
		kind:   n.kind,
		ival:   n.ival,
		symval: n.symval,
		procval: n.procval,
		cloned: true,
	}
	if n.kind == surfBytes {
		cp.bytes = append([]byte(nil), n.bytes...)
	}
	if n.kind == surfTree && !n.subtree.IsNil() {
		cp.subtree = f.CloneTo(dst, n.subtree)
	}
	h := dst.alloc(cp)
	for _, c := range n.children {
		ch := f.CloneTo(dst, c)
		if cn := dst.at(ch); cn != nil {
			cn.parent = h
		}
		if hn := dst.at(h); hn != nil {
			hn.children = append(hn.children, ch)
		}
	}
	return h
}

// FindChild returns the first direct child of t tagged with sym. The
// protocol engine uses it to pick fields out of definition trees.
func (f *Forest) FindChild(t Handle, sym SemanticID) (Handle, bool) {
	n := f.at(t)
	if n == nil {
		return NilHandle, false
	}
	for _, c := range n.children {
		if cn := f.at(c); cn != nil && cn.symbol.Equal(sym) {
			return c, true
		}
	}
	return NilHandle, false
}

// PathOf returns the child-index path from root down to h, or false if h
// is not inside root's subtree.
func (f *Forest) PathOf(root, h Handle) (Path, bool) {
	if root == h {
		return Path{}, true
	}
	var rec func(cur Handle, acc Path) (Path, bool)
	rec = func(cur Handle, acc Path) (Path, bool) {
		for i := 1; i <= f.Children(cur); i++ {
			c := f.Child(cur, i)
			next := append(append(Path(nil), acc...), i)
			if c == h {
				return next, true
			}
			if p, ok := rec(c, next); ok {
				return p, true
			}
		}
		return nil, false
	}
	return rec(root, nil)
}

// Get walks path from t, returning NilHandle if any step is out of range.
func (f *Forest) Get(t Handle, path Path) Handle {
	cur := t
	for _, idx := range path {
		cur = f.Child(cur, idx)
		if cur.IsNil() {
			return NilHandle
		}
	}
	return cur
}

// Hash produces a structural hash stable across equivalent trees: it folds
// the symbol identity and surface bytes of every node into a sha256 hasher,
// depth-first pre-order.
func (f *Forest) Hash(sem *SemTable, t Handle) [32]byte {
	h := sha256.New()
	f.hashWalk(sem, t, h)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (f *Forest) hashWalk(sem *SemTable, t Handle, h interface{ Write([]byte) (int, error) }) {
	n := f.at(t)
	if n == nil {
		return
	}
	var idBuf [12]byte
	binary.BigEndian.PutUint32(idBuf[0:4], uint32(n.symbol.Context))
	binary.BigEndian.PutUint32(idBuf[4:8], uint32(n.symbol.Kind))
	binary.BigEndian.PutUint32(idBuf[8:12], uint32(n.symbol.ID))
	_, _ = h.Write(idBuf[:])
	switch n.kind {
	case surfInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n.ival))
		_, _ = h.Write(b[:])
	case surfBytes:
		_, _ = h.Write(n.bytes)
	case surfSymbol:
		var b [12]byte
		binary.BigEndian.PutUint32(b[0:4], uint32(n.symval.Context))
		binary.BigEndian.PutUint32(b[4:8], uint32(n.symval.Kind))
		binary.BigEndian.PutUint32(b[8:12], uint32(n.symval.ID))
		_, _ = h.Write(b[:])
	case surfProcess:
		var b [12]byte
		binary.BigEndian.PutUint32(b[0:4], uint32(n.procval.Context))
		binary.BigEndian.PutUint32(b[4:8], uint32(n.procval.Kind))
		binary.BigEndian.PutUint32(b[8:12], uint32(n.procval.ID))
		_, _ = h.Write(b[:])
	case surfTree:
		f.hashWalk(sem, n.subtree, h)
	}
	for _, c := range n.children {
		f.hashWalk(sem, c, h)
	}
}

// Visit walks the subtree rooted at t depth-first, pre-order, calling fn
// with the current depth and handle.
func (f *Forest) Visit(t Handle, fn func(depth int, h Handle)) {
	f.visit(t, 0, fn)
}

func (f *Forest) visit(t Handle, depth int, fn func(int, Handle)) {
	n := f.at(t)
	if n == nil {
		return
	}
	fn(depth, t)
	for _, c := range n.children {
		f.visit(c, depth+1, fn)
	}
}

// IsLeaf reports whether t has no children.
func (f *Forest) IsLeaf(t Handle) bool {
	return f.Children(t) == 0
}
