package ceptr

import (
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/sem"
)

// Wire form of a tree: the nodes in depth-first pre-order, each carrying
// its child count, so the shape reconstructs without parent links. Signals
// serialized for inter-host use travel in this encoding; the in-process
// tree form stays the normative one.

type wireID struct {
	Context int32
	Kind    uint32
	ID      int32
}

func toWireID(id sem.SemanticID) wireID {
	return wireID{Context: id.Context, Kind: uint32(id.Kind), ID: id.ID}
}

func fromWireID(w wireID) sem.SemanticID {
	return sem.SemanticID{Context: w.Context, Kind: sem.Kind(w.Kind), ID: w.ID}
}

type wireNode struct {
	Symbol   wireID
	Surface  uint32
	IntVal   int64
	SymVal   wireID
	ProcVal  wireID
	Bytes    []byte
	Children uint32
}

type wireTree struct {
	Nodes []wireNode
}

func flatten(f *sem.Forest, t sem.Handle, out *[]wireNode) error {
	n := wireNode{
		Symbol:   toWireID(f.Symbol(t)),
		Surface:  uint32(f.SurfaceKind(t)),
		Children: uint32(f.Children(t)),
	}
	switch f.SurfaceKind(t) {
	case sem.SurfaceInt:
		n.IntVal = f.SurfaceInt(t)
	case sem.SurfaceSymbol:
		n.SymVal = toWireID(f.SurfaceSymbol(t))
	case sem.SurfaceProcess:
		n.ProcVal = toWireID(f.SurfaceProcess(t))
	case sem.SurfaceBytes:
		n.Bytes = f.SurfaceBytes(t)
	case sem.SurfaceTree:
		return xerrors.Errorf("marshal tree: %w", sem.NewError(sem.ErrBadTreeShape, "tree-pointer surfaces do not serialize"))
	}
	*out = append(*out, n)
	for i := 1; i <= f.Children(t); i++ {
		if err := flatten(f, f.Child(t, i), out); err != nil {
			return err
		}
	}
	return nil
}

// MarshalTree serializes the subtree rooted at t.
func MarshalTree(f *sem.Forest, t sem.Handle) ([]byte, error) {
	var nodes []wireNode
	if err := flatten(f, t, &nodes); err != nil {
		return nil, err
	}
	buf, err := protobuf.Encode(&wireTree{Nodes: nodes})
	if err != nil {
		return nil, xerrors.Errorf("marshal tree: %w", err)
	}
	return buf, nil
}

func rebuild(f *sem.Forest, nodes []wireNode, pos int, parent sem.Handle) (sem.Handle, int, error) {
	if pos >= len(nodes) {
		return sem.NilHandle, 0, xerrors.Errorf("unmarshal tree: %w", sem.NewError(sem.ErrBadTreeShape, "truncated node list"))
	}
	n := nodes[pos]
	symbol := fromWireID(n.Symbol)
	var h sem.Handle
	switch sem.SurfaceKind(n.Surface) {
	case sem.SurfaceInt:
		h = f.NewInt(parent, symbol, n.IntVal)
	case sem.SurfaceSymbol:
		h = f.NewSym(parent, symbol, fromWireID(n.SymVal))
	case sem.SurfaceProcess:
		h = f.NewProcess(parent, symbol, fromWireID(n.ProcVal))
	case sem.SurfaceBytes:
		h = f.NewBytes(parent, symbol, n.Bytes)
	case sem.SurfaceNone:
		if parent.IsNil() {
			h = f.NewRoot(symbol)
		} else {
			h = f.New(parent, symbol)
		}
	default:
		return sem.NilHandle, 0, xerrors.Errorf("unmarshal tree: %w", sem.NewError(sem.ErrBadTreeShape, "unknown surface kind"))
	}
	pos++
	for i := uint32(0); i < n.Children; i++ {
		var err error
		if _, pos, err = rebuild(f, nodes, pos, h); err != nil {
			return sem.NilHandle, 0, err
		}
	}
	return h, pos, nil
}

// UnmarshalTree rebuilds a serialized tree as a fresh orphan in f.
func UnmarshalTree(f *sem.Forest, buf []byte) (sem.Handle, error) {
	var wt wireTree
	if err := protobuf.Decode(buf, &wt); err != nil {
		return sem.NilHandle, xerrors.Errorf("unmarshal tree: %w", err)
	}
	if len(wt.Nodes) == 0 {
		return sem.NilHandle, xerrors.Errorf("unmarshal tree: %w", sem.NewError(sem.ErrBadTreeShape, "empty node list"))
	}
	root, pos, err := rebuild(f, wt.Nodes, 0, sem.NilHandle)
	if err != nil {
		return sem.NilHandle, err
	}
	if pos != len(wt.Nodes) {
		return sem.NilHandle, xerrors.Errorf("unmarshal tree: %w", sem.NewError(sem.ErrBadTreeShape, "trailing nodes"))
	}
	return root, nil
}

// MarshalSignal serializes a complete signal tree, envelope and body.
func MarshalSignal(f *sem.Forest, s sem.Handle) ([]byte, error) {
	return MarshalTree(f, s)
}

// UnmarshalSignal rebuilds a serialized signal as a fresh orphan in f.
func UnmarshalSignal(f *sem.Forest, buf []byte) (sem.Handle, error) {
	return UnmarshalTree(f, buf)
}
