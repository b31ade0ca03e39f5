package sem

import (
	"sync"

	"golang.org/x/xerrors"
)

// Kind distinguishes the five SemanticID namespaces.
type Kind uint8

const (
	KindSymbol Kind = iota
	KindStructure
	KindProcess
	KindProtocol
	KindReceptor
)

func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindStructure:
		return "structure"
	case KindProcess:
		return "process"
	case KindProtocol:
		return "protocol"
	case KindReceptor:
		return "receptor"
	default:
		return "unknown"
	}
}

// SemanticID is the triple (context, type, id) that Symbol, Process,
// Structure, Protocol and Receptor identifiers all are. Equality is
// component-wise (semeq).
type SemanticID struct {
	Context int32
	Kind    Kind
	ID      int32
}

// Equal implements semeq.
func (s SemanticID) Equal(o SemanticID) bool { return s == o }

// IsNil reports whether s is the zero SemanticID (never a valid definition).
func (s SemanticID) IsNil() bool { return s == SemanticID{} }

// Semeq is the free-function form of SemanticID.Equal, matching the spec's
// naming (`semeq`).
func Semeq(a, b SemanticID) bool { return a.Equal(b) }

// ProcessID is a SemanticID of Kind == KindProcess; kept as a distinct
// name because the reducer and protocol engine pass it around far more
// than raw symbols do.
type ProcessID = SemanticID

// PrimitiveKind enumerates the primitive structure shapes a symbol's
// payload can take.
type PrimitiveKind uint8

const (
	// PrimNone marks a composite structure (children list matters, no
	// inline scalar).
	PrimNone PrimitiveKind = iota
	PrimInteger
	PrimCString
	PrimFloat
	PrimBoolean
	PrimTree
	PrimBinary
	PrimSymbol
	PrimProcess
)

// StructureDef records how a symbol's payload is shaped: either primitive,
// or composite (a list of required child symbols). Literal marks a
// composite structure as inert data (a container the reducer should treat
// as an already-reduced value, e.g. PARAMS or a signal envelope) rather
// than as a code shape the reducer may rewrite; primitive structures are
// always values regardless of Literal.
type StructureDef struct {
	Label     string
	Primitive PrimitiveKind
	Children  []SemanticID
	Literal   bool
}

type symbolDef struct {
	Label     string
	Structure SemanticID
}

// ProcessDef is a user-defined process: a CODE subtree plus documentation
// and input/output signatures. Built-in process heads (IF, ADD_INT, ...)
// are not ProcessDefs at all; they are Sys symbols the reducer recognizes
// directly (see NewSysSemTable's builtin closure).
type ProcessDef struct {
	Label  string
	Doc    string
	Code   Handle
	Input  Handle
	Output Handle
}

type protocolDef struct {
	Label string
	Def   Handle
}

// contextStore holds one namespace's four sibling definition lists plus
// the inverse name map.
type contextStore struct {
	symbols    []symbolDef
	structures []StructureDef
	processes  []ProcessDef
	protocols  []protocolDef
	names      map[string]SemanticID
}

func newContextStore() *contextStore {
	return &contextStore{names: make(map[string]SemanticID)}
}

// SemTable is the per-host registry of context stores binding symbols to
// structures and processes across isolated contexts. It is read-shared
// after initialization; definitions are appended under a single writer per
// context, and readers tolerate concurrent append because each context's
// definition lists only ever grow.
type SemTable struct {
	mu       sync.RWMutex
	contexts []*contextStore
	// Defs is the shared arena backing every definition tree referenced by
	// this table: process CODE, protocol definitions, structure-describing
	// sub-trees. Keeping one Forest per SemTable (rather than per-context)
	// lets protocol unwrap/resolve freely clone across contexts.
	Defs *Forest
}

// NewSemTable returns an empty table with a shared definitions arena.
func NewSemTable() *SemTable {
	return &SemTable{Defs: NewForest()}
}

// NewContext appends a fresh, empty context store and returns its index.
func (s *SemTable) NewContext() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = append(s.contexts, newContextStore())
	return int32(len(s.contexts) - 1)
}

func (s *SemTable) store(ctx int32) *contextStore {
	if ctx < 0 || int(ctx) >= len(s.contexts) {
		return nil
	}
	return s.contexts[ctx]
}

// DefineStructure registers a new structure in ctx and returns its id.
func (s *SemTable) DefineStructure(ctx int32, label string, prim PrimitiveKind, children ...SemanticID) (SemanticID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, xerrors.Errorf("define structure: %w", NewError(ErrUnknownSymbol, "no such context"))
	}
	id := SemanticID{Context: ctx, Kind: KindStructure, ID: int32(len(cs.structures))}
	cs.structures = append(cs.structures, StructureDef{Label: label, Primitive: prim, Children: append([]SemanticID(nil), children...)})
	cs.names[label] = id
	return id, nil
}

// DefineDataStructure registers a composite structure explicitly marked
// Literal: a data container (PARAMS, a signal envelope, a match-results
// tree) that the reducer must treat as an inert value rather than attempt
// to rewrite, even though it has no primitive surface of its own.
func (s *SemTable) DefineDataStructure(ctx int32, label string, children ...SemanticID) (SemanticID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, xerrors.Errorf("define data structure: %w", NewError(ErrUnknownSymbol, "no such context"))
	}
	id := SemanticID{Context: ctx, Kind: KindStructure, ID: int32(len(cs.structures))}
	cs.structures = append(cs.structures, StructureDef{Label: label, Primitive: PrimNone, Children: append([]SemanticID(nil), children...), Literal: true})
	cs.names[label] = id
	return id, nil
}

// DefineSymbol registers a new symbol in ctx bound to structure.
func (s *SemTable) DefineSymbol(ctx int32, structure SemanticID, label string) (SemanticID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, xerrors.Errorf("define symbol: %w", NewError(ErrUnknownSymbol, "no such context"))
	}
	id := SemanticID{Context: ctx, Kind: KindSymbol, ID: int32(len(cs.symbols))}
	cs.symbols = append(cs.symbols, symbolDef{Label: label, Structure: structure})
	cs.names[label] = id
	return id, nil
}

// DefineProcess registers a user-defined process in ctx.
func (s *SemTable) DefineProcess(ctx int32, code Handle, label, doc string, input, output Handle) (ProcessID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, xerrors.Errorf("define process: %w", NewError(ErrUnknownSymbol, "no such context"))
	}
	id := SemanticID{Context: ctx, Kind: KindProcess, ID: int32(len(cs.processes))}
	cs.processes = append(cs.processes, ProcessDef{Label: label, Doc: doc, Code: code, Input: input, Output: output})
	cs.names[label] = id
	return id, nil
}

// DefineProtocol registers a protocol definition tree in ctx.
func (s *SemTable) DefineProtocol(ctx int32, def Handle, label string) (SemanticID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, xerrors.Errorf("define protocol: %w", NewError(ErrUnknownSymbol, "no such context"))
	}
	id := SemanticID{Context: ctx, Kind: KindProtocol, ID: int32(len(cs.protocols))}
	cs.protocols = append(cs.protocols, protocolDef{Label: label, Def: def})
	cs.names[label] = id
	return id, nil
}

// GetName returns the label under which id was defined.
func (s *SemTable) GetName(id SemanticID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(id.Context)
	if cs == nil {
		return "", false
	}
	switch id.Kind {
	case KindSymbol:
		if int(id.ID) >= len(cs.symbols) || id.ID < 0 {
			return "", false
		}
		return cs.symbols[id.ID].Label, true
	case KindStructure:
		if int(id.ID) >= len(cs.structures) || id.ID < 0 {
			return "", false
		}
		return cs.structures[id.ID].Label, true
	case KindProcess:
		if int(id.ID) >= len(cs.processes) || id.ID < 0 {
			return "", false
		}
		return cs.processes[id.ID].Label, true
	case KindProtocol:
		if int(id.ID) >= len(cs.protocols) || id.ID < 0 {
			return "", false
		}
		return cs.protocols[id.ID].Label, true
	}
	return "", false
}

// GetSymbolStructure returns the structure id bound to a symbol.
func (s *SemTable) GetSymbolStructure(sym SemanticID) (SemanticID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(sym.Context)
	if cs == nil || sym.Kind != KindSymbol || sym.ID < 0 || int(sym.ID) >= len(cs.symbols) {
		return SemanticID{}, false
	}
	return cs.symbols[sym.ID].Structure, true
}

// GetStructureDef returns the structure definition for id.
func (s *SemTable) GetStructureDef(id SemanticID) (StructureDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(id.Context)
	if cs == nil || id.Kind != KindStructure || id.ID < 0 || int(id.ID) >= len(cs.structures) {
		return StructureDef{}, false
	}
	return cs.structures[id.ID], true
}

// GetProcessDef returns the process definition for id.
func (s *SemTable) GetProcessDef(id SemanticID) (ProcessDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(id.Context)
	if cs == nil || id.Kind != KindProcess || id.ID < 0 || int(id.ID) >= len(cs.processes) {
		return ProcessDef{}, false
	}
	return cs.processes[id.ID], true
}

// GetProtocolDef returns the protocol definition tree handle for id.
func (s *SemTable) GetProtocolDef(id SemanticID) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(id.Context)
	if cs == nil || id.Kind != KindProtocol || id.ID < 0 || int(id.ID) >= len(cs.protocols) {
		return NilHandle, false
	}
	return cs.protocols[id.ID].Def, true
}

// Lookup resolves a label to its SemanticID within ctx via the inverse
// name map.
func (s *SemTable) Lookup(ctx int32, label string) (SemanticID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.store(ctx)
	if cs == nil {
		return SemanticID{}, false
	}
	id, ok := cs.names[label]
	return id, ok
}

// IsDefined reports whether id resolves to a real definition in some
// context of this table. Every symbol used in any tree must satisfy this.
func (s *SemTable) IsDefined(id SemanticID) bool {
	switch id.Kind {
	case KindSymbol:
		_, ok := s.GetSymbolStructure(id)
		return ok
	case KindStructure:
		_, ok := s.GetStructureDef(id)
		return ok
	case KindProcess:
		_, ok := s.GetProcessDef(id)
		return ok
	case KindProtocol:
		_, ok := s.GetProtocolDef(id)
		return ok
	}
	return false
}
