package ceptr

import (
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/log"
	"go.dedis.ch/ceptr/sem"
	"go.dedis.ch/ceptr/semtrex"
)

// Protocol definition tree shape:
//
//	PROTOCOL_DEFINITION{
//	    PROTOCOL_LABEL:"label",
//	    PROTOCOL_SEMANTICS{ ROLE:r | GOAL:g | USAGE:u ... },
//	    <interaction>{ EXPECT{ROLE, SOURCE{ROLE}, pattern, ACTION|GOAL}
//	                 | INITIATE{ROLE, DESTINATION{ROLE}, ACTION|GOAL} }...,
//	    INCLUSION{ PNAME:p, CONNECTION{WHICH_*{a,b}}..., RESOLUTION{WHICH_*{a,b}}... }...,
//	}
//
// Each <interaction> is a symbol defined with the INTERACTION structure, so
// interaction subtrees are recognized by their symbol's structure rather
// than by a fixed symbol.
const (
	protocolDefSemanticsIdx = 2

	expectRoleIdx    = 1
	expectPatternIdx = 3
	expectActionIdx  = 4
)

// ProtocolBuilder assembles a PROTOCOL_DEFINITION tree with typed chaining
// calls and registers it in the semantic table on Build. Errors stick: the
// first one aborts the build and is reported by Build.
type ProtocolBuilder struct {
	s     *sem.SemTable
	sys   *sem.Sys
	ctx   int32
	label string

	def       sem.Handle
	semantics sem.Handle
	cur       sem.Handle // current interaction or inclusion subtree
	curKind   sem.SemanticID
	err       error
}

// NewProtocolDef starts a protocol definition named label, to be registered
// in context ctx.
func NewProtocolDef(s *sem.SemTable, sys *sem.Sys, ctx int32, label string) *ProtocolBuilder {
	f := s.Defs
	def := f.NewRoot(sys.ProtocolDefinition)
	f.NewString(def, sys.ProtocolLabel, label)
	semantics := f.New(def, sys.ProtocolSemantics)
	return &ProtocolBuilder{s: s, sys: sys, ctx: ctx, label: label, def: def, semantics: semantics}
}

func (b *ProtocolBuilder) fail(msg string) *ProtocolBuilder {
	if b.err == nil {
		b.err = sem.NewError(sem.ErrProtocolBuildError, msg)
	}
	return b
}

// Role declares a role in the protocol's semantics.
func (b *ProtocolBuilder) Role(role sem.SemanticID) *ProtocolBuilder {
	if b.err == nil {
		b.s.Defs.NewSym(b.semantics, b.sys.Role, role)
	}
	return b
}

// Goal declares an abstract process slot in the protocol's semantics.
func (b *ProtocolBuilder) Goal(goal sem.SemanticID) *ProtocolBuilder {
	if b.err == nil {
		b.s.Defs.NewSym(b.semantics, b.sys.Goal, goal)
	}
	return b
}

// Usage declares an abstract symbol slot in the protocol's semantics.
func (b *ProtocolBuilder) Usage(usage sem.SemanticID) *ProtocolBuilder {
	if b.err == nil {
		b.s.Defs.NewSym(b.semantics, b.sys.Usage, usage)
	}
	return b
}

// Interaction opens a named interaction; subsequent Expect/Initiate calls
// attach to it. The name becomes a symbol defined with the INTERACTION
// structure in the builder's context.
func (b *ProtocolBuilder) Interaction(name string) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	isym, err := b.s.DefineSymbol(b.ctx, b.sys.StrInteraction, name)
	if err != nil {
		b.err = xerrors.Errorf("protocol build: %w", err)
		return b
	}
	b.cur = b.s.Defs.New(b.def, isym)
	b.curKind = b.sys.StrInteraction
	return b
}

func (b *ProtocolBuilder) expectNode(role, source sem.SemanticID, pattern sem.Handle) sem.Handle {
	f := b.s.Defs
	e := f.New(b.cur, b.sys.Expect)
	f.NewSym(e, b.sys.Role, role)
	src := f.New(e, b.sys.Source)
	f.NewSym(src, b.sys.Role, source)
	_ = f.Add(e, pattern)
	return e
}

// Expect adds an expectation rule to the current interaction: when a signal
// from source matches pattern, role runs action. pattern must be an orphan
// semtrex tree in the table's definitions forest; ownership transfers.
func (b *ProtocolBuilder) Expect(role, source sem.SemanticID, pattern sem.Handle, action sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	if !b.curKind.Equal(b.sys.StrInteraction) {
		return b.fail("EXPECT outside an INTERACTION")
	}
	e := b.expectNode(role, source, pattern)
	b.s.Defs.NewProcess(e, b.sys.Action, action)
	return b
}

// ExpectGoal is Expect with the action left abstract: a GOAL to be bound by
// a later resolution.
func (b *ProtocolBuilder) ExpectGoal(role, source sem.SemanticID, pattern sem.Handle, goal sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	if !b.curKind.Equal(b.sys.StrInteraction) {
		return b.fail("EXPECT outside an INTERACTION")
	}
	e := b.expectNode(role, source, pattern)
	b.s.Defs.NewSym(e, b.sys.Goal, goal)
	return b
}

// Initiate adds an initiation rule to the current interaction: role sends
// to destination by running action.
func (b *ProtocolBuilder) Initiate(role, destination, action sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	if !b.curKind.Equal(b.sys.StrInteraction) {
		return b.fail("INITIATE outside an INTERACTION")
	}
	f := b.s.Defs
	i := f.New(b.cur, b.sys.Initiate)
	f.NewSym(i, b.sys.Role, role)
	dst := f.New(i, b.sys.Destination)
	f.NewSym(dst, b.sys.Role, destination)
	if action.Kind == sem.KindProcess {
		f.NewProcess(i, b.sys.Action, action)
	} else {
		f.NewSym(i, b.sys.Goal, action)
	}
	return b
}

// Include composes another protocol into this one; subsequent Connect*/
// Resolve* calls attach to the inclusion.
func (b *ProtocolBuilder) Include(protocol sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	inc := b.s.Defs.New(b.def, b.sys.Inclusion)
	b.s.Defs.NewSym(inc, b.sys.Pname, protocol)
	b.cur = inc
	b.curKind = b.sys.Inclusion
	return b
}

func (b *ProtocolBuilder) connection(which, tag sem.SemanticID, from, to sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	if !b.curKind.Equal(b.sys.Inclusion) {
		return b.fail("CONNECTION outside an INCLUSION")
	}
	f := b.s.Defs
	c := f.New(b.cur, b.sys.Connection)
	w := f.New(c, which)
	f.NewSym(w, tag, from)
	f.NewSym(w, tag, to)
	return b
}

func (b *ProtocolBuilder) resolution(which, tag, actualTag sem.SemanticID, abstract, actual sem.SemanticID) *ProtocolBuilder {
	if b.err != nil {
		return b
	}
	if !b.curKind.Equal(b.sys.Inclusion) {
		return b.fail("RESOLUTION outside an INCLUSION")
	}
	f := b.s.Defs
	res := f.New(b.cur, b.sys.Resolution)
	w := f.New(res, which)
	f.NewSym(w, tag, abstract)
	if actualTag.Equal(b.sys.ActualProcess) {
		f.NewProcess(w, actualTag, actual)
	} else {
		f.NewSym(w, actualTag, actual)
	}
	return b
}

// ConnectRole renames a role of the included protocol to one of this
// protocol's roles.
func (b *ProtocolBuilder) ConnectRole(from, to sem.SemanticID) *ProtocolBuilder {
	return b.connection(b.sys.WhichRole, b.sys.Role, from, to)
}

// ConnectGoal renames a goal of the included protocol.
func (b *ProtocolBuilder) ConnectGoal(from, to sem.SemanticID) *ProtocolBuilder {
	return b.connection(b.sys.WhichGoal, b.sys.Goal, from, to)
}

// ConnectUsage renames a usage of the included protocol.
func (b *ProtocolBuilder) ConnectUsage(from, to sem.SemanticID) *ProtocolBuilder {
	return b.connection(b.sys.WhichUsage, b.sys.Usage, from, to)
}

// ResolveSymbol binds a usage of the included protocol to a concrete symbol.
func (b *ProtocolBuilder) ResolveSymbol(usage, actual sem.SemanticID) *ProtocolBuilder {
	return b.resolution(b.sys.WhichSymbol, b.sys.Usage, b.sys.ActualSymbol, usage, actual)
}

// ResolveProcess binds a goal of the included protocol to a concrete process.
func (b *ProtocolBuilder) ResolveProcess(goal, actual sem.SemanticID) *ProtocolBuilder {
	return b.resolution(b.sys.WhichProcess, b.sys.Goal, b.sys.ActualProcess, goal, actual)
}

// ResolveReceptor binds a role of the included protocol to a concrete
// receptor.
func (b *ProtocolBuilder) ResolveReceptor(role, actual sem.SemanticID) *ProtocolBuilder {
	return b.resolution(b.sys.WhichReceptor, b.sys.Role, b.sys.ActualReceptor, role, actual)
}

// Build registers the definition in the semantic table and returns its
// protocol identifier. A failed build frees nothing from the arena but
// registers nothing either.
func (b *ProtocolBuilder) Build() (sem.SemanticID, error) {
	if b.err != nil {
		return sem.SemanticID{}, xerrors.Errorf("protocol build %q: %w", b.label, b.err)
	}
	id, err := b.s.DefineProtocol(b.ctx, b.def, b.label)
	if err != nil {
		return sem.SemanticID{}, xerrors.Errorf("protocol build %q: %w", b.label, err)
	}
	log.Catf(log.DebugProtocol, "protocol %q registered as %v", b.label, id)
	return id, nil
}

// NewBindings starts an empty PROTOCOL_BINDINGS tree in the table's
// definitions forest.
func NewBindings(s *sem.SemTable, sys *sem.Sys) sem.Handle {
	return s.Defs.NewRoot(sys.ProtocolBindings)
}

// BindProcess appends a WHICH_PROCESS resolution to a bindings tree.
func BindProcess(s *sem.SemTable, sys *sem.Sys, bindings sem.Handle, goal, actual sem.SemanticID) {
	f := s.Defs
	res := f.New(bindings, sys.Resolution)
	w := f.New(res, sys.WhichProcess)
	f.NewSym(w, sys.Goal, goal)
	f.NewProcess(w, sys.ActualProcess, actual)
}

// BindSymbol appends a WHICH_SYMBOL resolution to a bindings tree.
func BindSymbol(s *sem.SemTable, sys *sem.Sys, bindings sem.Handle, usage, actual sem.SemanticID) {
	f := s.Defs
	res := f.New(bindings, sys.Resolution)
	w := f.New(res, sys.WhichSymbol)
	f.NewSym(w, sys.Usage, usage)
	f.NewSym(w, sys.ActualSymbol, actual)
}

// BindReceptor appends a WHICH_RECEPTOR resolution to a bindings tree.
func BindReceptor(s *sem.SemTable, sys *sem.Sys, bindings sem.Handle, role, actual sem.SemanticID) {
	f := s.Defs
	res := f.New(bindings, sys.Resolution)
	w := f.New(res, sys.WhichReceptor)
	f.NewSym(w, sys.Role, role)
	f.NewSym(w, sys.ActualReceptor, actual)
}

// isInteraction reports whether a definition child is an interaction
// subtree: its symbol's structure is INTERACTION.
func isInteraction(s *sem.SemTable, sys *sem.Sys, symbol sem.SemanticID) bool {
	st, ok := s.GetSymbolStructure(symbol)
	return ok && st.Equal(sys.StrInteraction)
}

// Unwrap clones def and recursively expands every INCLUSION in it: the
// included protocol is unwrapped, its connections applied, its resolutions
// accumulated and resolved, its leftover semantics merged into the parent
// (skipping duplicates), and its interactions spliced in order. The
// consumed INCLUSION subtrees are detached. Unwrap never mutates def.
func Unwrap(s *sem.SemTable, sys *sem.Sys, v *semtrex.Vocab, def sem.Handle) (sem.Handle, error) {
	f := s.Defs
	d := f.Clone(def)
	for i := 1; i <= f.Children(d); i++ {
		t := f.Child(d, i)
		if !f.Symbol(t).Equal(sys.Inclusion) {
			continue
		}

		pname := f.SurfaceSymbol(f.Child(t, 1))
		incDef, ok := s.GetProtocolDef(pname)
		if !ok {
			return sem.NilHandle, xerrors.Errorf("unwrap: %w", sem.NewError(sem.ErrProtocolNotFound, "included protocol not defined"))
		}
		pdef, err := Unwrap(s, sys, v, incDef)
		if err != nil {
			return sem.NilHandle, err
		}

		bindings := sem.NilHandle
		for j := 2; j <= f.Children(t); j++ {
			x := f.Child(t, j)
			switch {
			case f.Symbol(x).Equal(sys.Connection):
				w := f.Child(x, 1)
				src := f.Child(w, 1)
				tgt := f.Child(w, 2)
				// a walking semtrex for any node with src's exact symbol
				// and surface, replaced everywhere with tgt
				stxb := semtrex.NewBuilder(f, v)
				stx := stxb.Group(f.Symbol(src), stxb.ValueLiteral(f.Clone(src)))
				semtrex.Replace(f, v, stx, pdef, tgt)
			case f.Symbol(x).Equal(sys.Resolution):
				if bindings.IsNil() {
					bindings = f.NewRoot(sys.ProtocolBindings)
				}
				_ = f.Add(bindings, f.Clone(x))
			default:
				return sem.NilHandle, xerrors.Errorf("unwrap: %w", sem.NewError(sem.ErrProtocolBuildError, "expecting CONNECTION or RESOLUTION"))
			}
		}

		incSemantics := f.Child(pdef, protocolDefSemanticsIdx)
		if !bindings.IsNil() {
			if err := Resolve(s, sys, v, pdef, bindings); err != nil {
				return sem.NilHandle, err
			}
			// bound slots need no further binding, so drop them from the
			// semantics before the merge below
			for j := 1; j <= f.Children(bindings); j++ {
				w := f.Child(f.Child(bindings, j), 1)
				abstract := f.Child(w, 1)
				for k := 1; k <= f.Children(incSemantics); k++ {
					y := f.Child(incSemantics, k)
					if f.Symbol(y).Equal(f.Symbol(abstract)) && f.SurfaceSymbol(y).Equal(f.SurfaceSymbol(abstract)) {
						f.DetachByIdx(incSemantics, k)
						break
					}
				}
			}
		}

		// merge unresolved semantics entries into the parent, skipping
		// entries the parent already declares (same entry kind referring to
		// the same symbol)
		parentSemantics := f.Child(d, protocolDefSemanticsIdx)
		for {
			x := f.DetachByIdx(incSemantics, 1)
			if x.IsNil() {
				break
			}
			dup := false
			for k := 1; k <= f.Children(parentSemantics); k++ {
				y := f.Child(parentSemantics, k)
				if f.Symbol(y).Equal(f.Symbol(x)) && f.SurfaceSymbol(y).Equal(f.SurfaceSymbol(x)) {
					dup = true
					break
				}
			}
			if !dup {
				_ = f.Add(parentSemantics, x)
			}
		}

		// splice the unwrapped interactions in order, then drop the
		// consumed inclusion
		for {
			x := f.DetachByIdx(pdef, protocolDefSemanticsIdx+1)
			if x.IsNil() {
				break
			}
			_ = f.Add(d, x)
		}
		f.DetachByPtr(d, t)
		i--
	}
	return d, nil
}

// Resolve applies a PROTOCOL_BINDINGS tree to def in place. WHICH_PROCESS
// rebinds GOAL action slots in EXPECT/INITIATE rules to concrete ACTIONs;
// WHICH_SYMBOL rebinds usage slots inside expectation patterns to concrete
// symbols; WHICH_RECEPTOR rebinds role leaves inside SOURCE/DESTINATION to
// concrete receptors.
func Resolve(s *sem.SemTable, sys *sem.Sys, v *semtrex.Vocab, def sem.Handle, bindings sem.Handle) error {
	if bindings.IsNil() {
		return nil
	}
	f := s.Defs
	stxb := semtrex.NewBuilder(f, v)

	// every EXPECT and INITIATE rule, located by a walking semtrex
	var rules []sem.Handle
	for _, symbol := range []sem.SemanticID{sys.Expect, sys.Initiate} {
		stx := stxb.SymbolLiteral(symbol)
		for _, m := range semtrex.Walk(f, v, stx, def) {
			rules = append(rules, m.Node)
		}
	}

	for i := 1; i <= f.Children(bindings); i++ {
		res := f.Child(bindings, i)
		w := f.Child(res, 1)
		abstract := f.Child(w, 1)
		actual := f.Child(w, 2)
		switch {
		case f.Symbol(w).Equal(sys.WhichProcess):
			goal := f.SurfaceSymbol(abstract)
			for _, rule := range rules {
				slot := f.Child(rule, f.Children(rule))
				if f.Symbol(slot).Equal(sys.Goal) && f.SurfaceSymbol(slot).Equal(goal) {
					f.Replace(slot, f.NewProcess(sem.NilHandle, sys.Action, f.SurfaceProcess(actual)))
				}
			}
		case f.Symbol(w).Equal(sys.WhichSymbol):
			// usage slots live inside the patterns of the rules: symbol
			// literals whose surface is the usage symbol
			usage := f.SurfaceSymbol(abstract)
			proto := f.NewSym(sem.NilHandle, v.SymbolLiteral, usage)
			stx := stxb.Group(sys.Usage, stxb.ValueLiteral(proto))
			for _, rule := range rules {
				for _, m := range semtrex.Walk(f, v, stx, rule) {
					f.SetSurfaceSymbol(m.Node, f.SurfaceSymbol(actual))
				}
			}
		case f.Symbol(w).Equal(sys.WhichReceptor):
			role := f.SurfaceSymbol(abstract)
			for _, rule := range rules {
				for _, tag := range []sem.SemanticID{sys.Source, sys.Destination} {
					ep, ok := f.FindChild(rule, tag)
					if !ok {
						continue
					}
					leaf := f.Child(ep, 1)
					if f.Symbol(leaf).Equal(sys.Role) && f.SurfaceSymbol(leaf).Equal(role) {
						f.Replace(leaf, f.NewSym(sem.NilHandle, sys.ActualReceptor, f.SurfaceSymbol(actual)))
					}
				}
			}
		default:
			return xerrors.Errorf("resolve: %w", sem.NewError(sem.ErrProtocolBuildError, "unknown resolution kind"))
		}
	}
	return nil
}

// ExpressRole sets up a receptor to participate as role in a protocol:
// the definition is unwrapped, resolved against bindings, and every EXPECT
// rule bound to role becomes an expectation installed on aspect. An action
// slot still holding a GOAL after resolution fails with UNBOUND_GOAL.
func ExpressRole(r *Receptor, protocol sem.SemanticID, role sem.SemanticID, aspectName string, bindings sem.Handle) error {
	def, ok := r.Sem.GetProtocolDef(protocol)
	if !ok {
		return xerrors.Errorf("express role: %w", sem.NewError(sem.ErrProtocolNotFound, "protocol not defined"))
	}
	f := r.Sem.Defs
	p, err := Unwrap(r.Sem, r.Sys, r.Vocab, def)
	if err != nil {
		return err
	}
	if err := Resolve(r.Sem, r.Sys, r.Vocab, p, bindings); err != nil {
		return err
	}

	installed := 0
	for i := 1; i <= f.Children(p); i++ {
		t := f.Child(p, i)
		if !isInteraction(r.Sem, r.Sys, f.Symbol(t)) {
			continue
		}
		for j := 1; j <= f.Children(t); j++ {
			x := f.Child(t, j)
			if !f.Symbol(x).Equal(r.Sys.Expect) {
				continue
			}
			if !f.SurfaceSymbol(f.Child(x, expectRoleIdx)).Equal(role) {
				continue
			}
			actionSlot := f.Child(x, expectActionIdx)
			if f.Symbol(actionSlot).Equal(r.Sys.Goal) {
				name, _ := r.Sem.GetName(f.SurfaceSymbol(actionSlot))
				return xerrors.Errorf("express role: goal %q: %w", name, sem.NewError(sem.ErrUnboundGoal, "binding missing for goal"))
			}
			e := &Expectation{
				Protocol: protocol,
				Pattern:  f.CloneTo(r.F, f.Child(x, expectPatternIdx)),
				Action:   f.SurfaceProcess(actionSlot),
			}
			r.AddExpectation(aspectName, e)
			installed++
		}
	}
	log.Catf(log.DebugProtocol, "receptor %d: expressed role in protocol, %d expectation(s) installed on %q", r.Addr().Addr, installed, aspectName)
	return nil
}
