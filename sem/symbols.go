package sem

// SysContext is the context index every Sys symbol below is defined in.
const SysContext int32 = 0

// Sys holds every symbol, structure and built-in process this module
// defines for itself: the signal envelope, run-tree/params scaffolding,
// protocol-definition vocabulary, semtrex match-result vocabulary, the
// error tree, and the built-in process table.
// One Sys is built per SemTable by NewSysSemTable; callers attach their own
// domain symbols in further contexts.
type Sys struct {
	// primitive structures
	StrInteger, StrCString, StrFloat, StrBoolean, StrTree, StrBinary, StrSymbol, StrProcess SemanticID

	// run tree / reduction scaffolding
	RunTree, Params, TrueFalse SemanticID

	// error tree
	ErrorSym, Kind, Description, OffendingSubtreePath SemanticID

	// signal envelope
	Signal, Envelope, MessageHeader, FromAddress, ToAddress, AddressKind,
	AddressValue, Aspect, Carrier, Timestamp, UUID, InResponseToUUID,
	Conversation, Body SemanticID

	// protocol definition vocabulary; StrInteraction is the structure each
	// named interaction symbol is defined with, so the engine can recognize
	// interaction subtrees by their symbol's structure
	StrInteraction SemanticID
	ProtocolDefinition, ProtocolLabel, ProtocolSemantics, Role, Goal, Usage,
	Source, Destination, Pname, Expect, Initiate, Inclusion, Connection,
	Resolution, Action, ActualSymbol, ActualProcess, ActualReceptor,
	WhichSymbol, WhichProcess, WhichReceptor, WhichUsage, WhichGoal, WhichRole,
	ProtocolBindings, Until SemanticID

	// clock receptor
	ClockTick SemanticID

	// semtrex match-result vocabulary
	SemtrexMatchResults, SemtrexMatch, SemtrexMatchedPath, SemtrexMatchSiblingsCount,
	InterpolateSymbol SemanticID

	// built-in processes
	If, AddInt, SubInt, MultInt, DivInt, ModInt, EqInt, LtInt, GtInt, ParamRef,
	InterpolateFromMatch SemanticID
}

// NewSysSemTable returns a SemTable with SysContext already populated with
// every symbol/structure/process the core engine itself needs, before any
// user symbol is registered.
func NewSysSemTable() (*SemTable, *Sys) {
	sem := NewSemTable()
	ctx := sem.NewContext() // == SysContext == 0
	sys := &Sys{}

	def := func(structure SemanticID, label string) SemanticID {
		id, err := sem.DefineSymbol(ctx, structure, label)
		if err != nil {
			panic(err)
		}
		return id
	}
	prim := func(label string, p PrimitiveKind) SemanticID {
		id, err := sem.DefineStructure(ctx, label, p)
		if err != nil {
			panic(err)
		}
		return id
	}
	// composite defines an executable code shape: NOT a value, a candidate
	// redex once all its children reduce (used only for built-in code tags).
	composite := func(label string, children ...SemanticID) SemanticID {
		id, err := sem.DefineStructure(ctx, label, PrimNone, children...)
		if err != nil {
			panic(err)
		}
		return id
	}
	// data defines an inert composite container: always a value regardless
	// of its children, used for every scaffolding/vocabulary structure below
	// that holds arguments or metadata rather than reducible code.
	data := func(label string, children ...SemanticID) SemanticID {
		id, err := sem.DefineDataStructure(ctx, label, children...)
		if err != nil {
			panic(err)
		}
		return id
	}
	// Built-in process heads are registered as SYMBOLS, not as Kind-Process
	// entries: a tree node's symbol is always of Kind symbol, and code trees
	// tag their nodes directly with e.g. IF or ADD_INT. A built-in's
	// SemanticID therefore doubles as both the code-tree tag the reducer
	// dispatches on and the "process" identifier MakeRunTree/ACTION can
	// reference (ProcessID is a plain alias of SemanticID).
	builtin := func(label, doc string) ProcessID {
		return def(composite(label+"_CODE"), label)
	}

	sys.StrInteger = prim("INTEGER", PrimInteger)
	sys.StrCString = prim("CSTRING", PrimCString)
	sys.StrFloat = prim("FLOAT", PrimFloat)
	sys.StrBoolean = prim("BOOLEAN", PrimBoolean)
	sys.StrTree = prim("TREE", PrimTree)
	sys.StrBinary = prim("BINARY", PrimBinary)
	sys.StrSymbol = prim("SYMBOL_STRUCTURE", PrimSymbol)
	sys.StrProcess = prim("PROCESS_STRUCTURE", PrimProcess)
	rawContainer := data("RAW_CONTAINER")

	sys.RunTree = def(rawContainer, "RUN_TREE")
	sys.Params = def(rawContainer, "PARAMS")
	sys.TrueFalse = def(sys.StrBoolean, "TRUE_FALSE")

	sys.ErrorSym = def(rawContainer, "ERROR")
	sys.Kind = def(sys.StrCString, "KIND")
	sys.Description = def(sys.StrCString, "DESCRIPTION")
	sys.OffendingSubtreePath = def(sys.StrCString, "OFFENDING_SUBTREE_PATH")

	sys.Signal = def(rawContainer, "SIGNAL")
	sys.Envelope = def(rawContainer, "ENVELOPE")
	sys.MessageHeader = def(rawContainer, "MESSAGE_HEADER")
	sys.FromAddress = def(rawContainer, "FROM_ADDRESS")
	sys.ToAddress = def(rawContainer, "TO_ADDRESS")
	sys.AddressKind = def(sys.StrInteger, "ADDRESS_KIND")
	sys.AddressValue = def(sys.StrInteger, "ADDRESS_VALUE")
	sys.Aspect = def(sys.StrCString, "ASPECT")
	sys.Carrier = def(sys.StrSymbol, "CARRIER")
	sys.Timestamp = def(sys.StrInteger, "TIMESTAMP")
	sys.UUID = def(sys.StrCString, "UUID")
	sys.InResponseToUUID = def(sys.StrCString, "IN_RESPONSE_TO_UUID")
	sys.Conversation = def(sys.StrCString, "CONVERSATION")
	sys.Body = def(rawContainer, "BODY")

	sys.StrInteraction = data("INTERACTION")
	sys.ProtocolDefinition = def(rawContainer, "PROTOCOL_DEFINITION")
	sys.ProtocolLabel = def(sys.StrCString, "PROTOCOL_LABEL")
	sys.ProtocolSemantics = def(rawContainer, "PROTOCOL_SEMANTICS")
	sys.Role = def(sys.StrSymbol, "ROLE")
	sys.Goal = def(sys.StrSymbol, "GOAL")
	sys.Usage = def(sys.StrSymbol, "USAGE")
	sys.Source = def(rawContainer, "SOURCE")
	sys.Destination = def(rawContainer, "DESTINATION")
	sys.Pname = def(sys.StrSymbol, "PNAME")
	sys.Expect = def(rawContainer, "EXPECT")
	sys.Initiate = def(rawContainer, "INITIATE")
	sys.Inclusion = def(rawContainer, "INCLUSION")
	sys.Connection = def(rawContainer, "CONNECTION")
	sys.Resolution = def(rawContainer, "RESOLUTION")
	sys.Action = def(sys.StrProcess, "ACTION")
	sys.ActualSymbol = def(sys.StrSymbol, "ACTUAL_SYMBOL")
	sys.ActualProcess = def(sys.StrProcess, "ACTUAL_PROCESS")
	sys.ActualReceptor = def(sys.StrSymbol, "ACTUAL_RECEPTOR")
	sys.WhichSymbol = def(rawContainer, "WHICH_SYMBOL")
	sys.WhichProcess = def(rawContainer, "WHICH_PROCESS")
	sys.WhichReceptor = def(rawContainer, "WHICH_RECEPTOR")
	sys.WhichUsage = def(rawContainer, "WHICH_USAGE")
	sys.WhichGoal = def(rawContainer, "WHICH_GOAL")
	sys.WhichRole = def(rawContainer, "WHICH_ROLE")
	sys.ProtocolBindings = def(rawContainer, "PROTOCOL_BINDINGS")
	sys.Until = def(rawContainer, "UNTIL")

	sys.ClockTick = def(sys.StrInteger, "CLOCK_TICK")

	sys.SemtrexMatchResults = def(rawContainer, "SEMTREX_MATCH_RESULTS")
	sys.SemtrexMatch = def(sys.StrSymbol, "SEMTREX_MATCH")
	sys.SemtrexMatchedPath = def(sys.StrBinary, "SEMTREX_MATCHED_PATH")
	sys.SemtrexMatchSiblingsCount = def(sys.StrInteger, "SEMTREX_MATCH_SIBLINGS_COUNT")
	sys.InterpolateSymbol = def(sys.StrSymbol, "INTERPOLATE_SYMBOL")

	sys.If = builtin("IF", "if cond is true (surface 1) clone then, else clone else")
	sys.AddInt = builtin("ADD_INT", "integer addition, result carries the first operand's symbol")
	sys.SubInt = builtin("SUB_INT", "integer subtraction")
	sys.MultInt = builtin("MULT_INT", "integer multiplication")
	sys.DivInt = builtin("DIV_INT", "integer division, fails with ZERO_DIVISION on a zero divisor")
	sys.ModInt = builtin("MOD_INT", "integer modulo, fails with ZERO_DIVISION on a zero divisor")
	sys.EqInt = builtin("EQ_INT", "integer equality, result is TRUE_FALSE")
	sys.LtInt = builtin("LT_INT", "integer less-than, result is TRUE_FALSE")
	sys.GtInt = builtin("GT_INT", "integer greater-than, result is TRUE_FALSE")
	sys.ParamRef = builtin("PARAM_REF", "replace with a clone of the i-th child of PARAMS")
	sys.InterpolateFromMatch = builtin("INTERPOLATE_FROM_MATCH", "splice semtrex-match captures into a template")

	return sem, sys
}
