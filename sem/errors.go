package sem

import (
	"fmt"
	"strings"
)

// ErrKind classifies the failures the reducer, protocol engine, and host
// can produce: structural, resolution, routing, reducer, and delivery.
type ErrKind int

const (
	// ErrUnknown is used only as the zero-value sentinel; never returned.
	ErrUnknown ErrKind = iota
	ErrBadTreeShape
	ErrBadSymbol
	ErrBadArity
	ErrUnknownSymbol
	ErrUnboundGoal
	ErrUnboundUsage
	ErrProtocolNotFound
	ErrProtocolBuildError
	ErrBadAddress
	ErrTooManyReceptors
	ErrTooManyActive
	ErrZeroDivision
	ErrParamOutOfRange
	ErrNotReducible
	ErrNoMatch
	ErrDeadReceptor
)

var errKindNames = map[ErrKind]string{
	ErrBadTreeShape:       "BAD_TREE_SHAPE",
	ErrBadSymbol:          "BAD_SYMBOL",
	ErrBadArity:           "BAD_ARITY",
	ErrUnknownSymbol:      "UNKNOWN_SYMBOL",
	ErrUnboundGoal:        "UNBOUND_GOAL",
	ErrUnboundUsage:       "UNBOUND_USAGE",
	ErrProtocolNotFound:   "PROTOCOL_NOT_FOUND",
	ErrProtocolBuildError: "PROTOCOL_BUILD_ERROR",
	ErrBadAddress:         "BAD_ADDRESS",
	ErrTooManyReceptors:   "TOO_MANY_RECEPTORS",
	ErrTooManyActive:      "TOO_MANY_ACTIVE",
	ErrZeroDivision:       "ZERO_DIVISION",
	ErrParamOutOfRange:    "PARAM_OUT_OF_RANGE",
	ErrNotReducible:       "NOT_REDUCIBLE",
	ErrNoMatch:            "NO_MATCH",
	ErrDeadReceptor:       "DEAD_RECEPTOR",
}

func (k ErrKind) String() string {
	if n, ok := errKindNames[k]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error is the structured failure type every component in ceptr returns:
// a kind, a description, and optionally the path of the offending subtree.
// It is a typed Go error so that callers can both log it (via xerrors
// wrapping at call sites) and introspect it (Kind, Path).
type Error struct {
	Kind        ErrKind
	Description string
	Path        Path
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Description)
	}
	return fmt.Sprintf("%s: %s (at %v)", e.Kind, e.Description, e.Path)
}

// NewError builds an *Error with no offending path.
func NewError(kind ErrKind, description string) *Error {
	return &Error{Kind: kind, Description: description}
}

// NewErrorAt builds an *Error tagged with the subtree path that caused it.
func NewErrorAt(kind ErrKind, description string, path Path) *Error {
	return &Error{Kind: kind, Description: description, Path: path}
}

// pathString renders a path in the compact /1/2 form used inside error
// trees; the root is "/".
func pathString(p Path) string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, i := range p {
		fmt.Fprintf(&b, "/%d", i)
	}
	return b.String()
}
