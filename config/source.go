// Package config resolves a host's runtime configuration from layered
// sources — command-line flags, CEPTR_* environment variables, and a TOML
// file — and knows where ceptr keeps its files on disk. Keys use dot
// notation: "clock.period" is the period key of the [clock] table.
package config

import (
	"strconv"
	"time"

	"go.dedis.ch/ceptr/log"
)

// The dotted keys the runtime understands. Sources that validate their
// input (the command line's --set flag) check against this set, so a typo
// fails loudly at startup instead of silently configuring nothing.
const (
	KeyBasePort    = "host.baseport"
	KeyDebug       = "host.debug"
	KeyData        = "host.data"
	KeyClockPeriod = "clock.period"
)

// KnownKeys lists every key the runtime reads, for validation and usage
// output.
var KnownKeys = []string{KeyBasePort, KeyDebug, KeyData, KeyClockPeriod}

// IsKnownKey reports whether the runtime reads the given dotted key.
func IsKnownKey(key string) bool {
	for _, k := range KnownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Source is one layer of configuration: it can report whether a dotted key
// is defined, return its string form, and narrow its scope by one prefix
// segment. With a scope of "clock", the key "period" resolves against
// "clock.period" and "host.baseport" is no longer visible.
type Source interface {
	Defined(key string) bool
	String(key string) string
	Sub(key string) Source
}

// Hub layers sources and answers typed lookups over them. The first source
// defining a key wins, so the caller lists sources highest-priority first:
// for ceptrd that is command line, then environment, then the TOML file.
// Malformed values are not swallowed silently — a value that fails to
// parse as the requested type logs a warning before the fallback applies.
type Hub struct {
	sources []Source
}

// NewHub layers the given sources, highest priority first.
func NewHub(sources ...Source) *Hub {
	return &Hub{sources: sources}
}

// Defined reports whether any layered source defines the key.
func (h *Hub) Defined(key string) bool {
	_, ok := h.find(key)
	return ok
}

// String returns the key's value from the highest-priority source defining
// it, or "" when none does.
func (h *Hub) String(key string) string {
	v, _ := h.find(key)
	return v
}

// Sub narrows every layered source by one prefix segment. It returns a
// Source to satisfy the interface; use SubHub for the typed getters.
func (h *Hub) Sub(key string) Source {
	return h.SubHub(key)
}

// SubHub is Sub with the concrete *Hub return type.
func (h *Hub) SubHub(key string) *Hub {
	narrowed := make([]Source, len(h.sources))
	for i, s := range h.sources {
		narrowed[i] = s.Sub(key)
	}
	return NewHub(narrowed...)
}

func (h *Hub) find(key string) (string, bool) {
	for _, s := range h.sources {
		if s.Defined(key) {
			return s.String(key), true
		}
	}
	return "", false
}

// StringOrDefault returns the key's value, or def when no source defines
// it.
func (h *Hub) StringOrDefault(key, def string) string {
	if v, ok := h.find(key); ok {
		return v
	}
	return def
}

// Int returns the key's value as an integer, or 0 when undefined or
// malformed.
func (h *Hub) Int(key string) int {
	return h.IntOrDefault(key, 0)
}

// IntOrDefault returns the key's value as an integer, or def when the key
// is undefined or its value does not parse.
func (h *Hub) IntOrDefault(key string, def int) int {
	v, ok := h.find(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config %s: %q is not an integer, using %d", key, v, def)
		return def
	}
	return i
}

// Duration returns the key's value as a time.Duration, or 0 when undefined
// or malformed.
func (h *Hub) Duration(key string) time.Duration {
	return h.DurationOrDefault(key, 0)
}

// DurationOrDefault returns the key's value as a time.Duration ("250ms",
// "1s"), or def when the key is undefined or its value does not parse.
func (h *Hub) DurationOrDefault(key string, def time.Duration) time.Duration {
	v, ok := h.find(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("config %s: %q is not a duration, using %v", key, v, def)
		return def
	}
	return d
}

// Bool returns the key's value as a boolean ("1", "true", "false"...), or
// def when the key is undefined or its value does not parse.
func (h *Hub) Bool(key string, def bool) bool {
	v, ok := h.find(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("config %s: %q is not a boolean, using %v", key, v, def)
		return def
	}
	return b
}
