package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// TomlSource is a Source reading its key/value pairs from a TOML file. Keys
// use the same dot notation as every other Source: "clock.period" reads the
// period key of the [clock] table.
type TomlSource struct {
	namespace string
	tree      map[string]interface{}
}

// NewTomlSource parses the TOML file at path into a Source.
func NewTomlSource(path string) (Source, error) {
	tree := make(map[string]interface{})
	if _, err := toml.DecodeFile(path, &tree); err != nil {
		return nil, xerrors.Errorf("toml source %s: %w", path, err)
	}
	return &TomlSource{tree: tree}, nil
}

// NewTomlSourceFromString parses raw TOML data into a Source.
func NewTomlSourceFromString(data string) (Source, error) {
	tree := make(map[string]interface{})
	if _, err := toml.Decode(data, &tree); err != nil {
		return nil, xerrors.Errorf("toml source: %w", err)
	}
	return &TomlSource{tree: tree}, nil
}

func (t *TomlSource) fullKey(key string) string {
	if t.namespace != "" {
		return t.namespace + "." + key
	}
	return key
}

// lookup walks the decoded tables one dot-separated segment at a time.
func (t *TomlSource) lookup(key string) (interface{}, bool) {
	var cur interface{} = t.tree
	start := 0
	full := t.fullKey(key)
	for i := 0; i <= len(full); i++ {
		if i != len(full) && full[i] != '.' {
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[full[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	return cur, true
}

// Defined returns true if the given key is defined in the TOML data.
func (t *TomlSource) Defined(key string) bool {
	v, ok := t.lookup(key)
	if !ok {
		return false
	}
	_, isTable := v.(map[string]interface{})
	return !isTable
}

// String returns the string representation of the value under the key.
func (t *TomlSource) String(key string) string {
	v, ok := t.lookup(key)
	if !ok {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Sub returns a new TomlSource with a restricted scope.
func (t *TomlSource) Sub(key string) Source {
	return &TomlSource{
		namespace: t.fullKey(key),
		tree:      t.tree,
	}
}
