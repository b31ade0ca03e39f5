package config

import (
	"os"
	"strings"
)

// EnvSource resolves dotted keys against CEPTR_* environment variables:
// "clock.period" reads CEPTR_CLOCK_PERIOD. It sits between the command
// line and the TOML file in ceptrd's hub, so a deployment can pin a value
// without editing either.
type EnvSource struct {
	namespace string
}

// NewEnvSource returns a Source over the CEPTR_* environment.
func NewEnvSource() Source {
	return &EnvSource{}
}

// EnvVar returns the environment variable a dotted key reads from.
func EnvVar(key string) string {
	mangled := strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return "CEPTR_" + strings.ToUpper(mangled)
}

func (e *EnvSource) fullKey(key string) string {
	if e.namespace == "" {
		return key
	}
	return e.namespace + "." + key
}

// Defined reports whether the key's variable is set (even to "").
func (e *EnvSource) Defined(key string) bool {
	_, ok := os.LookupEnv(EnvVar(e.fullKey(key)))
	return ok
}

// String returns the key's variable value, or "" when unset.
func (e *EnvSource) String(key string) string {
	return os.Getenv(EnvVar(e.fullKey(key)))
}

// Sub returns an EnvSource restricted to keys below the given prefix.
func (e *EnvSource) Sub(key string) Source {
	return &EnvSource{namespace: e.fullKey(key)}
}
