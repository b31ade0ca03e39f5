package config

import (
	"sort"
	"strings"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

// CliSource reads configuration from ceptrd's command line. Two kinds of
// input feed it: ordinary flags looked up by their own name (the flags of
// the command being run shadow the app-level ones), and the repeatable
// --set flag carrying dotted "key=value" pairs. --set only accepts the
// keys the runtime actually reads (KnownKeys); anything else aborts flag
// parsing, so misspelled settings surface at startup instead of being
// silently ignored.
type CliSource struct {
	namespace string
	c         *cli.Context
}

// NewCliSource wraps the cli.Context of the command being run. Pass the
// innermost context; an outer one only sees the app-level flags.
func NewCliSource(c *cli.Context) Source {
	return &CliSource{c: c}
}

// Defined reports whether key was given as a flag or a --set pair.
func (c *CliSource) Defined(key string) bool {
	_, ok := c.value(key)
	return ok
}

// String returns the value given for key, or "" when absent.
func (c *CliSource) String(key string) string {
	v, _ := c.value(key)
	return v
}

// Sub returns a CliSource restricted to keys below the given prefix.
func (c *CliSource) Sub(key string) Source {
	return &CliSource{namespace: c.fullKey(key), c: c.c}
}

func (c *CliSource) fullKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + "." + key
}

// value resolves key against the command's own flags first, then the
// app-level flags, then the --set pairs (checked at both levels).
func (c *CliSource) value(key string) (string, bool) {
	if c.c.IsSet(key) {
		return c.c.String(key), true
	}
	if c.c.GlobalIsSet(key) {
		return c.c.GlobalString(key), true
	}
	for _, generic := range []interface{}{c.c.Generic(KVFlagName), c.c.GlobalGeneric(KVFlagName)} {
		if kv, ok := generic.(*kvFlag); ok {
			if v, ok := kv.get(c.fullKey(key)); ok {
				return v, true
			}
		}
	}
	return "", false
}

// KVFlagName is the name of the repeatable key=value flag.
const KVFlagName = "set"

// NewKVCliFlag returns the cli.Flag to register on an app or command that
// should accept --set pairs:
//
//	ceptrd --set clock.period=1s --set host.baseport=2015
//
// Each registration needs its own flag, since the collected pairs live in
// the flag value.
func NewKVCliFlag() cli.Flag {
	return cli.GenericFlag{
		Name:  KVFlagName,
		Usage: "set a config key, e.g. --set " + KeyClockPeriod + "=1s",
		Value: &kvFlag{},
	}
}

// kvFlag collects the validated --set pairs.
type kvFlag struct {
	pairs map[string]string
}

// Set implements cli.Generic. It rejects pairs without an "=", pairs whose
// key the runtime does not read, and keys given twice.
func (g *kvFlag) Set(value string) error {
	eq := strings.Index(value, "=")
	if eq <= 0 {
		return xerrors.Errorf("--%s %q: want key=value", KVFlagName, value)
	}
	key, val := value[:eq], value[eq+1:]
	if !IsKnownKey(key) {
		known := append([]string(nil), KnownKeys...)
		sort.Strings(known)
		return xerrors.Errorf("--%s %s: unknown key (known: %s)", KVFlagName, key, strings.Join(known, ", "))
	}
	if _, dup := g.pairs[key]; dup {
		return xerrors.Errorf("--%s %s: key given twice", KVFlagName, key)
	}
	if g.pairs == nil {
		g.pairs = make(map[string]string)
	}
	g.pairs[key] = val
	return nil
}

// String implements cli.Generic; it renders the pairs already collected.
func (g *kvFlag) String() string {
	if len(g.pairs) == 0 {
		return ""
	}
	var out []string
	for k, v := range g.pairs {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func (g *kvFlag) get(key string) (string, bool) {
	v, ok := g.pairs[key]
	return v, ok
}
