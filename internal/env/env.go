// Package env composes the environment handed to supervised children.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers variables over a base taken from the supervisor's own
// environment. Later layers win.
type Env struct {
	base   Var
	layers []Var
}

// New returns an Env whose base is the current process environment.
func New() *Env {
	return &Env{base: Parse(os.Environ())}
}

// Empty returns an Env with no inherited variables.
func Empty() *Env {
	return &Env{base: Var{}}
}

// With adds a layer of overrides and returns e for chaining.
func (e *Env) With(vars map[string]string) *Env {
	if len(vars) == 0 {
		return e
	}
	l := make(Var, len(vars))
	for k, v := range vars {
		if k != "" {
			l[k] = v
		}
	}
	e.layers = append(e.layers, l)
	return e
}

// Set overrides a single variable.
func (e *Env) Set(k, v string) *Env {
	return e.With(map[string]string{k: v})
}

// Merge composes the final environment in "K=V" form, applying perProc last.
// ${VAR} references are expanded once against the composed map; unknown
// references are left intact. The result is sorted by key.
func (e *Env) Merge(perProc []string) []string {
	m := make(Var, len(e.base))
	for k, v := range e.base {
		m[k] = v
	}
	for _, l := range e.layers {
		for k, v := range l {
			m[k] = v
		}
	}
	for k, v := range Parse(perProc) {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

// Parse converts "K=V" pairs into a map, skipping malformed entries.
func Parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
}
