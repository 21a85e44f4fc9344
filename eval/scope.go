package eval

import (
	"sort"

	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/value"
)

// Binding is a named value held in a Scope
type Binding struct {
	Value value.Value
	Type  types.Type
	Name  string
}

// Scope maps variable names to bindings for the lifetime of a session.
// Bindings are only replaced, never removed.
type Scope struct {
	vars map[string]Binding
}

// NewScope creates an empty scope
func NewScope() *Scope {
	return &Scope{vars: make(map[string]Binding)}
}

// Get returns the binding for name
func (s *Scope) Get(name string) (Binding, bool) {
	b, ok := s.vars[name]
	return b, ok
}

// Set binds name to v, replacing any previous binding
func (s *Scope) Set(name string, v value.Value) {
	s.vars[name] = Binding{Name: name, Value: v, Type: v.Type()}
}

// Names returns the bound names in sorted order
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.vars))
	for name := range s.vars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of bindings
func (s *Scope) Len() int { return len(s.vars) }

// Snapshot returns a copy of all bindings
func (s *Scope) Snapshot() map[string]Binding {
	out := make(map[string]Binding, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}
