package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/resolve"
)

// Role is the part a component plays in the session
type Role int

const (
	// RoleTarget is the component under test
	RoleTarget Role = iota
	// RoleProvider components serve imports and expose their own exports
	RoleProvider
	// RoleAdapter components are searched after every other provider
	RoleAdapter
)

func (r Role) String() string {
	switch r {
	case RoleTarget:
		return "target"
	case RoleProvider:
		return "provider"
	case RoleAdapter:
		return "adapter"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a component
type State int

const (
	Loaded State = iota
	Instantiated
)

func (s State) String() string {
	if s == Instantiated {
		return "instantiated"
	}
	return "loaded"
}

// Component is a registered component binary and, once its imports are
// resolved, its live instance.
type Component struct {
	Store    *descriptor.Store
	Instance engine.Instance
	// Plan is the last resolution plan computed for the component
	Plan   *resolve.Plan
	Name   string
	Path   string
	Binary []byte
	Role   Role
	State  State
	Order  int
}

// Provider returns the component as a resolution provider
func (c *Component) Provider() resolve.Provider {
	return resolve.Provider{Name: c.Name, Store: c.Store}
}

// Registry holds the session's components in load order.
type Registry struct {
	byName map[string]*Component
	comps  []*Component
	next   int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Component)}
}

// Add registers c under its name and assigns its load order.
func (r *Registry) Add(c *Component) error {
	if c.Name == "" {
		return errors.InvalidInput(errors.PhaseLoad, "component name cannot be empty")
	}
	if _, exists := r.byName[c.Name]; exists {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("component %q is already loaded", c.Name))
	}
	c.Order = r.next
	r.next++
	r.byName[c.Name] = c
	r.comps = append(r.comps, c)
	return nil
}

// Get returns the component registered under name
func (r *Registry) Get(name string) *Component {
	return r.byName[name]
}

// ByPath returns the first component loaded from path
func (r *Registry) ByPath(path string) *Component {
	for _, c := range r.comps {
		if c.Path == path {
			return c
		}
	}
	return nil
}

// ByInstance returns the component whose live instance has the given ID
func (r *Registry) ByInstance(id string) *Component {
	for _, c := range r.comps {
		if c.Instance != nil && c.Instance.ID() == id {
			return c
		}
	}
	return nil
}

// Target returns the target component, if one is loaded
func (r *Registry) Target() *Component {
	for _, c := range r.comps {
		if c.Role == RoleTarget {
			return c
		}
	}
	return nil
}

// All returns every component in load order
func (r *Registry) All() []*Component {
	return append([]*Component(nil), r.comps...)
}

// Instantiated returns the components with a live instance, target first,
// then in load order.
func (r *Registry) Instantiated() []*Component {
	var out []*Component
	if t := r.Target(); t != nil && t.State == Instantiated {
		out = append(out, t)
	}
	for _, c := range r.comps {
		if c.Role != RoleTarget && c.State == Instantiated {
			out = append(out, c)
		}
	}
	return out
}

// Providers returns the instantiated components of a role, excluding skip,
// as resolution providers.
func (r *Registry) Providers(role Role, skip *Component) []resolve.Provider {
	var out []resolve.Provider
	for _, c := range r.comps {
		if c == skip || c.Role != role || c.State != Instantiated {
			continue
		}
		out = append(out, c.Provider())
	}
	return out
}

// UniqueName derives a component name from a file path: the base name
// without extension, suffixed with a counter when taken.
func (r *Registry) UniqueName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "" || base == "." {
		base = "component"
	}
	name := base
	for i := 2; r.byName[name] != nil; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name
}

// Close closes every live instance.
func (r *Registry) Close(ctx context.Context) error {
	var err error
	for _, c := range r.comps {
		if c.Instance == nil {
			continue
		}
		err = multierr.Append(err, c.Instance.Close(ctx))
		c.Instance = nil
		c.State = Loaded
	}
	return err
}
