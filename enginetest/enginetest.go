// Package enginetest provides an in-memory engine whose component exports
// are Go closures, for tests that exercise the REPL without compiling guests.
//
// A fake component is turned into a binary with Binary; the binary is a real
// core module carrying the interface section, so IntrospectInterface and the
// merge package treat it like any other component.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/wasmbin"
)

// sectionID names the custom section linking a binary to its Component
const sectionID = "enginetest-component"

// Func implements an export. imports holds the instance's import table so an
// export can call what it imports.
type Func func(ctx context.Context, imports engine.ImportTable, args []any) ([]any, error)

// Component is a fake component: its WIT and Go implementations of its exports.
// Exports missing from the map trap when called.
type Component struct {
	Exports map[string]Func
	WIT     string
}

// Engine is an in-memory engine.Engine
type Engine struct {
	components map[string]*Component
	live       map[string]*Instance
	// Instantiated counts successful instantiations
	Instantiated int
	mu           sync.Mutex
	nextID       int
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty fake engine.
func New() *Engine {
	return &Engine{
		components: make(map[string]*Component),
		live:       make(map[string]*Instance),
	}
}

// Binary registers c and returns a binary the engine will instantiate as c.
func (e *Engine) Binary(c *Component) []byte {
	e.mu.Lock()
	id := fmt.Sprintf("c%d", len(e.components)+1)
	e.components[id] = c
	e.mu.Unlock()

	b := wasmbin.NewModuleBuilder()
	b.CustomSection(engine.SectionWIT, []byte(c.WIT))
	b.CustomSection(sectionID, []byte(id))
	return b.Bytes()
}

// IntrospectInterface reads the interface section.
func (e *Engine) IntrospectInterface(_ context.Context, binary []byte) ([]byte, error) {
	data, ok, err := wasmbin.CustomSection(binary, engine.SectionWIT)
	if err != nil {
		return nil, errors.Load("read component binary", err)
	}
	if !ok {
		return nil, errors.Load("binary has no "+engine.SectionWIT+" section", nil)
	}
	return data, nil
}

// Instantiate creates an instance of a binary made by Binary or of a
// composite built from such binaries.
func (e *Engine) Instantiate(ctx context.Context, binary []byte, imports engine.ImportTable) (engine.Instance, error) {
	target, composite, err := wasmbin.CustomSection(binary, engine.SectionComposeTarget)
	if err != nil {
		return nil, errors.Instantiation("component", err)
	}
	if !composite {
		inst, err := e.instantiate(binary, imports)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}

	adapterBin, _, err := wasmbin.CustomSection(binary, engine.SectionComposeAdapter)
	if err != nil {
		return nil, errors.Instantiation("composite", err)
	}
	adWIT, err := e.IntrospectInterface(ctx, adapterBin)
	if err != nil {
		return nil, errors.Instantiation("adapter", err)
	}
	adStore, err := descriptor.Parse(adWIT)
	if err != nil {
		return nil, errors.Instantiation("adapter", err)
	}
	adapter, err := e.Instantiate(ctx, adapterBin, imports)
	if err != nil {
		return nil, err
	}

	routed := make(engine.ImportTable, len(imports))
	for k, v := range imports {
		routed[k] = v
	}
	for _, fn := range adStore.Exports() {
		name := fn.Name.String()
		routed[name] = func(ctx context.Context, args []any) ([]any, error) {
			return adapter.Invoke(ctx, name, args)
		}
	}
	tg, err := e.Instantiate(ctx, target, routed)
	if err != nil {
		return nil, err
	}
	return &compositeInstance{target: tg, adapter: adapter}, nil
}

// compositeInstance serves the target's exports first, then the adapter's
type compositeInstance struct {
	target  engine.Instance
	adapter engine.Instance
}

func (c *compositeInstance) ID() string { return c.target.ID() }

func (c *compositeInstance) Invoke(ctx context.Context, name string, args []any) ([]any, error) {
	out, err := c.target.Invoke(ctx, name, args)
	if errors.HasKind(err, errors.KindNotFound) {
		return c.adapter.Invoke(ctx, name, args)
	}
	return out, err
}

func (c *compositeInstance) Close(ctx context.Context) error {
	return multierr.Combine(c.target.Close(ctx), c.adapter.Close(ctx))
}

func (e *Engine) instantiate(binary []byte, imports engine.ImportTable) (*Instance, error) {
	idBytes, ok, err := wasmbin.CustomSection(binary, sectionID)
	if err != nil || !ok {
		return nil, errors.Instantiation("component", errors.Load("binary was not made by enginetest", err))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[string(idBytes)]
	if !ok {
		return nil, errors.Instantiation("component", errors.NotFound(errors.PhaseLoad, "component", string(idBytes)))
	}
	store, err := descriptor.Parse([]byte(c.WIT))
	if err != nil {
		return nil, errors.Instantiation("component", err)
	}

	exports := make(map[string]*types.Function)
	for _, fn := range store.Exports() {
		exports[fn.Name.String()] = fn
	}
	e.nextID++
	inst := &Instance{
		id:      fmt.Sprintf("instance-%d", e.nextID),
		engine:  e,
		comp:    c,
		imports: imports,
		exports: exports,
	}
	e.live[inst.id] = inst
	e.Instantiated++
	return inst, nil
}

// Live reports whether an instance ID is open.
func (e *Engine) Live(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.live[id]
	return ok
}

// Close closes every instance.
func (e *Engine) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live = make(map[string]*Instance)
	return nil
}

// Instance is a fake instance
type Instance struct {
	engine  *Engine
	comp    *Component
	imports engine.ImportTable
	exports map[string]*types.Function
	id      string
}

func (i *Instance) ID() string { return i.id }

// Invoke checks arity and calls the export's closure.
func (i *Instance) Invoke(ctx context.Context, name string, args []any) ([]any, error) {
	if !i.engine.Live(i.id) {
		return nil, errors.StaleHandle("instance", i.id)
	}
	fn, ok := i.exports[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	if len(args) != len(fn.Params) {
		return nil, errors.Arity(name, len(fn.Params), len(args))
	}
	impl, ok := i.comp.Exports[name]
	if !ok {
		return nil, errors.Trap(name, fmt.Errorf("export %s has no implementation", name))
	}
	return impl(ctx, i.imports, args)
}

// Close removes the instance; further calls fail with a stale handle.
func (i *Instance) Close(context.Context) error {
	i.engine.mu.Lock()
	delete(i.engine.live, i.id)
	i.engine.mu.Unlock()
	return nil
}

// Call invokes an import from inside a fake export; a missing import traps
// the way an unresolved import does on the real engine.
func Call(ctx context.Context, imports engine.ImportTable, name string, args ...any) ([]any, error) {
	fn, ok := imports[name]
	if !ok {
		return nil, errors.Trap(name, fmt.Errorf("import is not resolved"))
	}
	return fn(ctx, args)
}

// MergerFunc adapts a function to engine.Merger.
type MergerFunc func(ctx context.Context, target, adapter []byte) ([]byte, error)

func (f MergerFunc) Merge(ctx context.Context, target, adapter []byte) ([]byte, error) {
	return f(ctx, target, adapter)
}
