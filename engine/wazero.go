package engine

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/wasmbin"
)

// Wazero implements Engine on the wazero runtime.
//
// Every instance gets its own wazero.Runtime so that host modules named
// after import interfaces never collide; compiled code is shared through a
// compilation cache.
type Wazero struct {
	cache     wazero.CompilationCache
	instances map[string]Instance
	cfg       Config
	mu        sync.Mutex
	closed    bool
}

var _ Engine = (*Wazero)(nil)

// NewWazero creates a wazero-backed engine. cfg may be nil.
func NewWazero(ctx context.Context, cfg *Config) (*Wazero, error) {
	e := &Wazero{
		cache:     wazero.NewCompilationCache(),
		instances: make(map[string]Instance),
	}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e, nil
}

func (e *Wazero) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(e.cache).
		WithCloseOnContextDone(e.cfg.CallTimeout > 0 || e.cfg.Interruptible)
	if e.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	return rc
}

// IntrospectInterface returns the WIT text carried by the component-wit section.
func (e *Wazero) IntrospectInterface(_ context.Context, binary []byte) ([]byte, error) {
	data, ok, err := wasmbin.CustomSection(binary, SectionWIT)
	if err != nil {
		return nil, errors.Load("read component binary", err)
	}
	if !ok {
		return nil, errors.Load("binary has no "+SectionWIT+" section", nil)
	}
	return data, nil
}

// Instantiate creates an instance. Imports missing from the table are bound
// to stubs that trap when called, so a partially resolved component can
// still serve the exports that do not reach them.
func (e *Wazero) Instantiate(ctx context.Context, binary []byte, imports ImportTable) (Instance, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.Instantiation("component", stderrors.New("engine is closed"))
	}

	inst, err := e.instantiate(ctx, binary, imports)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.instances[inst.ID()] = inst
	e.mu.Unlock()
	return inst, nil
}

func (e *Wazero) instantiate(ctx context.Context, binary []byte, imports ImportTable) (Instance, error) {
	target, isComposite, err := wasmbin.CustomSection(binary, SectionComposeTarget)
	if err != nil {
		return nil, errors.Instantiation("component", err)
	}
	if isComposite {
		adapter, ok, err := wasmbin.CustomSection(binary, SectionComposeAdapter)
		if err != nil || !ok {
			return nil, errors.Instantiation("composite", errors.Load("composite has no adapter section", err))
		}
		c, err := e.instantiateComposite(ctx, target, adapter, imports)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	m, err := e.instantiateModule(ctx, binary, imports)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseInterface(binary []byte) (*descriptor.Store, error) {
	data, ok, err := wasmbin.CustomSection(binary, SectionWIT)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Load("binary has no "+SectionWIT+" section", nil)
	}
	return descriptor.Parse(data)
}

func (e *Wazero) instantiateModule(ctx context.Context, binary []byte, imports ImportTable) (*moduleInstance, error) {
	store, err := parseInterface(binary)
	if err != nil {
		return nil, errors.Instantiation("component", err)
	}

	r := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())
	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Instantiation(store.WorldName(), err)
	}

	inst := &moduleInstance{
		id:      uuid.NewString(),
		engine:  e,
		runtime: r,
		store:   store,
		sigs:    make(map[string]*signature),
	}
	if err := inst.bindImports(ctx, compiled, imports); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	cfg := wazero.NewModuleConfig().WithName(inst.id).WithStartFunctions("_initialize")
	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Instantiation(store.WorldName(), err)
	}
	inst.module = mod

	Logger().Debug("instantiated component",
		zap.String("instance", inst.id),
		zap.String("world", store.WorldName()),
		zap.Int("imports", len(store.Imports())),
		zap.Int("exports", len(store.Exports())))
	return inst, nil
}

// moduleInstance is a single core module with its own runtime
type moduleInstance struct {
	engine  *Wazero
	runtime wazero.Runtime
	module  api.Module
	store   *descriptor.Store
	sigs    map[string]*signature
	id      string
	mu      sync.Mutex
	closed  bool
}

func (i *moduleInstance) ID() string { return i.id }

// bindImports builds one host module per imported interface
func (i *moduleInstance) bindImports(ctx context.Context, compiled wazero.CompiledModule, imports ImportTable) error {
	byModule := make(map[string]wazero.HostModuleBuilder)
	var order []string

	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		q := types.QualifiedName{Func: name}
		if modName != rootModule {
			q.Interface = modName
		}
		fn := i.store.Import(q)
		if fn == nil {
			return errors.Instantiation(i.store.WorldName(),
				errors.NotFound(errors.PhaseLinking, "import in interface section", q.String()))
		}
		sig, err := newSignature(fn)
		if err != nil {
			return errors.Instantiation(i.store.WorldName(), err)
		}
		params, results := sig.importCore()

		hf, ok := imports[q.String()]
		if !ok {
			Logger().Debug("import left unresolved", zap.String("instance", i.id), zap.String("import", q.String()))
			hf = unresolved(q.String())
		}

		b, ok := byModule[modName]
		if !ok {
			b = i.runtime.NewHostModuleBuilder(modName)
			byModule[modName] = b
			order = append(order, modName)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(hostFunc(sig, hf), params, results).
			Export(name)
	}

	for _, name := range order {
		if _, err := byModule[name].Instantiate(ctx); err != nil {
			return errors.Instantiation(i.store.WorldName(), err)
		}
	}
	return nil
}

func unresolved(name string) HostFunc {
	return func(context.Context, []any) ([]any, error) {
		return nil, errors.Trap(name, stderrors.New("import is not resolved"))
	}
}

// hostFunc lowers a HostFunc into a core function. Errors cannot be
// returned through the guest, so they panic; wazero turns the panic into
// the error returned from the outermost call.
func hostFunc(sig *signature, hf HostFunc) api.GoModuleFunc {
	name := sig.fn.Name.String()
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		g := newGuest(ctx, mod)
		path := []string{name}

		var args []any
		if sig.spillParams() {
			v, err := g.load(sig.paramTuple(), uint32(stack[0]), path)
			if err != nil {
				panic(err)
			}
			args = v.([]any)
		} else {
			r := &flatReader{vals: stack[:len(sig.flatParams)]}
			for idx, pt := range sig.params {
				v, err := g.liftFlat(pt, r, with(path, sig.fn.Params[idx].Name))
				if err != nil {
					panic(err)
				}
				args = append(args, v)
			}
		}

		results, err := hf(ctx, args)
		if err != nil {
			panic(err)
		}
		if len(results) != len(sig.results) {
			panic(errors.Marshal(errors.PhaseHost, path, "host returned %d results, want %d", len(results), len(sig.results)))
		}

		if sig.spillResults() {
			// the return pointer follows the (possibly spilled) params
			retptr := uint32(stack[len(stack)-1])
			if err := g.store(sig.resultTuple(), results, retptr, path); err != nil {
				panic(err)
			}
			return
		}
		var flat []uint64
		for idx, rt := range sig.results {
			flat, err = g.lowerFlat(rt, results[idx], flat, path)
			if err != nil {
				panic(err)
			}
		}
		copy(stack, flat)
	}
}

func (i *moduleInstance) signature(name string) (*signature, error) {
	if sig, ok := i.sigs[name]; ok {
		return sig, nil
	}
	fn := i.store.Export(types.ParseQualifiedName(name))
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	sig, err := newSignature(fn)
	if err != nil {
		return nil, err
	}
	i.sigs[name] = sig
	return sig, nil
}

// Invoke lowers args, calls the export and lifts its results
func (i *moduleInstance) Invoke(ctx context.Context, name string, args []any) ([]any, error) {
	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	// an interrupted call leaves the module closed by wazero
	if closed || i.module.IsClosed() {
		return nil, errors.StaleHandle("instance", i.id)
	}

	sig, err := i.signature(name)
	if err != nil {
		return nil, err
	}
	if len(args) != len(sig.params) {
		return nil, errors.Arity(name, len(sig.params), len(args))
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "core export", name)
	}

	if t := i.engine.cfg.CallTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	g := newGuest(ctx, i.module)
	path := []string{name}
	var stack []uint64
	if sig.spillParams() {
		tuple := sig.paramTuple()
		l := layoutOf(tuple)
		ptr, err := g.alloc(l.size, l.align, path)
		if err != nil {
			return nil, err
		}
		if err := g.store(tuple, args, ptr, path); err != nil {
			return nil, err
		}
		stack = []uint64{uint64(ptr)}
	} else {
		for idx, pt := range sig.params {
			stack, err = g.lowerFlat(pt, args[idx], stack, with(path, sig.fn.Params[idx].Name))
			if err != nil {
				return nil, err
			}
		}
	}

	out, err := fn.Call(ctx, stack...)
	if err != nil {
		return nil, callError(name, err)
	}

	var results []any
	if sig.spillResults() {
		v, err := g.load(sig.resultTuple(), uint32(out[0]), path)
		if err != nil {
			return nil, err
		}
		results = v.([]any)
	} else {
		r := &flatReader{vals: out}
		for _, rt := range sig.results {
			v, err := g.liftFlat(rt, r, path)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
	}

	if post := i.module.ExportedFunction(cabiPostPrefix + name); post != nil {
		if _, err := post.Call(ctx, out...); err != nil {
			return nil, callError(cabiPostPrefix+name, err)
		}
	}
	return results, nil
}

// callError keeps structured errors raised by host functions and reports
// everything else as a trap.
func callError(name string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	return errors.Trap(name, err)
}

func (i *moduleInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()

	i.engine.forget(i.id)
	Logger().Debug("closed instance", zap.String("instance", i.id))
	return i.runtime.Close(ctx)
}

func (e *Wazero) forget(id string) {
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
}

// Close closes every live instance and the compilation cache.
func (e *Wazero) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	live := make([]Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		live = append(live, inst)
	}
	e.mu.Unlock()

	var err error
	for _, inst := range live {
		err = multierr.Append(err, inst.Close(ctx))
	}
	return multierr.Append(err, e.cache.Close(ctx))
}
