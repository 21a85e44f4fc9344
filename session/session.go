package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/compose"
	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/eval"
	"github.com/wippyai/wasm-repl/resolve"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/value"
)

// Config holds configuration for session creation
type Config struct {
	// Engine instantiates components. The session owns it and closes it.
	Engine engine.Engine

	// Merger builds composites for .compose. Without one .compose fails.
	Merger engine.Merger

	// ReadFile loads component binaries. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)

	// World selects the target's world when its interface section defines several.
	World string
}

// Session is one REPL session: the component registry, the links made so
// far and the variable scope. It is not safe for concurrent use.
type Session struct {
	engine   engine.Engine
	merger   engine.Merger
	readFile func(string) ([]byte, error)
	reg      *Registry
	scope    *eval.Scope
	eval     *eval.Evaluator
	world    string
	links    []resolve.Link
	done     bool
}

var _ eval.Env = (*Session)(nil)

// New creates a session with an empty registry and scope.
func New(cfg Config) *Session {
	s := &Session{
		engine:   cfg.Engine,
		merger:   cfg.Merger,
		readFile: cfg.ReadFile,
		world:    cfg.World,
		reg:      NewRegistry(),
		scope:    eval.NewScope(),
	}
	if s.readFile == nil {
		s.readFile = os.ReadFile
	}
	s.eval = eval.New(s.scope, s)
	return s
}

// Scope returns the session's variable scope
func (s *Session) Scope() *eval.Scope { return s.scope }

// Registry returns the component registry
func (s *Session) Registry() *Registry { return s.reg }

// Links returns the links made so far, in order
func (s *Session) Links() []resolve.Link {
	return append([]resolve.Link(nil), s.links...)
}

// Done reports whether .quit or .exit ended the session
func (s *Session) Done() bool { return s.done }

func noTarget() error {
	return errors.InvalidInput(errors.PhaseLoad, "no target component loaded")
}

// LoadTarget registers the component under test. It is not instantiated
// until Resolve finds a provider for every import.
func (s *Session) LoadTarget(ctx context.Context, path, name string) (*Component, error) {
	if t := s.reg.Target(); t != nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("target %q is already loaded", t.Name))
	}
	return s.load(ctx, path, name, RoleTarget)
}

// Load registers a provider or adapter component and instantiates it when
// its own imports resolve. A component whose plan is partial stays
// registered in the Loaded state and the plan error is returned with it.
func (s *Session) Load(ctx context.Context, path, name string, role Role) (*Component, error) {
	if role == RoleTarget {
		return s.LoadTarget(ctx, path, name)
	}
	c, err := s.load(ctx, path, name, role)
	if err != nil {
		return nil, err
	}
	_, err = s.instantiate(ctx, c)
	return c, err
}

func (s *Session) load(ctx context.Context, path, name string, role Role) (*Component, error) {
	binary, err := s.readFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	section, err := s.engine.IntrospectInterface(ctx, binary)
	if err != nil {
		return nil, err
	}
	var opts []descriptor.Option
	if role == RoleTarget && s.world != "" {
		opts = append(opts, descriptor.WithWorld(s.world))
	}
	store, err := descriptor.Parse(section, opts...)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = s.reg.UniqueName(path)
	}
	c := &Component{Name: name, Path: path, Binary: binary, Store: store, Role: role}
	if err := s.reg.Add(c); err != nil {
		return nil, err
	}
	Logger().Info("component loaded",
		zap.String("component", name),
		zap.String("path", path),
		zap.String("role", role.String()),
		zap.Int("imports", len(store.Imports())),
		zap.Int("exports", len(store.Exports())))
	return c, nil
}

// Link makes an explicit link for a target import. imp names a function
// import ("greet", "logger#log") or an imported interface; exp optionally
// renames the provider export. The provider at path is loaded unless a
// component from that path is already registered.
func (s *Session) Link(ctx context.Context, imp, exp, path string) error {
	target := s.reg.Target()
	if target == nil {
		return noTarget()
	}
	isFunc := hasImport(target.Store, imp)
	isIface := !isFunc && importsInterface(target.Store, imp)
	if !isFunc && !isIface {
		return errors.NotFound(errors.PhaseResolve, "import", imp)
	}

	provider := s.reg.ByPath(path)
	var err error
	if provider == nil || provider.Role == RoleTarget {
		provider, err = s.Load(ctx, path, "", RoleProvider)
		if provider == nil {
			return err
		}
	}

	// a new link for the same import replaces the old one
	kept := s.links[:0]
	for _, l := range s.links {
		if l.Import != imp || l.Interface != isIface {
			kept = append(kept, l)
		}
	}
	s.links = append(kept, resolve.Link{
		Provider:  provider.Provider(),
		Import:    imp,
		Export:    exp,
		Interface: isIface,
	})
	Logger().Info("link added",
		zap.String("import", imp),
		zap.String("export", exp),
		zap.String("provider", provider.Name),
		zap.Bool("interface", isIface))
	return err
}

func hasImport(store *descriptor.Store, name string) bool {
	q := types.ParseQualifiedName(name)
	for _, imp := range store.Imports() {
		if imp.Name.Func != q.Func {
			continue
		}
		if q.Interface == "" || types.MatchesInterface(imp.Name.Interface, q.Interface) {
			return true
		}
	}
	return false
}

func importsInterface(store *descriptor.Store, name string) bool {
	for _, imp := range store.Imports() {
		if imp.Name.Interface != "" && types.MatchesInterface(imp.Name.Interface, name) {
			return true
		}
	}
	return false
}

// Resolve retries every component that is not instantiated yet, providers
// first, then resolves and instantiates the target again. An instantiated
// target is replaced by a fresh instance and handles into the old one go
// stale. A partial plan leaves the target as it was and is returned with
// its *errors.UnresolvedImportsError.
func (s *Session) Resolve(ctx context.Context) (*resolve.Plan, error) {
	for _, c := range s.reg.All() {
		if c.Role == RoleTarget || c.State == Instantiated {
			continue
		}
		if _, err := s.instantiate(ctx, c); err != nil {
			Logger().Warn("provider not instantiated",
				zap.String("component", c.Name),
				zap.Error(err))
		}
	}
	target := s.reg.Target()
	if target == nil {
		return nil, noTarget()
	}
	return s.instantiate(ctx, target)
}

// instantiate resolves c's imports and instantiates it on a total plan
func (s *Session) instantiate(ctx context.Context, c *Component) (*resolve.Plan, error) {
	plan := s.plan(c)
	c.Plan = plan
	if !plan.Total() {
		return plan, plan.Err()
	}

	inst, err := s.engine.Instantiate(ctx, c.Binary, s.importTable(c, plan))
	if err != nil {
		if !errors.HasKind(err, errors.KindInstantiation) {
			err = errors.Instantiation(c.Name, err)
		}
		return plan, err
	}
	if c.Instance != nil {
		if err := c.Instance.Close(ctx); err != nil {
			Logger().Warn("close replaced instance",
				zap.String("component", c.Name),
				zap.String("instance", c.Instance.ID()),
				zap.Error(err))
		}
	}
	c.Instance, c.State = inst, Instantiated
	Logger().Info("component instantiated",
		zap.String("component", c.Name),
		zap.String("instance", inst.ID()),
		zap.Int("resolved", len(plan.Entries)))
	return plan, nil
}

// plan resolves c against the instantiated providers. Links apply to the
// target only. A link whose provider never instantiated cannot serve calls,
// so its entries are reported as unresolved.
func (s *Session) plan(c *Component) *resolve.Plan {
	in := resolve.Input{
		Target:     c.Provider(),
		Components: s.reg.Providers(RoleProvider, c),
		Adapters:   s.reg.Providers(RoleAdapter, c),
	}
	if c.Role == RoleTarget {
		in.Links = s.links
	}
	plan := resolve.Resolve(in)

	kept := plan.Entries[:0]
	for _, e := range plan.Entries {
		if p := s.reg.Get(e.Provider); p == nil || p.State != Instantiated {
			plan.Unresolved = append(plan.Unresolved, resolve.Unresolved{
				Import: e.Import,
				Reason: "provider " + e.Provider + " is not instantiated",
			})
			continue
		}
		kept = append(kept, e)
	}
	plan.Entries = kept
	return plan
}

// importTable forwards each planned import to the provider's current
// instance, so a provider instantiated again keeps serving.
func (s *Session) importTable(c *Component, plan *resolve.Plan) engine.ImportTable {
	table := make(engine.ImportTable, len(plan.Entries))
	for _, e := range plan.Entries {
		provider := s.reg.Get(e.Provider)
		imp, exp := e.Import.Name.String(), e.Export.Name.String()
		table[imp] = func(ctx context.Context, args []any) ([]any, error) {
			if provider.Instance == nil {
				return nil, errors.StaleHandle("instance", provider.Name)
			}
			Logger().Debug("provider call",
				zap.String("component", c.Name),
				zap.String("import", imp),
				zap.String("provider", provider.Name),
				zap.String("export", exp))
			return provider.Instance.Invoke(ctx, exp, args)
		}
	}
	return table
}

// Compose merges the adapter binary at path into the target. See
// compose.Composer for which failures leave the target untouched.
func (s *Session) Compose(ctx context.Context, path string) (*compose.Result, error) {
	target := s.reg.Target()
	if target == nil {
		return nil, noTarget()
	}
	if s.merger == nil {
		return nil, errors.Composition("no merger configured", nil)
	}
	adapter, err := s.readFile(path)
	if err != nil {
		return nil, errors.Composition("read adapter "+path, err)
	}
	return compose.New(s.merger, s.engine).Compose(ctx, &composeTarget{s: s, c: target}, adapter)
}

// composeTarget lets the composer replace a registered component
type composeTarget struct {
	s *Session
	c *Component
}

func (t *composeTarget) Name() string   { return t.c.Name }
func (t *composeTarget) Binary() []byte { return t.c.Binary }

// Stage plans and instantiates the composite as a detached component. A
// partial plan is still instantiated once, with trapping stubs, so a
// composite that cannot run is rejected before it replaces anything.
func (t *composeTarget) Stage(ctx context.Context, binary []byte, store *descriptor.Store) (*compose.Staged, error) {
	c := t.c
	cand := &Component{Name: c.Name, Path: c.Path, Binary: binary, Store: store, Role: c.Role, Order: c.Order}
	plan := t.s.plan(cand)

	inst, err := t.s.engine.Instantiate(ctx, binary, t.s.importTable(cand, plan))
	if err != nil {
		return nil, err
	}
	staged := &compose.Staged{Binary: binary, Store: store, Plan: plan, Instance: inst}
	if !plan.Total() {
		if err := inst.Close(ctx); err != nil {
			Logger().Warn("close partial composite",
				zap.String("component", c.Name),
				zap.Error(err))
		}
		staged.Instance = nil
	}
	return staged, nil
}

func (t *composeTarget) Replace(ctx context.Context, staged *compose.Staged) error {
	c := t.c
	old := c.Instance
	c.Binary, c.Store, c.Plan = staged.Binary, staged.Store, staged.Plan
	c.Instance, c.State = staged.Instance, Loaded
	if staged.Instance != nil {
		c.State = Instantiated
	}
	if old != nil {
		if err := old.Close(ctx); err != nil {
			Logger().Warn("close composed-over instance",
				zap.String("component", c.Name),
				zap.Error(err))
		}
	}
	return nil
}

// Functions returns the exports matching name across instantiated
// components, target first.
func (s *Session) Functions(name syntax.Name) []eval.Target {
	var out []eval.Target
	for _, c := range s.reg.Instantiated() {
		if name.Component != "" && name.Component != c.Name {
			continue
		}
		for _, fn := range c.Store.Exports() {
			if fn.Name.Func != name.Func {
				continue
			}
			if name.Interface != "" && !types.MatchesInterface(fn.Name.Interface, name.Interface) {
				continue
			}
			out = append(out, eval.Target{Func: fn, Component: c.Name, Instance: c.Instance.ID()})
		}
	}
	return out
}

// Invoke calls a target on the instance it was resolved against.
func (s *Session) Invoke(ctx context.Context, t eval.Target, args []any) ([]any, error) {
	c := s.reg.Get(t.Component)
	if c == nil || c.Instance == nil || c.Instance.ID() != t.Instance {
		return nil, errors.StaleHandle("instance", t.Instance)
	}
	return c.Instance.Invoke(ctx, t.Func.Name.String(), args)
}

// Live reports whether an instance ID belongs to a registered component
func (s *Session) Live(instance string) bool {
	return s.reg.ByInstance(instance) != nil
}

// ResolveType resolves a type written after "as". Named types are looked
// up in the target first, then in the other components in load order.
func (s *Session) ResolveType(te *syntax.TypeExpr) (types.Type, error) {
	return value.ResolveTypeExpr(te, s.namedType)
}

func (s *Session) namedType(name string) types.Type {
	for _, c := range s.searchOrder() {
		if n := c.Store.Type(name); n != nil {
			return n
		}
	}
	return nil
}

// searchOrder is the target followed by the other components in load order
func (s *Session) searchOrder() []*Component {
	var out []*Component
	if t := s.reg.Target(); t != nil {
		out = append(out, t)
	}
	for _, c := range s.reg.All() {
		if c.Role != RoleTarget {
			out = append(out, c)
		}
	}
	return out
}

// Exec runs one input line, writing its output to w. Errors are returned
// for the caller to print; the session stays usable after any error.
func (s *Session) Exec(ctx context.Context, w io.Writer, line string) error {
	node, err := syntax.Parse(line)
	if err != nil {
		return err
	}
	switch n := node.(type) {
	case nil:
		return nil
	case *syntax.Command:
		return s.command(ctx, w, n)
	}

	res, err := s.eval.Eval(ctx, node)
	if err != nil {
		t := s.reg.Target()
		if t != nil && t.State != Instantiated &&
			(errors.HasKind(err, errors.KindNotFound) || errors.HasKind(err, errors.KindUnboundVariable)) {
			fmt.Fprintf(w, "%s is not instantiated; .imports lists what it still needs\n", t.Name)
		}
		return err
	}
	switch {
	case res.Bound != "":
	case res.Func != nil:
		fmt.Fprintf(w, "%s: %s\n", res.Func, res.Func.Func.Signature())
	case res.Value != nil:
		fmt.Fprintln(w, value.FormatTyped(res.Value))
	}
	return nil
}

// Complete returns completions for a partially typed line: command names
// after a leading dot, otherwise variables and exported function names.
func (s *Session) Complete(line string) []string {
	if strings.HasPrefix(line, ".") {
		var out []string
		for _, b := range builtins {
			if strings.HasPrefix("."+b.name, line) {
				out = append(out, "."+b.name)
			}
		}
		return out
	}

	i := strings.LastIndexAny(line, " (,[{=")
	head, word := line[:i+1], line[i+1:]
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if strings.HasPrefix(name, word) && !seen[name] {
			seen[name] = true
			out = append(out, head+name)
		}
	}
	for _, name := range s.scope.Names() {
		add(name)
	}
	for _, c := range s.reg.Instantiated() {
		for _, fn := range c.Store.Exports() {
			add(fn.Name.Func)
		}
	}
	sort.Strings(out)
	return out
}

// Close closes every instance and then the engine.
func (s *Session) Close(ctx context.Context) error {
	return multierr.Combine(s.reg.Close(ctx), s.engine.Close(ctx))
}
