package session

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/syntax"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/value"
)

type builtin struct {
	run     func(s *Session, ctx context.Context, w io.Writer, args []string) error
	name    string
	usage   string
	summary string
	detail  string
	aliases []string
	min     int
	max     int
}

var (
	builtins     []*builtin
	builtinIndex map[string]*builtin
)

func init() {
	builtins = []*builtin{
		{
			name: "imports", usage: ".imports [component]", max: 1,
			summary: "list imports and the provider serving each",
			run:     (*Session).cmdImports,
		},
		{
			name: "exports", usage: ".exports [component]", max: 1,
			summary: "list exported functions",
			run:     (*Session).cmdExports,
		},
		{
			name: "type", usage: ".type <name>", min: 1, max: 1,
			summary: "show a type definition or a function signature",
			detail:  "Names may be qualified by interface: .type types.point",
			run:     (*Session).cmdType,
		},
		{
			name: "link", usage: ".link <import> [export] <path>", min: 2, max: 3,
			summary: "serve a target import from another component",
			detail: "The import is a function (greet, logger#log) or an imported interface.\n" +
				"An interface link binds every function to the provider's interface of the\n" +
				"same name, or to the interface given as export. Links win over every\n" +
				"other provider; a link whose export has the wrong signature fails.",
			run: (*Session).cmdLink,
		},
		{
			name: "compose", usage: ".compose <adapter-path>", min: 1, max: 1,
			summary: "merge an adapter into the target and resolve again",
			detail: "On success the target is replaced by the composite and variables holding\n" +
				"handles into the old instance go stale. A failed merge leaves the target as it was.",
			run: (*Session).cmdCompose,
		},
		{
			name: "load", usage: ".load <path> [name]", min: 1, max: 2,
			summary: "load a provider component and instantiate it",
			run:     (*Session).cmdLoad,
		},
		{
			name: "adapter", usage: ".adapter <path>", min: 1, max: 1,
			summary: "register an adapter, searched after every other provider",
			run:     (*Session).cmdAdapter,
		},
		{
			name: "resolve", usage: ".resolve",
			summary: "resolve imports again and instantiate what is ready",
			run:     (*Session).cmdResolve,
		},
		{
			name: "components", usage: ".components",
			summary: "list loaded components",
			run:     (*Session).cmdComponents,
		},
		{
			name: "vars", usage: ".vars",
			summary: "list variables",
			run:     (*Session).cmdVars,
		},
		{
			name: "help", aliases: []string{"?"}, usage: ".help [command]", max: 1,
			summary: "show commands, or help for one",
			run:     (*Session).cmdHelp,
		},
		{
			name: "quit", aliases: []string{"exit"}, usage: ".quit",
			summary: "end the session",
			run:     (*Session).cmdQuit,
		},
	}

	builtinIndex = make(map[string]*builtin)
	for _, b := range builtins {
		builtinIndex[b.name] = b
		for _, a := range b.aliases {
			builtinIndex[a] = b
		}
	}
}

func (s *Session) command(ctx context.Context, w io.Writer, cmd *syntax.Command) error {
	b := builtinIndex[cmd.Name]
	if b == nil {
		return errors.NotFound(errors.PhaseParse, "command", "."+cmd.Name)
	}
	if len(cmd.Args) < b.min || len(cmd.Args) > b.max {
		return errors.InvalidInput(errors.PhaseParse, "usage: "+b.usage)
	}
	return b.run(s, ctx, w, cmd.Args)
}

// component returns the named component, or the target without a name
func (s *Session) component(args []string) (*Component, error) {
	if len(args) > 0 {
		c := s.reg.Get(args[0])
		if c == nil {
			return nil, errors.NotFound(errors.PhaseLoad, "component", args[0])
		}
		return c, nil
	}
	if t := s.reg.Target(); t != nil {
		return t, nil
	}
	return nil, noTarget()
}

func (s *Session) cmdImports(_ context.Context, w io.Writer, args []string) error {
	c, err := s.component(args)
	if err != nil {
		return err
	}
	imports := c.Store.Imports()
	if len(imports) == 0 {
		fmt.Fprintf(w, "%s has no imports\n", c.Name)
		return nil
	}

	plan := c.Plan
	if plan == nil || c.State != Instantiated {
		plan = s.plan(c)
	}
	reasons := make(map[types.QualifiedName]string, len(plan.Unresolved))
	for _, u := range plan.Unresolved {
		reasons[u.Import.Name] = u.Reason
	}
	for _, imp := range imports {
		if e, ok := plan.Lookup(imp.Name); ok {
			fmt.Fprintf(w, "  %s  <- %s::%s (%s)\n", imp, e.Provider, e.Export.Name, e.Kind)
			continue
		}
		fmt.Fprintf(w, "  %s  (unresolved: %s)\n", imp, reasons[imp.Name])
	}
	for _, m := range plan.Mismatches {
		fmt.Fprintf(w, "  ! %s\n", m)
	}
	return nil
}

func (s *Session) cmdExports(_ context.Context, w io.Writer, args []string) error {
	c, err := s.component(args)
	if err != nil {
		return err
	}
	exports := c.Store.Exports()
	resources := c.Store.ExportedResources()
	if len(exports) == 0 && len(resources) == 0 {
		fmt.Fprintf(w, "%s has no exports\n", c.Name)
		return nil
	}
	for _, fn := range exports {
		fmt.Fprintf(w, "  %s\n", fn)
	}
	for _, n := range resources {
		r := n.Def.(*types.Resource)
		if len(r.Methods) == 0 {
			fmt.Fprintf(w, "  resource %s\n", n.Name)
			continue
		}
		fmt.Fprintf(w, "  resource %s (not callable: %s)\n", n.Name, strings.Join(r.Methods, ", "))
	}
	return nil
}

func (s *Session) cmdType(_ context.Context, w io.Writer, args []string) error {
	var first error
	for _, c := range s.searchOrder() {
		desc, err := c.Store.Describe(args[0])
		if err == nil {
			fmt.Fprintln(w, desc)
			return nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return noTarget()
	}
	return first
}

func (s *Session) cmdLink(ctx context.Context, w io.Writer, args []string) error {
	imp, path := args[0], args[len(args)-1]
	exp := ""
	if len(args) == 3 {
		exp = args[1]
	}
	if err := s.Link(ctx, imp, exp, path); err != nil {
		return err
	}
	if exp != "" {
		fmt.Fprintf(w, "linked %s to %s from %s\n", imp, exp, path)
	} else {
		fmt.Fprintf(w, "linked %s to %s\n", imp, path)
	}
	return s.afterChange(ctx, w)
}

func (s *Session) cmdCompose(ctx context.Context, w io.Writer, args []string) error {
	res, err := s.Compose(ctx, args[0])
	if res != nil {
		fmt.Fprintf(w, "%s replaced by composite (%d imports, %d exports)\n",
			s.reg.Target().Name, len(res.Store.Imports()), len(res.Store.Exports()))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s instantiated\n", s.reg.Target().Name)
	return nil
}

func (s *Session) cmdLoad(ctx context.Context, w io.Writer, args []string) error {
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	return s.loadProvider(ctx, w, args[0], name, RoleProvider)
}

func (s *Session) cmdAdapter(ctx context.Context, w io.Writer, args []string) error {
	return s.loadProvider(ctx, w, args[0], "", RoleAdapter)
}

func (s *Session) loadProvider(ctx context.Context, w io.Writer, path, name string, role Role) error {
	c, err := s.Load(ctx, path, name, role)
	if c != nil {
		fmt.Fprintf(w, "loaded %s as %s (%s)\n", c.Name, role, c.State)
	}
	if err != nil {
		return err
	}
	return s.afterChange(ctx, w)
}

// afterChange instantiates a waiting target once a new provider is in place
func (s *Session) afterChange(ctx context.Context, w io.Writer) error {
	t := s.reg.Target()
	if t == nil {
		return nil
	}
	if t.State == Instantiated {
		fmt.Fprintf(w, "%s is already instantiated; .resolve rebuilds it with the new providers\n", t.Name)
		return nil
	}
	return s.report(ctx, w)
}

func (s *Session) report(ctx context.Context, w io.Writer) error {
	plan, err := s.Resolve(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s instantiated, %d import(s) resolved\n", plan.Component, len(plan.Entries))
	return nil
}

func (s *Session) cmdResolve(ctx context.Context, w io.Writer, _ []string) error {
	return s.report(ctx, w)
}

func (s *Session) cmdComponents(_ context.Context, w io.Writer, _ []string) error {
	comps := s.reg.All()
	if len(comps) == 0 {
		fmt.Fprintln(w, "no components loaded")
		return nil
	}
	for _, c := range comps {
		fmt.Fprintf(w, "  %-16s %-8s %-12s %s\n", c.Name, c.Role, c.State, c.Path)
	}
	return nil
}

func (s *Session) cmdVars(_ context.Context, w io.Writer, _ []string) error {
	names := s.scope.Names()
	if len(names) == 0 {
		fmt.Fprintln(w, "no variables")
		return nil
	}
	for _, name := range names {
		b, _ := s.scope.Get(name)
		fmt.Fprintf(w, "  %s = %s\n", name, value.FormatTyped(b.Value))
	}
	return nil
}

func (s *Session) cmdHelp(_ context.Context, w io.Writer, args []string) error {
	if len(args) == 1 {
		b := builtinIndex[strings.TrimPrefix(args[0], ".")]
		if b == nil {
			return errors.NotFound(errors.PhaseParse, "command", args[0])
		}
		fmt.Fprintf(w, "%s\n  %s\n", b.usage, b.summary)
		if b.detail != "" {
			fmt.Fprintf(w, "\n%s\n", b.detail)
		}
		return nil
	}

	for _, b := range builtins {
		fmt.Fprintf(w, "  %-32s %s\n", b.usage, b.summary)
	}
	fmt.Fprint(w, `
Expressions:
  uppercase("hi")              call an export
  x = add(1, 2)                bind the result
  comp::iface#func(x)          qualify by component or interface
  {x: 1, y: 2} as point        give a literal a type
`)
	return nil
}

func (s *Session) cmdQuit(context.Context, io.Writer, []string) error {
	s.done = true
	return nil
}
