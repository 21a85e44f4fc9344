package resolve

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

// Kind is the precedence class of a provider
type Kind int

const (
	KindLink Kind = iota
	KindComponent
	KindAdapter
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindComponent:
		return "component"
	case KindAdapter:
		return "adapter"
	default:
		return "unknown"
	}
}

// Provider is a registered component whose exports may satisfy imports
type Provider struct {
	Store *descriptor.Store
	Name  string
}

// Link is an explicit binding made with .link.
//
// A function link names one import ("greet", "greeter#greet") and
// optionally the export serving it. An interface link names an imported
// interface and binds each of its functions to the same-named function of
// the provider's exported interface Export (defaulting to Import).
type Link struct {
	Provider  Provider
	Import    string
	Export    string
	Interface bool
}

// Input is everything a resolution run looks at
type Input struct {
	Target Provider
	// Links in the order they were made
	Links []Link
	// Components are the other instantiated components in load order
	Components []Provider
	// Adapters are registered dynamic adapters in link order
	Adapters []Provider
}

// Entry binds one import to the export that serves it
type Entry struct {
	Import   *types.Function
	Export   *types.Function
	Provider string
	Kind     Kind
}

// Unresolved is an import no provider satisfied
type Unresolved struct {
	Import *types.Function
	Reason string
}

// Plan is the outcome of resolving a component's imports
type Plan struct {
	Component  string
	Entries    []Entry
	Unresolved []Unresolved
	// Mismatches are the SignatureMismatch errors met during the search,
	// including those of providers that were skipped for a later match.
	Mismatches []*errors.Error
}

// Total reports whether every import has a provider
func (p *Plan) Total() bool {
	return len(p.Unresolved) == 0
}

// Lookup returns the entry for an import
func (p *Plan) Lookup(q types.QualifiedName) (Entry, bool) {
	for _, e := range p.Entries {
		if e.Import.Name == q {
			return e, true
		}
	}
	return Entry{}, false
}

// Err returns nil for a total plan, otherwise an
// *errors.UnresolvedImportsError listing exactly the unresolved imports.
func (p *Plan) Err() error {
	if p.Total() {
		return nil
	}
	err := &errors.UnresolvedImportsError{Component: p.Component}
	for _, u := range p.Unresolved {
		err.Imports = append(err.Imports, errors.UnresolvedImport{
			Interface: u.Import.Name.Interface,
			Function:  u.Import.Name.Func,
			Reason:    u.Reason,
		})
	}
	for _, m := range p.Mismatches {
		err.Mismatches = append(err.Mismatches, m)
	}
	return err
}

// Resolve builds a plan for the target's imports. For each import the
// providers are tried in order: explicit links, then other components in
// load order, then adapters. The first structurally equal export wins.
// A matching name with a different shape is recorded as a SignatureMismatch;
// a link that mismatches leaves the import unresolved, other providers let
// the search continue.
func Resolve(in Input) *Plan {
	plan := &Plan{Component: in.Target.Name}
	if in.Target.Store == nil {
		return plan
	}

	for _, imp := range in.Target.Store.Imports() {
		entry, reason, ok := resolveOne(plan, in, imp)
		if ok {
			plan.Entries = append(plan.Entries, entry)
			Logger().Debug("import resolved",
				zap.String("component", plan.Component),
				zap.String("import", imp.Name.String()),
				zap.String("provider", entry.Provider),
				zap.String("kind", entry.Kind.String()))
			continue
		}
		plan.Unresolved = append(plan.Unresolved, Unresolved{Import: imp, Reason: reason})
		Logger().Debug("import unresolved",
			zap.String("component", plan.Component),
			zap.String("import", imp.Name.String()),
			zap.String("reason", reason))
	}
	return plan
}

func resolveOne(plan *Plan, in Input, imp *types.Function) (Entry, string, bool) {
	for _, l := range in.Links {
		if !l.matches(imp) {
			continue
		}
		exp := l.export(imp)
		if exp == nil {
			return Entry{}, "link to " + l.Provider.Name + ": no export " + l.exportName(imp), false
		}
		if !types.SignatureEqual(imp, exp) {
			m := mismatch(imp, exp, l.Provider.Name)
			plan.Mismatches = append(plan.Mismatches, m)
			return Entry{}, "signature mismatch with " + l.Provider.Name, false
		}
		return Entry{Import: imp, Export: exp, Provider: l.Provider.Name, Kind: KindLink}, "", true
	}

	mismatched := ""
	search := func(providers []Provider, kind Kind) (Entry, bool) {
		for _, p := range providers {
			if p.Store == nil || p.Name == in.Target.Name {
				continue
			}
			exp := p.Store.Export(imp.Name)
			if exp == nil {
				continue
			}
			if !types.SignatureEqual(imp, exp) {
				plan.Mismatches = append(plan.Mismatches, mismatch(imp, exp, p.Name))
				if mismatched == "" {
					mismatched = p.Name
				}
				continue
			}
			return Entry{Import: imp, Export: exp, Provider: p.Name, Kind: kind}, true
		}
		return Entry{}, false
	}

	if e, ok := search(in.Components, KindComponent); ok {
		return e, "", true
	}
	if e, ok := search(in.Adapters, KindAdapter); ok {
		return e, "", true
	}
	if mismatched != "" {
		return Entry{}, "signature mismatch with " + mismatched, false
	}
	return Entry{}, "no provider", false
}

func mismatch(imp, exp *types.Function, provider string) *errors.Error {
	err := errors.SignatureMismatch(imp.Name.String(), imp.Signature(), exp.Signature())
	err.Path = []string{provider, exp.Name.String()}
	return err
}

func (l Link) matches(imp *types.Function) bool {
	if l.Interface {
		return imp.Name.Interface != "" && types.MatchesInterface(imp.Name.Interface, l.Import)
	}
	q := types.ParseQualifiedName(l.Import)
	if q.Func != imp.Name.Func {
		return false
	}
	return q.Interface == "" || types.MatchesInterface(imp.Name.Interface, q.Interface)
}

func (l Link) exportName(imp *types.Function) string {
	if l.Interface {
		iface := l.Export
		if iface == "" {
			iface = l.Import
		}
		return iface + "#" + imp.Name.Func
	}
	if l.Export != "" {
		return l.Export
	}
	return imp.Name.String()
}

// export finds the provider export a link points at. An unqualified export
// name prefers the import's own interface, then any export with that name.
func (l Link) export(imp *types.Function) *types.Function {
	if l.Provider.Store == nil {
		return nil
	}
	want := types.ParseQualifiedName(l.exportName(imp))
	if want.Interface == "" {
		if exp := l.Provider.Store.Export(types.QualifiedName{Interface: imp.Name.Interface, Func: want.Func}); exp != nil {
			return exp
		}
	}
	for _, exp := range l.Provider.Store.Exports() {
		if exp.Name.Func != want.Func {
			continue
		}
		if want.Interface == "" || types.MatchesInterface(exp.Name.Interface, want.Interface) {
			return exp
		}
	}
	return nil
}
