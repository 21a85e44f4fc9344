package merge

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
	"github.com/wippyai/wasm-repl/wasmbin"
)

// Merger builds composite binaries. It implements engine.Merger.
type Merger struct{}

var _ engine.Merger = Merger{}

// New returns a Merger.
func New() Merger { return Merger{} }

// Merge checks that the adapter can serve the target and writes the
// composite. The composite's interface imports what neither half satisfies
// and exports the union of both halves, target first.
func (Merger) Merge(_ context.Context, target, adapter []byte) ([]byte, error) {
	tg, err := readInterface(target, "target")
	if err != nil {
		return nil, err
	}
	ad, err := readInterface(adapter, "adapter")
	if err != nil {
		return nil, err
	}

	spec, err := World(tg, ad)
	if err != nil {
		return nil, err
	}
	wit := descriptor.RenderWorld(spec)

	// the rendered world must parse back before it is written out
	if _, err := descriptor.Parse([]byte(wit)); err != nil {
		return nil, errors.Merge("composite interface does not resolve: %v", err)
	}

	b := wasmbin.NewModuleBuilder()
	b.CustomSection(engine.SectionWIT, []byte(wit))
	b.CustomSection(engine.SectionComposeTarget, target)
	b.CustomSection(engine.SectionComposeAdapter, adapter)

	Logger().Debug("merged composite",
		zap.String("world", spec.Name),
		zap.Int("imports", len(spec.ImportFuncs)+len(spec.ImportInterfaces)),
		zap.Int("exports", len(spec.ExportFuncs)+len(spec.ExportInterfaces)))
	return b.Bytes(), nil
}

func readInterface(binary []byte, role string) (*descriptor.Store, error) {
	data, ok, err := wasmbin.CustomSection(binary, engine.SectionWIT)
	if err != nil {
		return nil, errors.Merge("%s is not a component binary: %v", role, err)
	}
	if !ok {
		return nil, errors.Merge("%s has no %s section", role, engine.SectionWIT)
	}
	s, err := descriptor.Parse(data)
	if err != nil {
		return nil, errors.Merge("%s interface: %v", role, err)
	}
	return s, nil
}

// World computes the composite world of target and adapter.
//
// A root import of the target is satisfied by an adapter export of the same
// name. An imported interface is satisfied only as a whole: if the adapter
// exports it, every function the target imports from it must be exported
// with an equal signature. Any shape difference is a merge error.
func World(target, adapter *descriptor.Store) (descriptor.WorldSpec, error) {
	tspec, aspec := target.Spec(), adapter.Spec()
	spec := descriptor.WorldSpec{Name: tspec.Name}
	var err error

	for _, imp := range target.Imports() {
		exp := adapter.Export(imp.Name)
		if exp == nil {
			continue
		}
		if !types.SignatureEqual(imp, exp) {
			return spec, errors.Merge("adapter export %s is %s, target imports %s",
				imp.Name, exp.Signature(), imp.Signature())
		}
	}

	adapterIfaces := stringSet(aspec.ExportInterfaces)
	satisfied := make(map[string]bool)
	for _, id := range tspec.ImportInterfaces {
		if !adapterIfaces[id] {
			spec.ImportInterfaces = appendUnique(spec.ImportInterfaces, id)
			continue
		}
		for _, fn := range target.Interface(id).Funcs {
			if adapter.Export(fn.Name) == nil {
				return spec, errors.Merge("adapter exports %s without %s", id, fn.Name.Func)
			}
		}
		satisfied[id] = true
	}
	for _, fn := range tspec.ImportFuncs {
		if adapter.Export(fn.Name) == nil {
			spec.ImportFuncs = append(spec.ImportFuncs, fn)
		}
	}

	// adapter imports join the residual set
	for _, id := range aspec.ImportInterfaces {
		if target.Interface(id) != nil && !sameFuncs(target.Interface(id), adapter.Interface(id)) {
			return spec, errors.Merge("target and adapter disagree on interface %s", id)
		}
		spec.ImportInterfaces = appendUnique(spec.ImportInterfaces, id)
	}
	for _, fn := range aspec.ImportFuncs {
		if prev := findFunc(spec.ImportFuncs, fn.Name); prev != nil {
			if !types.SignatureEqual(prev, fn) {
				return spec, errors.Merge("target and adapter import %s with different signatures", fn.Name)
			}
			continue
		}
		spec.ImportFuncs = append(spec.ImportFuncs, fn)
	}

	spec.ExportInterfaces = append(spec.ExportInterfaces, tspec.ExportInterfaces...)
	for _, id := range aspec.ExportInterfaces {
		spec.ExportInterfaces = appendUnique(spec.ExportInterfaces, id)
	}
	spec.ExportFuncs = append(spec.ExportFuncs, tspec.ExportFuncs...)
	for _, fn := range aspec.ExportFuncs {
		if findFunc(spec.ExportFuncs, fn.Name) == nil {
			spec.ExportFuncs = append(spec.ExportFuncs, fn)
		}
	}

	spec.Interfaces = mergeInterfaces(tspec.Interfaces, aspec.Interfaces)
	if spec.Types, err = mergeTypes(tspec.Types, aspec.Types); err != nil {
		return spec, err
	}
	spec.Uses = append(spec.Uses, tspec.Uses...)
	for _, u := range aspec.Uses {
		if !hasUse(spec.Uses, u) {
			spec.Uses = append(spec.Uses, u)
		}
	}

	Logger().Debug("composite world",
		zap.String("world", spec.Name),
		zap.Strings("satisfied", sortedKeys(satisfied)))
	return spec, nil
}

func sameFuncs(a, b *descriptor.Interface) bool {
	for _, fa := range a.Funcs {
		if fb := b.Func(fa.Name.Func); fb != nil && !types.SignatureEqual(fa, fb) {
			return false
		}
	}
	return true
}

func mergeInterfaces(a, b []*descriptor.Interface) []*descriptor.Interface {
	out := append([]*descriptor.Interface{}, a...)
	seen := make(map[string]bool, len(a))
	for _, iface := range a {
		seen[iface.ID] = true
	}
	for _, iface := range b {
		if !seen[iface.ID] {
			seen[iface.ID] = true
			out = append(out, iface)
		}
	}
	return out
}

// mergeTypes joins world-level types; a name both halves define must
// describe the same shape
func mergeTypes(a, b []*types.Named) ([]*types.Named, error) {
	out := append([]*types.Named{}, a...)
	seen := make(map[string]*types.Named, len(a))
	for _, n := range a {
		seen[n.Name] = n
	}
	for _, n := range b {
		prev, ok := seen[n.Name]
		if !ok {
			seen[n.Name] = n
			out = append(out, n)
			continue
		}
		if !types.Equal(prev, n) {
			return nil, errors.Merge("target and adapter define type %s differently", n.Name)
		}
	}
	return out, nil
}

func hasUse(uses []descriptor.Use, u descriptor.Use) bool {
	for _, x := range uses {
		if x == u {
			return true
		}
	}
	return false
}

func findFunc(fns []*types.Function, q types.QualifiedName) *types.Function {
	for _, f := range fns {
		if f.Name == q {
			return f
		}
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func stringSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
