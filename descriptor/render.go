package descriptor

import (
	"sort"
	"strings"

	"github.com/wippyai/wasm-repl/types"
)

// WorldSpec is everything needed to write a world back out as an
// interface section. Interfaces lists the definitions to emit; the import
// and export lists refer to them by ID.
type WorldSpec struct {
	Name             string
	Interfaces       []*Interface
	Types            []*types.Named
	Uses             []Use
	ImportInterfaces []string
	ExportInterfaces []string
	ImportFuncs      []*types.Function
	ExportFuncs      []*types.Function
}

// Spec returns the selected world of s as a WorldSpec. Functions that
// belong to a whole imported or exported interface are not repeated in the
// function lists.
func (s *Store) Spec() WorldSpec {
	spec := WorldSpec{
		Name:             s.worldName,
		Interfaces:       s.interfaces,
		Types:            s.worldTypes,
		Uses:             s.worldUses,
		ImportInterfaces: s.importIfaces,
		ExportInterfaces: s.exportIfaces,
	}
	for _, f := range s.imports {
		if f.Name.Interface == "" {
			spec.ImportFuncs = append(spec.ImportFuncs, f)
		}
	}
	for _, f := range s.exports {
		if f.Name.Interface == "" {
			spec.ExportFuncs = append(spec.ExportFuncs, f)
		}
	}
	return spec
}

// WIT renders the selected world, with every interface it may reference,
// as an interface section that parses back to an equivalent Store.
func (s *Store) WIT() string {
	return RenderWorld(s.Spec())
}

// RenderWorld writes spec as interface section text.
func RenderWorld(spec WorldSpec) string {
	var b strings.Builder

	byPkg := make(map[string][]*Interface)
	var pkgs []string
	for _, iface := range spec.Interfaces {
		if iface.Package == "" {
			writeInterface(&b, iface, "")
			b.WriteByte('\n')
			continue
		}
		if _, ok := byPkg[iface.Package]; !ok {
			pkgs = append(pkgs, iface.Package)
		}
		byPkg[iface.Package] = append(byPkg[iface.Package], iface)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		b.WriteString("package ")
		b.WriteString(pkg)
		b.WriteString(" {\n")
		for _, iface := range byPkg[pkg] {
			writeInterface(&b, iface, "  ")
		}
		b.WriteString("}\n\n")
	}

	b.WriteString("world ")
	b.WriteString(spec.Name)
	b.WriteString(" {\n")
	writeUses(&b, spec.Uses, "  ")
	for _, n := range spec.Types {
		writeTypeDef(&b, n, "  ")
	}
	for _, id := range spec.ImportInterfaces {
		b.WriteString("  import " + id + ";\n")
	}
	for _, f := range spec.ImportFuncs {
		b.WriteString("  import " + f.Name.Func + ": " + f.Signature() + ";\n")
	}
	for _, id := range spec.ExportInterfaces {
		b.WriteString("  export " + id + ";\n")
	}
	for _, f := range spec.ExportFuncs {
		b.WriteString("  export " + f.Name.Func + ": " + f.Signature() + ";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func writeInterface(b *strings.Builder, iface *Interface, indent string) {
	inner := indent + "  "
	b.WriteString(indent + "interface " + iface.Name + " {\n")
	writeUses(b, iface.Uses, inner)
	for _, n := range iface.Types {
		writeTypeDef(b, n, inner)
	}
	for _, f := range iface.Funcs {
		b.WriteString(inner + f.Name.Func + ": " + f.Signature() + ";\n")
	}
	b.WriteString(indent + "}\n")
}

func writeUses(b *strings.Builder, uses []Use, indent string) {
	for _, u := range uses {
		b.WriteString(indent + "use " + u.From + ".{" + u.Name)
		if u.As != "" && u.As != u.Name {
			b.WriteString(" as " + u.As)
		}
		b.WriteString("};\n")
	}
}

func writeTypeDef(b *strings.Builder, n *types.Named, indent string) {
	switch def := n.Def.(type) {
	case *types.Resource:
		b.WriteString(indent + "resource " + n.Name + ";\n")
	case *types.Record, *types.Variant, *types.Enum, *types.Flags:
		b.WriteString(indent + types.Describe(n) + "\n")
	default:
		b.WriteString(indent + "type " + n.Name + " = " + types.Render(def) + ";\n")
	}
}
