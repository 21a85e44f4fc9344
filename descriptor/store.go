package descriptor

import (
	"sort"
	"strings"

	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

// Use records a type imported into an interface or world scope.
type Use struct {
	// From is the ID of the interface the type comes from
	From string
	Name string
	// As is the local name; equal to Name when not renamed
	As string
}

// Interface is a resolved interface definition.
type Interface struct {
	ID      string
	Name    string
	Package string
	// Types holds the types defined by this interface, in declaration order
	Types []*types.Named
	Funcs []*types.Function
	Uses  []Use

	scope map[string]*types.Named
}

// Type returns the named type visible in the interface, including used types.
func (i *Interface) Type(name string) *types.Named {
	return i.scope[name]
}

// Func returns the interface function with the given name.
func (i *Interface) Func(name string) *types.Function {
	for _, f := range i.Funcs {
		if f.Name.Func == name {
			return f
		}
	}
	return nil
}

// Option configures Parse.
type Option func(*options)

type options struct {
	world string
}

// WithWorld selects the world to expose when the section defines several.
func WithWorld(name string) Option {
	return func(o *options) { o.world = name }
}

// Store is the resolved view of one component's interface section.
// All named references are resolved before a Store is returned.
type Store struct {
	source     string
	worldName  string
	interfaces []*Interface
	byID       map[string]*Interface

	worldTypes []*types.Named
	worldUses  []Use
	worldScope map[string]*types.Named

	imports      []*types.Function
	exports      []*types.Function
	importIdx    map[string]*types.Function
	exportIdx    map[string]*types.Function
	importIfaces []string
	exportIfaces []string
}

// Parse reads an interface section and resolves it into a Store.
func Parse(src []byte, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	doc, err := parseDocument(string(src))
	if err != nil {
		return nil, err
	}

	var world *worldDecl
	for _, w := range doc.worlds {
		if o.world == "" || w.name == o.world {
			world = w
			break
		}
	}
	if world == nil {
		if o.world != "" {
			return nil, errors.TypeResolution([]string{o.world}, "world %q is not defined", o.world)
		}
		return nil, errors.TypeResolution(nil, "interface section defines no world")
	}

	r := &resolver{
		store: &Store{
			source:     string(src),
			worldName:  world.name,
			byID:       make(map[string]*Interface),
			worldScope: make(map[string]*types.Named),
			importIdx:  make(map[string]*types.Function),
			exportIdx:  make(map[string]*types.Function),
		},
		pending: make(map[*types.Named]*pendingType),
	}
	if err := r.run(doc, world); err != nil {
		return nil, err
	}
	return r.store, nil
}

// MustParse is Parse for sections known to be valid; it panics on error.
func MustParse(src string, opts ...Option) *Store {
	s, err := Parse([]byte(src), opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Source returns the interface section text the store was parsed from.
func (s *Store) Source() string { return s.source }

// WorldName returns the name of the selected world.
func (s *Store) WorldName() string { return s.worldName }

// Interfaces returns every interface defined in the section.
func (s *Store) Interfaces() []*Interface { return s.interfaces }

// Interface returns the interface with the given ID or short name.
func (s *Store) Interface(id string) *Interface {
	if i := s.byID[id]; i != nil {
		return i
	}
	var found *Interface
	for _, i := range s.interfaces {
		if types.MatchesInterface(i.ID, id) {
			if found != nil {
				return nil
			}
			found = i
		}
	}
	return found
}

// ImportedInterfaces lists IDs of interfaces the world imports as a whole.
func (s *Store) ImportedInterfaces() []string { return s.importIfaces }

// ExportedInterfaces lists IDs of interfaces the world exports as a whole.
func (s *Store) ExportedInterfaces() []string { return s.exportIfaces }

// Imports returns imported functions in declaration order.
func (s *Store) Imports() []*types.Function { return s.imports }

// Exports returns exported functions in declaration order.
func (s *Store) Exports() []*types.Function { return s.exports }

// Import returns the imported function with the given qualified name.
// ExportedResources returns the resources defined by exported interfaces,
// in declaration order.
func (s *Store) ExportedResources() []*types.Named {
	var out []*types.Named
	for _, id := range s.exportIfaces {
		iface := s.Interface(id)
		if iface == nil {
			continue
		}
		for _, n := range iface.Types {
			if _, ok := n.Def.(*types.Resource); ok {
				out = append(out, n)
			}
		}
	}
	return out
}

func (s *Store) Import(q types.QualifiedName) *types.Function {
	return s.importIdx[q.String()]
}

// Export returns the exported function with the given qualified name.
func (s *Store) Export(q types.QualifiedName) *types.Function {
	return s.exportIdx[q.String()]
}

// WorldTypes returns types declared at world level, in declaration order.
func (s *Store) WorldTypes() []*types.Named { return s.worldTypes }

// Type looks up a named type. "iface.name" selects an interface by ID or
// short name; a plain name is searched in the world scope first, then in
// interfaces in definition order.
func (s *Store) Type(name string) *types.Named {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		if iface := s.Interface(name[:i]); iface != nil {
			return iface.scope[name[i+1:]]
		}
	}
	if n := s.worldScope[name]; n != nil {
		return n
	}
	for _, iface := range s.interfaces {
		if n := iface.scope[name]; n != nil {
			return n
		}
	}
	return nil
}

// TypeNames lists every named type reachable through Type, sorted.
func (s *Store) TypeNames() []string {
	seen := make(map[string]bool)
	for name := range s.worldScope {
		seen[name] = true
	}
	for _, iface := range s.interfaces {
		for _, n := range iface.Types {
			seen[n.Name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Describe renders a type definition or a function signature for the given
// name. Functions are searched among exports before imports.
func (s *Store) Describe(name string) (string, error) {
	if n := s.Type(name); n != nil {
		return types.Describe(n), nil
	}
	q := types.ParseQualifiedName(name)
	for _, list := range [][]*types.Function{s.exports, s.imports} {
		for _, f := range list {
			if f.Name.Func != q.Func {
				continue
			}
			if q.Interface == "" || types.MatchesInterface(f.Name.Interface, q.Interface) {
				return f.String(), nil
			}
		}
	}
	return "", errors.NotFound(errors.PhaseResolve, "type or function", name)
}

// pendingType is a type declaration whose definition is built on demand.
type pendingType struct {
	decl   *typeDecl
	scope  map[string]*types.Named
	owner  string
	active bool
}

type pendingUse struct {
	scope map[string]*types.Named
	owner string
	path  string
	pkg   string
	name  useName
	line  int
	done  bool
	out   *[]Use
}

type resolver struct {
	store   *Store
	pending map[*types.Named]*pendingType
	order   []*types.Named
}

func interfaceID(pkg, name string) string {
	if pkg == "" {
		return name
	}
	ns, version, _ := strings.Cut(pkg, "@")
	id := ns + "/" + name
	if version != "" {
		id += "@" + version
	}
	return id
}

func (r *resolver) run(doc *document, world *worldDecl) error {
	s := r.store

	decls := make(map[*Interface]*ifaceDecl)
	addIface := func(d *ifaceDecl) error {
		id := interfaceID(d.pkg, d.name)
		if s.byID[id] != nil {
			return errors.TypeResolution([]string{id}, "line %d: interface %s defined twice", d.line, id)
		}
		iface := &Interface{ID: id, Name: d.name, Package: d.pkg, scope: make(map[string]*types.Named)}
		s.byID[id] = iface
		s.interfaces = append(s.interfaces, iface)
		decls[iface] = d
		return nil
	}
	for _, d := range doc.interfaces {
		if err := addIface(d); err != nil {
			return err
		}
	}
	for _, ext := range world.externs {
		if ext.iface != nil {
			if err := addIface(ext.iface); err != nil {
				return err
			}
		}
	}

	// declare every type name so references can close over later definitions
	for _, iface := range s.interfaces {
		for _, td := range decls[iface].types {
			n, err := r.declare(iface.scope, iface.ID, td)
			if err != nil {
				return err
			}
			iface.Types = append(iface.Types, n)
		}
	}
	for _, td := range world.types {
		n, err := r.declare(s.worldScope, "", td)
		if err != nil {
			return err
		}
		s.worldTypes = append(s.worldTypes, n)
	}

	var uses []*pendingUse
	for _, iface := range s.interfaces {
		for _, u := range decls[iface].uses {
			for _, name := range u.names {
				uses = append(uses, &pendingUse{scope: iface.scope, owner: iface.ID, path: u.path, pkg: iface.Package, name: name, line: u.line, out: &iface.Uses})
			}
		}
	}
	for _, u := range world.uses {
		for _, name := range u.names {
			uses = append(uses, &pendingUse{scope: s.worldScope, path: u.path, pkg: world.pkg, name: name, line: u.line, out: &s.worldUses})
		}
	}
	if err := r.resolveUses(uses); err != nil {
		return err
	}

	for _, n := range r.order {
		if err := r.define(n); err != nil {
			return err
		}
	}

	for _, iface := range s.interfaces {
		seen := make(map[string]bool)
		for _, fd := range decls[iface].funcs {
			if seen[fd.name] {
				return errors.TypeResolution([]string{iface.ID, fd.name}, "line %d: function %s defined twice", fd.line, fd.name)
			}
			seen[fd.name] = true
			f, err := r.function(fd, iface.scope, iface.ID)
			if err != nil {
				return err
			}
			iface.Funcs = append(iface.Funcs, f)
		}
	}

	for _, ext := range world.externs {
		if err := r.extern(ext, world); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) declare(scope map[string]*types.Named, owner string, td *typeDecl) (*types.Named, error) {
	if scope[td.name] != nil {
		return nil, errors.TypeResolution(path(owner, td.name), "line %d: type %s defined twice", td.line, td.name)
	}
	n := &types.Named{Name: td.name, Owner: owner}
	scope[td.name] = n
	if td.kind == "resource" {
		n.Def = &types.Resource{Name: td.name, Methods: td.names}
		return n, nil
	}
	r.pending[n] = &pendingType{decl: td, scope: scope, owner: owner}
	r.order = append(r.order, n)
	return n, nil
}

func path(owner, name string) []string {
	if owner == "" {
		return []string{name}
	}
	return []string{owner, name}
}

// findInterface matches a use or import path: exact ID first, then a name
// in the referring package, then a unique name anywhere.
func (r *resolver) findInterface(ref, pkg string) *Interface {
	if iface := r.store.byID[ref]; iface != nil {
		return iface
	}
	if strings.ContainsAny(ref, ":/") {
		return nil
	}
	if iface := r.store.byID[interfaceID(pkg, ref)]; iface != nil {
		return iface
	}
	var found *Interface
	for _, iface := range r.store.interfaces {
		if iface.Name == ref {
			if found != nil {
				return nil
			}
			found = iface
		}
	}
	return found
}

func (r *resolver) resolveUses(uses []*pendingUse) error {
	for {
		progress := false
		for _, u := range uses {
			if u.done {
				continue
			}
			from := r.findInterface(u.path, u.pkg)
			if from == nil {
				return errors.TypeResolution(path(u.owner, u.name.as), "line %d: use of unknown interface %s", u.line, u.path)
			}
			src := from.scope[u.name.name]
			if src == nil {
				continue
			}
			if u.scope[u.name.as] != nil {
				return errors.TypeResolution(path(u.owner, u.name.as), "line %d: type %s defined twice", u.line, u.name.as)
			}
			if u.name.as == src.Name {
				u.scope[u.name.as] = src
			} else {
				u.scope[u.name.as] = &types.Named{Name: u.name.as, Owner: u.owner, Def: src}
			}
			*u.out = append(*u.out, Use{From: from.ID, Name: u.name.name, As: u.name.as})
			u.done = true
			progress = true
		}
		if !progress {
			break
		}
	}
	for _, u := range uses {
		if !u.done {
			return errors.TypeResolution(path(u.owner, u.name.as), "line %d: %s does not define type %s", u.line, u.path, u.name.name)
		}
	}
	return nil
}

// define builds the definition behind n. Only aliases recurse into define,
// so reaching an active entry means an alias cycle.
func (r *resolver) define(n *types.Named) error {
	p := r.pending[n]
	if p == nil {
		return nil
	}
	if p.active {
		return errors.TypeResolution(path(p.owner, n.Name), "line %d: type alias cycle through %s", p.decl.line, n.Name)
	}
	p.active = true
	defer func() { p.active = false }()

	td := p.decl
	var def types.Type
	switch td.kind {
	case "type":
		t, err := r.convert(td.alias, p.scope, p.owner)
		if err != nil {
			return err
		}
		def = t
	case "record":
		rec := &types.Record{}
		seen := make(map[string]bool)
		for _, f := range td.fields {
			if seen[f.name] {
				return errors.TypeResolution(path(p.owner, n.Name), "line %d: field %s defined twice", td.line, f.name)
			}
			seen[f.name] = true
			t, err := r.convert(f.typ, p.scope, p.owner)
			if err != nil {
				return err
			}
			rec.Fields = append(rec.Fields, types.Field{Name: f.name, Type: t})
		}
		def = rec
	case "variant":
		v := &types.Variant{}
		for _, c := range td.fields {
			if v.CaseIndex(c.name) >= 0 {
				return errors.TypeResolution(path(p.owner, n.Name), "line %d: case %s defined twice", td.line, c.name)
			}
			var payload types.Type
			if c.typ != nil {
				t, err := r.convert(c.typ, p.scope, p.owner)
				if err != nil {
					return err
				}
				payload = t
			}
			v.Cases = append(v.Cases, types.Case{Name: c.name, Payload: payload})
		}
		def = v
	case "enum":
		if err := checkUnique(td, p.owner); err != nil {
			return err
		}
		def = &types.Enum{Cases: td.names}
	case "flags":
		if err := checkUnique(td, p.owner); err != nil {
			return err
		}
		def = &types.Flags{Names: td.names}
	default:
		return errors.TypeResolution(path(p.owner, n.Name), "line %d: unknown type kind %s", td.line, td.kind)
	}
	n.Def = def
	delete(r.pending, n)
	return nil
}

func checkUnique(td *typeDecl, owner string) error {
	seen := make(map[string]bool, len(td.names))
	for _, name := range td.names {
		if seen[name] {
			return errors.TypeResolution(path(owner, td.name), "line %d: %s listed twice", td.line, name)
		}
		seen[name] = true
	}
	return nil
}

// isResource reports whether n names a resource, defining aliases on the way.
func (r *resolver) isResource(n *types.Named) (bool, error) {
	cur := n
	for i := 0; i < 64; i++ {
		if p := r.pending[cur]; p != nil {
			if p.decl.kind != "type" {
				return false, nil
			}
			if err := r.define(cur); err != nil {
				return false, err
			}
		}
		switch def := cur.Def.(type) {
		case *types.Resource:
			return true, nil
		case *types.Named:
			cur = def
		default:
			return false, nil
		}
	}
	return false, nil
}

func (r *resolver) convert(ref *typeRef, scope map[string]*types.Named, owner string) (types.Type, error) {
	name := ref.name
	if strings.HasPrefix(name, "%") {
		return r.named(strings.TrimPrefix(name, "%"), ref, scope, owner)
	}
	argc := func(want ...int) error {
		for _, w := range want {
			if len(ref.args) == w {
				return nil
			}
		}
		return errors.TypeResolution(path(owner, name), "line %d: %s takes %d type arguments, got %d", ref.line, name, want[len(want)-1], len(ref.args))
	}
	if len(ref.args) == 0 {
		if p, ok := types.PrimitiveByName(name); ok {
			return p, nil
		}
		switch name {
		case "float32":
			return types.F32, nil
		case "float64":
			return types.F64, nil
		}
	}
	switch name {
	case "list":
		if err := argc(1); err != nil {
			return nil, err
		}
		elem, err := r.convert(ref.args[0], scope, owner)
		if err != nil {
			return nil, err
		}
		return &types.List{Elem: elem}, nil
	case "option":
		if err := argc(1); err != nil {
			return nil, err
		}
		elem, err := r.convert(ref.args[0], scope, owner)
		if err != nil {
			return nil, err
		}
		return &types.Option{Elem: elem}, nil
	case "result":
		if err := argc(0, 1, 2); err != nil {
			return nil, err
		}
		res := &types.Result{}
		for i, arg := range ref.args {
			if arg.name == "_" && len(arg.args) == 0 {
				continue
			}
			t, err := r.convert(arg, scope, owner)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				res.OK = t
			} else {
				res.Err = t
			}
		}
		return res, nil
	case "tuple":
		tup := &types.Tuple{}
		for _, arg := range ref.args {
			t, err := r.convert(arg, scope, owner)
			if err != nil {
				return nil, err
			}
			tup.Elems = append(tup.Elems, t)
		}
		return tup, nil
	case "own", "borrow":
		if err := argc(1); err != nil {
			return nil, err
		}
		target := ref.args[0]
		n := scope[strings.TrimPrefix(target.name, "%")]
		if n == nil || len(target.args) > 0 {
			return nil, errors.TypeResolution(path(owner, target.name), "line %d: undefined resource %s", target.line, target.name)
		}
		ok, err := r.isResource(n)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.TypeResolution(path(owner, target.name), "line %d: %s is not a resource", target.line, target.name)
		}
		return &types.Handle{Resource: n, Borrow: name == "borrow"}, nil
	}
	if len(ref.args) > 0 {
		return nil, errors.TypeResolution(path(owner, name), "line %d: %s takes no type arguments", ref.line, name)
	}
	return r.named(name, ref, scope, owner)
}

func (r *resolver) named(name string, ref *typeRef, scope map[string]*types.Named, owner string) (types.Type, error) {
	n := scope[name]
	if n == nil {
		return nil, errors.TypeResolution(path(owner, name), "line %d: undefined type %s", ref.line, name)
	}
	ok, err := r.isResource(n)
	if err != nil {
		return nil, err
	}
	if ok {
		// a bare resource name in a signature means an owned handle
		return types.Own(n), nil
	}
	return n, nil
}

func (r *resolver) function(fd *funcDecl, scope map[string]*types.Named, iface string) (*types.Function, error) {
	f := &types.Function{Name: types.QualifiedName{Interface: iface, Func: fd.name}}
	seen := make(map[string]bool)
	for _, p := range fd.params {
		if seen[p.name] {
			return nil, errors.TypeResolution(path(f.Name.String(), p.name), "line %d: parameter %s defined twice", fd.line, p.name)
		}
		seen[p.name] = true
		t, err := r.convert(p.typ, scope, iface)
		if err != nil {
			return nil, err
		}
		f.Params = append(f.Params, types.Param{Name: p.name, Type: t})
	}
	for _, res := range fd.results {
		t, err := r.convert(res.typ, scope, iface)
		if err != nil {
			return nil, err
		}
		f.Results = append(f.Results, types.Param{Name: res.name, Type: t})
	}
	return f, nil
}

func (r *resolver) extern(ext *externDecl, world *worldDecl) error {
	s := r.store
	add := func(f *types.Function) error {
		key := f.Name.String()
		idx, list := s.importIdx, &s.imports
		if ext.export {
			idx, list = s.exportIdx, &s.exports
		}
		if idx[key] != nil {
			return errors.TypeResolution([]string{key}, "line %d: %s declared twice", ext.line, key)
		}
		idx[key] = f
		*list = append(*list, f)
		return nil
	}

	if ext.fn != nil {
		f, err := r.function(ext.fn, s.worldScope, "")
		if err != nil {
			return err
		}
		return add(f)
	}

	var iface *Interface
	if ext.iface != nil {
		iface = s.byID[ext.iface.name]
	} else {
		iface = r.findInterface(ext.path, world.pkg)
		if iface == nil {
			return errors.TypeResolution([]string{ext.path}, "line %d: unknown interface %s", ext.line, ext.path)
		}
	}
	if ext.export {
		s.exportIfaces = append(s.exportIfaces, iface.ID)
	} else {
		s.importIfaces = append(s.importIfaces, iface.ID)
	}
	for _, f := range iface.Funcs {
		if err := add(f); err != nil {
			return err
		}
	}
	return nil
}
