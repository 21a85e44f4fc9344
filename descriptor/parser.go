package descriptor

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-repl/errors"
)

// Declarations as written, before name resolution.

type typeRef struct {
	name string
	args []*typeRef
	line int
}

type fieldDecl struct {
	typ  *typeRef
	name string
}

type typeDecl struct {
	alias  *typeRef
	kind   string // record, variant, enum, flags, type, resource
	name   string
	fields []fieldDecl // record fields; variant cases with nil typ for no payload
	names  []string    // enum cases, flags, resource members
	line   int
}

type funcDecl struct {
	name    string
	params  []fieldDecl
	results []fieldDecl
	line    int
}

type useName struct {
	name string
	as   string
}

type useDecl struct {
	path  string
	names []useName
	line  int
}

type ifaceDecl struct {
	name  string
	pkg   string
	uses  []*useDecl
	types []*typeDecl
	funcs []*funcDecl
	line  int
}

type externDecl struct {
	fn     *funcDecl
	iface  *ifaceDecl
	path   string
	line   int
	export bool
}

type worldDecl struct {
	name    string
	pkg     string
	uses    []*useDecl
	types   []*typeDecl
	externs []*externDecl
	line    int
}

type document struct {
	interfaces []*ifaceDecl
	worlds     []*worldDecl
}

type parser struct {
	toks []token
	pos  int
}

func parseDocument(src string) (*document, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "interface section")
	}
	p := &parser{toks: toks}
	doc := &document{}

	pkg := ""
	if p.isWord("package") && !p.packageHasBody() {
		p.next()
		if pkg, err = p.parsePackageName(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi); err != nil {
			return nil, err
		}
	}
	for !p.at(tokEOF) {
		if err := p.parseItem(doc, pkg); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) at(tt tokenType) bool { return p.toks[p.pos].typ == tt }

func (p *parser) isWord(w string) bool {
	t := p.toks[p.pos]
	return t.typ == tokWord && !t.escaped && t.text == w
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	text := t.text
	if t.typ == tokEOF {
		text = "end of input"
	}
	return errors.New(errors.PhaseParse, errors.KindInvalidData).
		Value(text).
		Detail("line %d: %s (at %q)", t.line, fmt.Sprintf(format, args...), text).
		Build()
}

func (p *parser) expect(tt tokenType) (token, error) {
	t := p.cur()
	if t.typ != tt {
		return t, p.errorf(t, "expected %s", tt)
	}
	return p.next(), nil
}

func (p *parser) expectWord() (string, error) {
	t, err := p.expect(tokWord)
	return t.text, err
}

func (p *parser) expectKeyword(w string) error {
	if !p.isWord(w) {
		return p.errorf(p.cur(), "expected %q", w)
	}
	p.next()
	return nil
}

// packageHasBody reports whether the package keyword at the cursor opens a
// nested "package ns:name { ... }" block.
func (p *parser) packageHasBody() bool {
	for i := p.pos + 1; i < len(p.toks); i++ {
		switch p.toks[i].typ {
		case tokLBrace:
			return true
		case tokSemi, tokEOF:
			return false
		}
	}
	return false
}

// parsePackageName reads ns:name[@version]
func (p *parser) parsePackageName() (string, error) {
	ns, err := p.expectWord()
	if err != nil {
		return "", err
	}
	if _, err := p.expect(tokColon); err != nil {
		return "", err
	}
	name, err := p.expectWord()
	if err != nil {
		return "", err
	}
	full := ns + ":" + name
	// nested namespaces: ns:a:b
	for p.at(tokColon) {
		p.next()
		seg, err := p.expectWord()
		if err != nil {
			return "", err
		}
		full += ":" + seg
	}
	if p.at(tokAt) {
		p.next()
		v, err := p.parseVersion()
		if err != nil {
			return "", err
		}
		full += "@" + v
	}
	return full, nil
}

func (p *parser) parseVersion() (string, error) {
	var b strings.Builder
	w, err := p.expectWord()
	if err != nil {
		return "", err
	}
	b.WriteString(w)
	for p.at(tokDot) && p.peekAt(1).typ == tokWord {
		p.next()
		b.WriteByte('.')
		b.WriteString(p.next().text)
	}
	return b.String(), nil
}

// parsePath reads an interface reference: name, or ns:pkg/name[@version]
func (p *parser) parsePath() (string, error) {
	first, err := p.expectWord()
	if err != nil {
		return "", err
	}
	if !p.at(tokColon) {
		return first, nil
	}
	var b strings.Builder
	b.WriteString(first)
	for p.at(tokColon) {
		p.next()
		seg, err := p.expectWord()
		if err != nil {
			return "", err
		}
		b.WriteByte(':')
		b.WriteString(seg)
	}
	if _, err := p.expect(tokSlash); err != nil {
		return "", err
	}
	name, err := p.expectWord()
	if err != nil {
		return "", err
	}
	b.WriteByte('/')
	b.WriteString(name)
	if p.at(tokAt) {
		p.next()
		v, err := p.parseVersion()
		if err != nil {
			return "", err
		}
		b.WriteByte('@')
		b.WriteString(v)
	}
	return b.String(), nil
}

// skipGate drops feature gates such as @since(version = 0.2.0)
func (p *parser) skipGate() error {
	for p.at(tokAt) {
		p.next()
		if _, err := p.expectWord(); err != nil {
			return err
		}
		if p.at(tokLParen) {
			if err := p.skipBalanced(tokLParen, tokRParen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) skipBalanced(open, closing tokenType) error {
	if _, err := p.expect(open); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := p.next()
		switch t.typ {
		case open:
			depth++
		case closing:
			depth--
		case tokEOF:
			return p.errorf(t, "unbalanced %s", open)
		}
	}
	return nil
}

// parseResourceBody records the names of a resource's constructor,
// methods and static functions in td.names. Their signatures are skipped.
func (p *parser) parseResourceBody(td *typeDecl) error {
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	for !p.at(tokRBrace) {
		if err := p.skipGate(); err != nil {
			return err
		}
		name, err := p.expectWord()
		if err != nil {
			return err
		}
		td.names = append(td.names, name)
		for t := p.next(); t.typ != tokSemi; t = p.next() {
			if t.typ == tokEOF || t.typ == tokRBrace {
				return p.errorf(t, "resource %s: expected ';' after %s", td.name, name)
			}
		}
	}
	p.next()
	return nil
}

func (p *parser) parseItem(doc *document, pkg string) error {
	if err := p.skipGate(); err != nil {
		return err
	}
	t := p.cur()
	switch {
	case p.isWord("package"):
		p.next()
		name, err := p.parsePackageName()
		if err != nil {
			return err
		}
		if _, err := p.expect(tokLBrace); err != nil {
			return err
		}
		for !p.at(tokRBrace) {
			if p.at(tokEOF) {
				return p.errorf(p.cur(), "unterminated package %s", name)
			}
			if err := p.parseItem(doc, name); err != nil {
				return err
			}
		}
		p.next()
		return nil
	case p.isWord("interface"):
		p.next()
		name, err := p.expectWord()
		if err != nil {
			return err
		}
		iface := &ifaceDecl{name: name, pkg: pkg, line: t.line}
		if err := p.parseInterfaceBody(iface); err != nil {
			return err
		}
		doc.interfaces = append(doc.interfaces, iface)
		return nil
	case p.isWord("world"):
		p.next()
		name, err := p.expectWord()
		if err != nil {
			return err
		}
		w := &worldDecl{name: name, pkg: pkg, line: t.line}
		if err := p.parseWorldBody(w); err != nil {
			return err
		}
		doc.worlds = append(doc.worlds, w)
		return nil
	default:
		return p.errorf(t, "expected package, interface or world")
	}
}

func (p *parser) parseInterfaceBody(iface *ifaceDecl) error {
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	for !p.at(tokRBrace) {
		if err := p.skipGate(); err != nil {
			return err
		}
		t := p.cur()
		switch {
		case t.typ == tokEOF:
			return p.errorf(t, "unterminated interface %s", iface.name)
		case p.isWord("use"):
			u, err := p.parseUse()
			if err != nil {
				return err
			}
			iface.uses = append(iface.uses, u)
		case p.isTypeKeyword():
			td, err := p.parseTypeDecl()
			if err != nil {
				return err
			}
			iface.types = append(iface.types, td)
		case t.typ == tokWord:
			fd, err := p.parseFuncItem()
			if err != nil {
				return err
			}
			iface.funcs = append(iface.funcs, fd)
		default:
			return p.errorf(t, "unexpected token in interface %s", iface.name)
		}
	}
	p.next()
	return nil
}

func (p *parser) parseWorldBody(w *worldDecl) error {
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	for !p.at(tokRBrace) {
		if err := p.skipGate(); err != nil {
			return err
		}
		t := p.cur()
		switch {
		case t.typ == tokEOF:
			return p.errorf(t, "unterminated world %s", w.name)
		case p.isWord("use"):
			u, err := p.parseUse()
			if err != nil {
				return err
			}
			w.uses = append(w.uses, u)
		case p.isTypeKeyword():
			td, err := p.parseTypeDecl()
			if err != nil {
				return err
			}
			w.types = append(w.types, td)
		case p.isWord("import"), p.isWord("export"):
			p.next()
			ext, err := p.parseExtern(t.text == "export", t.line)
			if err != nil {
				return err
			}
			w.externs = append(w.externs, ext)
		case p.isWord("include"):
			return p.errorf(t, "include is not supported")
		default:
			return p.errorf(t, "unexpected token in world %s", w.name)
		}
	}
	p.next()
	return nil
}

func (p *parser) isTypeKeyword() bool {
	t := p.cur()
	if t.typ != tokWord || t.escaped {
		return false
	}
	switch t.text {
	case "record", "variant", "enum", "flags", "type", "resource":
		// "type: func()" is a function named type
		return p.peekAt(1).typ != tokColon
	}
	return false
}

func (p *parser) parseExtern(export bool, line int) (*externDecl, error) {
	ext := &externDecl{export: export, line: line}
	if p.at(tokWord) && p.peekAt(1).typ == tokColon {
		next := p.peekAt(2)
		if next.typ == tokWord && !next.escaped && (next.text == "func" || next.text == "interface") {
			name := p.next().text
			p.next() // ':'
			if next.text == "func" {
				fd, err := p.parseFuncRest(name, line)
				if err != nil {
					return nil, err
				}
				ext.fn = fd
				return ext, nil
			}
			p.next() // interface
			iface := &ifaceDecl{name: name, line: line}
			if err := p.parseInterfaceBody(iface); err != nil {
				return nil, err
			}
			ext.iface = iface
			if p.at(tokSemi) {
				p.next()
			}
			return ext, nil
		}
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	ext.path = path
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return ext, nil
}

func (p *parser) parseUse() (*useDecl, error) {
	t := p.next() // use
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	u := &useDecl{path: path, line: t.line}
	if _, err := p.expect(tokDot); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	for !p.at(tokRBrace) {
		name, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		un := useName{name: name, as: name}
		if p.isWord("as") {
			p.next()
			if un.as, err = p.expectWord(); err != nil {
				return nil, err
			}
		}
		u.names = append(u.names, un)
		if p.at(tokComma) {
			p.next()
			continue
		}
		if !p.at(tokRBrace) {
			return nil, p.errorf(p.cur(), "expected , or }")
		}
	}
	p.next()
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *parser) parseTypeDecl() (*typeDecl, error) {
	kw := p.next()
	name, err := p.expectWord()
	if err != nil {
		return nil, err
	}
	td := &typeDecl{kind: kw.text, name: name, line: kw.line}

	switch kw.text {
	case "type":
		if _, err := p.expect(tokEquals); err != nil {
			return nil, err
		}
		if td.alias, err = p.parseTypeRef(); err != nil {
			return nil, err
		}
		_, err = p.expect(tokSemi)
		return td, err
	case "resource":
		if p.at(tokSemi) {
			p.next()
			return td, nil
		}
		return td, p.parseResourceBody(td)
	}

	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	for !p.at(tokRBrace) {
		member, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		switch kw.text {
		case "record":
			if _, err := p.expect(tokColon); err != nil {
				return nil, err
			}
			ft, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			td.fields = append(td.fields, fieldDecl{name: member, typ: ft})
		case "variant":
			fd := fieldDecl{name: member}
			if p.at(tokLParen) {
				p.next()
				if fd.typ, err = p.parseTypeRef(); err != nil {
					return nil, err
				}
				if _, err := p.expect(tokRParen); err != nil {
					return nil, err
				}
			}
			td.fields = append(td.fields, fd)
		default:
			td.names = append(td.names, member)
		}
		if p.at(tokComma) {
			p.next()
			continue
		}
		if !p.at(tokRBrace) {
			return nil, p.errorf(p.cur(), "expected , or }")
		}
	}
	p.next()
	return td, nil
}

// parseFuncItem parses "name: func(...) -> ...;"
func (p *parser) parseFuncItem() (*funcDecl, error) {
	t := p.next()
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	return p.parseFuncRest(t.text, t.line)
}

func (p *parser) parseFuncRest(name string, line int) (*funcDecl, error) {
	if err := p.expectKeyword("func"); err != nil {
		return nil, err
	}
	fd := &funcDecl{name: name, line: line}
	params, err := p.parseNamedList()
	if err != nil {
		return nil, err
	}
	fd.params = params
	if p.at(tokArrow) {
		p.next()
		if p.at(tokLParen) {
			if fd.results, err = p.parseNamedList(); err != nil {
				return nil, err
			}
		} else {
			rt, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			fd.results = []fieldDecl{{typ: rt}}
		}
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return fd, nil
}

// parseNamedList parses "(a: T, b: U)"
func (p *parser) parseNamedList() ([]fieldDecl, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var out []fieldDecl
	for !p.at(tokRParen) {
		name, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		t, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		out = append(out, fieldDecl{name: name, typ: t})
		if p.at(tokComma) {
			p.next()
			continue
		}
		if !p.at(tokRParen) {
			return nil, p.errorf(p.cur(), "expected , or )")
		}
	}
	p.next()
	return out, nil
}

func (p *parser) parseTypeRef() (*typeRef, error) {
	t, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	ref := &typeRef{name: t.text, line: t.line}
	if t.escaped {
		// %list names a user type, not the builtin
		ref.name = "%" + t.text
		return ref, nil
	}
	if !p.at(tokLAngle) {
		return ref, nil
	}
	p.next()
	for {
		arg, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		ref.args = append(ref.args, arg)
		if p.at(tokComma) {
			p.next()
			continue
		}
		if _, err := p.expect(tokRAngle); err != nil {
			return nil, err
		}
		return ref, nil
	}
}
