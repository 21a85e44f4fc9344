package syntax

import (
	"strings"

	"github.com/wippyai/wasm-repl/errors"
)

// Parse parses one input line. Blank lines yield a nil Node and nil error.
func Parse(line string) (Node, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}
	offset := strings.Index(line, trimmed)

	if trimmed[0] == '.' || trimmed[0] == '?' {
		cmd, err := parseCommand(trimmed, offset)
		if err != nil {
			return nil, err
		}
		return cmd, nil
	}

	toks, err := NewLexer(line).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	if p.at(IDENT) && p.peekType(1) == ASSIGN {
		name := p.next()
		p.next() // '='
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectEOF(); err != nil {
			return nil, err
		}
		return &Assignment{Name: name.Literal.(string), NameP: name.Pos, X: x}, nil
	}

	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return x, nil
}

// ParseExpr parses a line that must hold exactly one expression.
func ParseExpr(src string) (Expr, error) {
	toks, err := NewLexer(src).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return x, nil
}

func parseCommand(text string, offset int) (*Command, error) {
	var name, rest string
	if text[0] == '?' {
		name = "help"
		rest = text[1:]
	} else {
		end := 1
		for end < len(text) && !isSpace(text[end]) {
			end++
		}
		name = text[1:end]
		rest = text[end:]
		if name == "" {
			return nil, errors.Syntax(offset, ".", "missing command name")
		}
	}
	raw := strings.TrimSpace(rest)
	args, err := splitArgs(raw, offset+len(text)-len(rest))
	if err != nil {
		return nil, err
	}
	return &Command{Name: name, Args: args, Raw: raw}, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

// splitArgs splits command arguments on whitespace; double quotes group words.
func splitArgs(raw string, offset int) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, have := false, false
	quoteAt := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			if !inQuote {
				quoteAt = i
			}
			inQuote = !inQuote
			have = true
		case isSpace(c) && !inQuote:
			if have {
				args = append(args, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteByte(c)
			have = true
		}
	}
	if inQuote {
		return nil, errors.Syntax(offset+quoteAt, raw[quoteAt:], "unterminated quoted argument")
	}
	if have {
		args = append(args, cur.String())
	}
	return args, nil
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) at(tt TokenType) bool { return p.toks[p.pos].Type == tt }

func (p *parser) peekType(n int) TokenType {
	if p.pos+n >= len(p.toks) {
		return EOF
	}
	return p.toks[p.pos+n].Type
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Type != EOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t Token, detail string) error {
	text := t.Lexeme
	if t.Type == EOF {
		text = "end of input"
	}
	return errors.Syntax(t.Pos, text, detail)
}

func (p *parser) expect(tt TokenType) (Token, error) {
	t := p.cur()
	if t.Type != tt {
		return t, p.unexpected(t, "expected "+tt.String())
	}
	return p.next(), nil
}

func (p *parser) expectEOF() error {
	if t := p.cur(); t.Type != EOF {
		return p.unexpected(t, "unexpected trailing input")
	}
	return nil
}

func (p *parser) parseExpr() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.at(AS) {
		p.next()
		te, err := p.parseType()
		if err != nil {
			return nil, err
		}
		x = &Ascribe{X: x, Type: te, P: x.Pos()}
	}
	return x, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch t.Type {
	case INT:
		p.next()
		return &IntLit{Text: t.Lexeme, P: t.Pos, Mag: t.Literal.(uint64), Neg: strings.HasPrefix(t.Lexeme, "-")}, nil
	case FLOAT:
		p.next()
		return &FloatLit{Text: t.Lexeme, P: t.Pos, V: t.Literal.(float64)}, nil
	case TRUE, FALSE:
		p.next()
		return &BoolLit{P: t.Pos, V: t.Type == TRUE}, nil
	case STRING:
		p.next()
		return &StringLit{P: t.Pos, V: t.Literal.(string)}, nil
	case CHAR:
		p.next()
		return &CharLit{P: t.Pos, V: t.Literal.(rune)}, nil
	case LBRACKET:
		p.next()
		elems, err := p.parseList(RBRACKET)
		if err != nil {
			return nil, err
		}
		return &ListLit{Elems: elems, P: t.Pos}, nil
	case LBRACE:
		return p.parseRecord()
	case LPAREN:
		p.next()
		elems, err := p.parseList(RPAREN)
		if err != nil {
			return nil, err
		}
		if len(elems) == 1 && p.toks[p.pos-2].Type != COMMA {
			// parenthesized expression
			return elems[0], nil
		}
		return &TupleLit{Elems: elems, P: t.Pos}, nil
	case IDENT, QUALIFIED:
		p.next()
		name := ParseName(t.Literal.(string))
		if name.Func == "" {
			return nil, p.unexpected(t, "qualified name has no function part")
		}
		if p.at(LPAREN) {
			p.next()
			args, err := p.parseList(RPAREN)
			if err != nil {
				return nil, err
			}
			return &Call{Callee: name, Args: args, P: t.Pos}, nil
		}
		return &Ident{Name: name, P: t.Pos}, nil
	default:
		return nil, p.unexpected(t, "expected expression")
	}
}

// parseList parses comma-separated expressions up to the closing token,
// allowing a trailing comma. The opening token is already consumed.
func (p *parser) parseList(closing TokenType) ([]Expr, error) {
	var elems []Expr
	for !p.at(closing) {
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, x)
		if p.at(COMMA) {
			p.next()
			continue
		}
		if !p.at(closing) {
			return nil, p.unexpected(p.cur(), "expected , or "+closing.String())
		}
	}
	p.next()
	return elems, nil
}

func (p *parser) parseRecord() (Expr, error) {
	open := p.next()
	rec := &RecordLit{P: open.Pos}
	seen := make(map[string]bool)
	for !p.at(RBRACE) {
		nameTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		name := nameTok.Literal.(string)
		if seen[name] {
			return nil, p.unexpected(nameTok, "duplicate field")
		}
		seen[name] = true
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, FieldInit{Name: name, P: nameTok.Pos, Value: x})
		if p.at(COMMA) {
			p.next()
			continue
		}
		if !p.at(RBRACE) {
			return nil, p.unexpected(p.cur(), "expected , or }")
		}
	}
	p.next()
	return rec, nil
}

func (p *parser) parseType() (*TypeExpr, error) {
	t, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	te := &TypeExpr{Name: t.Literal.(string), P: t.Pos}
	if !p.at(LANGLE) {
		return te, nil
	}
	p.next()
	for {
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		te.Args = append(te.Args, arg)
		if p.at(COMMA) {
			p.next()
			continue
		}
		if _, err := p.expect(RANGLE); err != nil {
			return nil, err
		}
		return te, nil
	}
}
