package syntax

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasm-repl/errors"
)

// Lexer scans one REPL line into tokens.
type Lexer struct {
	src    string
	start  int // start index of current token
	cur    int // current index
	tokens []Token
}

// NewLexer creates a lexer over a single input line.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Scan tokenizes the whole line. The returned slice always ends with EOF.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipWhitespace()
		l.start = l.cur
		if l.isAtEnd() {
			l.tokens = append(l.tokens, Token{Type: EOF, Pos: l.cur})
			return l.tokens, nil
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekN(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		switch l.src[l.cur] {
		case ' ', '\t', '\r', '\n':
			l.cur++
		default:
			return
		}
	}
}

func (l *Lexer) add(tt TokenType, lit any) {
	l.tokens = append(l.tokens, Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Pos:     l.start,
	})
}

func (l *Lexer) errorf(detail string) error {
	end := l.cur
	if end <= l.start {
		end = l.start + 1
	}
	if end > len(l.src) {
		end = len(l.src)
	}
	return errors.Syntax(l.start, l.src[l.start:end], detail)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isHex(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' }

// isIdentByte matches WIT identifier characters (kebab-case words)
func isIdentByte(b byte) bool { return isAlpha(b) || isDigit(b) || b == '-' }

// isQualifierByte matches the extra characters allowed in qualified callee names
func isQualifierByte(b byte) bool {
	return b == ':' || b == '/' || b == '@' || b == '.' || b == '#'
}

func (l *Lexer) scanToken() error {
	c := l.src[l.cur]
	switch c {
	case '(':
		l.cur++
		l.add(LPAREN, nil)
	case ')':
		l.cur++
		l.add(RPAREN, nil)
	case '[':
		l.cur++
		l.add(LBRACKET, nil)
	case ']':
		l.cur++
		l.add(RBRACKET, nil)
	case '{':
		l.cur++
		l.add(LBRACE, nil)
	case '}':
		l.cur++
		l.add(RBRACE, nil)
	case '<':
		l.cur++
		l.add(LANGLE, nil)
	case '>':
		l.cur++
		l.add(RANGLE, nil)
	case ',':
		l.cur++
		l.add(COMMA, nil)
	case ':':
		l.cur++
		l.add(COLON, nil)
	case '=':
		l.cur++
		l.add(ASSIGN, nil)
	case '"':
		s, err := l.scanString()
		if err != nil {
			return err
		}
		l.add(STRING, s)
	case '\'':
		r, err := l.scanChar()
		if err != nil {
			return err
		}
		l.add(CHAR, r)
	default:
		switch {
		case isDigit(c) || (c == '-' && isDigit(l.peekN(1))):
			return l.scanNumber()
		case c == '-' && strings.HasPrefix(l.src[l.cur:], "-inf") && !isIdentByte(l.peekN(4)):
			l.cur += 4
			l.add(FLOAT, math.Inf(-1))
		case isAlpha(c) || c == '%':
			l.scanIdentifier()
		default:
			_, size := utf8.DecodeRuneInString(l.src[l.cur:])
			l.cur += size
			return l.errorf("unexpected character")
		}
	}
	return nil
}

// scanIdentifier reads a plain identifier, or a qualified callee name when the
// run of name characters contains '#' or "::" (e.g. "wasi:cli/run@0.2.0#run").
func (l *Lexer) scanIdentifier() {
	if l.peek() == '%' {
		l.cur++
	}
	end := l.cur
	for end < len(l.src) && (isIdentByte(l.src[end]) || isQualifierByte(l.src[end])) {
		end++
	}
	run := l.src[l.cur:end]
	if strings.Contains(run, "#") || strings.Contains(run, "::") {
		l.cur = end
		l.add(QUALIFIED, strings.TrimPrefix(l.src[l.start:l.cur], "%"))
		return
	}

	for !l.isAtEnd() && isIdentByte(l.peek()) {
		l.cur++
	}
	word := l.src[l.start:l.cur]
	if word[0] == '%' {
		// %name escapes keywords
		l.add(IDENT, word[1:])
		return
	}
	switch word {
	case "inf":
		l.add(FLOAT, math.Inf(1))
		return
	case "nan":
		l.add(FLOAT, math.NaN())
		return
	}
	if kw, ok := keywords[word]; ok {
		l.add(kw, nil)
		return
	}
	l.add(IDENT, word)
}

func (l *Lexer) scanNumber() error {
	if l.peek() == '-' {
		l.cur++
	}
	digitsStart := l.cur

	if l.peek() == '0' && (l.peekN(1) == 'x' || l.peekN(1) == 'X') {
		l.cur += 2
		hexStart := l.cur
		for !l.isAtEnd() && isHex(l.peek()) {
			l.cur++
		}
		if l.cur == hexStart {
			return l.errorf("malformed hex literal")
		}
		mag, err := strconv.ParseUint(l.src[hexStart:l.cur], 16, 64)
		if err != nil {
			return l.errorf("integer literal out of range")
		}
		if isIdentByte(l.peek()) {
			l.cur++
			return l.errorf("malformed number")
		}
		l.add(INT, mag)
		return nil
	}

	for !l.isAtEnd() && isDigit(l.peek()) {
		l.cur++
	}
	isFloat := false
	if l.peek() == '.' && isDigit(l.peekN(1)) {
		isFloat = true
		l.cur++
		for !l.isAtEnd() && isDigit(l.peek()) {
			l.cur++
		}
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		n := 1
		if s := l.peekN(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peekN(n)) {
			isFloat = true
			l.cur += n
			for !l.isAtEnd() && isDigit(l.peek()) {
				l.cur++
			}
		}
	}
	if isIdentByte(l.peek()) {
		l.cur++
		return l.errorf("malformed number")
	}

	if isFloat {
		f, err := strconv.ParseFloat(l.src[l.start:l.cur], 64)
		if err != nil {
			return l.errorf("float literal out of range")
		}
		l.add(FLOAT, f)
		return nil
	}

	mag, err := strconv.ParseUint(l.src[digitsStart:l.cur], 10, 64)
	if err != nil {
		return l.errorf("integer literal out of range")
	}
	l.add(INT, mag)
	return nil
}

func (l *Lexer) scanString() (string, error) {
	l.cur++ // opening quote
	var b strings.Builder
	for {
		if l.isAtEnd() {
			return "", l.errorf("unterminated string")
		}
		c := l.src[l.cur]
		switch c {
		case '"':
			l.cur++
			return b.String(), nil
		case '\\':
			r, err := l.scanEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.cur:])
			if r == utf8.RuneError && size == 1 {
				l.cur++
				return "", l.errorf("invalid UTF-8 in string")
			}
			b.WriteString(l.src[l.cur : l.cur+size])
			l.cur += size
		}
	}
}

func (l *Lexer) scanChar() (rune, error) {
	l.cur++ // opening quote
	if l.isAtEnd() {
		return 0, l.errorf("unterminated char")
	}
	var r rune
	if l.peek() == '\\' {
		var err error
		if r, err = l.scanEscape(); err != nil {
			return 0, err
		}
	} else {
		var size int
		r, size = utf8.DecodeRuneInString(l.src[l.cur:])
		if r == '\'' {
			l.cur++
			return 0, l.errorf("empty char literal")
		}
		l.cur += size
	}
	if l.peek() != '\'' {
		for !l.isAtEnd() && l.peek() != '\'' {
			l.cur++
		}
		return 0, l.errorf("char literal must hold exactly one character")
	}
	l.cur++
	return r, nil
}

// scanEscape decodes one backslash escape starting at the backslash
func (l *Lexer) scanEscape() (rune, error) {
	l.cur++ // backslash
	if l.isAtEnd() {
		return 0, l.errorf("unterminated escape")
	}
	c := l.src[l.cur]
	l.cur++
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\', '"', '\'':
		return rune(c), nil
	case 'u':
		if l.peek() != '{' {
			return 0, l.errorf(`expected '{' after \u`)
		}
		l.cur++
		hexStart := l.cur
		for !l.isAtEnd() && isHex(l.peek()) {
			l.cur++
		}
		if l.peek() != '}' || l.cur == hexStart || l.cur-hexStart > 6 {
			return 0, l.errorf("malformed unicode escape")
		}
		v, _ := strconv.ParseUint(l.src[hexStart:l.cur], 16, 32)
		l.cur++
		r := rune(v)
		if !utf8.ValidRune(r) {
			return 0, l.errorf("escape is not a Unicode scalar value")
		}
		return r, nil
	default:
		return 0, l.errorf("unknown escape")
	}
}
