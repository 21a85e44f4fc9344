package descriptor

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokWord
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLAngle
	tokRAngle
	tokComma
	tokSemi
	tokColon
	tokEquals
	tokDot
	tokSlash
	tokAt
	tokStar
	tokArrow
)

var tokenText = map[tokenType]string{
	tokEOF:    "end of input",
	tokWord:   "identifier",
	tokLBrace: "{",
	tokRBrace: "}",
	tokLParen: "(",
	tokRParen: ")",
	tokLAngle: "<",
	tokRAngle: ">",
	tokComma:  ",",
	tokSemi:   ";",
	tokColon:  ":",
	tokEquals: "=",
	tokDot:    ".",
	tokSlash:  "/",
	tokAt:     "@",
	tokStar:   "*",
	tokArrow:  "->",
}

func (t tokenType) String() string { return tokenText[t] }

type token struct {
	text string
	typ  tokenType
	line int
	// escaped marks %name words, which are never keywords
	escaped bool
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_' || b == '-'
}

// lex splits an interface section into tokens, dropping comments.
func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unterminated block comment", line)
			}
			line += strings.Count(src[i:i+2+end], "\n")
			i += end + 4
		case strings.HasPrefix(src[i:], "->"):
			toks = append(toks, token{typ: tokArrow, text: "->", line: line})
			i += 2
		case c == '%' || isWordByte(c):
			start := i
			escaped := c == '%'
			if escaped {
				i++
				start = i
			}
			for i < len(src) && isWordByte(src[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("line %d: empty identifier after %%", line)
			}
			toks = append(toks, token{typ: tokWord, text: src[start:i], line: line, escaped: escaped})
		default:
			var tt tokenType
			switch c {
			case '{':
				tt = tokLBrace
			case '}':
				tt = tokRBrace
			case '(':
				tt = tokLParen
			case ')':
				tt = tokRParen
			case '<':
				tt = tokLAngle
			case '>':
				tt = tokRAngle
			case ',':
				tt = tokComma
			case ';':
				tt = tokSemi
			case ':':
				tt = tokColon
			case '=':
				tt = tokEquals
			case '.':
				tt = tokDot
			case '/':
				tt = tokSlash
			case '@':
				tt = tokAt
			case '*':
				tt = tokStar
			default:
				return nil, fmt.Errorf("line %d: unexpected character %q", line, c)
			}
			toks = append(toks, token{typ: tt, text: string(c), line: line})
			i++
		}
	}
	toks = append(toks, token{typ: tokEOF, line: line})
	return toks, nil
}
