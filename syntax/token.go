package syntax

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	EOF TokenType = iota

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LBRACKET // "["
	RBRACKET // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	LANGLE   // "<", type arguments only
	RANGLE   // ">"
	COMMA    // ","
	COLON    // ":"
	ASSIGN   // "="

	// Literals & identifiers
	IDENT     // greet, my-var
	QUALIFIED // local:demo/greeter#hello, comp::greet
	INT
	FLOAT
	STRING
	CHAR
	TRUE
	FALSE

	// Keywords
	AS
)

var tokenNames = map[TokenType]string{
	EOF:       "end of input",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACKET:  "[",
	RBRACKET:  "]",
	LBRACE:    "{",
	RBRACE:    "}",
	LANGLE:    "<",
	RANGLE:    ">",
	COMMA:     ",",
	COLON:     ":",
	ASSIGN:    "=",
	IDENT:     "identifier",
	QUALIFIED: "qualified name",
	INT:       "integer",
	FLOAT:     "float",
	STRING:    "string",
	CHAR:      "char",
	TRUE:      "true",
	FALSE:     "false",
	AS:        "as",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token with its parsed literal value.
type Token struct {
	Literal any    // uint64 magnitude for INT, float64 for FLOAT, string for STRING, rune for CHAR
	Lexeme  string // raw text slice
	Type    TokenType
	Pos     int // 0-based byte offset in the line
}

var keywords = map[string]TokenType{
	"true":  TRUE,
	"false": FALSE,
	"as":    AS,
}
