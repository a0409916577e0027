// Package rules implements the membership rule predicate language: a small
// boolean expression grammar over principal attributes, compiled once and
// evaluated per principal on every reconciliation pass.
//
// The grammar deliberately has no date arithmetic. Time-derived conditions
// are expressed against synthetic attributes (e.g. expirationStage) computed
// by the expiration scheduler.
package rules

import "fmt"

// TokenType identifies a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent           // attribute or function name
	TokenString          // "..."
	TokenEq              // ==
	TokenNeq             // !=
	TokenAnd             // and
	TokenOr              // or
	TokenNull            // null
	TokenLParen          // (
	TokenRParen          // )
	TokenComma           // ,
	TokenIllegal
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenEq:
		return "=="
	case TokenNeq:
		return "!="
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenNull:
		return "null"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	default:
		return "illegal"
	}
}

// Token is a single lexed token with its byte offset in the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%v, %q, %d}", t.Type, t.Literal, t.Pos)
}

// Lexer tokenizes a predicate expression.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

// NewLexer creates a lexer for the given predicate text.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	pos := l.pos
	var tok Token

	switch l.ch {
	case 0:
		tok = Token{Type: TokenEOF, Pos: pos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: pos}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenEq, Literal: "==", Pos: pos}
		} else {
			tok = Token{Type: TokenIllegal, Literal: "=", Pos: pos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenNeq, Literal: "!=", Pos: pos}
		} else {
			tok = Token{Type: TokenIllegal, Literal: "!", Pos: pos}
		}
	case '"':
		lit, ok := l.readString()
		if !ok {
			return Token{Type: TokenIllegal, Literal: lit, Pos: pos}
		}
		return Token{Type: TokenString, Literal: lit, Pos: pos}
	default:
		if isIdentStart(l.ch) {
			lit := l.readIdent()
			switch lit {
			case "and":
				return Token{Type: TokenAnd, Literal: lit, Pos: pos}
			case "or":
				return Token{Type: TokenOr, Literal: lit, Pos: pos}
			case "null":
				return Token{Type: TokenNull, Literal: lit, Pos: pos}
			}
			return Token{Type: TokenIdent, Literal: lit, Pos: pos}
		}
		tok = Token{Type: TokenIllegal, Literal: string(l.ch), Pos: pos}
	}

	l.readChar()
	return tok
}

// readString consumes a double-quoted string literal. The opening quote is
// the current char. Supports \" and \\ escapes.
func (l *Lexer) readString() (string, bool) {
	var out []byte
	l.readChar() // consume opening quote
	for l.ch != '"' {
		if l.ch == 0 {
			return string(out), false // unterminated
		}
		if l.ch == '\\' && (l.peekChar() == '"' || l.peekChar() == '\\') {
			l.readChar()
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote
	return string(out), true
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ('0' <= ch && ch <= '9') || ch == '.'
}
