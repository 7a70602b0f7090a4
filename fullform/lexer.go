package fullform

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for FullForm text
// ---------------------------------------------------------------------------

// Position is a location in the input.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// TokenType identifies the kind of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenInteger // 42, -7
	TokenString  // "text"
	TokenSymbol  // Plus, $x, a`b

	TokenLParen // (
	TokenRParen // )
	TokenLBrace // {
	TokenRBrace // }
	TokenComma  // ,
)

var tokenNames = [...]string{
	TokenEOF:     "EOF",
	TokenError:   "error",
	TokenInteger: "integer",
	TokenString:  "string",
	TokenSymbol:  "symbol",
	TokenLParen:  "'('",
	TokenRParen:  "')'",
	TokenLBrace:  "'{'",
	TokenRBrace:  "'}'",
	TokenComma:   "','",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

// Lexer tokenizes FullForm text.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int
	col     int
}

// NewLexer creates a lexer for input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}
	pos := l.position()

	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == '{':
		return single(TokenLBrace)
	case l.ch == '}':
		return single(TokenRBrace)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '"':
		return l.readString(pos)
	case isDigit(l.ch), l.ch == '-' && isDigit(l.peekChar()):
		return l.readInteger(pos)
	case isSymbolStart(l.ch):
		return l.readSymbol(pos)
	}
	tok := Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", l.ch), Pos: pos}
	l.readChar()
	return tok
}

// skipWhitespaceAndComments skips blanks and (* ... *) comments, which
// nest. It returns an error token for an unterminated comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		for unicode.IsSpace(l.ch) {
			l.readChar()
		}
		if l.ch != '(' || l.peekChar() != '*' {
			return Token{}, true
		}
		pos := l.position()
		l.readChar()
		l.readChar()
		depth := 1
		for depth > 0 {
			switch {
			case l.ch == 0:
				return Token{Type: TokenError, Literal: "unterminated comment", Pos: pos}, false
			case l.ch == '(' && l.peekChar() == '*':
				depth++
				l.readChar()
			case l.ch == '*' && l.peekChar() == ')':
				depth--
				l.readChar()
			}
			l.readChar()
		}
	}
}

func (l *Lexer) readInteger(pos Position) Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readSymbol(pos Position) Token {
	start := l.pos
	for isSymbolStart(l.ch) || isDigit(l.ch) || l.ch == '`' {
		l.readChar()
	}
	return Token{Type: TokenSymbol, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a double-quoted string with backslash escapes. The
// literal is the decoded contents.
func (l *Lexer) readString(pos Position) Token {
	var b strings.Builder
	l.readChar() // opening quote
	for {
		switch l.ch {
		case 0:
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: b.String(), Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteRune(l.ch)
			case 0:
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			default:
				b.WriteByte('\\')
				b.WriteRune(l.ch)
			}
		default:
			b.WriteRune(l.ch)
		}
		l.readChar()
	}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isSymbolStart(ch rune) bool {
	return ch == '$' || ch == '_' || unicode.IsLetter(ch)
}
