// Package fullform reads and prints expressions in FullForm notation:
// f(a, b), integers, double-quoted strings and symbols, with {a, b} as
// shorthand for List(a, b).
package fullform

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/chazu/pmeval/vm"
)

// ErrSyntax is wrapped by every error the reader returns.
var ErrSyntax = errors.New("fullform: syntax error")

// SyntaxError describes malformed input.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("fullform: %s: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Reader builds expressions on a runtime's heap and symbol table.
type Reader struct {
	rt        *vm.Runtime
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewReader creates a reader for src.
func NewReader(rt *vm.Runtime, src string) *Reader {
	r := &Reader{rt: rt, lexer: NewLexer(src)}
	r.nextToken()
	r.nextToken()
	return r
}

func (r *Reader) nextToken() {
	r.curToken = r.peekToken
	r.peekToken = r.lexer.NextToken()
}

func (r *Reader) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: r.curToken.Pos, Msg: fmt.Sprintf(format, args...)}
}

// More reports whether input remains.
func (r *Reader) More() bool { return r.curToken.Type != TokenEOF }

// Next reads one expression.
func (r *Reader) Next() (vm.Value, error) { return r.readExpr() }

// Parse reads exactly one expression from src.
func Parse(rt *vm.Runtime, src string) (vm.Value, error) {
	r := NewReader(rt, src)
	if !r.More() {
		return vm.Null, r.errorf("empty input")
	}
	v, err := r.Next()
	if err != nil {
		return vm.Null, err
	}
	if r.More() {
		v.Release()
		return vm.Null, r.errorf("unexpected %s after expression", r.curToken.Type)
	}
	return v, nil
}

// ParseAll reads every expression in src.
func ParseAll(rt *vm.Runtime, src string) ([]vm.Value, error) {
	r := NewReader(rt, src)
	var out []vm.Value
	for r.More() {
		v, err := r.Next()
		if err != nil {
			for _, x := range out {
				x.Release()
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MustParse is Parse for fixed input; it panics on error.
func MustParse(rt *vm.Runtime, src string) vm.Value {
	v, err := Parse(rt, src)
	if err != nil {
		panic(err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Grammar
// ---------------------------------------------------------------------------

func (r *Reader) readExpr() (vm.Value, error) {
	v, err := r.readAtom()
	if err != nil {
		return vm.Null, err
	}
	for r.curToken.Type == TokenLParen {
		r.nextToken()
		args, err := r.readSequence(TokenRParen)
		if err != nil {
			v.Release()
			return vm.Null, err
		}
		v = r.rt.Heap().NewExpr(v, args...)
	}
	return v, nil
}

func (r *Reader) readAtom() (vm.Value, error) {
	tok := r.curToken
	switch tok.Type {
	case TokenInteger:
		n, ok := new(big.Int).SetString(tok.Literal, 10)
		if !ok {
			return vm.Null, r.errorf("bad integer %q", tok.Literal)
		}
		r.nextToken()
		return r.rt.Heap().NewInteger(n), nil

	case TokenString:
		r.nextToken()
		return r.rt.Heap().NewString(tok.Literal), nil

	case TokenSymbol:
		r.nextToken()
		return r.rt.Symbols.Intern(tok.Literal).Value(), nil

	case TokenLBrace:
		r.nextToken()
		items, err := r.readSequence(TokenRBrace)
		if err != nil {
			return vm.Null, err
		}
		return r.rt.Heap().NewExpr(r.rt.Sym.List.Value(), items...), nil

	case TokenError:
		return vm.Null, r.errorf("%s", tok.Literal)
	}
	return vm.Null, r.errorf("unexpected %s", tok.Type)
}

// readSequence reads comma-separated expressions up to and including the
// closing token.
func (r *Reader) readSequence(closing TokenType) ([]vm.Value, error) {
	var items []vm.Value
	fail := func(err error) ([]vm.Value, error) {
		for _, it := range items {
			it.Release()
		}
		return nil, err
	}

	if r.curToken.Type == closing {
		r.nextToken()
		return items, nil
	}
	for {
		v, err := r.readExpr()
		if err != nil {
			return fail(err)
		}
		items = append(items, v)

		switch r.curToken.Type {
		case TokenComma:
			r.nextToken()
		case closing:
			r.nextToken()
			return items, nil
		default:
			return fail(r.errorf("expected ',' or %s, got %s", closing, r.curToken.Type))
		}
	}
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// Format renders v in FullForm. Format(Parse(s)) reproduces s up to
// whitespace, comments and list braces.
func Format(v vm.Ref) string { return v.String() }
