package fullform

import (
	"errors"
	"testing"

	"github.com/chazu/pmeval/vm"
)

func newRuntime(t *testing.T) *vm.Runtime {
	t.Helper()
	rt := vm.New(vm.Options{SweepInterval: -1})
	t.Cleanup(rt.Close)
	return rt
}

func TestLexerTokens(t *testing.T) {
	l := NewLexer(`f(-12, "a\"b", {x$1}) (* note (* nested *) *)`)
	want := []struct {
		typ TokenType
		lit string
	}{
		{TokenSymbol, "f"},
		{TokenLParen, "("},
		{TokenInteger, "-12"},
		{TokenComma, ","},
		{TokenString, `a"b`},
		{TokenComma, ","},
		{TokenLBrace, "{"},
		{TokenSymbol, "x$1"},
		{TokenRBrace, "}"},
		{TokenRParen, ")"},
		{TokenEOF, ""},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w.typ || tok.Literal != w.lit {
			t.Fatalf("token %d = %s %q, want %s %q", i, tok.Type, tok.Literal, w.typ, w.lit)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  b")
	if tok := l.NextToken(); tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("a at %s, want 1:1", tok.Pos)
	}
	if tok := l.NextToken(); tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("b at %s, want 2:3", tok.Pos)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	rt := newRuntime(t)
	tests := []string{
		`x`,
		`42`,
		`-7`,
		`123456789012345678901234567890`,
		`"hello\nworld"`,
		`f()`,
		`f(a, g(b, 1), "s")`,
		`f(x)(y)`,
		`SetDelayed(f(Pattern(n, SingleMatch())), Times(n, 2))`,
	}
	for _, src := range tests {
		v, err := Parse(rt, src)
		if err != nil {
			t.Errorf("Parse(%q): %v", src, err)
			continue
		}
		if got := Format(v.Ref); got != src {
			t.Errorf("Format(Parse(%q)) = %q", src, got)
		}
		v.Release()
	}
}

func TestParseListShorthand(t *testing.T) {
	rt := newRuntime(t)
	v := MustParse(rt, `{1, {}, {a}}`)
	defer v.Release()
	if got, want := Format(v.Ref), "List(1, List(), List(a))"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	rt := newRuntime(t)
	tests := []string{
		``,
		`f(`,
		`f(a b)`,
		`"open`,
		`(* open`,
		`)`,
		`a b`,
		`f(a,)`,
		`#`,
	}
	for _, src := range tests {
		v, err := Parse(rt, src)
		if err == nil {
			t.Errorf("Parse(%q) = %s, want error", src, Format(v.Ref))
			v.Release()
			continue
		}
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) error %v does not wrap ErrSyntax", src, err)
		}
	}
}

func TestParseReleasesOnError(t *testing.T) {
	rt := newRuntime(t)
	before := rt.Heap().Live()
	if _, err := Parse(rt, `f(g(1, "s"), h(`); err == nil {
		t.Fatal("expected error")
	}
	if after := rt.Heap().Live(); after != before {
		t.Errorf("live objects %d -> %d after failed parse", before, after)
	}
}

func TestParseAll(t *testing.T) {
	rt := newRuntime(t)
	vs, err := ParseAll(rt, "a\nf(b)\n\n(* c *) 3")
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 {
		t.Fatalf("got %d expressions, want 3", len(vs))
	}
	want := []string{"a", "f(b)", "3"}
	for i, v := range vs {
		if got := Format(v.Ref); got != want[i] {
			t.Errorf("expression %d = %s, want %s", i, got, want[i])
		}
		v.Release()
	}
}
