package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pmeval/store"
	"github.com/chazu/pmeval/vm"
)

func newTestSession(t *testing.T, st *store.Store, rt *vm.Runtime) (*Session, *bytes.Buffer) {
	t.Helper()
	if rt == nil {
		rt = vm.New(vm.Options{SweepInterval: -1})
		t.Cleanup(rt.Close)
	}
	var out bytes.Buffer
	s := NewSession(rt, st, &out)
	t.Cleanup(s.Close)
	return s, &out
}

func TestBatchEvaluation(t *testing.T) {
	s, out := newTestSession(t, nil, nil)
	input := strings.Join([]string{
		"SetDelayed(sq(Pattern(x, SingleMatch())), Times(x, x))",
		"",
		"sq(12)  sq(y)",
		"Plus(List(1, 2), List(1))",
		"Catch(Throw(done))",
		"Throw(lost)",
		"f(",
		":quit",
		"sq(3)",
	}, "\n")

	if err := runBatch(s, strings.NewReader(input)); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	want := []string{
		"144",
		"Times(y, y)",
		"General::tdlen: Objects of unequal length in Plus(List(1, 2), List(1)) cannot be combined.",
		"Plus(List(1), List(1, 2))",
		"done",
		"Throw::nocatch: Uncaught lost returned to top level.",
		"Syntax error:",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("output:\n%s\nwant %d lines", out.String(), len(want))
	}
	for i := range want {
		if !strings.HasPrefix(got[i], want[i]) {
			t.Errorf("line %d = %q, want prefix %q", i+1, got[i], want[i])
		}
	}
}

func TestAbortedEvaluationRecovers(t *testing.T) {
	s, out := newTestSession(t, nil, nil)
	s.Handle("Abort()")
	s.Handle("Plus(2, 2)")

	if got := out.String(); got != "$Aborted\n4\n" {
		t.Errorf("output = %q", got)
	}
	if s.rt.Abort.IsAborting() || s.rt.Abort.Reasons() != 0 {
		t.Error("abort still in effect")
	}
}

func TestCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.db")
	rt := vm.New(vm.Options{SweepInterval: -1})
	t.Cleanup(rt.Close)
	st, err := store.Open(path, rt)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s, out := newTestSession(t, st, rt)
	s.Handle("Set(a, 5)")
	s.Handle(":save")
	if !strings.Contains(out.String(), "Saved 1 definitions") {
		t.Errorf("save output = %q", out.String())
	}

	out.Reset()
	s.Handle("Unset(a)")
	s.Handle(":load a")
	s.Handle("a")
	if got := out.String(); got != "5\n" {
		t.Errorf("after :load a = %q, want 5", got)
	}

	out.Reset()
	s.Handle(":stats")
	if !strings.Contains(out.String(), "dispatch tables:") {
		t.Errorf(":stats output = %q", out.String())
	}

	out.Reset()
	s.Handle(":bogus")
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf("unknown command output = %q", out.String())
	}

	if err := s.Handle(":quit"); err != errQuit {
		t.Errorf(":quit = %v, want errQuit", err)
	}
}

func TestCommandsWithoutStore(t *testing.T) {
	s, out := newTestSession(t, nil, nil)
	s.Handle(":save")
	s.Handle(":load")
	if n := strings.Count(out.String(), "No definition store configured"); n != 2 {
		t.Errorf("output = %q", out.String())
	}
}
