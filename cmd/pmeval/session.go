package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/pmeval/fullform"
	"github.com/chazu/pmeval/store"
	"github.com/chazu/pmeval/vm"
)

// errQuit is returned by Handle when the user asks to leave.
var errQuit = errors.New("quit")

// Session evaluates input lines on one top-level thread and writes results
// and messages to out.
type Session struct {
	rt    *vm.Runtime
	th    *vm.Thread
	store *store.Store
	out   io.Writer
}

// NewSession creates a session on rt. st may be nil.
func NewSession(rt *vm.Runtime, st *store.Store, out io.Writer) *Session {
	return &Session{rt: rt, th: rt.NewThread(nil), store: st, out: out}
}

// Close finishes the session's thread.
func (s *Session) Close() { s.th.Finish() }

// Handle processes one input line: a REPL command starting with ':' or
// FullForm expressions to evaluate.
func (s *Session) Handle(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, ":"):
		return s.command(line)
	}

	exprs, err := fullform.ParseAll(s.rt, line)
	if err != nil {
		fmt.Fprintf(s.out, "Syntax error: %v\n", err)
		return nil
	}
	for _, v := range exprs {
		s.evaluate(v)
	}
	return nil
}

func (s *Session) evaluate(v vm.Value) {
	result := s.rt.Evaluate(s.th, v)
	s.printMessages()

	ex := s.rt.Abort.Catch(s.th)
	switch {
	case ex.IsAbort():
		fmt.Fprintln(s.out, "$Aborted")
		result.Release()
		s.rt.Abort.ContinueAfterAbort(s.th)
		return
	case !ex.IsUndefined():
		fmt.Fprintf(s.out, "Throw::nocatch: Uncaught %s returned to top level.\n", fullform.Format(ex.Ref))
		ex.Release()
		result.Release()
		s.rt.Abort.ContinueAfterAbort(s.th)
		return
	}
	if s.rt.Abort.IsAborting() {
		s.rt.Abort.ContinueAfterAbort(s.th)
	}

	if !result.IsNull() {
		fmt.Fprintln(s.out, fullform.Format(result.Ref))
	}
	result.Release()
}

func (s *Session) printMessages() {
	for _, m := range s.rt.Messages() {
		fmt.Fprintln(s.out, m.String())
	}
	s.rt.ClearMessages()
}

func (s *Session) command(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return errQuit

	case ":help":
		fmt.Fprintln(s.out, "Commands:")
		fmt.Fprintln(s.out, "  :save [name...]   Save definitions to the store")
		fmt.Fprintln(s.out, "  :load [name...]   Load definitions from the store")
		fmt.Fprintln(s.out, "  :stats            Show dispatch cache statistics")
		fmt.Fprintln(s.out, "  :flush            Destroy dispatch tables parked in limbo")
		fmt.Fprintln(s.out, "  :quit             Leave")

	case ":stats":
		st := s.rt.Dispatch.Stats()
		fmt.Fprintf(s.out, "dispatch tables: %d cached, %d in limbo\n", st.Tables, st.Limbo)
		fmt.Fprintf(s.out, "lookups: %d hits, %d misses, %d builds\n", st.Hits, st.Misses, st.Builds)
		fmt.Fprintf(s.out, "live objects: %d\n", s.rt.Heap().Live())

	case ":flush":
		fmt.Fprintf(s.out, "%d dispatch tables destroyed\n", s.rt.Dispatch.FlushLimbo())

	case ":save":
		if s.store == nil {
			fmt.Fprintln(s.out, "No definition store configured")
			return nil
		}
		if len(fields) == 1 {
			n, err := s.store.SaveAll()
			if err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
				return nil
			}
			fmt.Fprintf(s.out, "Saved %d definitions\n", n)
			return nil
		}
		for _, name := range fields[1:] {
			if err := s.store.Save(s.rt.Symbols.Intern(name)); err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
		}

	case ":load":
		if s.store == nil {
			fmt.Fprintln(s.out, "No definition store configured")
			return nil
		}
		if len(fields) == 1 {
			n, err := s.store.LoadAll()
			if err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
				return nil
			}
			fmt.Fprintf(s.out, "Loaded %d definitions\n", n)
			return nil
		}
		for _, name := range fields[1:] {
			if _, err := s.store.Load(name); err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
		}

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try :help)\n", fields[0])
	}
	return nil
}
