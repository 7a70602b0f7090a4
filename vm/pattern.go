package vm

// ---------------------------------------------------------------------------
// Pattern matching
// ---------------------------------------------------------------------------

// Matcher decides whether a subject matches a rule's left-hand side.
type Matcher interface {
	// Match reports whether subject matches pattern. On success result is
	// rhs with the match's bindings substituted. A right-hand side of the
	// form Condition(body, test) only matches when test evaluates to True,
	// and the result is then body.
	Match(subject, pattern, rhs Ref) (result Value, ok bool)
}

type binding struct {
	name  *Symbol
	value Ref // borrowed from the subject
}

// patternMatcher is the evaluator's Matcher. It is used by one goroutine
// at a time.
type patternMatcher struct {
	ev    *Evaluator
	th    *Thread
	binds []binding
}

func (ev *Evaluator) matcher(th *Thread) *patternMatcher {
	return &patternMatcher{ev: ev, th: th}
}

func (m *patternMatcher) Match(subject, pattern, rhs Ref) (Value, bool) {
	m.binds = m.binds[:0]
	if !m.match(subject, pattern) {
		return Null, false
	}
	if rhs.HasHead(m.ev.rt.Sym.Condition, 2) {
		c := rhs.Expr()
		if !m.test(c.Arg(2)) {
			return Null, false
		}
		return m.substitute(c.Arg(1)), true
	}
	return m.substitute(rhs), true
}

func (m *patternMatcher) lookup(name *Symbol) (Ref, bool) {
	for i := len(m.binds) - 1; i >= 0; i-- {
		if m.binds[i].name == name {
			return m.binds[i].value, true
		}
	}
	return Ref{}, false
}

func (m *patternMatcher) match(subject, pattern Ref) bool {
	p := pattern.Expr()
	if p == nil {
		return Equal(subject, pattern)
	}

	s := &m.ev.rt.Sym
	mark := len(m.binds)
	switch head := p.Head().Symbol(); {
	case head == nil:
	case head == s.SingleMatch && p.Len() <= 1:
		return p.Len() == 0 || Equal(m.ev.HeadOf(subject), p.Arg(1))

	case head == s.Pattern && p.Len() == 2:
		name := p.Arg(1).Symbol()
		if name == nil {
			return false
		}
		if bound, ok := m.lookup(name); ok {
			return Equal(bound, subject)
		}
		if !m.match(subject, p.Arg(2)) {
			m.binds = m.binds[:mark]
			return false
		}
		m.binds = append(m.binds, binding{name: name, value: subject})
		return true

	case head == s.Condition && p.Len() == 2:
		if m.match(subject, p.Arg(1)) && m.test(p.Arg(2)) {
			return true
		}
		m.binds = m.binds[:mark]
		return false

	case head == s.Alternatives:
		for i := 1; i <= p.Len(); i++ {
			if m.match(subject, p.Arg(i)) {
				return true
			}
			m.binds = m.binds[:mark]
		}
		return false

	case head == s.HoldPattern && p.Len() == 1:
		return m.match(subject, p.Arg(1))

	case head == s.TestPattern && p.Len() == 2:
		if !m.match(subject, p.Arg(1)) {
			return false
		}
		call := m.ev.rt.heap.NewExpr(p.Arg(2).Clone(), subject.Clone())
		if m.isTrue(call) {
			return true
		}
		m.binds = m.binds[:mark]
		return false

	case head == s.Except && p.Len() == 1:
		ok := m.match(subject, p.Arg(1))
		m.binds = m.binds[:mark]
		return !ok
	}

	se := subject.Expr()
	if se == nil || se.Len() != p.Len() {
		return false
	}
	for i := range p.items {
		if !m.match(se.items[i].Ref, p.items[i].Ref) {
			m.binds = m.binds[:mark]
			return false
		}
	}
	return true
}

// test evaluates a guard with the current bindings substituted.
func (m *patternMatcher) test(guard Ref) bool {
	return m.isTrue(m.substitute(guard))
}

func (m *patternMatcher) isTrue(v Value) bool {
	r := m.ev.Evaluate(m.th, v)
	ok := r.SameAs(m.ev.rt.Sym.True.Ref())
	r.Release()
	return ok
}

func (m *patternMatcher) substitute(r Ref) Value {
	if len(m.binds) == 0 {
		return r.Clone()
	}
	return substitute(m.ev.rt.heap, r, m.lookup)
}

// substitute replaces bound symbols inside r. Unchanged subtrees are
// shared with r.
func substitute(h *Heap, r Ref, lookup func(*Symbol) (Ref, bool)) Value {
	switch r.kind {
	case KindSymbol:
		if v, ok := lookup(r.Symbol()); ok {
			return v.Clone()
		}
	case KindExpr:
		e := r.Expr()
		var items []Value
		for i, it := range e.items {
			nv := substitute(h, it.Ref, lookup)
			if items == nil {
				if nv.SameAs(it.Ref) {
					nv.Release()
					continue
				}
				items = make([]Value, len(e.items))
				for j := 0; j < i; j++ {
					items[j] = e.items[j].Clone()
				}
			}
			items[i] = nv
		}
		if items != nil {
			return h.exprFromItems(items)
		}
	}
	return r.Clone()
}

// IsConst reports whether pattern contains no pattern constructs, so that
// it can only match values equal to itself.
func (rt *Runtime) IsConst(pattern Ref) bool {
	p := pattern.Expr()
	if p == nil {
		return true
	}
	s := &rt.Sym
	n := p.Len()
	switch p.Head().Symbol() {
	case nil:
	case s.Condition, s.Pattern, s.TestPattern:
		if n == 2 {
			return false
		}
	case s.Alternatives:
		return false
	case s.HoldPattern:
		if n == 1 {
			return false
		}
	case s.Except:
		if n == 1 || n == 2 {
			return false
		}
	case s.SingleMatch:
		if n <= 1 {
			return false
		}
	}
	for _, it := range p.items {
		if !rt.IsConst(it.Ref) {
			return false
		}
	}
	return true
}
