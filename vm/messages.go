package vm

import (
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Messages: user-visible diagnostics
// ---------------------------------------------------------------------------

// Message is one reported diagnostic, such as General::reclim.
type Message struct {
	Symbol string
	Tag    string
	Args   []string
	Text   string
}

// Name returns the message name in Symbol::tag form.
func (m Message) Name() string { return m.Symbol + "::" + m.Tag }

func (m Message) String() string { return m.Name() + ": " + m.Text }

// messageTemplates holds texts with `n` placeholders for the n-th argument.
var messageTemplates = map[string]string{
	"General::reclim": "Recursion depth of `1` exceeded during evaluation of `2`.",
	"General::tdlen":  "Objects of unequal length in `1` cannot be combined.",
	"Throw::nocatch":  "Uncaught `1` returned to top level.",
	"Thread::lstl":    "Exception `1` from a child thread was lost because its parent already terminated.",
	"Set::wrsym":      "Symbol `1` is Protected.",
	"Set::setraw":     "Cannot assign to raw object `1`.",

	"SetAttributes::unknownattr": "`1` is not a known attribute.",
}

type loggers struct {
	eval   commonlog.Logger
	thread commonlog.Logger
}

func newLoggers() loggers {
	return loggers{
		eval:   commonlog.GetLogger("pmeval.eval"),
		thread: commonlog.GetLogger("pmeval.thread"),
	}
}

// Message reports sym::tag with the given arguments. It is logged at
// notice level and recorded in the runtime's message log.
func (rt *Runtime) Message(sym *Symbol, tag string, args ...Ref) {
	m := Message{Symbol: sym.name, Tag: tag, Args: make([]string, len(args))}
	for i, a := range args {
		m.Args[i] = a.String()
	}

	if tmpl, ok := messageTemplates[m.Name()]; ok {
		m.Text = expandTemplate(tmpl, m.Args)
	} else {
		m.Text = strings.Join(m.Args, ", ")
	}

	rt.msgMu.Lock()
	rt.messages = append(rt.messages, m)
	if over := len(rt.messages) - rt.opts.MessageLogSize; rt.opts.MessageLogSize > 0 && over > 0 {
		rt.messages = append(rt.messages[:0], rt.messages[over:]...)
	}
	rt.msgMu.Unlock()

	log := rt.log.eval
	if sym == rt.Sym.Thread || sym == rt.Sym.Throw {
		log = rt.log.thread
	}
	log.Notice(m.String())
}

func expandTemplate(tmpl string, args []string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '`')
		if i < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		j := strings.IndexByte(tmpl[i+1:], '`')
		if j < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		b.WriteString(tmpl[:i])
		n, err := strconv.Atoi(tmpl[i+1 : i+1+j])
		if err == nil && n >= 1 && n <= len(args) {
			b.WriteString(args[n-1])
		} else {
			b.WriteString(tmpl[i : i+2+j])
		}
		tmpl = tmpl[i+2+j:]
	}
}

// Messages returns the recorded messages, oldest first.
func (rt *Runtime) Messages() []Message {
	rt.msgMu.Lock()
	defer rt.msgMu.Unlock()
	out := make([]Message, len(rt.messages))
	copy(out, rt.messages)
	return out
}

// ClearMessages empties the message log.
func (rt *Runtime) ClearMessages() {
	rt.msgMu.Lock()
	rt.messages = nil
	rt.msgMu.Unlock()
}
