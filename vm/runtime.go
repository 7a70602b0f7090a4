package vm

import (
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Runtime: the process-wide evaluation context
// ---------------------------------------------------------------------------

// Options tunes a Runtime. The zero value of a field selects its default.
type Options struct {
	// MaxRecursion bounds the evaluation depth of one thread.
	MaxRecursion int
	// FlattenMaxDepth bounds how deeply Flat heads are spliced.
	FlattenMaxDepth int
	// LimboSize is the capacity of the dispatch cache's limbo ring.
	LimboSize int
	// SweepInterval is the period of the limbo sweeper. A negative value
	// disables periodic sweeping.
	SweepInterval time.Duration
	// MaxRules limits the number of keys a dispatch table may index.
	MaxRules int
	// MessageLogSize caps the number of recorded messages.
	MessageLogSize int
}

const (
	DefaultMaxRecursion    = 256
	DefaultFlattenMaxDepth = 64
	DefaultMessageLogSize  = 1000
)

// DefaultOptions returns the options New uses for zero fields.
func DefaultOptions() Options {
	return Options{
		MaxRecursion:    DefaultMaxRecursion,
		FlattenMaxDepth: DefaultFlattenMaxDepth,
		LimboSize:       DefaultLimboSize,
		SweepInterval:   DefaultSweepInterval,
		MaxRules:        DefaultMaxRules,
		MessageLogSize:  DefaultMessageLogSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRecursion <= 0 {
		o.MaxRecursion = d.MaxRecursion
	}
	if o.FlattenMaxDepth <= 0 {
		o.FlattenMaxDepth = d.FlattenMaxDepth
	}
	if o.LimboSize == 0 {
		o.LimboSize = d.LimboSize
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.MaxRules <= 0 {
		o.MaxRules = d.MaxRules
	}
	if o.MessageLogSize == 0 {
		o.MessageLogSize = d.MessageLogSize
	}
	return o
}

// Runtime owns everything shared between evaluating threads: the heap and
// its change timer, the symbol table, the dispatch cache and the abort
// controller.
type Runtime struct {
	heap    *Heap
	Symbols *SymbolTable
	Sym     Builtins

	Dispatch *DispatchCache
	Abort    *AbortController

	sweeper *LimboSweeper
	eval    *Evaluator
	log     loggers
	opts    Options

	msgMu    sync.Mutex
	messages []Message

	threads   sync.WaitGroup
	closeOnce sync.Once
}

// New creates a runtime with the builtin symbols installed and starts its
// limbo sweeper.
func New(opts Options) *Runtime {
	opts = opts.withDefaults()
	heap := NewHeap()
	rt := &Runtime{
		heap:    heap,
		Symbols: NewSymbolTable(heap),
		Abort:   NewAbortController(),
		log:     newLoggers(),
		opts:    opts,
	}
	rt.Dispatch = NewDispatchCache(heap, rt.IsConst, opts.LimboSize, opts.MaxRules)
	rt.eval = &Evaluator{rt: rt, maxDepth: opts.MaxRecursion, flattenDepth: opts.FlattenMaxDepth}
	rt.Sym.intern(rt.Symbols)
	rt.installBuiltins()

	if opts.SweepInterval > 0 {
		rt.sweeper = NewLimboSweeper(rt.Dispatch, opts.SweepInterval)
		rt.sweeper.Start()
	}
	return rt
}

// Heap returns the runtime's heap.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// Evaluator returns the runtime's evaluator.
func (rt *Runtime) Evaluator() *Evaluator { return rt.eval }

// Options returns the effective options.
func (rt *Runtime) Options() Options { return rt.opts }

// Sweeper returns the limbo sweeper, or nil when sweeping is disabled.
func (rt *Runtime) Sweeper() *LimboSweeper { return rt.sweeper }

// Evaluate evaluates v on th, consuming v.
func (rt *Runtime) Evaluate(th *Thread, v Value) Value {
	return rt.eval.Evaluate(th, v)
}

// RegisterHook attaches builtin code to the named symbol.
func (rt *Runtime) RegisterHook(name string, kind HookKind, h Hook) *Symbol {
	sym := rt.Symbols.Intern(name)
	sym.SetHook(kind, h)
	return sym
}

// Close waits for spawned threads, stops the sweeper and destroys the
// tables parked in limbo.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.threads.Wait()
		if rt.sweeper != nil {
			rt.sweeper.Stop()
		}
		n := rt.Dispatch.FlushLimbo()
		rt.log.eval.Debugf("runtime closed, %d parked dispatch tables destroyed", n)
	})
}
