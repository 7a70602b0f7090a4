// pmeval CLI - evaluates FullForm expressions interactively or in batch
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/chazu/pmeval/config"
	"github.com/chazu/pmeval/store"
	"github.com/chazu/pmeval/vm"
)

func main() {
	configPath := flag.String("config", "", "Configuration file (default: pmeval.toml found upwards from the current directory)")
	dbPath := flag.String("db", "", "Definition database (overrides store.path)")
	noLoad := flag.Bool("no-load", false, "Do not load stored definitions at startup")
	verbosity := flag.Int("v", -100, "Log verbosity (overrides log.verbosity)")
	logFile := flag.String("log", "", "Log file (overrides log.file)")
	maxRecursion := flag.Int("max-recursion", 0, "Evaluation depth limit (overrides evaluation.max_recursion)")
	expr := flag.String("e", "", "Evaluate the expression, print the result and exit")
	interactive := flag.Bool("i", false, "Force the interactive REPL even when stdin is not a terminal")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pmeval [options]\n\n")
		fmt.Fprintf(os.Stderr, "Reads FullForm expressions, one or more per line, and prints their values.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pmeval                                   # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  pmeval -e 'Plus(1, 2, x)'                # Evaluate one expression\n")
		fmt.Fprintf(os.Stderr, "  pmeval -db defs.db < definitions.txt     # Batch mode, then :save\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *verbosity != -100 {
		cfg.Log.Verbosity = *verbosity
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *maxRecursion > 0 {
		cfg.Evaluation.MaxRecursion = *maxRecursion
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logPath)
	log := commonlog.GetLogger("pmeval")
	if cfg.Path != "" {
		log.Infof("configuration loaded from %s", cfg.Path)
	}

	rt := vm.New(cfg.Options())
	defer rt.Close()

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path, rt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		if !*noLoad {
			if _, err := st.LoadAll(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: loading definitions: %v\n", err)
			}
		}
	}

	// Ctrl-C aborts the running evaluation instead of the process
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			log.Notice("interrupt: aborting evaluation")
			rt.Abort.AbortPlease()
		}
	}()

	session := NewSession(rt, st, os.Stdout)
	defer session.Close()

	switch {
	case *expr != "":
		session.Handle(*expr)
	case *interactive || term.IsTerminal(int(os.Stdin.Fd())):
		runREPL(session)
	default:
		if err := runBatch(session, os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadConfig reads the named file, or searches upwards from the current
// directory, falling back to the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}
