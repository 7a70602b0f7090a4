package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
)

const historyFile = ".pmeval_history"

// runREPL starts an interactive read-eval-print loop with line editing.
func runREPL(s *Session) {
	fmt.Fprintln(s.out, "pmeval REPL (':help' for commands, ':quit' or Ctrl-D to leave)")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	for n := 1; ; n++ {
		input, err := line.Prompt(fmt.Sprintf("In[%d]:= ", n))
		if errors.Is(err, liner.ErrPromptAborted) {
			n--
			continue
		}
		if err != nil {
			// io.EOF on Ctrl-D
			fmt.Fprintln(s.out)
			break
		}
		if input != "" {
			line.AppendHistory(input)
		}
		if err := s.Handle(input); errors.Is(err, errQuit) {
			break
		}
	}

	if histPath != "" {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
}

// runBatch evaluates every line of r in order.
func runBatch(s *Session, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := s.Handle(scanner.Text()); errors.Is(err, errQuit) {
			return nil
		}
	}
	return scanner.Err()
}
