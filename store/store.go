// Package store persists symbol definitions (attributes, own value and
// rules) in a SQLite database, with expressions encoded as canonical CBOR.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/pmeval/vm"
)

// ErrNotFound indicates the requested symbol has no stored definition.
var ErrNotFound = errors.New("definition not found")

// ErrProtected is returned when a stored definition would overwrite a
// Protected symbol.
var ErrProtected = errors.New("symbol is protected")

// ruleColumns orders the rule stores as the down_rules, up_rules and
// sub_rules columns.
var ruleColumns = [...]struct{ kind vm.RuleKind }{
	{vm.DownRules},
	{vm.UpRules},
	{vm.SubRules},
}

// Store handles SQLite storage of symbol definitions.
type Store struct {
	db   *sql.DB
	path string
	rt   *vm.Runtime
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens (creating if needed) the definition database at path.
// Definitions are read into and written from rt.
func Open(path string, rt *vm.Runtime) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS definitions (
		name TEXT PRIMARY KEY,
		attributes INTEGER NOT NULL,
		own_value BLOB,
		down_rules BLOB,
		up_rules BLOB,
		sub_rules BLOB,
		saved_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
		rt:   rt,
		log:  commonlog.GetLogger("pmeval.store"),
	}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// row is one symbol's encoded definition. Nil blobs mean "none".
type row struct {
	attrs vm.Attributes
	value []byte
	rules [len(ruleColumns)][]byte
}

func encodeSymbol(sym *vm.Symbol) (row, error) {
	r := row{attrs: sym.Attributes()}

	v := sym.OwnValue()
	defer v.Release()
	if !v.IsUndefined() {
		b, err := Encode(v.Ref)
		if err != nil {
			return r, fmt.Errorf("encoding value of %s: %w", sym.Name(), err)
		}
		r.value = b
	}

	for i, rc := range ruleColumns {
		list := sym.Rules(rc.kind).Rules()
		if list.IsNull() {
			continue
		}
		b, err := Encode(list.Ref)
		list.Release()
		if err != nil {
			return r, fmt.Errorf("encoding %s of %s: %w", rc.kind, sym.Name(), err)
		}
		r.rules[i] = b
	}
	return r, nil
}

const upsert = `INSERT OR REPLACE INTO definitions
	(name, attributes, own_value, down_rules, up_rules, sub_rules, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Save writes sym's attributes, own value and rules, replacing any stored
// definition. Builtin code is not stored.
func (s *Store) Save(sym *vm.Symbol) error {
	r, err := encodeSymbol(sym)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(upsert, sym.Name(), int64(r.attrs), r.value,
		r.rules[0], r.rules[1], r.rules[2], time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving %s: %w", sym.Name(), err)
	}
	return nil
}

// SaveAll writes every symbol that carries a user definition in one
// transaction and returns how many were written.
func (s *Store) SaveAll() (int, error) {
	var syms []*vm.Symbol
	for _, sym := range s.rt.Symbols.All() {
		if HasDefinition(sym) {
			syms = append(syms, sym)
		}
	}

	rows := make([]row, len(syms))
	for i, sym := range syms {
		r, err := encodeSymbol(sym)
		if err != nil {
			return 0, err
		}
		rows[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	now := time.Now().Unix()
	for i, sym := range syms {
		r := rows[i]
		if _, err := tx.Exec(upsert, sym.Name(), int64(r.attrs), r.value,
			r.rules[0], r.rules[1], r.rules[2], now); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("saving %s: %w", sym.Name(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing definitions: %w", err)
	}
	s.log.Infof("saved %d definitions to %s", len(syms), s.path)
	return len(syms), nil
}

// HasDefinition reports whether sym has an own value, rules, or attributes
// set on an unprotected symbol without builtin code.
func HasDefinition(sym *vm.Symbol) bool {
	v := sym.OwnValue()
	defined := !v.IsUndefined()
	v.Release()
	if defined {
		return true
	}
	for _, rc := range ruleColumns {
		if sym.Rules(rc.kind).Len() > 0 {
			return true
		}
	}
	if a := sym.Attributes(); a == 0 || a&vm.Protected != 0 {
		return false
	}
	for k := vm.EarlyCode; k <= vm.SubCode; k++ {
		if sym.Hook(k) != nil {
			return false
		}
	}
	return true
}

// Load reads the stored definition of name into its symbol, replacing the
// symbol's attributes, own value and rules. A Protected symbol is left
// alone: Load reports Set::wrsym and returns ErrProtected.
func (s *Store) Load(name string) (*vm.Symbol, error) {
	var (
		attrs int64
		r     row
	)
	err := s.db.QueryRow(`SELECT attributes, own_value, down_rules, up_rules, sub_rules
		FROM definitions WHERE name = ?`, name).
		Scan(&attrs, &r.value, &r.rules[0], &r.rules[1], &r.rules[2])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}
	r.attrs = vm.Attributes(attrs)

	sym := s.rt.Symbols.Intern(name)
	if sym.Attributes()&vm.Protected != 0 {
		s.rt.Message(s.rt.Sym.Set, "wrsym", sym.Ref())
		return nil, fmt.Errorf("%s: %w", name, ErrProtected)
	}
	if err := s.install(sym, r); err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return sym, nil
}

// LoadAll reads every stored definition and returns how many were
// installed. Protected symbols are skipped. On error the count covers the
// definitions installed before it.
func (s *Store) LoadAll() (int, error) {
	names, err := s.Names()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		if _, err := s.Load(name); err != nil {
			if errors.Is(err, ErrProtected) {
				s.log.Warningf("not loading %s: %s", name, err)
				continue
			}
			return n, err
		}
		n++
	}
	s.log.Infof("loaded %d of %d definitions from %s", n, len(names), s.path)
	return n, nil
}

// install decodes every part of r before touching sym, so a corrupt row
// leaves the symbol as it was.
func (s *Store) install(sym *vm.Symbol, r row) error {
	value := vm.Undefined()
	if r.value != nil {
		v, err := Decode(s.rt, r.value)
		if err != nil {
			return err
		}
		value = v
	}

	var lists [len(ruleColumns)]vm.Value
	for i, b := range r.rules {
		if b == nil {
			continue
		}
		list, err := Decode(s.rt, b)
		if err == nil && !list.HasHead(s.rt.Sym.List, -1) {
			list.Release()
			err = fmt.Errorf("%w: %s is not a rule list", ErrMalformed, ruleColumns[i].kind)
		}
		if err != nil {
			value.Release()
			for _, l := range lists {
				l.Release()
			}
			return err
		}
		lists[i] = list
	}

	sym.SetAttributes(r.attrs)
	sym.SetOwnValue(value)
	for i, rc := range ruleColumns {
		sym.Rules(rc.kind).Replace(lists[i])
	}
	s.log.Debugf("loaded definition of %s", sym.Name())
	return nil
}

// Delete removes the stored definition of name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM definitions WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return nil
}

// Names lists the stored symbol names in order.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM definitions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing definitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing definitions: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
