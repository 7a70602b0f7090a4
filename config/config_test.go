package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/pmeval/vm"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pmeval.toml", `
[evaluation]
max_recursion = 1024
flatten_max_depth = 16

[dispatch]
limbo_size = 4
sweep_interval = "5s"
max_rules = 1000

[log]
verbosity = 2
file = "pmeval.log"

[store]
path = "defs.db"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Evaluation.MaxRecursion != 1024 {
		t.Errorf("max_recursion = %d, want 1024", c.Evaluation.MaxRecursion)
	}
	if c.Evaluation.FlattenMaxDepth != 16 {
		t.Errorf("flatten_max_depth = %d, want 16", c.Evaluation.FlattenMaxDepth)
	}
	if c.Dispatch.LimboSize != 4 || c.Dispatch.MaxRules != 1000 {
		t.Errorf("dispatch = %+v", c.Dispatch)
	}
	if c.Dispatch.SweepInterval != 5*time.Second {
		t.Errorf("sweep_interval = %v, want 5s", c.Dispatch.SweepInterval)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "pmeval.log" {
		t.Errorf("log = %+v", c.Log)
	}
	if want := filepath.Join(dir, "defs.db"); c.Store.Path != want {
		t.Errorf("store path = %q, want %q", c.Store.Path, want)
	}
	if c.Path != path {
		t.Errorf("Path = %q, want %q", c.Path, path)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pmeval.yaml", `
evaluation:
  max_recursion: 64
dispatch:
  sweep_interval: 1m
store:
  path: /var/lib/pmeval/defs.db
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Evaluation.MaxRecursion != 64 {
		t.Errorf("max_recursion = %d, want 64", c.Evaluation.MaxRecursion)
	}
	if c.Dispatch.SweepInterval != time.Minute {
		t.Errorf("sweep_interval = %v, want 1m", c.Dispatch.SweepInterval)
	}
	if c.Store.Path != "/var/lib/pmeval/defs.db" {
		t.Errorf("absolute store path rewritten to %q", c.Store.Path)
	}
	// untouched keys keep their defaults
	if c.Evaluation.FlattenMaxDepth != vm.DefaultFlattenMaxDepth {
		t.Errorf("flatten_max_depth = %d, want default", c.Evaluation.FlattenMaxDepth)
	}
	if c.Dispatch.LimboSize != vm.DefaultLimboSize {
		t.Errorf("limbo_size = %d, want default", c.Dispatch.LimboSize)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing file loaded")
	}

	bad := writeFile(t, dir, "bad.toml", "[evaluation\nmax_recursion = ")
	if _, err := Load(bad); err == nil {
		t.Error("malformed TOML loaded")
	}

	invalid := writeFile(t, dir, "invalid.toml", "[evaluation]\nmax_recursion = -1\n")
	_, err := Load(invalid)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("negative max_recursion: err = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero recursion", func(c *Config) { c.Evaluation.MaxRecursion = 0 }, false},
		{"zero flatten depth", func(c *Config) { c.Evaluation.FlattenMaxDepth = 0 }, false},
		{"negative limbo", func(c *Config) { c.Dispatch.LimboSize = -1 }, false},
		{"zero limbo", func(c *Config) { c.Dispatch.LimboSize = 0 }, true},
		{"negative sweep", func(c *Config) { c.Dispatch.SweepInterval = -time.Second }, false},
		{"zero max rules", func(c *Config) { c.Dispatch.MaxRules = 0 }, false},
		{"verbosity", func(c *Config) { c.Log.Verbosity = 9 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pmeval.toml", "[evaluation]\nmax_recursion = 77\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad found nothing")
	}
	if c.Evaluation.MaxRecursion != 77 {
		t.Errorf("max_recursion = %d, want 77", c.Evaluation.MaxRecursion)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	// A temp dir has no configuration above it unless the machine has one
	// at the filesystem root, which tests do not expect.
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil && filepath.Dir(c.Path) == "/" {
		t.Skip("configuration file at filesystem root")
	}
	if c != nil {
		t.Errorf("found %s", c.Path)
	}
}

func TestOptions(t *testing.T) {
	c := Default()
	opts := c.Options()
	if opts != vm.DefaultOptions() {
		t.Errorf("default options = %+v, want %+v", opts, vm.DefaultOptions())
	}

	c.Dispatch.LimboSize = 0
	c.Dispatch.SweepInterval = 0
	opts = c.Options()
	if opts.LimboSize >= 0 || opts.SweepInterval >= 0 {
		t.Errorf("zero limbo and sweep interval should disable both, got %+v", opts)
	}

	rt := vm.New(opts)
	defer rt.Close()
	if rt.Sweeper() != nil {
		t.Error("runtime started a sweeper with sweeping disabled")
	}
}
