package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/indy/vm"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with an indy.toml
	dir := t.TempDir()
	tomlContent := `
[linker]
compile-threshold = 5
background-compile = true
trace = "linker.trace"
max-classes = 64

[species]
owner = "Carrier"

[aot]
archive = "app"
store = "sqlite"
path = "stubs.db"
compress = true
workers = 3
report = "stubs.yaml"

[log]
verbosity = 2
file = "indy.log"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Linker.CompileThreshold != 5 {
		t.Errorf("compile-threshold = %d, want 5", m.Linker.CompileThreshold)
	}
	if !m.Linker.BackgroundCompile {
		t.Error("background-compile = false, want true")
	}
	if m.Linker.Trace != "linker.trace" {
		t.Errorf("trace = %q, want linker.trace", m.Linker.Trace)
	}
	if m.Species.Owner != "Carrier" {
		t.Errorf("species owner = %q, want Carrier", m.Species.Owner)
	}
	if m.AOT.Store != "sqlite" || m.AOT.Path != "stubs.db" || !m.AOT.Compress || m.AOT.Workers != 3 {
		t.Errorf("aot = %+v", m.AOT)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "indy.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if got := m.Resolve(m.AOT.Path); got != filepath.Join(m.Dir, "stubs.db") {
		t.Errorf("Resolve = %q", got)
	}

	opts := m.RuntimeOptions()
	if opts.CompileThreshold != 5 || !opts.BackgroundCompile || opts.MaxClasses != 64 || opts.SpeciesOwner != "Carrier" {
		t.Errorf("RuntimeOptions = %+v", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[linker]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Species.Owner != vm.DefaultSpeciesOwner {
		t.Errorf("species owner = %q, want %q", m.Species.Owner, vm.DefaultSpeciesOwner)
	}
	if m.AOT.Archive != "default" || m.AOT.Store != "file" {
		t.Errorf("aot defaults = %+v", m.AOT)
	}
	if m.AOT.Path != filepath.Join(".indy", "archives") {
		t.Errorf("aot path = %q", m.AOT.Path)
	}
}

func TestSQLiteDefaultPath(t *testing.T) {
	m, err := Parse([]byte("[aot]\nstore = \"sqlite\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if m.AOT.Path != filepath.Join(".indy", "archives.db") {
		t.Errorf("aot path = %q", m.AOT.Path)
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse([]byte("[linker\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[species]\nowner = \"Up\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Species.Owner != "Up" {
		t.Errorf("species owner = %q, want Up", m.Species.Owner)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	// A temp dir may sit under a directory holding an indy.toml; only a nil
	// result with no error is checked when none exists.
	if m != nil && m.Dir == "" {
		t.Error("manifest without directory")
	}
}
