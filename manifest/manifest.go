// Package manifest handles indy.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/indy/vm"
)

// FileName is the name of the project configuration file.
const FileName = "indy.toml"

// Manifest represents an indy.toml project configuration.
type Manifest struct {
	Linker  LinkerConfig  `toml:"linker"`
	Species SpeciesConfig `toml:"species"`
	AOT     AOTConfig     `toml:"aot"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the indy.toml file (set at load time).
	Dir string `toml:"-"`
}

// LinkerConfig configures the linking runtime.
type LinkerConfig struct {
	CompileThreshold  int    `toml:"compile-threshold"`
	BackgroundCompile bool   `toml:"background-compile"`
	Trace             string `toml:"trace"`
	MaxClasses        int    `toml:"max-classes"`
}

// SpeciesConfig configures carrier generation.
type SpeciesConfig struct {
	Owner string `toml:"owner"`
}

// AOTConfig configures archive emission.
type AOTConfig struct {
	Archive  string `toml:"archive"`
	Store    string `toml:"store"`
	Path     string `toml:"path"`
	Compress bool   `toml:"compress"`
	Workers  int    `toml:"workers"`
	Report   string `toml:"report"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses an indy.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and applies defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.applyDefaults()
	return &m, nil
}

// Default returns the manifest used when no indy.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Species.Owner == "" {
		m.Species.Owner = vm.DefaultSpeciesOwner
	}
	if m.AOT.Archive == "" {
		m.AOT.Archive = "default"
	}
	if m.AOT.Store == "" {
		m.AOT.Store = "file"
	}
	if m.AOT.Path == "" {
		if m.AOT.Store == "sqlite" {
			m.AOT.Path = filepath.Join(".indy", "archives.db")
		} else {
			m.AOT.Path = filepath.Join(".indy", "archives")
		}
	}
}

// FindAndLoad walks up from startDir to find an indy.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Resolve returns p relative to the manifest directory unless it is
// absolute.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// RuntimeOptions maps the configuration onto runtime options. The trace
// file, if any, is opened by the caller.
func (m *Manifest) RuntimeOptions() vm.Options {
	return vm.Options{
		CompileThreshold:  m.Linker.CompileThreshold,
		BackgroundCompile: m.Linker.BackgroundCompile,
		MaxClasses:        m.Linker.MaxClasses,
		SpeciesOwner:      m.Species.Owner,
	}
}

// ConfigureLogging sets up commonlog from the [log] section.
// verbosityBoost is added to the configured verbosity.
func (m *Manifest) ConfigureLogging(verbosityBoost int) {
	var path *string
	if m.Log.File != "" {
		p := m.Resolve(m.Log.File)
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity+verbosityBoost, path)
}
