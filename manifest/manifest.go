// Package manifest handles lox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "lox.toml"

// Manifest represents a lox.toml project configuration.
//
// The json tags mirror the toml ones so the manifest can be handed to the
// schema validator unchanged.
type Manifest struct {
	Project Project      `toml:"project" json:"project"`
	VM      VMConfig     `toml:"vm" json:"vm"`
	Cache   CacheConfig  `toml:"cache" json:"cache"`
	Server  ServerConfig `toml:"server" json:"server"`
	Log     LogConfig    `toml:"log" json:"log"`

	// Dir is the directory containing the lox.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
}

// VMConfig configures the bytecode VM.
type VMConfig struct {
	Trace      bool `toml:"trace" json:"trace"`
	StackLimit int  `toml:"stack-limit" json:"stack-limit"`
}

// CacheConfig configures the compiled-chunk cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// ServerConfig configures the evaluation server.
type ServerConfig struct {
	HTTPAddr string `toml:"http-addr" json:"http-addr"`
	GRPCAddr string `toml:"grpc-addr" json:"grpc-addr"`
	Workers  int    `toml:"workers" json:"workers"`
}

// LogConfig configures commonlog. Verbosity follows commonlog.Configure:
// 0 logs notices and above, 2 adds debug, -4 silences logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Defaults for settings left out of lox.toml.
const (
	DefaultStackLimit = 256
	DefaultHTTPAddr   = "localhost:8080"
	DefaultGRPCAddr   = "localhost:9090"
	DefaultCachePath  = ".lox/cache.db"
)

// Default returns the configuration used when no lox.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses and validates a lox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes lox.toml content, fills in defaults and validates the
// result. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	m.applyDefaults()
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a lox.toml file,
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

func (m *Manifest) applyDefaults() {
	if m.VM.StackLimit == 0 {
		m.VM.StackLimit = DefaultStackLimit
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	if m.Server.HTTPAddr == "" {
		m.Server.HTTPAddr = DefaultHTTPAddr
	}
	if m.Server.GRPCAddr == "" {
		m.Server.GRPCAddr = DefaultGRPCAddr
	}
	if m.Server.Workers == 0 {
		m.Server.Workers = runtime.NumCPU()
	}
}

// CachePath returns the cache database path, resolved against Dir when
// relative.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogFilePath returns the log file path resolved against Dir, or "" to log
// to stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) || m.Dir == "" {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
