package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-repl/errors"
)

// Config is the CLI configuration. Sources are layered in the order
// defaults < config file < environment < flags; later sources replace
// non-empty values of earlier ones.
type Config struct {
	History  string   `yaml:"history"`
	LogLevel string   `yaml:"log_level"`
	World    string   `yaml:"world"`
	Load     []string `yaml:"load"`
	Adapters []string `yaml:"adapters"`
	// Links are "import=path" or "import=export=path"
	Links   []string     `yaml:"links"`
	Engine  EngineConfig `yaml:"engine"`
	TUI     bool         `yaml:"tui"`
	NoColor bool         `yaml:"no_color"`
}

// EngineConfig mirrors engine.Config
type EngineConfig struct {
	CallTimeout      time.Duration `yaml:"call_timeout"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages"`
}

// Environment variables read by envConfig
const (
	envHistory    = "WASM_REPL_HISTORY"
	envLogLevel   = "WASM_REPL_LOG_LEVEL"
	envConfigFile = "WASM_REPL_CONFIG"
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	history := ".wasm_repl_history"
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, history)
	}
	return Config{
		History:  history,
		LogLevel: "warn",
	}
}

// LoadConfig reads a YAML config file. Unknown keys are rejected.
func LoadConfig(path string, raw []byte) (Config, error) {
	var cfg Config
	if raw == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(errors.PhaseConfigure, errors.KindNotFound, err, "read config "+path)
		}
		raw = data
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(errors.PhaseConfigure, errors.KindInvalidInput, err, "parse config "+path)
	}
	return cfg, nil
}

// envConfig reads the environment overrides
func envConfig(getenv func(string) string) Config {
	return Config{
		History:  strings.TrimSpace(getenv(envHistory)),
		LogLevel: strings.TrimSpace(getenv(envLogLevel)),
	}
}

// Merge overlays over onto base. Lists are appended; booleans can only be
// switched on.
func Merge(base, over Config) Config {
	out := base
	if over.History != "" {
		out.History = over.History
	}
	if over.LogLevel != "" {
		out.LogLevel = over.LogLevel
	}
	if over.World != "" {
		out.World = over.World
	}
	out.Load = appendStrings(base.Load, over.Load)
	out.Adapters = appendStrings(base.Adapters, over.Adapters)
	out.Links = appendStrings(base.Links, over.Links)
	if over.Engine.CallTimeout != 0 {
		out.Engine.CallTimeout = over.Engine.CallTimeout
	}
	if over.Engine.MemoryLimitPages != 0 {
		out.Engine.MemoryLimitPages = over.Engine.MemoryLimitPages
	}
	out.TUI = base.TUI || over.TUI
	out.NoColor = base.NoColor || over.NoColor
	return out
}

func appendStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// linkSpec is a parsed --link value
type linkSpec struct {
	Import string
	Export string
	Path   string
}

// parseLink parses "import=path" or "import=export=path"
func parseLink(s string) (linkSpec, error) {
	parts := strings.Split(s, "=")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			parts = nil
			break
		}
	}
	switch len(parts) {
	case 2:
		return linkSpec{Import: parts[0], Path: parts[1]}, nil
	case 3:
		return linkSpec{Import: parts[0], Export: parts[1], Path: parts[2]}, nil
	}
	return linkSpec{}, errors.InvalidInput(errors.PhaseConfigure,
		fmt.Sprintf("link %q: want import=path or import=export=path", s))
}
