package main

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wasm-repl/errors"
)

func TestLoadConfig(t *testing.T) {
	raw := []byte(`
history: /tmp/h
log_level: debug
world: main
load: [impl.wasm]
adapters: [adapter.wasm]
links:
  - greet=impl.wasm
engine:
  call_timeout: 2s
  memory_limit_pages: 16
tui: true
`)
	cfg, err := LoadConfig("repl.yaml", raw)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Config{
		History:  "/tmp/h",
		LogLevel: "debug",
		World:    "main",
		Load:     []string{"impl.wasm"},
		Adapters: []string{"adapter.wasm"},
		Links:    []string{"greet=impl.wasm"},
		Engine:   EngineConfig{CallTimeout: 2 * time.Second, MemoryLimitPages: 16},
		TUI:      true,
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("got %+v\nwant %+v", cfg, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown key", "histroy: /tmp/h\n"},
		{"bad duration", "engine:\n  call_timeout: soon\n"},
		{"wrong type", "load: impl.wasm\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("repl.yaml", []byte(tt.raw))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.HasKind(err, errors.KindInvalidInput) {
				t.Errorf("error kind: %v", err)
			}
		})
	}
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig("empty.yaml", []byte{})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, Config{}) {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir()+"/missing.yaml", nil)
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestMerge(t *testing.T) {
	base := Config{History: "a", LogLevel: "warn", Load: []string{"x.wasm"}}
	file := Config{LogLevel: "info", Load: []string{"y.wasm"}, Engine: EngineConfig{MemoryLimitPages: 8}}
	env := envConfig(func(key string) string {
		if key == envLogLevel {
			return " debug "
		}
		return ""
	})
	flags := Config{Links: []string{"greet=y.wasm"}, NoColor: true}

	got := Merge(Merge(Merge(base, file), env), flags)
	want := Config{
		History:  "a",
		LogLevel: "debug",
		Load:     []string{"x.wasm", "y.wasm"},
		Links:    []string{"greet=y.wasm"},
		Engine:   EngineConfig{MemoryLimitPages: 8},
		NoColor:  true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
	if len(base.Load) != 1 {
		t.Errorf("Merge modified its input: %v", base.Load)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if !strings.HasSuffix(cfg.History, ".wasm_repl_history") {
		t.Errorf("history = %q", cfg.History)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestParseLink(t *testing.T) {
	tests := []struct {
		in      string
		want    linkSpec
		wantErr bool
	}{
		{in: "greet=impl.wasm", want: linkSpec{Import: "greet", Path: "impl.wasm"}},
		{in: "greet=hello=impl.wasm", want: linkSpec{Import: "greet", Export: "hello", Path: "impl.wasm"}},
		{in: "greet", wantErr: true},
		{in: "greet=", wantErr: true},
		{in: "a=b=c=d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLink(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLink: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
