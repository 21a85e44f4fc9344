package main

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/compose"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/merge"
	"github.com/wippyai/wasm-repl/resolve"
	"github.com/wippyai/wasm-repl/session"
)

// newLogger builds a console logger on stderr. "debug" adds caller and
// stack information; any other level logs in the production layout.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfigure, errors.KindInvalidInput, err, "log level "+level)
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// installLogger hands the logger to every package that logs
func installLogger(l *zap.Logger) {
	engine.SetLogger(l.Named("engine"))
	resolve.SetLogger(l.Named("resolve"))
	merge.SetLogger(l.Named("merge"))
	compose.SetLogger(l.Named("compose"))
	session.SetLogger(l.Named("session"))
}
