package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/merge"
	"github.com/wippyai/wasm-repl/session"
)

// flags holds the command-line values; only flags the user set override
// the configuration file and environment.
type flags struct {
	config   string
	history  string
	logLevel string
	world    string
	load     []string
	adapters []string
	links    []string
	tui      bool
	noColor  bool

	callTimeout time.Duration
	memoryPages uint32
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "wasm-repl <component.wasm>",
		Short: "Interactive REPL for WebAssembly components",
		Long: `wasm-repl loads a WebAssembly component and evaluates calls to its exports.

Imports are served by other components: link them explicitly with --link or
.link, load providers with --load or .load, or merge an adapter with .compose.
Type .help at the prompt for the list of commands.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "YAML config file (default $"+envConfigFile+")")
	fl.StringVar(&f.history, "history", "", "history file (default ~/.wasm_repl_history)")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fl.StringVar(&f.world, "world", "", "world to use when the target defines several")
	fl.StringArrayVar(&f.load, "load", nil, "load a provider component (repeatable)")
	fl.StringArrayVar(&f.adapters, "adapter", nil, "register an adapter component (repeatable)")
	fl.StringArrayVar(&f.links, "link", nil, "link an import: import=path or import=export=path (repeatable)")
	fl.BoolVar(&f.tui, "tui", false, "full-screen interface")
	fl.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fl.DurationVar(&f.callTimeout, "call-timeout", 0, "limit for a single call, 0 for none")
	fl.Uint32Var(&f.memoryPages, "memory-limit-pages", 0, "memory limit per instance in 64KiB pages")
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and flags
func resolveConfig(cmd *cobra.Command, f flags) (Config, error) {
	cfg := Defaults()

	path := f.config
	if path == "" {
		path = os.Getenv(envConfigFile)
	}
	if path != "" {
		fileCfg, err := LoadConfig(path, nil)
		if err != nil {
			return cfg, err
		}
		cfg = Merge(cfg, fileCfg)
	}
	cfg = Merge(cfg, envConfig(os.Getenv))

	var over Config
	fl := cmd.Flags()
	if fl.Changed("history") {
		over.History = f.history
	}
	if fl.Changed("log-level") {
		over.LogLevel = f.logLevel
	}
	over.World = f.world
	over.Load = f.load
	over.Adapters = f.adapters
	over.Links = f.links
	over.TUI = f.tui
	over.NoColor = f.noColor
	over.Engine = EngineConfig{CallTimeout: f.callTimeout, MemoryLimitPages: f.memoryPages}
	return Merge(cfg, over), nil
}

func run(ctx context.Context, cfg Config, target string, stdin io.Reader, stdout io.Writer) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	installLogger(logger)

	eng, err := engine.NewWazero(ctx, &engine.Config{
		MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		CallTimeout:      cfg.Engine.CallTimeout,
		Interruptible:    true,
	})
	if err != nil {
		return err
	}
	s := session.New(session.Config{Engine: eng, Merger: merge.New(), World: cfg.World})
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			logger.Warn("close session", zap.Error(err))
		}
	}()

	interactive := isTerminal(stdin) && isTerminal(stdout)
	st := newStyles(!cfg.NoColor && interactive)

	// a target that cannot be loaded ends the process; anything after
	// that is reported and the session continues
	comp, err := s.LoadTarget(ctx, target, "")
	if err != nil {
		return err
	}
	for _, msg := range setup(ctx, s, cfg) {
		fmt.Fprintln(stdout, msg)
	}
	if _, err := s.Resolve(ctx); err != nil {
		fmt.Fprintln(stdout, st.failure(err))
	} else {
		fmt.Fprintln(stdout, renderLines(st.result, comp.Name+" instantiated"))
	}

	switch {
	case cfg.TUI:
		return runTUI(ctx, s, target, st)
	case interactive:
		in := newLinerReader(cfg.History, s.Complete)
		defer in.Close()
		return runREPL(ctx, s, in, stdout, st)
	default:
		return runREPL(ctx, s, newScanReader(stdin), stdout, st)
	}
}

// setup loads the providers, adapters and links named in the configuration.
// Failures are returned as messages; none of them is fatal.
func setup(ctx context.Context, s *session.Session, cfg Config) []string {
	var msgs []string
	for _, path := range cfg.Load {
		if _, err := s.Load(ctx, path, "", session.RoleProvider); err != nil {
			msgs = append(msgs, fmt.Sprintf("load %s: %v", path, err))
		}
	}
	for _, path := range cfg.Adapters {
		if _, err := s.Load(ctx, path, "", session.RoleAdapter); err != nil {
			msgs = append(msgs, fmt.Sprintf("adapter %s: %v", path, err))
		}
	}
	for _, l := range cfg.Links {
		spec, err := parseLink(l)
		if err == nil {
			err = s.Link(ctx, spec.Import, spec.Export, spec.Path)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("link %s: %v", l, err))
		}
	}
	return msgs
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
