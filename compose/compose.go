package compose

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/engine"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/resolve"
)

// Target is the component a composition replaces.
type Target interface {
	// Name identifies the component in messages and plans
	Name() string
	// Binary is the component's current binary
	Binary() []byte
	// Stage resolves the composite's imports and instantiates it next to
	// the current instance. Nothing observable changes.
	Stage(ctx context.Context, binary []byte, store *descriptor.Store) (*Staged, error)
	// Replace swaps a staged composite in. The previous instance is closed
	// and handles into it go stale.
	Replace(ctx context.Context, staged *Staged) error
}

// Staged is a composite that was instantiated but not yet installed.
// Instance is nil when Plan is partial.
type Staged struct {
	Binary   []byte
	Store    *descriptor.Store
	Plan     *resolve.Plan
	Instance engine.Instance
}

// Result describes a finished composition
type Result struct {
	Binary []byte
	Store  *descriptor.Store
	// Plan is the resolution plan of the composite; it may be partial
	Plan *resolve.Plan
}

// Composer sequences a composition: merge, read the composite's
// interface back, stage it, then replace the target.
type Composer struct {
	merger engine.Merger
	engine engine.Engine
}

// New creates a Composer. The engine is used only to read interface sections.
func New(merger engine.Merger, eng engine.Engine) *Composer {
	return &Composer{merger: merger, engine: eng}
}

// Compose merges adapter into target. Any failure before the replace step
// is a composition error and leaves the target untouched. A composite
// whose imports are only partly resolved still replaces the target; its
// plan error is returned with the result.
func (c *Composer) Compose(ctx context.Context, target Target, adapter []byte) (*Result, error) {
	name := target.Name()

	composite, err := c.merger.Merge(ctx, target.Binary(), adapter)
	if err != nil {
		return nil, errors.Composition("merge adapter into "+name, err)
	}
	section, err := c.engine.IntrospectInterface(ctx, composite)
	if err != nil {
		return nil, errors.Composition("read composite interface", err)
	}
	store, err := descriptor.Parse(section)
	if err != nil {
		return nil, errors.Composition("parse composite interface", err)
	}

	staged, err := target.Stage(ctx, composite, store)
	if err != nil {
		return nil, errors.Composition("instantiate composite of "+name, err)
	}
	if err := target.Replace(ctx, staged); err != nil {
		if staged.Instance != nil {
			if cerr := staged.Instance.Close(ctx); cerr != nil {
				Logger().Warn("close staged composite", zap.String("component", name), zap.Error(cerr))
			}
		}
		return nil, errors.Composition("replace "+name, err)
	}
	Logger().Info("component replaced by composite",
		zap.String("component", name),
		zap.Int("imports", len(store.Imports())),
		zap.Int("exports", len(store.Exports())),
		zap.Bool("instantiated", staged.Instance != nil))

	res := &Result{Binary: composite, Store: store, Plan: staged.Plan}
	return res, staged.Plan.Err()
}
