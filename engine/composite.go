package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-repl/descriptor"
	"github.com/wippyai/wasm-repl/errors"
	"github.com/wippyai/wasm-repl/types"
)

// compositeInstance runs a merged target and adapter as two instances.
// Target imports the adapter exports are routed to the adapter; all other
// imports of either half come from the caller's table. Either half may
// itself be a composite.
type compositeInstance struct {
	engine       *Wazero
	target       Instance
	adapter      Instance
	targetStore  *descriptor.Store
	adapterStore *descriptor.Store
	id           string
}

func (e *Wazero) instantiateComposite(ctx context.Context, target, adapter []byte, imports ImportTable) (*compositeInstance, error) {
	adStore, err := parseInterface(adapter)
	if err != nil {
		return nil, errors.Instantiation("adapter", err)
	}
	tgStore, err := parseInterface(target)
	if err != nil {
		return nil, errors.Instantiation("target", err)
	}

	ad, err := e.instantiate(ctx, adapter, imports)
	if err != nil {
		return nil, errors.Instantiation("adapter", err)
	}

	table := make(ImportTable, len(imports))
	for k, v := range imports {
		table[k] = v
	}
	for _, fn := range adStore.Exports() {
		name := fn.Name.String()
		table[name] = func(ctx context.Context, args []any) ([]any, error) {
			return ad.Invoke(ctx, name, args)
		}
	}

	tg, err := e.instantiate(ctx, target, table)
	if err != nil {
		_ = ad.Close(ctx)
		return nil, errors.Instantiation("target", err)
	}

	c := &compositeInstance{
		engine:       e,
		target:       tg,
		adapter:      ad,
		targetStore:  tgStore,
		adapterStore: adStore,
		id:           uuid.NewString(),
	}
	Logger().Debug("instantiated composite",
		zap.String("instance", c.id),
		zap.String("target", tg.ID()),
		zap.String("adapter", ad.ID()))
	return c, nil
}

func (c *compositeInstance) ID() string { return c.id }

// Invoke prefers the target's export and falls back to the adapter's
func (c *compositeInstance) Invoke(ctx context.Context, name string, args []any) ([]any, error) {
	q := types.ParseQualifiedName(name)
	if c.targetStore.Export(q) != nil {
		return c.target.Invoke(ctx, name, args)
	}
	if c.adapterStore.Export(q) != nil {
		return c.adapter.Invoke(ctx, name, args)
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
}

func (c *compositeInstance) Close(ctx context.Context) error {
	c.engine.forget(c.id)
	return multierr.Combine(c.target.Close(ctx), c.adapter.Close(ctx))
}
