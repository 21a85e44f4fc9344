package engine

import (
	"context"
	"time"
)

// Custom sections read by the engine
const (
	// SectionWIT holds the component's interface section as WIT text
	SectionWIT = "component-wit"
	// SectionComposeTarget and SectionComposeAdapter hold the two halves of a composite
	SectionComposeTarget  = "component-compose:target"
	SectionComposeAdapter = "component-compose:adapter"
)

// Engine instantiates component binaries and reads their interface sections.
type Engine interface {
	// IntrospectInterface returns the interface section of a binary
	IntrospectInterface(ctx context.Context, binary []byte) ([]byte, error)
	// Instantiate creates a live instance; every import is looked up in imports
	Instantiate(ctx context.Context, binary []byte, imports ImportTable) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is an instantiated component.
type Instance interface {
	// ID identifies the instance; handle values refer back to it
	ID() string
	// Invoke calls an export by qualified name ("iface#func" or "func")
	// with arguments and results in the engine value representation.
	Invoke(ctx context.Context, name string, args []any) ([]any, error)
	Close(ctx context.Context) error
}

// HostFunc serves an import. Arguments and results use the engine value
// representation: exact-width Go scalars, rune for char, []any for lists and
// tuples, map[string]any for records and single-key maps for variants,
// options and results, uint32 enum indexes, uint64 flag masks and uint32
// resource reps.
type HostFunc func(ctx context.Context, args []any) ([]any, error)

// ImportTable maps qualified import names to the functions serving them
type ImportTable map[string]HostFunc

// Merger produces a composite binary in which the adapter serves the target's imports.
type Merger interface {
	Merge(ctx context.Context, target, adapter []byte) ([]byte, error)
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CallTimeout bounds a single Invoke. 0 disables the limit.
	// An instance interrupted by the timeout is closed by the runtime.
	CallTimeout time.Duration

	// Interruptible lets a cancelled call context stop a running call.
	// Like a timeout, this closes the interrupted instance.
	Interruptible bool
}
