// Package tool orchestrates billable operations: reserve credits, run the
// processing collaborator, record the outcome. The tool name is an opaque
// tag; credit cost and lifecycle rules depend only on the cost a processor
// declares, never on which specific tool it is.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/convertly/server/internal/module/file"
)

// Output is the derived artifact a processor produced.
type Output struct {
	Path string
	Name string
}

// Processor is a single conversion or analysis tool. Implementations live
// outside this core; they receive the stored input's location and write
// their output to storage themselves.
type Processor interface {
	Name() string
	// Cost is the credit cost per invocation; zero marks a free tool.
	Cost() int64
	Process(ctx context.Context, f *file.File) (*Output, error)
}

// Registry maps tool names to processors.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register adds a processor, replacing any previous one of the same name.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
}

// Get returns the processor for a tool name.
func (r *Registry) Get(name string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return p, nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	return names
}
