package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Args is the request context handed to every capability.
type Args struct {
	Query string `json:"q"`
	Month string `json:"month,omitempty"`
}

// Capability is one independently invokable backend call. Beyond its name,
// arguments, and JSON result it is opaque to the orchestrator.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, args Args) (json.RawMessage, error)
}

// Result is the normalized outcome of one invocation. Failures are tagged
// values, never errors thrown past the invoker boundary.
type Result struct {
	Name       string
	OK         bool
	Value      json.RawMessage
	Diagnostic string
}

type Registry struct {
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

func (r *Registry) Register(c Capability) {
	r.caps[c.Name()] = c
}

func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	return out
}

const defaultTimeout = 15 * time.Second

// Invoker executes one capability call under a deadline and normalizes the
// outcome. No retry happens here: retries operate on whole runs, and a
// side-effecting capability re-invoked in isolation could run twice.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
}

type InvokerOption func(*Invoker)

func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{registry: registry, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke looks up and runs one capability. Unknown names, panics, deadline
// expiry, and capability errors all come back as a tagged failure Result.
func (i *Invoker) Invoke(ctx context.Context, name string, args Args) (res Result) {
	res = Result{Name: name}

	c, ok := i.registry.Get(name)
	if !ok {
		slog.Warn("unknown tool invoked", "name", name)
		res.Diagnostic = "unknown tool"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "name", name, "panic", r)
			res = Result{Name: name, Diagnostic: fmt.Sprintf("panic: %v", r)}
		}
	}()

	value, err := withTrace(c).Invoke(ctx, args)
	if err != nil {
		slog.Warn("tool invocation failed", "name", name, "error", err)
		res.Diagnostic = err.Error()
		return res
	}

	res.OK = true
	res.Value = value
	return res
}
