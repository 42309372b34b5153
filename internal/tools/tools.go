package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is an arbitrary side-effecting function the engine may call on an
// agent's behalf. Parameters is a JSON schema for the arguments object;
// arguments are validated against it before Execute runs. Tools with
// NeedsApproval set suspend the run until the client approves or rejects
// the call.
type Tool struct {
	Name          string
	Description   string
	Parameters    json.RawMessage
	NeedsApproval bool
	Execute       func(ctx context.Context, args json.RawMessage) (any, error)

	schema *jsonschema.Schema
}

// Call validates args against the tool's parameter schema and executes the
// tool. The result is returned JSON-encoded.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	if t.Execute == nil {
		return nil, fmt.Errorf("tool %s has no executor", t.Name)
	}
	if t.schema != nil {
		var decoded any
		if len(args) == 0 {
			decoded = map[string]any{}
		} else if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, fmt.Errorf("tool %s arguments: %w", t.Name, err)
		}
		if err := t.schema.Validate(decoded); err != nil {
			return nil, fmt.Errorf("tool %s arguments: %w", t.Name, err)
		}
	}
	result, err := t.Execute(ctx, args)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool %s result: %w", t.Name, err)
	}
	return encoded, nil
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register compiles the tool's parameter schema and adds it to the registry.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(t.Parameters) > 0 {
		compiled, err := jsonschema.CompileString(t.Name, string(t.Parameters))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", t.Name, err)
		}
		t.schema = compiled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Resolve maps tool names to tools, failing on the first unknown name.
func (r *Registry) Resolve(names []string) ([]*Tool, error) {
	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool %s", name)
		}
		out = append(out, t)
	}
	return out, nil
}
