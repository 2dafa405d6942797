package mcp

import (
	"fmt"
	"sync"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// PromptHandler renders one prompt from its arguments. Required arguments
// have already been checked for presence; values are not otherwise
// validated.
type PromptHandler func(rc *RequestContext, args map[string]string) (*GetPromptResult, error)

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes one registered prompt as it appears in prompts/list.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`

	Handler    PromptHandler     `json:"-"`
	Completion CompletionHandler `json:"-"`
}

// PromptRegistry is the name-keyed prompt table.
type PromptRegistry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Prompt
	notify  func()
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{entries: make(map[string]*Prompt)}
}

// SetNotify installs the change-notification hook.
func (r *PromptRegistry) SetNotify(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Register adds a prompt.
func (r *PromptRegistry) Register(p Prompt) error {
	if p.Name == "" {
		return fmt.Errorf("prompt: name is required")
	}
	if p.Handler == nil {
		return fmt.Errorf("prompt %q: handler is required", p.Name)
	}

	r.mu.Lock()
	if _, exists := r.entries[p.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("prompt %q: already registered", p.Name)
	}
	stored := p
	r.entries[p.Name] = &stored
	r.order = append(r.order, p.Name)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Remove deletes a prompt. No-op if absent.
func (r *PromptRegistry) Remove(name string) {
	r.mu.Lock()
	_, existed := r.entries[name]
	if existed {
		delete(r.entries, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	notify := r.notify
	r.mu.Unlock()

	if existed && notify != nil {
		notify()
	}
}

// List returns one page of prompts in insertion order.
func (r *PromptRegistry) List(cursor string) ([]Prompt, string, error) {
	r.mu.Lock()
	prompts := make([]Prompt, 0, len(r.order))
	for _, name := range r.order {
		prompts = append(prompts, *r.entries[name])
	}
	r.mu.Unlock()
	return page(prompts, cursor, DefaultPageSize)
}

// Get checks required arguments and invokes the prompt handler.
func (r *PromptRegistry) Get(rc *RequestContext, name string, args map[string]string) (*GetPromptResult, error) {
	r.mu.Lock()
	p, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "prompt not found: %s", name)
	}

	for _, arg := range p.Arguments {
		if arg.Required {
			if _, ok := args[arg.Name]; !ok {
				return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "prompt %s: missing required argument %q", name, arg.Name)
			}
		}
	}
	return p.Handler(rc, args)
}

// Complete serves completion/complete for one prompt.
func (r *PromptRegistry) Complete(name string, arg CompleteArgument) []string {
	r.mu.Lock()
	p, ok := r.entries[name]
	r.mu.Unlock()
	if !ok || p.Completion == nil {
		return nil
	}
	return p.Completion(arg)
}

// Len returns the number of registered prompts.
func (r *PromptRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
