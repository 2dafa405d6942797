package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// ToolHandler executes one tool call. Arguments have already passed input
// schema validation. A returned *jsonrpc.Error goes to the caller verbatim;
// any other error becomes an internal error.
type ToolHandler func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error)

// CompletionHandler suggests values for a partially-typed argument.
type CompletionHandler func(arg CompleteArgument) []string

// ToolAnnotations carry discovery metadata about a tool's behavior.
type ToolAnnotations struct {
	Destructive bool   `json:"destructive,omitempty"`
	ReadOnly    bool   `json:"readOnly,omitempty"`
	Audience    string `json:"audience,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Tool describes one registered tool as it appears in tools/list.
type Tool struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	InputSchema  json.RawMessage  `json:"inputSchema"`
	OutputSchema json.RawMessage  `json:"outputSchema,omitempty"`
	Annotations  *ToolAnnotations `json:"annotations,omitempty"`

	// Handler executes the call. Required.
	Handler ToolHandler `json:"-"`
	// Completion, when set, serves completion/complete for this tool.
	Completion CompletionHandler `json:"-"`
}

type toolEntry struct {
	tool            Tool
	inputValidator  *jsonschema.Schema
	outputValidator *jsonschema.Schema
}

// ToolRegistry is the name-keyed tool table. Entries list in insertion
// order so pagination cursors stay stable.
type ToolRegistry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*toolEntry
	notify  func()
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{entries: make(map[string]*toolEntry)}
}

// SetNotify installs the hook invoked on every registration or removal.
// The session binds it to notifications/tools/list_changed.
func (r *ToolRegistry) SetNotify(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Register adds a tool, compiling its schemas once. The name must be
// unique and the handler non-nil.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool: name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q: handler is required", tool.Name)
	}
	if len(tool.InputSchema) == 0 {
		// Accept any object by default.
		tool.InputSchema = json.RawMessage(`{"type":"object"}`)
	}

	entry := &toolEntry{tool: tool}
	var err error
	if entry.inputValidator, err = compileSchema(tool.Name+"/input", tool.InputSchema); err != nil {
		return fmt.Errorf("tool %q: input schema: %w", tool.Name, err)
	}
	if len(tool.OutputSchema) > 0 {
		if entry.outputValidator, err = compileSchema(tool.Name+"/output", tool.OutputSchema); err != nil {
			return fmt.Errorf("tool %q: output schema: %w", tool.Name, err)
		}
	}

	r.mu.Lock()
	if _, exists := r.entries[tool.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tool %q: already registered", tool.Name)
	}
	r.entries[tool.Name] = entry
	r.order = append(r.order, tool.Name)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Remove deletes a tool. No-op if absent.
func (r *ToolRegistry) Remove(name string) {
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

// List returns one page of tools in insertion order.
func (r *ToolRegistry) List(cursor string) ([]Tool, string, error) {
	r.mu.Lock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].tool)
	}
	r.mu.Unlock()
	return page(tools, cursor, DefaultPageSize)
}

// Call validates args against the tool's input schema and invokes the
// handler. Validation failures return invalid-params with the validator
// diagnostics in the error data, before the handler runs. A declared
// output schema checks the result post-hoc; a mismatch there is a
// server-side bug and yields an internal error.
func (r *ToolRegistry) Call(rc *RequestContext, name string, args json.RawMessage) (*CallToolResult, error) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "tool not found: %s", name)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validate(entry.inputValidator, args); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "tool arguments failed schema validation").
			WithData(map[string]string{"validation": err.Error()})
	}

	result, err := entry.tool.Handler(rc, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &CallToolResult{}
	}

	if entry.outputValidator != nil {
		structured, merr := json.Marshal(result.StructuredContent)
		if merr != nil {
			return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError, "tool %s: result not serializable", name)
		}
		if err := validate(entry.outputValidator, structured); err != nil {
			return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError, "tool %s: result failed output schema", name).
				WithData(map[string]string{"validation": err.Error()})
		}
	}
	return result, nil
}

// Complete serves completion/complete for one tool.
func (r *ToolRegistry) Complete(name string, arg CompleteArgument) []string {
	r.mu.Lock()
	entry, ok := r.entries[name]
	r.mu.Unlock()
	if !ok || entry.tool.Completion == nil {
		return nil
	}
	return entry.tool.Completion(arg)
}

// Has reports whether a tool is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// compileSchema compiles a JSON Schema once, at registration.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	// Each registration gets its own compiler; the resource name only has
	// to be unique within it.
	compiler := jsonschema.NewCompiler()
	url := "inline://" + name + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// validate checks a raw JSON value against a compiled schema.
func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(value)
}
