package mcp

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// ResourceHandler produces the contents of one resource. Entries that omit
// URI or MIME type inherit the registration's values.
type ResourceHandler func(rc *RequestContext) ([]ResourceContents, error)

// Resource describes one registered resource as it appears in
// resources/list. Any URI scheme is accepted.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`

	Handler    ResourceHandler   `json:"-"`
	Completion CompletionHandler `json:"-"`
}

// TextResource is a convenience handler serving fixed text.
func TextResource(text string) ResourceHandler {
	return func(*RequestContext) ([]ResourceContents, error) {
		return []ResourceContents{{Text: text}}, nil
	}
}

// BlobResource is a convenience handler serving fixed bytes; they ride the
// wire base64-encoded.
func BlobResource(data []byte) ResourceHandler {
	return func(*RequestContext) ([]ResourceContents, error) {
		return []ResourceContents{{Blob: base64.StdEncoding.EncodeToString(data)}}, nil
	}
}

// ResourceRegistry is the URI-keyed resource table.
type ResourceRegistry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Resource
	notify  func()
}

// NewResourceRegistry creates an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{entries: make(map[string]*Resource)}
}

// SetNotify installs the change-notification hook.
func (r *ResourceRegistry) SetNotify(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Register adds a resource keyed by URI.
func (r *ResourceRegistry) Register(res Resource) error {
	if res.URI == "" {
		return fmt.Errorf("resource: uri is required")
	}
	if res.Handler == nil {
		return fmt.Errorf("resource %q: handler is required", res.URI)
	}

	r.mu.Lock()
	if _, exists := r.entries[res.URI]; exists {
		r.mu.Unlock()
		return fmt.Errorf("resource %q: already registered", res.URI)
	}
	stored := res
	r.entries[res.URI] = &stored
	r.order = append(r.order, res.URI)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Remove deletes a resource. No-op if absent.
func (r *ResourceRegistry) Remove(uri string) {
	r.mu.Lock()
	_, existed := r.entries[uri]
	if existed {
		delete(r.entries, uri)
		for i, u := range r.order {
			if u == uri {
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

// List returns one page of resources in insertion order.
func (r *ResourceRegistry) List(cursor string) ([]Resource, string, error) {
	r.mu.Lock()
	resources := make([]Resource, 0, len(r.order))
	for _, uri := range r.order {
		resources = append(resources, *r.entries[uri])
	}
	r.mu.Unlock()
	return page(resources, cursor, DefaultPageSize)
}

// Read invokes the resource handler and formats the read result, filling
// in the registered URI and MIME type where the handler omitted them.
func (r *ResourceRegistry) Read(rc *RequestContext, uri string) (*ReadResourceResult, error) {
	r.mu.Lock()
	res, ok := r.entries[uri]
	r.mu.Unlock()
	if !ok {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "resource not found: %s", uri)
	}

	contents, err := res.Handler(rc)
	if err != nil {
		return nil, err
	}
	for i := range contents {
		if contents[i].URI == "" {
			contents[i].URI = res.URI
		}
		if contents[i].MIMEType == "" {
			contents[i].MIMEType = res.MIMEType
		}
	}
	return &ReadResourceResult{Contents: contents}, nil
}

// Complete serves completion/complete for one resource.
func (r *ResourceRegistry) Complete(uri string, arg CompleteArgument) []string {
	r.mu.Lock()
	res, ok := r.entries[uri]
	r.mu.Unlock()
	if !ok || res.Completion == nil {
		return nil
	}
	return res.Completion(arg)
}

// Len returns the number of registered resources.
func (r *ResourceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
