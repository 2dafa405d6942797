package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Typed wrappers over Session.Call for the standard server surface. They
// unmarshal results into the protocol types so callers do not touch raw
// JSON.

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListResourcesResult is the resources/list response payload.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ListPromptsResult is the prompts/list response payload.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// ListTools fetches one page of the peer's tools.
func (s *Session) ListTools(ctx context.Context, cursor string) (*ListToolsResult, error) {
	var result ListToolsResult
	if err := s.callTyped(ctx, MethodToolsList, listParams(cursor), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAllTools walks tools/list to exhaustion.
func (s *Session) ListAllTools(ctx context.Context) ([]Tool, error) {
	return ListAll(func(cursor string) ([]Tool, string, error) {
		page, err := s.ListTools(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return page.Tools, page.NextCursor, nil
	})
}

// CallTool invokes one of the peer's tools.
func (s *Session) CallTool(ctx context.Context, name string, arguments any) (*CallToolResult, error) {
	args, err := marshalParams(arguments)
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := s.callTyped(ctx, MethodToolsCall, &CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources fetches one page of the peer's resources.
func (s *Session) ListResources(ctx context.Context, cursor string) (*ListResourcesResult, error) {
	var result ListResourcesResult
	if err := s.callTyped(ctx, MethodResourcesList, listParams(cursor), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAllResources walks resources/list to exhaustion.
func (s *Session) ListAllResources(ctx context.Context) ([]Resource, error) {
	return ListAll(func(cursor string) ([]Resource, string, error) {
		page, err := s.ListResources(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return page.Resources, page.NextCursor, nil
	})
}

// ReadResource reads one of the peer's resources by URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	var result ReadResourceResult
	if err := s.callTyped(ctx, MethodResourcesRead, &ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts fetches one page of the peer's prompts.
func (s *Session) ListPrompts(ctx context.Context, cursor string) (*ListPromptsResult, error) {
	var result ListPromptsResult
	if err := s.callTyped(ctx, MethodPromptsList, listParams(cursor), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt renders one of the peer's prompts.
func (s *Session) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	var result GetPromptResult
	if err := s.callTyped(ctx, MethodPromptsGet, &GetPromptParams{Name: name, Arguments: arguments}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Complete asks the peer for completion suggestions.
func (s *Session) Complete(ctx context.Context, ref CompleteRef, arg CompleteArgument) (*CompleteResult, error) {
	var result CompleteResult
	if err := s.callTyped(ctx, MethodComplete, &CompleteParams{Ref: ref, Argument: arg}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// callTyped runs one call and unmarshals the result.
func (s *Session) callTyped(ctx context.Context, method string, params, result any) error {
	raw, err := s.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("mcp: %s: malformed result: %w", method, err)
	}
	return nil
}

// listParams builds the cursor payload, omitting it entirely for the first
// page.
func listParams(cursor string) any {
	if cursor == "" {
		return nil
	}
	return &ListParams{Cursor: cursor}
}
