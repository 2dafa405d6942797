package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

func testRequestContext() *RequestContext {
	return &RequestContext{ctx: context.Background(), id: jsonrpc.Int64ID(1), method: MethodToolsCall}
}

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "echoes its message back",
		InputSchema: json.RawMessage(`{"type":"object","required":["m"],"properties":{"m":{"type":"string"}}}`),
		Handler: func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
			var in struct {
				M string `json:"m"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return &CallToolResult{Content: []Content{TextContent(in.M)}}, nil
		},
	}
}

// S3 / property 8: schema validation rejects bad arguments before the
// handler runs.
func TestToolCallValidationFailure(t *testing.T) {
	reg := NewToolRegistry()

	invoked := false
	tool := echoTool()
	inner := tool.Handler
	tool.Handler = func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
		invoked = true
		return inner(rc, args)
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := reg.Call(testRequestContext(), "echo", json.RawMessage(`{"m":5}`))
	var wireErr *jsonrpc.Error
	if !errorsAs(err, &wireErr) {
		t.Fatalf("error = %v, want *jsonrpc.Error", err)
	}
	if wireErr.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("code = %d, want %d", wireErr.Code, jsonrpc.CodeInvalidParams)
	}
	if len(wireErr.Data) == 0 {
		t.Error("validation diagnostics missing from error data")
	}
	if invoked {
		t.Error("handler ran despite failing validation")
	}
}

func TestToolCallSuccess(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(echoTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := reg.Call(testRequestContext(), "echo", json.RawMessage(`{"m":"hello"}`))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Errorf("result = %+v", result)
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	_, err := reg.Call(testRequestContext(), "nope", nil)
	var wireErr *jsonrpc.Error
	if !errorsAs(err, &wireErr) || wireErr.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("error = %v, want invalid-params", err)
	}
}

func TestToolRegisterDuplicate(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(echoTool()); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register(echoTool()); err == nil {
		t.Error("duplicate Register succeeded")
	}
}

func TestToolRegisterBadSchema(t *testing.T) {
	reg := NewToolRegistry()
	err := reg.Register(Tool{
		Name:        "broken",
		InputSchema: json.RawMessage(`{"type":42}`),
		Handler: func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
			return nil, nil
		},
	})
	if err == nil {
		t.Error("Register accepted an invalid schema")
	}
}

func TestToolOutputSchemaEnforced(t *testing.T) {
	reg := NewToolRegistry()
	err := reg.Register(Tool{
		Name:         "typed",
		InputSchema:  json.RawMessage(`{"type":"object"}`),
		OutputSchema: json.RawMessage(`{"type":"object","required":["count"],"properties":{"count":{"type":"integer"}}}`),
		Handler: func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
			// Violates the output schema: count is a string.
			return &CallToolResult{
				Content:           []Content{TextContent("done")},
				StructuredContent: map[string]any{"count": "three"},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, callErr := reg.Call(testRequestContext(), "typed", nil)
	var wireErr *jsonrpc.Error
	if !errorsAs(callErr, &wireErr) || wireErr.Code != jsonrpc.CodeInternalError {
		t.Errorf("error = %v, want internal error for output mismatch", callErr)
	}
}

// Property 9: pagination yields every entry exactly once, in insertion
// order.
func TestToolListPaginationCompleteness(t *testing.T) {
	reg := NewToolRegistry()
	const n = DefaultPageSize*2 + 7

	for i := range n {
		err := reg.Register(Tool{
			Name:        fmt.Sprintf("tool-%03d", i),
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
				return &CallToolResult{}, nil
			},
		})
		if err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}

	all, err := ListAll(func(cursor string) ([]Tool, string, error) {
		return reg.List(cursor)
	})
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("ListAll returned %d tools, want %d", len(all), n)
	}
	for i, tool := range all {
		if want := fmt.Sprintf("tool-%03d", i); tool.Name != want {
			t.Fatalf("position %d holds %q, want %q (insertion order broken)", i, tool.Name, want)
		}
	}

	// First page carries a next cursor; a full walk needs three pages.
	first, next, err := reg.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(first) != DefaultPageSize || next == "" {
		t.Errorf("first page: %d items, cursor %q", len(first), next)
	}
}

func TestToolListRejectsForeignCursor(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(echoTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, _, err := reg.List("bogus-cursor"); err == nil {
		t.Error("List accepted a malformed cursor")
	}
	// A structurally valid token with a wrong checksum is rejected too.
	if _, _, err := reg.List("eyJvIjo1fQ.0000000000000000"); err == nil {
		t.Error("List accepted a cursor with a bad checksum")
	}
}

func TestToolCompletion(t *testing.T) {
	reg := NewToolRegistry()
	tool := echoTool()
	tool.Completion = func(arg CompleteArgument) []string {
		return []string{arg.Value + "-a", arg.Value + "-b"}
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Complete("echo", CompleteArgument{Name: "m", Value: "x"})
	if len(got) != 2 || got[0] != "x-a" {
		t.Errorf("Complete = %v", got)
	}
	if reg.Complete("missing", CompleteArgument{}) != nil {
		t.Error("Complete for unknown tool returned suggestions")
	}
}

func TestToolNotifyHook(t *testing.T) {
	reg := NewToolRegistry()
	notified := 0
	reg.SetNotify(func() { notified++ })

	if err := reg.Register(echoTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	reg.Remove("echo")
	reg.Remove("echo") // absent: no notification

	if notified != 2 {
		t.Errorf("notify fired %d times, want 2", notified)
	}
}

// End-to-end tool call over a session pair, including progress.
func TestToolCallOverSession(t *testing.T) {
	client, server := newSessionPair(t, nil, nil)

	err := server.RegisterTool(Tool{
		Name:        "count",
		Description: "counts to n with progress",
		InputSchema: json.RawMessage(`{"type":"object","required":["n"],"properties":{"n":{"type":"integer","minimum":1}}}`),
		Handler: func(rc *RequestContext, args json.RawMessage) (*CallToolResult, error) {
			var in struct {
				N int `json:"n"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			for i := 1; i <= in.N; i++ {
				_ = rc.ReportProgress(float64(i), float64(in.N), "")
			}
			return &CallToolResult{Content: []Content{TextContent(fmt.Sprintf("counted to %d", in.N))}}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}

	progress := make(chan ProgressParams, 8)
	client.SetNotificationHandler(NotificationProgress, func(rc *RequestContext, params json.RawMessage) {
		var pp ProgressParams
		_ = json.Unmarshal(params, &pp)
		progress <- pp
	})

	initializePair(t, client, server)

	raw, err := client.Call(context.Background(), MethodToolsCall, &CallToolParams{
		Name:      "count",
		Arguments: json.RawMessage(`{"n":3}`),
		Meta:      &RequestMeta{ProgressToken: "tok-1"},
	})
	if err != nil {
		t.Fatalf("tools/call failed: %v", err)
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("bad result %s: %v", raw, err)
	}
	if !strings.Contains(result.Content[0].Text, "counted to 3") {
		t.Errorf("result = %+v", result)
	}

	for i := 1; i <= 3; i++ {
		select {
		case pp := <-progress:
			if pp.ProgressToken != "tok-1" {
				t.Errorf("progress token = %v, want tok-1", pp.ProgressToken)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing progress notification %d", i)
		}
	}
}
