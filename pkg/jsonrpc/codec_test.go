package jsonrpc

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string // "request", "notification", "response"
	}{
		{
			name: "request with numeric id",
			data: `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			want: "request",
		},
		{
			name: "request with string id",
			data: `{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"echo"}}`,
			want: "request",
		},
		{
			name: "notification",
			data: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			want: "notification",
		},
		{
			name: "success response",
			data: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			want: "response",
		},
		{
			name: "error response",
			data: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`,
			want: "response",
		},
		{
			name: "error response with null id",
			data: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			want: "response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeMessage failed: %v", err)
			}
			var got string
			switch msg.(type) {
			case *Request:
				got = "request"
			case *Notification:
				got = "notification"
			case *Response:
				got = "response"
			}
			if got != tt.want {
				t.Errorf("classified as %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantCode int
	}{
		{"not json", `{not valid`, CodeParseError},
		{"empty object", `{}`, CodeInvalidRequest},
		{"missing version", `{"id":1,"method":"test"}`, CodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"test"}`, CodeInvalidRequest},
		{"response with both result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`, CodeInvalidRequest},
		{"response with neither result nor error", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"params not object or array", `{"jsonrpc":"2.0","id":1,"method":"m","params":5}`, CodeInvalidRequest},
		{"boolean id", `{"jsonrpc":"2.0","id":true,"method":"m"}`, CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var wireErr *Error
			if !errorsAs(err, &wireErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if wireErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", wireErr.Code, tt.wantCode)
			}
		})
	}
}

// errorsAs avoids importing errors just for one assertion helper.
func errorsAs(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		&Request{ID: Int64ID(1), Method: "ping"},
		&Request{ID: StringID("r-1"), Method: "tools/call", Params: json.RawMessage(`{"name":"echo","arguments":{"m":"hi"}}`)},
		&Notification{Method: "notifications/initialized"},
		&Notification{Method: "notifications/progress", Params: json.RawMessage(`{"progress":0.5}`)},
		NewResponse(Int64ID(7), json.RawMessage(`{"ok":true}`)),
		NewErrorResponse(StringID("x"), NewError(CodeMethodNotFound, "Method not found")),
		// The null-id error response replying to an unparsable request.
		NewErrorResponse(ID{}, NewError(CodeParseError, "Parse error")),
	}

	for _, msg := range msgs {
		data, err := EncodeMessage(msg)
		if err != nil {
			t.Fatalf("EncodeMessage(%T) failed: %v", msg, err)
		}
		decoded, err := DecodeMessage(data)
		if err != nil {
			t.Fatalf("DecodeMessage(%s) failed: %v", data, err)
		}
		reencoded, err := EncodeMessage(decoded)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if !jsonEqual(t, data, reencoded) {
			t.Errorf("round trip changed message: %s -> %s", data, reencoded)
		}
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return bytes.Equal(ja, jb)
}

func TestDecodeNullIDResponse(t *testing.T) {
	// An explicit "id": null must count as present, not absent: it is how
	// a peer addresses an error reply to a request it could not parse.
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`))
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("expected *Response, got %T", msg)
	}
	if resp.ID.IsValid() {
		t.Errorf("null id decoded as valid: %v", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("error = %+v, want parse error", resp.Error)
	}
}

func TestNullParamsAccepted(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"m","params":null}`))
	if err != nil {
		t.Fatalf("null params rejected: %v", err)
	}
	if _, ok := msg.(*Request); !ok {
		t.Fatalf("expected *Request, got %T", msg)
	}
}

func TestIDEquality(t *testing.T) {
	// String and numeric halves are disjoint: "1" != 1 as map keys.
	m := map[ID]bool{}
	m[Int64ID(1)] = true
	m[StringID("1")] = true
	if len(m) != 2 {
		t.Errorf("expected 2 distinct keys, got %d", len(m))
	}
	if Int64ID(1) == StringID("1") {
		t.Error("numeric and string ids must not compare equal")
	}
}

func TestIDString(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{Int64ID(42), "42"},
		{StringID("abc"), `"abc"`},
		{ID{}, "null"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("ID.String() = %q, want %q", got, tt.want)
		}
	}
}
