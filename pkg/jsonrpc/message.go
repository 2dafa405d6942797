// Package jsonrpc implements the JSON-RPC 2.0 message model used by MCP:
// typed requests, responses and notifications with the validation and
// framing rules the protocol requires.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the protocol tag carried by every message.
const Version = "2.0"

// ID identifies a request. Per JSON-RPC 2.0 it is either an integer or a
// string; the two halves are disjoint for equality and map keys. The zero
// value is the null id, used only in error responses for unparsable input.
type ID struct {
	name     string
	number   int64
	isString bool
	valid    bool
}

// Int64ID returns a numeric request ID.
func Int64ID(v int64) ID { return ID{number: v, valid: true} }

// StringID returns a string request ID.
func StringID(v string) ID { return ID{name: v, isString: true, valid: true} }

// IsValid reports whether the ID is set. Responses to unparsable requests
// carry the zero (null) ID.
func (id ID) IsValid() bool { return id.valid }

// Raw returns the underlying value: an int64, a string, or nil for the
// null id.
func (id ID) Raw() any {
	switch {
	case !id.valid:
		return nil
	case id.isString:
		return id.name
	default:
		return id.number
	}
}

// String renders the ID for logging. String forms are quoted so "1" and 1
// remain distinguishable.
func (id ID) String() string {
	switch {
	case !id.valid:
		return "null"
	case id.isString:
		return strconv.Quote(id.name)
	default:
		return strconv.FormatInt(id.number, 10)
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return []byte("null"), nil
	}
	if id.isString {
		return json.Marshal(id.name)
	}
	return json.Marshal(id.number)
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers and other
// JSON types are rejected; null yields the invalid (null) id.
func (id *ID) UnmarshalJSON(data []byte) error {
	*id = ID{}
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = StringID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = Int64ID(n)
		return nil
	}
	return fmt.Errorf("invalid request id: %s", data)
}

// Message is the closed sum of the three JSON-RPC message kinds. The
// concrete type is *Request, *Response or *Notification.
type Message interface {
	// isMessage restricts implementations to this package.
	isMessage()
}

// Request is a call expecting a response. The ID is never null for a valid
// request.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Notification is a call without an ID; no response is expected.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response correlates to a request by ID and carries exactly one of Result
// or Error.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

func (*Request) isMessage()      {}
func (*Notification) isMessage() {}
func (*Response) isMessage()     {}

// NewResponse builds a success response for the given id.
func NewResponse(id ID, result json.RawMessage) *Response {
	if result == nil {
		result = json.RawMessage(`{}`)
	}
	return &Response{ID: id, Result: result}
}

// NewErrorResponse builds an error response for the given id.
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{ID: id, Error: err}
}
