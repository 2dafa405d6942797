package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// wireMessage is the union of all fields an outbound JSON-RPC 2.0 message
// may carry. Pointer fields distinguish "absent" from "present but null".
type wireMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// DecodeMessage parses raw bytes into exactly one of *Request, *Response
// or *Notification. Classification: method+id is a request, method without
// id is a notification, id without method is a response. Anything else,
// a missing or wrong "jsonrpc" tag, or a response with both or neither of
// result/error, fails with an *Error of code CodeInvalidRequest
// (CodeParseError when the bytes are not JSON at all).
//
// Decoding goes through a field map rather than a struct so that an
// explicit "id": null — the id of an error response to an unparsable
// request — still counts as present; unmarshaling null into a pointer
// field would be indistinguishable from the key being absent.
func DecodeMessage(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if json.Valid(data) {
			return nil, Errorf(CodeInvalidRequest, "message must be a JSON object")
		}
		return nil, Errorf(CodeParseError, "invalid JSON: %v", err)
	}

	var version string
	rawVersion, ok := fields["jsonrpc"]
	if !ok || json.Unmarshal(rawVersion, &version) != nil || version != Version {
		return nil, Errorf(CodeInvalidRequest, "missing or invalid jsonrpc version tag")
	}

	rawID, hasID := fields["id"]
	var id ID
	if hasID {
		if err := id.UnmarshalJSON(rawID); err != nil {
			return nil, Errorf(CodeInvalidRequest, "%v", err)
		}
	}

	var method string
	if rawMethod, ok := fields["method"]; ok {
		if err := json.Unmarshal(rawMethod, &method); err != nil || method == "" {
			return nil, Errorf(CodeInvalidRequest, "method must be a non-empty string")
		}
	}

	params := fields["params"]

	switch {
	case method != "" && id.IsValid():
		if err := checkParams(params); err != nil {
			return nil, err
		}
		return &Request{ID: id, Method: method, Params: params}, nil

	case method != "":
		if err := checkParams(params); err != nil {
			return nil, err
		}
		return &Notification{Method: method, Params: params}, nil

	case hasID:
		// Response: exactly one of result/error. The id may be null here,
		// for errors replying to unparsable requests.
		rawResult, hasResult := fields["result"]
		rawError, hasError := fields["error"]
		if hasResult == hasError {
			return nil, Errorf(CodeInvalidRequest, "response must carry exactly one of result and error")
		}
		resp := &Response{ID: id}
		if hasResult {
			resp.Result = rawResult
		} else {
			var wireErr Error
			if err := json.Unmarshal(rawError, &wireErr); err != nil {
				return nil, Errorf(CodeInvalidRequest, "malformed error object: %v", err)
			}
			resp.Error = &wireErr
		}
		return resp, nil

	default:
		return nil, Errorf(CodeInvalidRequest, "message has neither method nor id")
	}
}

// checkParams enforces that params, when present and non-null, is an
// object or array.
func checkParams(params json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	switch params[0] {
	case '{', '[':
		return nil
	case 'n':
		if string(params) == "null" {
			return nil
		}
	}
	return Errorf(CodeInvalidRequest, "params must be an object or array")
}

// EncodeMessage serializes a message to its wire form. Encoding is total
// for every message constructible through this package.
func EncodeMessage(msg Message) ([]byte, error) {
	wire := wireMessage{JSONRPC: Version}
	switch m := msg.(type) {
	case *Request:
		raw, err := m.ID.MarshalJSON()
		if err != nil {
			return nil, err
		}
		rawID := json.RawMessage(raw)
		wire.ID = &rawID
		wire.Method = m.Method
		wire.Params = m.Params
	case *Notification:
		wire.Method = m.Method
		wire.Params = m.Params
	case *Response:
		raw, err := m.ID.MarshalJSON()
		if err != nil {
			return nil, err
		}
		rawID := json.RawMessage(raw)
		wire.ID = &rawID
		if m.Error != nil {
			wire.Error = m.Error
		} else {
			result := m.Result
			if result == nil {
				result = json.RawMessage(`null`)
			}
			wire.Result = &result
		}
	default:
		return nil, fmt.Errorf("unknown message type %T", msg)
	}
	return json.Marshal(wire)
}
