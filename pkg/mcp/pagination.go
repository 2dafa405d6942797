package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// DefaultPageSize bounds how many entries a list response carries.
const DefaultPageSize = 50

// cursorPayload is the private interpretation of a cursor: the insertion
// offset of the next page. Registries order entries by insertion so cursors
// stay stable across pages.
type cursorPayload struct {
	Offset int `json:"o"`
}

// encodeCursor renders an opaque cursor token. An xxhash checksum rides
// along so a tampered or foreign cursor is rejected instead of silently
// misbehaving.
func encodeCursor(offset int) string {
	payload, _ := json.Marshal(cursorPayload{Offset: offset})
	sum := xxhash.Sum64(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + fmt.Sprintf("%016x", sum)
}

// decodeCursor parses and verifies a cursor token.
func decodeCursor(cursor string) (int, error) {
	encoded, sumHex, ok := strings.Cut(cursor, ".")
	if !ok {
		return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "malformed cursor")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "malformed cursor")
	}
	if fmt.Sprintf("%016x", xxhash.Sum64(payload)) != sumHex {
		return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid cursor")
	}
	var p cursorPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Offset < 0 {
		return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid cursor")
	}
	return p.Offset, nil
}

// page slices one page out of items. It returns the page and the cursor for
// the next one ("" when exhausted).
func page[T any](items []T, cursor string, pageSize int) ([]T, string, error) {
	offset := 0
	if cursor != "" {
		var err error
		if offset, err = decodeCursor(cursor); err != nil {
			return nil, "", err
		}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if offset >= len(items) {
		return nil, "", nil
	}
	end := min(offset+pageSize, len(items))
	next := ""
	if end < len(items) {
		next = encodeCursor(end)
	}
	return items[offset:end], next, nil
}

// ListAll walks a paginated list operation until the next-cursor is absent
// and concatenates the pages.
func ListAll[T any](list func(cursor string) (items []T, nextCursor string, err error)) ([]T, error) {
	var all []T
	cursor := ""
	for {
		items, next, err := list(cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
