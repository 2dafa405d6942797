package jsonrpc

import (
	"strconv"
	"strings"
)

// ExtractID recovers the request id from a raw frame without a full JSON
// parse. It is used to address an error response when the body itself was
// unparsable, so it has to tolerate malformed input: any shape it cannot
// make sense of yields the null id.
//
// The search is lexical. A frame that contains the byte sequence `"id"`
// inside a string value can in principle fool it; that is acceptable for
// the error-reply path, which only needs a best-effort correlation.
func ExtractID(raw []byte) ID {
	s := string(raw)
	idPos := strings.Index(s, `"id"`)
	if idPos < 0 {
		return ID{}
	}
	colon := strings.IndexByte(s[idPos:], ':')
	if colon < 0 {
		return ID{}
	}
	rest := strings.TrimLeft(s[idPos+colon+1:], " \t\r\n")
	if rest == "" {
		return ID{}
	}

	switch c := rest[0]; {
	case c == 'n':
		return ID{} // null, or malformed

	case c == '"':
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return ID{}
		}
		return StringID(rest[1 : 1+end])

	case c == '-' || (c >= '0' && c <= '9'):
		end := 1
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		n, err := strconv.ParseInt(rest[:end], 10, 64)
		if err != nil {
			return ID{}
		}
		return Int64ID(n)
	}
	return ID{}
}
