package mcp

import "slices"

// Protocol revisions this runtime speaks, newest first. The set is closed;
// negotiation picks from it.
const (
	ProtocolVersion20250618 = "2025-06-18"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20241105 = "2024-11-05"

	// LatestProtocolVersion is what a client advertises by default.
	LatestProtocolVersion = ProtocolVersion20250618
)

// SupportedProtocolVersions lists the supported revisions, newest first.
var SupportedProtocolVersions = []string{
	ProtocolVersion20250618,
	ProtocolVersion20250326,
	ProtocolVersion20241105,
}

// IsSupportedProtocolVersion reports whether v is in the supported set.
func IsSupportedProtocolVersion(v string) bool {
	return slices.Contains(SupportedProtocolVersions, v)
}

// NegotiateProtocolVersion picks the version a server answers with: the
// client's requested version when supported, otherwise the newest one the
// server speaks.
func NegotiateProtocolVersion(requested string) string {
	if IsSupportedProtocolVersion(requested) {
		return requested
	}
	return LatestProtocolVersion
}
