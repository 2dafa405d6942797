package mcp

// Content is one block of tool-result or prompt-message content. Type
// selects the variant: "text", "image", "audio", "resource_link" or
// "resource".
type Content struct {
	Type string `json:"type"`

	// Text is set for type "text".
	Text string `json:"text,omitempty"`

	// Data carries base64-encoded bytes for "image" and "audio".
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`

	// URI is set for "resource_link".
	URI string `json:"uri,omitempty"`

	// Resource is set for "resource" (embedded resource contents).
	Resource *ResourceContents `json:"resource,omitempty"`

	Annotations *Annotations `json:"annotations,omitempty"`
}

// Annotations attach audience and priority hints to content.
type Annotations struct {
	Audience     []string `json:"audience,omitempty"`
	Priority     float64  `json:"priority,omitempty"`
	LastModified string   `json:"lastModified,omitempty"`
}

// TextContent builds a text content block.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ImageContent builds an image content block from base64 data.
func ImageContent(data, mimeType string) Content {
	return Content{Type: "image", Data: data, MIMEType: mimeType}
}

// CallToolResult is the tools/call response payload. IsError marks
// tool-level failures that are results, not protocol errors.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// ResourceContents is one entry of a resources/read result: text or a
// base64-encoded blob, never both.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult is the resources/read response payload.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// PromptMessage is one turn of a prompt template.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// GetPromptResult is the prompts/get response payload.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}
