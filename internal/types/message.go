package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content part types.
const (
	PartText     = "text"
	PartFileURL  = "file_url"
	PartImageURL = "image_url"
)

// ContentPart is one typed element of a message body. Part order is
// significant and must be preserved end to end.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// MessageContent is either a plain string or an ordered list of typed parts.
// The wire format accepts both; a plain string is kept as a single text part.
type MessageContent struct {
	parts []ContentPart
	plain bool
}

// TextContent wraps a plain string.
func TextContent(s string) MessageContent {
	return MessageContent{parts: []ContentPart{{Type: PartText, Text: s}}, plain: true}
}

// PartsContent wraps an explicit part list.
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{parts: parts}
}

// Parts returns the ordered content parts.
func (c MessageContent) Parts() []ContentPart { return c.parts }

// IsPlain reports whether the content arrived as a bare string.
func (c MessageContent) IsPlain() bool { return c.plain }

// Flatten joins the text parts in order, skipping non-text parts.
func (c MessageContent) Flatten() string {
	if c.plain && len(c.parts) == 1 {
		return c.parts[0].Text
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Type == PartText {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.plain && len(c.parts) == 1 {
		return json.Marshal(c.parts[0].Text)
	}
	return json.Marshal(c.parts)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TextContent(s)
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a part array: %w", err)
	}
	*c = MessageContent{parts: parts}
	return nil
}

// Message is one turn of the conversation.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	ToneID  string         `json:"toneId,omitempty"`
}

// Roles accepted on inbound messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether r is a known message role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}
