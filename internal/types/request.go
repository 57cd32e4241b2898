package types

import (
	"errors"
	"fmt"
)

// Search modes accepted on a chat request.
const (
	SearchModeIntelligent = "intelligent"
	SearchModeAlways      = "always"
	SearchModeOff         = "off"
)

// ModelRef identifies the requested model.
type ModelRef struct {
	ID         string `json:"id"`
	TokenLimit int    `json:"tokenLimit,omitempty"`
}

// ChatRequest is the inbound chat request body.
type ChatRequest struct {
	Model             ModelRef  `json:"model"`
	Messages          []Message `json:"messages"`
	Prompt            string    `json:"prompt,omitempty"`
	SystemPrompt      string    `json:"systemPrompt,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	Stream            *bool     `json:"stream,omitempty"`
	BotID             string    `json:"botId,omitempty"`
	SearchMode        string    `json:"searchMode,omitempty"`
	ForceAgentType    string    `json:"forceAgentType,omitempty"`
	ForceStandardChat bool      `json:"forceStandardChat,omitempty"`
	ThreadID          string    `json:"threadId,omitempty"`
}

// WantsStream reports the effective streaming preference (default true).
func (r *ChatRequest) WantsStream() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// Validate checks required fields and enum values. A non-nil error means the
// request must be rejected before any pipeline work happens.
func (r *ChatRequest) Validate() error {
	if r.Model.ID == "" {
		return errors.New("model.id is required")
	}
	if len(r.Messages) == 0 && r.Prompt == "" {
		return errors.New("messages or prompt is required")
	}
	for i, m := range r.Messages {
		if !ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
	}
	switch r.SearchMode {
	case "", SearchModeIntelligent, SearchModeAlways, SearchModeOff:
	default:
		return fmt.Errorf("invalid searchMode %q", r.SearchMode)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *r.Temperature)
	}
	return nil
}
