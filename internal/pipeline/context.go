package pipeline

import (
	"time"

	"github.com/af-corp/conduit/internal/stream"
	"github.com/af-corp/conduit/internal/types"
)

// Content tags discovered by processors.
const (
	ContentText  = "text"
	ContentFile  = "file"
	ContentImage = "image"
)

// StreamSource yields raw upstream text chunks. Recv returns io.EOF when the
// stream is exhausted; cancellation is bound to the context the stream was
// opened with.
type StreamSource interface {
	Recv() ([]byte, error)
	Close() error
}

// Response is the terminal output of a pipeline run. Exactly one handler sets
// it; either Text (blocking completion) or Stream (live upstream stream plus
// the parser that will consume it) is populated.
type Response struct {
	Text     string
	Stream   StreamSource
	Parser   *stream.Parser
	ThreadID string
}

// Metrics records pipeline timing.
type Metrics struct {
	StartedAt  time.Time
	FinishedAt time.Time
}

// Context carries one chat request through the stage list. It is owned by a
// single pipeline invocation and never shared across requests.
type Context struct {
	ModelID      string
	TokenLimit   int
	Temperature  *float64
	SystemPrompt string
	Stream       bool

	Messages []types.Message

	// Scratch fields mutated by stages.
	ContentTypes map[string]struct{}
	HasFiles     bool
	HasImages    bool

	BotID             string
	SearchMode        string
	AgentMode         bool
	ForceAgentType    string
	ForceStandardChat bool
	ThreadID          string

	// Passages holds knowledge-index text injected by the retrieval enricher.
	Passages []string
	// ToolResults holds web-search output folded in by the tool router.
	ToolResults []string
	// Actions holds status labels queued for the streaming layer.
	Actions []string

	Errors   []*StageError
	Response *Response
	Metrics  Metrics
}

// NewContext builds a pipeline context from a validated chat request. A bare
// prompt is appended as a trailing user message.
func NewContext(req *types.ChatRequest) *Context {
	messages := make([]types.Message, len(req.Messages))
	copy(messages, req.Messages)
	if req.Prompt != "" {
		messages = append(messages, types.Message{
			Role:    types.RoleUser,
			Content: types.TextContent(req.Prompt),
		})
	}

	cc := &Context{
		ModelID:           req.Model.ID,
		TokenLimit:        req.Model.TokenLimit,
		Temperature:       req.Temperature,
		SystemPrompt:      req.SystemPrompt,
		Stream:            req.WantsStream(),
		Messages:          messages,
		ContentTypes:      make(map[string]struct{}),
		BotID:             req.BotID,
		SearchMode:        req.SearchMode,
		ForceAgentType:    req.ForceAgentType,
		ForceStandardChat: req.ForceStandardChat,
		ThreadID:          req.ThreadID,
	}
	cc.AddContentType(ContentText)
	return cc
}

// AddContentType records a discovered content tag.
func (c *Context) AddContentType(tag string) {
	c.ContentTypes[tag] = struct{}{}
}

// HasContentType reports whether a tag was discovered.
func (c *Context) HasContentType(tag string) bool {
	_, ok := c.ContentTypes[tag]
	return ok
}

// RecordError appends a recoverable stage error. Append-only; errors survive
// even after a response is set.
func (c *Context) RecordError(stage string, err error) {
	c.Errors = append(c.Errors, &StageError{Stage: stage, Err: err})
}

// LastUserText returns the flattened text of the most recent user message,
// used as the query for retrieval and tool routing.
func (c *Context) LastUserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == types.RoleUser {
			return c.Messages[i].Content.Flatten()
		}
	}
	return ""
}
