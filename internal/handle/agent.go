package handle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/stream"
	"github.com/af-corp/conduit/internal/upstream"
)

var errNoRunner = errors.New("no agent runner configured")

// AgentRunner executes one agent task and returns its final text plus the
// thread identifier the runtime assigned.
type AgentRunner interface {
	Run(ctx context.Context, task upstream.AgentTask) (text, threadID string, err error)
}

// AgentHandler delegates agent-mode requests to the agent runtime. Any
// failure is recorded and the handler returns without setting a response,
// which lets the engine fall through to the standard handler.
type AgentHandler struct {
	runner AgentRunner
}

func NewAgentHandler(runner AgentRunner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

func (h *AgentHandler) Name() string { return "agent" }

func (h *AgentHandler) Apply(ctx context.Context, cc *pipeline.Context) error {
	if cc.ForceStandardChat {
		return nil
	}
	if !cc.AgentMode && cc.ForceAgentType == "" {
		return nil
	}
	if h.runner == nil {
		cc.RecordError(h.Name(), errNoRunner)
		return nil
	}

	agentType := cc.ForceAgentType
	if agentType == "" {
		agentType = "default"
	}

	text, threadID, err := h.runner.Run(ctx, upstream.AgentTask{
		AgentType: agentType,
		Messages:  cc.Messages,
		ThreadID:  cc.ThreadID,
		BotID:     cc.BotID,
	})
	if err != nil {
		// Fall through to the standard handler.
		slog.Warn("agent execution failed, falling back", "agent_type", agentType, "error", err)
		cc.RecordError(h.Name(), err)
		return nil
	}

	// Agent output may carry the same marker grammar as upstream streams;
	// strip it the same way the blocking path does.
	p := stream.NewParser()
	p.ProcessChunk([]byte(text))
	final := p.Finalize()
	if threadID == "" {
		threadID = p.ThreadID()
	}

	cc.Response = &pipeline.Response{Text: final, ThreadID: threadID}
	return nil
}
