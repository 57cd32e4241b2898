package enrich

import (
	"context"

	"github.com/af-corp/conduit/internal/pipeline"
)

// AgentMode flags the context for agent execution when the request carries
// an agent signal. ForceStandardChat wins over any agent flag.
type AgentMode struct{}

func NewAgentMode() *AgentMode { return &AgentMode{} }

func (e *AgentMode) Name() string { return "agentmode" }

func (e *AgentMode) Apply(ctx context.Context, cc *pipeline.Context) error {
	if cc.ForceStandardChat {
		cc.AgentMode = false
		return nil
	}
	if cc.ForceAgentType != "" {
		cc.AgentMode = true
	}
	return nil
}
