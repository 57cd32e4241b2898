package handle

import (
	"context"
	"fmt"
	"strings"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/stream"
	"github.com/af-corp/conduit/internal/types"
	"github.com/af-corp/conduit/internal/upstream"
)

// StandardHandler performs the upstream completion call. It is the last
// handler in the chain; its failure means no response can be produced.
type StandardHandler struct {
	completer upstream.Completer
	models    func() *config.ModelsConfig
}

func NewStandardHandler(completer upstream.Completer, models func() *config.ModelsConfig) *StandardHandler {
	return &StandardHandler{completer: completer, models: models}
}

func (h *StandardHandler) Name() string { return "standard" }

func (h *StandardHandler) Apply(ctx context.Context, cc *pipeline.Context) error {
	modelsCfg := h.models()
	info, _ := modelsCfg.Lookup(cc.ModelID)

	sc := upstream.ResolveStreamConfig(info.Reasoning, cc.Stream, cc.Temperature, modelsCfg.DefaultTemperature)

	req := upstream.CompletionRequest{
		Model:       cc.ModelID,
		Messages:    buildMessages(cc),
		Temperature: &sc.Temperature,
	}
	if cc.TokenLimit > 0 {
		limit := cc.TokenLimit
		req.MaxTokens = &limit
	}

	if sc.Stream {
		s, err := h.completer.OpenStream(ctx, req)
		if err != nil {
			return fmt.Errorf("open completion stream: %w", err)
		}
		cc.Response = &pipeline.Response{
			Stream:   s,
			Parser:   stream.NewParser(),
			ThreadID: cc.ThreadID,
		}
		return nil
	}

	text, err := h.completer.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	// Blocking responses still carry the marker grammar; one parser pass
	// strips citation blocks and signals.
	p := stream.NewParser()
	p.ProcessChunk([]byte(text))
	final := p.Finalize()

	threadID := p.ThreadID()
	if threadID == "" {
		threadID = cc.ThreadID
	}
	cc.Response = &pipeline.Response{Text: final, ThreadID: threadID}
	return nil
}

// buildMessages assembles the outgoing message list: the system prompt plus
// retrieved passages and tool results, then the conversation itself.
func buildMessages(cc *pipeline.Context) []types.Message {
	var systemParts []string
	if cc.SystemPrompt != "" {
		systemParts = append(systemParts, cc.SystemPrompt)
	}
	if len(cc.Passages) > 0 {
		systemParts = append(systemParts,
			"Relevant knowledge:\n"+strings.Join(cc.Passages, "\n\n"))
	}
	if len(cc.ToolResults) > 0 {
		systemParts = append(systemParts,
			"Web search results:\n"+strings.Join(cc.ToolResults, "\n\n"))
	}

	out := make([]types.Message, 0, len(cc.Messages)+1)
	if len(systemParts) > 0 {
		out = append(out, types.Message{
			Role:    types.RoleSystem,
			Content: types.TextContent(strings.Join(systemParts, "\n\n")),
		})
	}
	return append(out, cc.Messages...)
}
