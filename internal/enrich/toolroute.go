package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/search"
	"github.com/af-corp/conduit/internal/types"
)

// searchAction is the status label surfaced to the client while the web
// search tool runs.
const searchAction = "Searching the web"

// Classifier decides whether a query warrants a web search.
type Classifier interface {
	ShouldSearch(ctx context.Context, query string) (bool, error)
}

// ToolRouting runs the web search tool when the request's search mode calls
// for it. "always" runs the tool unconditionally; "intelligent" asks the
// classifier first; anything else is a no-op.
type ToolRouting struct {
	classifier Classifier
	searcher   search.Client
}

func NewToolRouting(classifier Classifier, searcher search.Client) *ToolRouting {
	return &ToolRouting{classifier: classifier, searcher: searcher}
}

func (e *ToolRouting) Name() string { return "toolrouting" }

func (e *ToolRouting) Apply(ctx context.Context, cc *pipeline.Context) error {
	if e.searcher == nil {
		return nil
	}

	query := cc.LastUserText()
	if query == "" {
		return nil
	}

	switch cc.SearchMode {
	case types.SearchModeAlways:
	case types.SearchModeIntelligent:
		if e.classifier == nil {
			return nil
		}
		warranted, err := e.classifier.ShouldSearch(ctx, query)
		if err != nil {
			return fmt.Errorf("search classification: %w", err)
		}
		if !warranted {
			slog.Debug("search not warranted", "query_len", len(query))
			return nil
		}
	case types.SearchModeOff, "":
		return nil
	default:
		// Validation rejects unknown modes before the pipeline runs; keep
		// the skip visible in case the two ever drift.
		slog.Debug("unknown search mode, skipping tool routing", "mode", cc.SearchMode)
		return nil
	}

	cc.Actions = append(cc.Actions, searchAction)

	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("web search: %w", err)
	}
	if formatted := search.FormatResults(results); formatted != "" {
		cc.ToolResults = append(cc.ToolResults, formatted)
	}
	slog.Debug("web search folded into context", "results", len(results))
	return nil
}

// OpenAIClassifier asks a small chat model for a yes/no search decision.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(cfg config.UpstreamConfig) *OpenAIClassifier {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.ClassifierModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}
}

func (c *OpenAIClassifier) ShouldSearch(ctx context.Context, query string) (bool, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Decide whether answering the user's message requires up-to-date " +
					"information from the web. Reply with exactly one word: yes or no.",
			},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0,
		MaxTokens:   3,
	})
	if err != nil {
		return false, fmt.Errorf("classifier call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("classifier returned no choices")
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	return strings.HasPrefix(answer, "yes"), nil
}
