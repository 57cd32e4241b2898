package knowledge

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/af-corp/conduit/internal/config"
)

// Passage is one retrieved snippet from the knowledge index.
type Passage struct {
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher retrieves passages relevant to a query, scoped to a bot.
type Searcher interface {
	Search(ctx context.Context, botID, query string) ([]Passage, error)
}

// WeaviateSearcher implements Searcher against a Weaviate class holding
// per-bot knowledge passages.
type WeaviateSearcher struct {
	client *weaviate.Client
	class  string
	limit  int
}

func NewWeaviateSearcher(cfg config.KnowledgeConfig) (*WeaviateSearcher, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	class := cfg.Class
	if class == "" {
		class = "Passage"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &WeaviateSearcher{client: client, class: class, limit: limit}, nil
}

func (s *WeaviateSearcher) Search(ctx context.Context, botID, query string) ([]Passage, error) {
	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	whereFilter := filters.Where().
		WithPath([]string{"botId"}).
		WithOperator(filters.Equal).
		WithValueString(botID)

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithNearText(nearText).
		WithLimit(s.limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("knowledge search: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[s.class].([]interface{})
	if !ok {
		return nil, nil
	}

	passages := make([]Passage, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		p := Passage{
			Title:   getString(m, "title"),
			Content: getString(m, "content"),
			Source:  getString(m, "source"),
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				p.Score = c
			}
		}
		if p.Content == "" {
			continue
		}
		passages = append(passages, p)
	}
	return passages, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
