package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/conduit/internal/knowledge"
	"github.com/af-corp/conduit/internal/pipeline"
)

// Retrieval queries the knowledge index for bot-scoped requests and injects
// the retrieved passages into the context. It never produces a response; a
// failed or timed-out query is a recoverable stage error.
type Retrieval struct {
	searcher knowledge.Searcher
	timeout  time.Duration
}

func NewRetrieval(searcher knowledge.Searcher, timeout time.Duration) *Retrieval {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Retrieval{searcher: searcher, timeout: timeout}
}

func (e *Retrieval) Name() string { return "retrieval" }

func (e *Retrieval) Apply(ctx context.Context, cc *pipeline.Context) error {
	if cc.BotID == "" || e.searcher == nil {
		return nil
	}
	query := cc.LastUserText()
	if query == "" {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	passages, err := e.searcher.Search(searchCtx, cc.BotID, query)
	if err != nil {
		return fmt.Errorf("knowledge query for bot %s: %w", cc.BotID, err)
	}

	for _, p := range passages {
		cc.Passages = append(cc.Passages, formatPassage(p))
	}
	slog.Debug("retrieval enriched context", "bot_id", cc.BotID, "passages", len(passages))
	return nil
}

func formatPassage(p knowledge.Passage) string {
	if p.Title == "" {
		return p.Content
	}
	return fmt.Sprintf("%s\n%s", p.Title, p.Content)
}
