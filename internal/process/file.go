package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/af-corp/conduit/internal/extract"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/types"
)

// FileProcessor resolves file_url content parts into extracted text via the
// extraction service. Part order is preserved; a part whose extraction fails
// is left untouched and the failure recorded as a recoverable stage error.
type FileProcessor struct {
	summarizer extract.Summarizer
}

func NewFileProcessor(s extract.Summarizer) *FileProcessor {
	return &FileProcessor{summarizer: s}
}

func (p *FileProcessor) Name() string { return "files" }

func (p *FileProcessor) Apply(ctx context.Context, cc *pipeline.Context) error {
	for mi := range cc.Messages {
		content := cc.Messages[mi].Content
		if content.IsPlain() {
			continue
		}

		parts := content.Parts()
		resolved := make([]types.ContentPart, len(parts))
		copy(resolved, parts)
		changed := false

		for pi, part := range parts {
			if part.Type != types.PartFileURL {
				continue
			}
			cc.HasFiles = true
			cc.AddContentType(pipeline.ContentFile)

			if p.summarizer == nil {
				cc.RecordError(p.Name(), fmt.Errorf("no extractor configured for %s", part.URL))
				continue
			}

			text, err := p.summarizer.Summarize(ctx, part.URL)
			if err != nil {
				cc.RecordError(p.Name(), fmt.Errorf("extract %s: %w", part.URL, err))
				continue
			}

			resolved[pi] = types.ContentPart{Type: types.PartText, Text: text}
			changed = true
			slog.Debug("file extracted", "url", part.URL, "chars", len(text))
		}

		if changed {
			cc.Messages[mi].Content = types.PartsContent(resolved...)
		}
	}
	return nil
}
