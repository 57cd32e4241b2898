package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/types"
)

// ImageProcessor validates image_url content parts and tags the context.
// Only http, https and data references are accepted.
type ImageProcessor struct{}

func NewImageProcessor() *ImageProcessor { return &ImageProcessor{} }

func (p *ImageProcessor) Name() string { return "images" }

func (p *ImageProcessor) Apply(ctx context.Context, cc *pipeline.Context) error {
	for _, msg := range cc.Messages {
		if msg.Content.IsPlain() {
			continue
		}
		for _, part := range msg.Content.Parts() {
			if part.Type != types.PartImageURL {
				continue
			}
			cc.HasImages = true
			cc.AddContentType(pipeline.ContentImage)

			if !validImageRef(part.URL) {
				cc.RecordError(p.Name(), fmt.Errorf("invalid image reference: %q", truncateRef(part.URL)))
			}
		}
	}
	return nil
}

func validImageRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:image/")
}

// truncateRef keeps error messages short; data URIs can be megabytes.
func truncateRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
