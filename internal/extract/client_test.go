package extract

import (
	"context"
	"testing"

	"github.com/af-corp/conduit/internal/config"
)

func TestSummarizeNotConnected(t *testing.T) {
	c := NewClient(config.ExtractorConfig{Address: "localhost:9999"})
	_, err := c.Summarize(context.Background(), "https://example.com/doc.pdf")
	if err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	in := summarizeRequest{URL: "https://example.com/a.pdf"}

	data, err := codec.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out summarizeRequest
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.URL != in.URL {
		t.Errorf("expected %q, got %q", in.URL, out.URL)
	}
	if codec.Name() != "json" {
		t.Errorf("unexpected codec name %q", codec.Name())
	}
}
