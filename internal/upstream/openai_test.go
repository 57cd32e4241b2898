package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/types"
)

func testRequest() CompletionRequest {
	return CompletionRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: types.TextContent("hello")},
		},
	}
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] == true {
			t.Error("blocking completion must not request streaming")
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	client := NewClient(config.UpstreamConfig{BaseURL: srv.URL, APIKey: "test-key"})
	text, err := client.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "hi there" {
		t.Errorf("expected %q, got %q", "hi there", text)
	}
}

func TestClient_CompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), testRequest())

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", provErr.StatusCode)
	}
}

func TestClient_OpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Error("streaming completion must request streaming")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	stream, err := client.OpenStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer stream.Close()

	var got string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		got += string(chunk)
	}

	if got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}

	// Recv after EOF stays EOF
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("expected io.EOF after stream end, got %v", err)
	}
}

func TestClient_MultiPartContentSerializes(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	req := CompletionRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: types.PartsContent(
				types.ContentPart{Type: types.PartText, Text: "describe this"},
				types.ContentPart{Type: types.PartImageURL, URL: "https://example.com/a.png"},
			)},
		},
	}
	if _, err := client.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	var wire struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(captured, &wire); err != nil {
		t.Fatalf("captured body is not a parts-array message: %v\n%s", err, captured)
	}
	if len(wire.Messages) != 1 || len(wire.Messages[0].Content) != 2 {
		t.Fatalf("expected 1 message with 2 parts, got %s", captured)
	}
}
