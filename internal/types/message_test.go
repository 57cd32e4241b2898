package types

import (
	"encoding/json"
	"testing"
)

func TestMessageContent_UnmarshalString(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.Content.IsPlain() {
		t.Error("expected plain content")
	}
	if got := m.Content.Flatten(); got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestMessageContent_UnmarshalParts(t *testing.T) {
	raw := `{"role":"user","content":[
		{"type":"text","text":"look at this"},
		{"type":"image_url","url":"https://example.com/a.png"},
		{"type":"file_url","url":"file://report.pdf"}
	]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	parts := m.Content.Parts()
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	// Part order must survive the round trip.
	if parts[0].Type != PartText || parts[1].Type != PartImageURL || parts[2].Type != PartFileURL {
		t.Errorf("part order not preserved: %+v", parts)
	}

	out, err := json.Marshal(m.Content)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back MessageContent
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	for i, p := range back.Parts() {
		if p.Type != parts[i].Type {
			t.Errorf("part %d: expected type %s, got %s", i, parts[i].Type, p.Type)
		}
	}
}

func TestCitation_NumberStringOrInt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"string number", `{"number":"1","title":"T","url":"https://x.com"}`, 1},
		{"int number", `{"number":2,"title":"T","url":"https://x.com"}`, 2},
		{"missing number", `{"title":"T","url":"https://x.com"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Citation
			if err := json.Unmarshal([]byte(tt.raw), &c); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if c.Number != tt.want {
				t.Errorf("expected number %d, got %d", tt.want, c.Number)
			}
		})
	}
}

func TestChatRequest_Validate(t *testing.T) {
	temp := 3.5
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr bool
	}{
		{"valid", ChatRequest{Model: ModelRef{ID: "gpt-4o"}, Messages: []Message{{Role: "user", Content: TextContent("hi")}}}, false},
		{"missing model", ChatRequest{Messages: []Message{{Role: "user", Content: TextContent("hi")}}}, true},
		{"no messages no prompt", ChatRequest{Model: ModelRef{ID: "gpt-4o"}}, true},
		{"prompt only", ChatRequest{Model: ModelRef{ID: "gpt-4o"}, Prompt: "hi"}, false},
		{"bad role", ChatRequest{Model: ModelRef{ID: "gpt-4o"}, Messages: []Message{{Role: "robot", Content: TextContent("hi")}}}, true},
		{"bad search mode", ChatRequest{Model: ModelRef{ID: "gpt-4o"}, Prompt: "hi", SearchMode: "sometimes"}, true},
		{"temperature out of range", ChatRequest{Model: ModelRef{ID: "gpt-4o"}, Prompt: "hi", Temperature: &temp}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatRequest_WantsStream(t *testing.T) {
	var r ChatRequest
	if !r.WantsStream() {
		t.Error("stream should default to true")
	}
	f := false
	r.Stream = &f
	if r.WantsStream() {
		t.Error("explicit stream=false should win")
	}
}
