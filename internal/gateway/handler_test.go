package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/policy"
	"github.com/af-corp/conduit/internal/stream"
	"github.com/af-corp/conduit/internal/telemetry"
	"github.com/af-corp/conduit/internal/types"
)

// textHandler is a stage that always answers with fixed text.
type textHandler struct {
	text string
	err  error
}

func (h *textHandler) Name() string { return "test-text" }

func (h *textHandler) Apply(ctx context.Context, cc *pipeline.Context) error {
	if h.err != nil {
		return h.err
	}
	cc.Response = &pipeline.Response{Text: h.text}
	return nil
}

// chunkStream replays canned chunks as a pipeline.StreamSource. A non-nil
// err is returned once the chunks are exhausted, in place of io.EOF.
type chunkStream struct {
	chunks []string
	err    error
	pos    int
}

func (s *chunkStream) Recv() ([]byte, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return []byte(c), nil
}

func (s *chunkStream) Close() error { return nil }

// streamHandler is a stage that answers with a canned stream.
type streamHandler struct {
	chunks []string
}

func (h *streamHandler) Name() string { return "test-stream" }

func (h *streamHandler) Apply(ctx context.Context, cc *pipeline.Context) error {
	cc.Response = &pipeline.Response{
		Stream: &chunkStream{chunks: h.chunks},
		Parser: stream.NewParser(),
	}
	return nil
}

func testModels() func() *config.ModelsConfig {
	return func() *config.ModelsConfig {
		return &config.ModelsConfig{
			Models: map[string]config.ModelInfo{
				"gpt-4o":  {DisplayName: "GPT-4o"},
				"o3-mini": {DisplayName: "o3-mini", Reasoning: true},
			},
			DefaultTemperature: 0.7,
		}
	}
}

func newTestHandler(stages ...pipeline.Stage) *Handler {
	return NewHandler(pipeline.NewEngine(stages...), nil, testModels(), nil, "test")
}

func postChat(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	h.Chat(w, req)
	return w
}

func TestChat_InvalidJSON(t *testing.T) {
	h := newTestHandler(&textHandler{text: "hi"})
	w := postChat(t, h, "{not json")
	if w.Code != 400 {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestChat_MissingModel(t *testing.T) {
	h := newTestHandler(&textHandler{text: "hi"})
	w := postChat(t, h, `{"messages":[{"role":"user","content":"hello"}]}`)
	if w.Code != 400 {
		t.Errorf("expected 400, got %d", w.Code)
	}

	var envelope map[string]any
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope["error"] != "validation_error" {
		t.Errorf("expected validation_error, got %v", envelope["error"])
	}
}

func TestChat_BlockingResponse(t *testing.T) {
	h := newTestHandler(&textHandler{text: "the answer"})
	w := postChat(t, h, `{"model":{"id":"gpt-4o"},"messages":[{"role":"user","content":"hello"}],"stream":false}`)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp types.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Text != "the answer" {
		t.Errorf("expected %q, got %q", "the answer", resp.Text)
	}
}

func TestChat_NoHandlerResponseIs500WithDetails(t *testing.T) {
	h := newTestHandler(&textHandler{err: errors.New("backend exploded")})
	w := postChat(t, h, `{"model":{"id":"gpt-4o"},"prompt":"hello"}`)

	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var envelope struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Error != "internal_error" {
		t.Errorf("expected internal_error, got %s", envelope.Error)
	}
	if len(envelope.Details) != 1 || !strings.Contains(envelope.Details[0], "backend exploded") {
		t.Errorf("expected stage error detail, got %v", envelope.Details)
	}
}

func TestChat_StreamingCopiesWireFormatVerbatim(t *testing.T) {
	h := newTestHandler(&streamHandler{chunks: []string{
		"Hello",
		" world\n",
		"[[CITATIONS_START]]\n",
		`[{"number":1,"title":"T","url":"https://x.com"}]` + "\n",
		"[[CITATIONS_END]]",
	}})
	w := postChat(t, h, `{"model":{"id":"gpt-4o"},"prompt":"hello"}`)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Hello world") {
		t.Errorf("content missing from stream body: %q", body)
	}
	// The grammar is the wire format: markers pass through untouched.
	if !strings.Contains(body, "[[CITATIONS_START]]") {
		t.Errorf("citation markers must be forwarded verbatim: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestChat_QueuedActionsPrecedeStream(t *testing.T) {
	// A stage that queues an action, then a streaming handler.
	action := stageFunc{name: "queue", fn: func(ctx context.Context, cc *pipeline.Context) error {
		cc.Actions = append(cc.Actions, "Searching the web")
		return nil
	}}
	h := newTestHandler(action, &streamHandler{chunks: []string{"result text"}})
	w := postChat(t, h, `{"model":{"id":"gpt-4o"},"prompt":"hello"}`)

	body := w.Body.String()
	if !strings.HasPrefix(body, "[[STATUS:Searching the web]]\n") {
		t.Errorf("queued action must lead the stream: %q", body)
	}
	if !strings.Contains(body, "result text") {
		t.Errorf("content missing: %q", body)
	}
}

func TestChat_StreamStopsOnClientCancel(t *testing.T) {
	h := newTestHandler(&streamHandler{chunks: []string{"should not be written"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/v1/chat",
		strings.NewReader(`{"model":{"id":"gpt-4o"},"prompt":"hello"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	h.Chat(w, req)

	if strings.Contains(w.Body.String(), "should not be written") {
		t.Errorf("cancelled request must stop reading the upstream stream: %q", w.Body.String())
	}
}

func TestChat_StreamAbortRecordedInMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	h := NewHandler(pipeline.NewEngine(&streamHandler{chunks: []string{"partial answer"}}),
		nil, testModels(), m, "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/v1/chat",
		strings.NewReader(`{"model":{"id":"gpt-4o"},"prompt":"hello"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	h.Chat(w, req)

	counter, err := m.RequestTotal.GetMetricWithLabelValues("gpt-4o", streamStatusAborted, "true")
	if err != nil {
		t.Fatalf("get metric: %v", err)
	}
	var metric dto.Metric
	counter.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("aborted stream must be recorded as %s, counter = %v",
			streamStatusAborted, *metric.Counter.Value)
	}
}

func TestStreamResponse_UpstreamFailureStatus(t *testing.T) {
	h := newTestHandler()
	cc := pipeline.NewContext(&types.ChatRequest{Model: types.ModelRef{ID: "gpt-4o"}, Prompt: "hi"})
	resp := &pipeline.Response{
		Stream: &chunkStream{chunks: []string{"partial"}, err: errors.New("connection reset")},
		Parser: stream.NewParser(),
	}

	req := httptest.NewRequest("POST", "/v1/chat", nil)
	w := httptest.NewRecorder()
	status := h.streamResponse(w, req, "test-req", cc, resp)

	if status != streamStatusUpstream {
		t.Errorf("expected status %s for upstream read failure, got %s", streamStatusUpstream, status)
	}
	// Content written before the failure still reaches the client.
	if !strings.Contains(w.Body.String(), "partial") {
		t.Errorf("partial content missing from body: %q", w.Body.String())
	}
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, cc *pipeline.Context) error
}

func (s stageFunc) Name() string                                       { return s.name }
func (s stageFunc) Apply(ctx context.Context, cc *pipeline.Context) error { return s.fn(ctx, cc) }

func TestChat_PolicyDenied(t *testing.T) {
	ev := policy.NewEvaluator(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true}
	})
	denyAll := `package conduit.access

import rego.v1

default allow := false

reason := "all requests denied"
`
	if err := ev.LoadFromModules(map[string]string{"deny.rego": denyAll}); err != nil {
		t.Fatalf("load policy: %v", err)
	}

	h := NewHandler(pipeline.NewEngine(&textHandler{text: "hi"}), ev, testModels(), nil, "test")
	w := postChat(t, h, `{"model":{"id":"gpt-4o"},"prompt":"hello"}`)

	if w.Code != 403 {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var envelope map[string]any
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope["error"] != "policy_denied" {
		t.Errorf("expected policy_denied, got %v", envelope["error"])
	}
}

func TestListModels(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/v1/models", nil)
	w := httptest.NewRecorder()
	h.ListModels(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp modelListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("expected 2 models, got %d", len(resp.Data))
	}
}

func TestListModels_FiltersByAllowlist(t *testing.T) {
	h := newTestHandler()
	identity := auth.Identity{KeyID: "key-1", AllowedModels: []string{"gpt-4o"}}
	req := httptest.NewRequest("GET", "/v1/models", nil)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), identity))
	w := httptest.NewRecorder()
	h.ListModels(w, req)

	var resp modelListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "gpt-4o" {
		t.Errorf("expected only gpt-4o, got %+v", resp.Data)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/conduit/v1/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected ok, got %s", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("expected version test, got %s", resp["version"])
	}
}
