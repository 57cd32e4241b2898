package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/httputil"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/policy"
	"github.com/af-corp/conduit/internal/telemetry"
	"github.com/af-corp/conduit/internal/types"
)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	engine    *pipeline.Engine
	policy    *policy.Evaluator
	modelsCfg func() *config.ModelsConfig
	metrics   *telemetry.Metrics
	version   string
}

func NewHandler(engine *pipeline.Engine, evaluator *policy.Evaluator, modelsCfg func() *config.ModelsConfig, metrics *telemetry.Metrics, version string) *Handler {
	return &Handler{
		engine:    engine,
		policy:    evaluator,
		modelsCfg: modelsCfg,
		metrics:   metrics,
		version:   version,
	}
}

// Chat handles POST /v1/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := req.Validate(); err != nil {
		httputil.WriteValidationError(w, reqID, err.Error())
		return
	}

	if denied := h.checkPolicy(w, r, reqID, &req); denied {
		return
	}

	cc := pipeline.NewContext(&req)
	result := h.engine.Execute(r.Context(), cc)

	for _, se := range result.Errors {
		slog.Warn("stage error", "request_id", reqID, "stage", se.Stage, "error", se.Err)
		if h.metrics != nil {
			h.metrics.RecordStageError(se.Stage)
		}
	}

	if result.Response == nil {
		details := make([]string, 0, len(result.Errors))
		for _, se := range result.Errors {
			details = append(details, se.Error())
		}
		slog.Error("no handler produced a response",
			"request_id", reqID,
			"model", req.Model.ID,
			"stage_errors", len(details),
		)
		h.recordRequest(req.Model.ID, "500", false, receivedAt)
		httputil.WriteInternalError(w, reqID, "No response could be produced", details...)
		return
	}

	if result.Response.Stream != nil {
		status := h.streamResponse(w, r, reqID, cc, result.Response)
		h.recordRequest(req.Model.ID, status, true, receivedAt)
		return
	}

	slog.Info("request completed",
		"request_id", reqID,
		"model", req.Model.ID,
		"stream", false,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
		"stage_errors", len(result.Errors),
	)
	h.recordRequest(req.Model.ID, "200", false, receivedAt)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.ChatResponse{Text: result.Response.Text})
}

// checkPolicy evaluates the access policy. Returns true when the request was
// denied and the response already written.
func (h *Handler) checkPolicy(w http.ResponseWriter, r *http.Request, reqID string, req *types.ChatRequest) bool {
	if h.policy == nil || !h.policy.Enabled() {
		return false
	}

	caller := policy.Caller{}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		caller = policy.Caller{
			KeyID:         id.KeyID,
			UserID:        id.UserID,
			Name:          id.Name,
			AllowedModels: id.AllowedModels,
		}
	}

	allowed, reason, err := h.policy.Evaluate(r.Context(), policy.Input{
		Caller: caller,
		Request: policy.Request{
			Model:     req.Model.ID,
			BotID:     req.BotID,
			AgentMode: req.ForceAgentType != "",
			Stream:    req.WantsStream(),
		},
	})
	if err != nil {
		slog.Error("policy evaluation failed", "request_id", reqID, "error", err)
	}
	if !allowed {
		slog.Warn("request denied by policy", "request_id", reqID, "model", req.Model.ID, "reason", reason)
		httputil.WritePolicyDeniedError(w, reqID, reason)
		return true
	}
	return false
}

func (h *Handler) recordRequest(model, status string, stream bool, receivedAt time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(telemetry.RequestLabels{
		Model:      model,
		Status:     status,
		Stream:     stream,
		DurationMs: float64(time.Since(receivedAt).Milliseconds()),
	})
}

// ListModels handles GET /v1/models, filtered by the caller's allowlist.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	modelsCfg := h.modelsCfg()
	models := make([]modelObject, 0, len(modelsCfg.Models))
	for id, info := range modelsCfg.Models {
		if !identity.AllowsModel(id) {
			continue
		}
		models = append(models, modelObject{
			ID:          id,
			Object:      "model",
			DisplayName: info.DisplayName,
			Reasoning:   info.Reasoning,
			TokenLimit:  info.TokenLimit,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{Object: "list", Data: models})
}

// Health handles GET /conduit/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": h.version,
		"time":    strconv.FormatInt(time.Now().Unix(), 10),
	})
}

type modelObject struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	DisplayName string `json:"display_name,omitempty"`
	Reasoning   bool   `json:"reasoning,omitempty"`
	TokenLimit  int    `json:"token_limit,omitempty"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
