package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/types"
)

// ErrAgentUnavailable is returned while the agent circuit is open.
var ErrAgentUnavailable = errors.New("agent service unavailable")

// AgentTask is the unit of work handed to the agent runtime.
type AgentTask struct {
	AgentType string          `json:"agentType"`
	Messages  []types.Message `json:"messages"`
	ThreadID  string          `json:"threadId,omitempty"`
	BotID     string          `json:"botId,omitempty"`
}

type agentResult struct {
	Text     string `json:"text"`
	ThreadID string `json:"threadId,omitempty"`
}

// AgentRunner executes agent tasks against the agent runtime service,
// guarded by a circuit breaker so a dead runtime fails fast.
type AgentRunner struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *breaker
}

func NewAgentRunner(cfg config.AgentConfig) *AgentRunner {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AgentRunner{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		breaker:  newBreaker(cfg.FailureThreshold, cfg.ProbeInterval),
	}
}

// Run executes the task and returns the agent's final text along with the
// thread identifier the runtime assigned.
func (r *AgentRunner) Run(ctx context.Context, task AgentTask) (string, string, error) {
	if !r.breaker.allow() {
		return "", "", fmt.Errorf("%w: circuit %s", ErrAgentUnavailable, r.breaker.currentState())
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", "", fmt.Errorf("marshal agent task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/run", bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		r.breaker.recordFailure()
		return "", "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.breaker.recordFailure()
		return "", "", fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.breaker.recordFailure()
		return "", "", &ProviderError{
			Provider:   "agent",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var out agentResult
	if err := json.Unmarshal(body, &out); err != nil {
		r.breaker.recordFailure()
		return "", "", fmt.Errorf("unmarshal agent response: %w", err)
	}

	r.breaker.recordSuccess()
	return out.Text, out.ThreadID, nil
}
