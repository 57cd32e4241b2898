package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/af-corp/conduit/internal/config"
)

// Summarizer turns a file reference into extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, fileURL string) (string, error)
}

// Client is a gRPC client for the extraction sidecar. The sidecar speaks
// JSON-encoded unary calls, so no generated stubs are needed.
type Client struct {
	conn *grpc.ClientConn
	cfg  config.ExtractorConfig
}

func NewClient(cfg config.ExtractorConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the gRPC connection to the extraction service.
func (c *Client) Connect() error {
	conn, err := grpc.NewClient(c.cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return fmt.Errorf("extractor dial: %w", err)
	}
	c.conn = conn
	slog.Info("extractor connected", "address", c.cfg.Address)
	return nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type summarizeRequest struct {
	URL string `json:"url"`
}

type summarizeResponse struct {
	Text string `json:"text"`
}

// Summarize implements Summarizer.
func (c *Client) Summarize(ctx context.Context, fileURL string) (string, error) {
	if c.conn == nil {
		return "", fmt.Errorf("extractor not connected")
	}

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := summarizeRequest{URL: fileURL}
	var resp summarizeResponse
	err := c.conn.Invoke(callCtx, "/conduit.extract.v1.ExtractService/Summarize", &req, &resp)
	if err != nil {
		return "", fmt.Errorf("extractor summarize: %w", err)
	}
	return resp.Text, nil
}

// jsonCodec is a grpc message codec for the JSON-speaking sidecar.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }
