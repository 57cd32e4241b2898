package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/af-corp/conduit/internal/httputil"
	"github.com/af-corp/conduit/internal/pipeline"
)

// Status labels recorded for streaming requests. Headers are already sent
// when a stream goes wrong, so these only reach the request metric: 499 is
// the client-closed-request convention, 502 an upstream read failure.
const (
	streamStatusOK       = "200"
	streamStatusAborted  = "499"
	streamStatusUpstream = "502"
)

// streamResponse copies the upstream stream to the client verbatim (the
// marker grammar is the wire format) while feeding the same bytes to the
// parser. Any status labels queued by enrichers are written first so the
// client sees them before content arrives. The returned status reflects how
// the stream ended.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, reqID string, cc *pipeline.Context, resp *pipeline.Response) string {
	defer resp.Stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return "500"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)

	for _, action := range cc.Actions {
		fmt.Fprintf(w, "[[STATUS:%s]]\n", action)
	}
	flusher.Flush()

	parser := resp.Parser
	ctx := r.Context()
	status := streamStatusOK

	for {
		if ctx.Err() != nil {
			status = streamStatusAborted
			break
		}

		chunk, err := resp.Stream.Recv()
		if len(chunk) > 0 {
			parser.ProcessChunk(chunk)
			if _, werr := w.Write(chunk); werr != nil {
				status = streamStatusAborted
				break
			}
			flusher.Flush()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// Client cancellation surfaces as a read error on the upstream
			// body; everything else is a genuine upstream failure.
			if ctx.Err() != nil {
				status = streamStatusAborted
			} else {
				status = streamStatusUpstream
				slog.Error("upstream stream read failed", "request_id", reqID, "error", err)
			}
			break
		}
	}

	// Finalize regardless of how the stream ended; partial content is a
	// usable message, not an error.
	final := parser.Finalize()

	if status == streamStatusAborted {
		if h.metrics != nil {
			h.metrics.RecordStreamAbort()
		}
		slog.Info("stream aborted by client",
			"request_id", reqID,
			"partial_chars", len(final),
			"citations", len(parser.Citations()),
		)
	} else {
		slog.Info("stream completed",
			"request_id", reqID,
			"chars", len(final),
			"citations", len(parser.Citations()),
			"thread_id", parser.ThreadID(),
		)
	}

	for _, warning := range parser.Warnings() {
		slog.Warn("stream parse anomaly", "request_id", reqID, "warning", warning)
	}
	if h.metrics != nil {
		h.metrics.RecordCitations(len(parser.Citations()))
	}
	return status
}
