package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one unit of the pipeline. Processors normalize content, enrichers
// attach optional capabilities, handlers produce the terminal response. The
// engine does not know roles; ordering is a registration convention at the
// call site (processors, then enrichers, then handlers).
//
// A handler that cannot produce a response returns normally without setting
// cc.Response; that is the fallback mechanism, not an error path.
type Stage interface {
	Name() string
	Apply(ctx context.Context, cc *Context) error
}

// Result is the outcome of one pipeline run. Errors may be non-empty even
// when Response is set; a nil Response is fatal for the caller.
type Result struct {
	Response *Response
	Errors   []*StageError
	Metrics  Metrics
}

// Engine executes a fixed, ordered stage list.
type Engine struct {
	stages []Stage

	onStage   func(stage string, d time.Duration)
	onHandler func(handler string)
}

func NewEngine(stages ...Stage) *Engine {
	return &Engine{stages: stages}
}

// OnStage registers a per-stage timing callback.
func (e *Engine) OnStage(fn func(stage string, d time.Duration)) { e.onStage = fn }

// OnHandler registers a callback fired with the name of the stage that
// produced the response.
func (e *Engine) OnHandler(fn func(handler string)) { e.onHandler = fn }

// Execute runs stages in order. Stage errors (and panics) are recorded on the
// context and iteration continues; as soon as any stage sets cc.Response, no
// further stage is invoked.
func (e *Engine) Execute(ctx context.Context, cc *Context) Result {
	cc.Metrics.StartedAt = time.Now()

	for _, st := range e.stages {
		if cc.Response != nil {
			break
		}
		started := time.Now()
		if err := e.runStage(ctx, st, cc); err != nil {
			cc.RecordError(st.Name(), err)
			slog.Warn("stage failed", "stage", st.Name(), "error", err)
		}
		if e.onStage != nil {
			e.onStage(st.Name(), time.Since(started))
		}
		if cc.Response != nil && e.onHandler != nil {
			e.onHandler(st.Name())
		}
	}

	cc.Metrics.FinishedAt = time.Now()
	return Result{
		Response: cc.Response,
		Errors:   cc.Errors,
		Metrics:  cc.Metrics,
	}
}

// runStage isolates one Apply call so a panicking stage degrades into a
// recorded error instead of tearing down the request.
func (e *Engine) runStage(ctx context.Context, st Stage, cc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Apply(ctx, cc)
}
