package pipeline

import "fmt"

// StageError is a recoverable failure recorded during a stage run. Stage
// failures never abort the pipeline; the engine collects them and carries on.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
