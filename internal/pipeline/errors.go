package pipeline

import "fmt"

// Stage names identify which part of a run failed.
const (
	StageCapture  = "capture"
	StageSegment  = "segment"
	StageChyron   = "chyron"
	StageMetadata = "metadata"
	StagePersist  = "persist"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
