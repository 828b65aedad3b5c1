package domain

import (
	"fmt"
	"strings"
)

// BatchReport summarizes a file-level batch run.
type BatchReport struct {
	RunID     string   `json:"run_id"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// BatchError aggregates every failed item of a batch and keeps the last cause.
type BatchError struct {
	Operation string
	Failed    []string
	Last      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: failed to process %d item(s): [%s] due to %v",
		e.Operation, len(e.Failed), strings.Join(e.Failed, ", "), e.Last)
}

func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchIncomplete, e.Last}
}
