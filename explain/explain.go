// Package explain provides language-model collaborator clients that turn
// code (plus optionally its captured output and error text) into a
// streamed tutoring explanation.
package explain

import (
	"context"

	codetutor "github.com/tutorlab/codetutor"
)

// Request carries the inputs of one explanation. Output and Error are
// previously captured execution results supplied by the caller; the
// explainer never re-runs code.
type Request struct {
	Code   string
	Output string
	Error  string
}

// Explainer streams explanation text increments into ch in emission
// order, closing ch when the stream ends, and returns the full
// accumulated text. Concatenating the increments reproduces the return
// value exactly. A non-nil error is a collaborator fault
// (*codetutor.ErrCollaborator).
type Explainer interface {
	ExplainStream(ctx context.Context, req Request, ch chan<- string) (string, error)
	// Name identifies the backend ("gemini", "static").
	Name() string
}

// fault builds an explanation collaborator fault.
func fault(service string, reason codetutor.FaultReason, msg string) *codetutor.ErrCollaborator {
	return &codetutor.ErrCollaborator{Service: service, Reason: reason, Message: msg}
}
