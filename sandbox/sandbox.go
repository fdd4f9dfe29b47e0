// Package sandbox provides execution collaborator clients for the Code
// Tutor relays. A Runner accepts source text plus a language tag and
// streams discrete output events back; the relay converts those events
// into wire envelopes.
//
// Three implementations exist: HTTPRunner for a remote sandbox service,
// DockerRunner for container-isolated local execution, and
// SubprocessRunner as the last-resort local fallback with no isolation
// guarantees.
package sandbox

import (
	"context"

	codetutor "github.com/tutorlab/codetutor"
)

// EventKind identifies the kind of a streamed execution event.
type EventKind string

const (
	// EventStdout carries one line of standard output.
	EventStdout EventKind = "stdout"
	// EventStderr carries one line of standard error.
	EventStderr EventKind = "stderr"
	// EventError carries one line of sandbox-reported error text.
	EventError EventKind = "error"
	// EventResult is the final exit result. At most one per run, always last.
	EventResult EventKind = "result"
)

// Event is one discrete output event from a code execution.
type Event struct {
	Kind    EventKind
	Content string // stdout/stderr/error lines

	// Result fields, set only for EventResult.
	Success  bool
	ExitCode int
}

// Request carries the parameters of one code execution.
type Request struct {
	Code     string
	Language codetutor.Language
}

// Runner executes code and streams output events into ch in the order
// they are produced, closing ch when no more events will be sent. A nil
// return means the run reached its exit result (successful or not); a
// non-nil return is a collaborator fault (*codetutor.ErrCollaborator)
// and ends the operation. Events already sent remain valid either way.
type Runner interface {
	Run(ctx context.Context, req Request, ch chan<- Event) error
	// Name identifies the backend ("http", "docker", "subprocess").
	Name() string
	// Trusted reports whether the backend provides real isolation.
	// Untrusted backends are surfaced to clients as degraded mode.
	Trusted() bool
}

// fault builds a sandbox collaborator fault.
func fault(reason codetutor.FaultReason, msg string) *codetutor.ErrCollaborator {
	return &codetutor.ErrCollaborator{Service: "sandbox", Reason: reason, Message: msg}
}
