package codetutor

import "fmt"

// FaultReason classifies a collaborator fault for metrics and messages.
type FaultReason string

const (
	// FaultUnavailable means the collaborator could not be reached.
	FaultUnavailable FaultReason = "unavailable"
	// FaultTimeout means the collaborator call exceeded its deadline.
	FaultTimeout FaultReason = "timeout"
	// FaultQuota means the collaborator rejected the call for quota reasons.
	FaultQuota FaultReason = "quota"
	// FaultAuth means the collaborator rejected the configured credential.
	FaultAuth FaultReason = "auth"
	// FaultBadInput means the collaborator rejected the request payload.
	FaultBadInput FaultReason = "bad-input"
)

// ErrCollaborator is a fault from an external collaborator. Relays catch
// it at the boundary and convert it to a terminal error envelope; only
// Message is suitable for the wire.
type ErrCollaborator struct {
	Service string // "sandbox" or the model provider name
	Reason  FaultReason
	Message string
}

func (e *ErrCollaborator) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Service, e.Reason, e.Message)
}

// ErrHTTP is a non-2xx response from a collaborator HTTP API.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrProtocol is a malformed inbound envelope. The connection stays open;
// the frame is logged and ignored.
type ErrProtocol struct {
	Message string
}

func (e *ErrProtocol) Error() string { return e.Message }
