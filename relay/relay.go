// Package relay implements the two server-side relays: each consumes
// one client request, invokes its external collaborator, and streams
// envelopes back through an Emitter until a terminal envelope closes
// the logical operation.
//
// Both relays guarantee the envelope ordering invariant: exactly one
// *_start first, then zero or more output/chunk envelopes in collaborator
// emission order, then exactly one terminal envelope (*_complete or
// error). Nothing is emitted for an operation after its terminal
// envelope. Collaborator faults are converted to error envelopes here
// and nowhere else; only human-readable messages cross the boundary.
package relay

import (
	"errors"
	"log/slog"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/observer"
)

// Emitter delivers one envelope to the client. A non-nil error means
// the connection is gone; the relay cancels its collaborator call and
// stops emitting.
type Emitter func(codetutor.ServerEnvelope) error

// Outcome summarizes one completed logical operation, for history
// recording and logging.
type Outcome struct {
	OK      bool
	Elapsed float64 // wall-clock seconds
	Message string  // fault message when !OK
}

// Option configures a relay.
type Option func(*relayConfig)

type relayConfig struct {
	logger *slog.Logger
	inst   *observer.Instruments
}

func defaultRelayConfig() relayConfig {
	return relayConfig{logger: slog.New(slog.DiscardHandler)}
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *relayConfig) { c.logger = l }
}

// WithInstruments enables OTEL metrics and spans for relay operations.
func WithInstruments(inst *observer.Instruments) Option {
	return func(c *relayConfig) { c.inst = inst }
}

// wireMessage extracts the client-safe message from a collaborator
// fault. Anything else is masked: internal error text never crosses
// the wire.
func wireMessage(err error) string {
	var cerr *codetutor.ErrCollaborator
	if errors.As(err, &cerr) {
		return cerr.Message
	}
	return "internal error"
}
