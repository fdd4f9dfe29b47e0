package codetutor

import (
	"encoding/json"
	"fmt"
)

// EnvelopeType identifies the kind of a server→client envelope.
type EnvelopeType string

const (
	// TypeExecutionStart opens an execution operation.
	TypeExecutionStart EnvelopeType = "execution_start"
	// TypeExecutionOutput carries one stdout/stderr/error line from the sandbox.
	TypeExecutionOutput EnvelopeType = "execution_output"
	// TypeExecutionResult carries the sandbox exit result.
	TypeExecutionResult EnvelopeType = "execution_result"
	// TypeExecutionComplete terminates a successful execution operation.
	TypeExecutionComplete EnvelopeType = "execution_complete"
	// TypeExplanationStart opens an explanation operation.
	TypeExplanationStart EnvelopeType = "explanation_start"
	// TypeExplanationChunk carries one incremental piece of explanation text.
	TypeExplanationChunk EnvelopeType = "explanation_chunk"
	// TypeExplanationComplete terminates a successful explanation operation.
	TypeExplanationComplete EnvelopeType = "explanation_complete"
	// TypeError terminates an operation with a human-readable message.
	TypeError EnvelopeType = "error"
)

// OutputKind classifies an execution_output line.
type OutputKind string

const (
	OutputStdout OutputKind = "stdout"
	OutputStderr OutputKind = "stderr"
	OutputError  OutputKind = "error"
)

// Payload is the data field of a server envelope. Which fields are set
// depends on the envelope type.
type Payload struct {
	Kind     OutputKind `json:"kind,omitempty"`      // execution_output
	Content  string     `json:"content,omitempty"`   // execution_output
	Success  *bool      `json:"success,omitempty"`   // execution_result
	ExitCode *int       `json:"exit_code,omitempty"` // execution_result
	Elapsed  float64    `json:"elapsed,omitempty"`   // execution_complete
	Text     string     `json:"text,omitempty"`      // explanation_chunk
}

// ServerEnvelope is one server→client message. Envelopes for a logical
// operation are emitted in order: one *_start, zero or more output/chunk
// envelopes, then exactly one terminal (*_complete or error).
type ServerEnvelope struct {
	Type     EnvelopeType `json:"type"`
	Language string       `json:"language,omitempty"` // execution_start
	Data     *Payload     `json:"data,omitempty"`
	Message  string       `json:"message,omitempty"` // error
}

// ExecutionStart builds the opening envelope of an execution operation.
func ExecutionStart(lang Language) ServerEnvelope {
	return ServerEnvelope{Type: TypeExecutionStart, Language: string(lang)}
}

// ExecutionOutput builds one output-line envelope.
func ExecutionOutput(kind OutputKind, content string) ServerEnvelope {
	return ServerEnvelope{Type: TypeExecutionOutput, Data: &Payload{Kind: kind, Content: content}}
}

// ExecutionResult builds the exit-result envelope.
func ExecutionResult(success bool, exitCode int) ServerEnvelope {
	return ServerEnvelope{Type: TypeExecutionResult, Data: &Payload{Success: &success, ExitCode: &exitCode}}
}

// ExecutionComplete builds the terminal envelope of a successful execution.
// elapsed is wall-clock seconds from invocation to the sandbox's last event.
func ExecutionComplete(elapsed float64) ServerEnvelope {
	return ServerEnvelope{Type: TypeExecutionComplete, Data: &Payload{Elapsed: elapsed}}
}

// ExplanationStart builds the opening envelope of an explanation operation.
func ExplanationStart() ServerEnvelope {
	return ServerEnvelope{Type: TypeExplanationStart}
}

// ExplanationChunk builds one incremental explanation-text envelope.
func ExplanationChunk(text string) ServerEnvelope {
	return ServerEnvelope{Type: TypeExplanationChunk, Data: &Payload{Text: text}}
}

// ExplanationComplete builds the terminal envelope of a successful explanation.
func ExplanationComplete() ServerEnvelope {
	return ServerEnvelope{Type: TypeExplanationComplete}
}

// ErrorEnvelope builds a terminal error envelope. Only the human-readable
// message crosses the wire; internal error detail stays server-side.
func ErrorEnvelope(message string) ServerEnvelope {
	return ServerEnvelope{Type: TypeError, Message: message}
}

// Terminal reports whether the envelope ends its logical operation.
func (e ServerEnvelope) Terminal() bool {
	switch e.Type {
	case TypeExecutionComplete, TypeExplanationComplete, TypeError:
		return true
	}
	return false
}

// DecodeServerEnvelope parses a server→client JSON frame, rejecting
// unknown envelope types.
func DecodeServerEnvelope(data []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerEnvelope{}, &ErrProtocol{Message: "malformed server envelope: " + err.Error()}
	}
	switch env.Type {
	case TypeExecutionStart, TypeExecutionOutput, TypeExecutionResult, TypeExecutionComplete,
		TypeExplanationStart, TypeExplanationChunk, TypeExplanationComplete, TypeError:
		return env, nil
	default:
		return ServerEnvelope{}, &ErrProtocol{Message: fmt.Sprintf("unknown envelope type: %q", env.Type)}
	}
}

// Action identifies the kind of a client→server envelope.
type Action string

const (
	// ActionExecute requests execution of code in the sandbox.
	ActionExecute Action = "execute_code"
	// ActionExplain requests an explanation of code and its captured output.
	ActionExplain Action = "explain_code"
)

// ClientEnvelope is one client→server message. Output and Error are
// previously captured execution results supplied as context for explain;
// the server never re-runs code to produce them.
type ClientEnvelope struct {
	Action   Action `json:"action"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"` // execute_code
	Output   string `json:"output,omitempty"`   // explain_code
	Error    string `json:"error,omitempty"`    // explain_code
}

// DecodeClientEnvelope parses a client→server JSON frame, rejecting
// unknown actions.
func DecodeClientEnvelope(data []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientEnvelope{}, &ErrProtocol{Message: "malformed client envelope: " + err.Error()}
	}
	switch env.Action {
	case ActionExecute, ActionExplain:
		return env, nil
	default:
		return ClientEnvelope{}, &ErrProtocol{Message: fmt.Sprintf("unknown action: %q", env.Action)}
	}
}

// Encode marshals the envelope to a JSON text frame.
func (e ClientEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
