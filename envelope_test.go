package codetutor

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClientEnvelopeExecute(t *testing.T) {
	frame := []byte(`{"action":"execute_code","code":"print('Hello, World!')","language":"python"}`)
	env, err := DecodeClientEnvelope(frame)
	if err != nil {
		t.Fatalf("DecodeClientEnvelope: %v", err)
	}
	if env.Action != ActionExecute {
		t.Errorf("Action = %q, want %q", env.Action, ActionExecute)
	}
	if env.Code != "print('Hello, World!')" {
		t.Errorf("Code = %q", env.Code)
	}
	if env.Language != "python" {
		t.Errorf("Language = %q, want python", env.Language)
	}
}

func TestDecodeClientEnvelopeExplain(t *testing.T) {
	frame := []byte(`{"action":"explain_code","code":"x=1","output":"","error":""}`)
	env, err := DecodeClientEnvelope(frame)
	if err != nil {
		t.Fatalf("DecodeClientEnvelope: %v", err)
	}
	if env.Action != ActionExplain {
		t.Errorf("Action = %q, want %q", env.Action, ActionExplain)
	}
}

func TestDecodeClientEnvelopeRejectsUnknownAction(t *testing.T) {
	_, err := DecodeClientEnvelope([]byte(`{"action":"drop_tables","code":""}`))
	var perr *ErrProtocol
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ErrProtocol", err)
	}
}

func TestDecodeClientEnvelopeRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeClientEnvelope([]byte(`{"action":`))
	var perr *ErrProtocol
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ErrProtocol", err)
	}
}

func TestServerEnvelopeWireShapes(t *testing.T) {
	tests := []struct {
		name string
		env  ServerEnvelope
		want string
	}{
		{"execution_start", ExecutionStart(LangPython), `{"type":"execution_start","language":"python"}`},
		{"execution_output", ExecutionOutput(OutputStdout, "Hello, World!\n"), `{"type":"execution_output","data":{"kind":"stdout","content":"Hello, World!\n"}}`},
		{"execution_result", ExecutionResult(true, 0), `{"type":"execution_result","data":{"success":true,"exit_code":0}}`},
		{"explanation_start", ExplanationStart(), `{"type":"explanation_start"}`},
		{"explanation_chunk", ExplanationChunk("x is"), `{"type":"explanation_chunk","data":{"text":"x is"}}`},
		{"explanation_complete", ExplanationComplete(), `{"type":"explanation_complete"}`},
		{"error", ErrorEnvelope("boom"), `{"type":"error","message":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.env)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestServerEnvelopeTerminal(t *testing.T) {
	if !ExecutionComplete(1.5).Terminal() {
		t.Error("execution_complete should be terminal")
	}
	if !ExplanationComplete().Terminal() {
		t.Error("explanation_complete should be terminal")
	}
	if !ErrorEnvelope("x").Terminal() {
		t.Error("error should be terminal")
	}
	if ExecutionStart(LangPython).Terminal() {
		t.Error("execution_start should not be terminal")
	}
	if ExecutionOutput(OutputStdout, "x").Terminal() {
		t.Error("execution_output should not be terminal")
	}
}

func TestDecodeServerEnvelopeRejectsUnknownType(t *testing.T) {
	_, err := DecodeServerEnvelope([]byte(`{"type":"mystery"}`))
	var perr *ErrProtocol
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ErrProtocol", err)
	}
}

func TestDecodeServerEnvelopeRoundTrip(t *testing.T) {
	env := ExecutionResult(false, 2)
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeServerEnvelope(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data == nil || got.Data.Success == nil || *got.Data.Success {
		t.Errorf("Success = %+v, want false", got.Data)
	}
	if got.Data.ExitCode == nil || *got.Data.ExitCode != 2 {
		t.Errorf("ExitCode = %+v, want 2", got.Data)
	}
}

func TestLanguage(t *testing.T) {
	if !LangPython.Supported() || !LangJavaScript.Supported() {
		t.Error("python and javascript must be supported")
	}
	if Language("ruby").Supported() {
		t.Error("ruby must not be supported")
	}
	if got := LangJavaScript.Runtime(); got != "node" {
		t.Errorf("Runtime = %q, want node", got)
	}
	if got := Language("ruby").Runtime(); got != "" {
		t.Errorf("Runtime = %q, want empty", got)
	}
}
