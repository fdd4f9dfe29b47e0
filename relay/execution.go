package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/observer"
	"github.com/tutorlab/codetutor/sandbox"
)

// degradedWarning is streamed ahead of output when the execution
// backend provides no real isolation, so clients can indicate reduced
// trust.
const degradedWarning = "warning: running in local fallback mode without sandbox isolation\n"

// Execution relays execute_code requests to the sandbox collaborator.
type Execution struct {
	runner sandbox.Runner
	cfg    relayConfig
}

// NewExecution creates an execution relay over the given backend.
func NewExecution(runner sandbox.Runner, opts ...Option) *Execution {
	cfg := defaultRelayConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Execution{runner: runner, cfg: cfg}
}

// Backend returns the name of the configured sandbox backend.
func (r *Execution) Backend() string { return r.runner.Name() }

// Handle runs one execution operation, emitting envelopes until the
// terminal one. It blocks until the operation finishes or emit fails.
func (r *Execution) Handle(ctx context.Context, code string, lang codetutor.Language, emit Emitter) Outcome {
	if !lang.Supported() {
		msg := fmt.Sprintf("unsupported language: %q", string(lang))
		_ = emit(codetutor.ErrorEnvelope(msg))
		return Outcome{Message: msg}
	}

	if err := emit(codetutor.ExecutionStart(lang)); err != nil {
		return Outcome{Message: "connection lost"}
	}

	// Empty code short-circuits to an immediate, empty completion.
	if strings.TrimSpace(code) == "" {
		_ = emit(codetutor.ExecutionComplete(0))
		return Outcome{OK: true}
	}

	if !r.runner.Trusted() {
		if err := emit(codetutor.ExecutionOutput(codetutor.OutputStderr, degradedWarning)); err != nil {
			return Outcome{Message: "connection lost"}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := r.cfg.inst.StartSpan(ctx, "relay.execute",
		observer.AttrLanguage.String(string(lang)),
		observer.AttrBackend.String(r.runner.Name()),
	)
	defer span.End()

	start := time.Now()
	ch := make(chan sandbox.Event, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.runner.Run(ctx, sandbox.Request{Code: code, Language: lang}, ch)
	}()

	emitFailed := false
	for ev := range ch {
		if emitFailed {
			continue // drain so the runner never blocks
		}
		if err := emit(executionEnvelope(ev)); err != nil {
			r.cfg.logger.Debug("client gone mid-execution", "err", err)
			emitFailed = true
			cancel()
		}
	}
	runErr := <-errCh
	elapsed := time.Since(start)

	if emitFailed {
		r.record(ctx, lang, observer.OutcomeFault, elapsed)
		return Outcome{Elapsed: elapsed.Seconds(), Message: "connection lost"}
	}

	if runErr != nil {
		r.cfg.logger.Warn("execution fault", "language", lang, "backend", r.runner.Name(), "err", runErr)
		_ = emit(codetutor.ErrorEnvelope(wireMessage(runErr)))
		r.record(ctx, lang, observer.OutcomeFault, elapsed)
		return Outcome{Elapsed: elapsed.Seconds(), Message: wireMessage(runErr)}
	}

	_ = emit(codetutor.ExecutionComplete(elapsed.Seconds()))
	r.record(ctx, lang, observer.OutcomeOK, elapsed)
	return Outcome{OK: true, Elapsed: elapsed.Seconds()}
}

func (r *Execution) record(ctx context.Context, lang codetutor.Language, outcome string, elapsed time.Duration) {
	r.cfg.inst.RecordExecution(ctx, string(lang), r.runner.Name(), outcome, elapsed)
}

// executionEnvelope maps one sandbox event to its wire envelope.
func executionEnvelope(ev sandbox.Event) codetutor.ServerEnvelope {
	switch ev.Kind {
	case sandbox.EventStdout:
		return codetutor.ExecutionOutput(codetutor.OutputStdout, ev.Content)
	case sandbox.EventStderr:
		return codetutor.ExecutionOutput(codetutor.OutputStderr, ev.Content)
	case sandbox.EventError:
		return codetutor.ExecutionOutput(codetutor.OutputError, ev.Content)
	case sandbox.EventResult:
		return codetutor.ExecutionResult(ev.Success, ev.ExitCode)
	}
	// Unreachable with a well-behaved runner.
	return codetutor.ExecutionOutput(codetutor.OutputStderr, ev.Content)
}
