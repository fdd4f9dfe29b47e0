package relay

import (
	"context"
	"time"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/explain"
	"github.com/tutorlab/codetutor/observer"
)

// Explanation relays explain_code requests to the language-model
// collaborator.
type Explanation struct {
	explainer explain.Explainer
	cfg       relayConfig
}

// NewExplanation creates an explanation relay over the given backend.
// Pass explain.NewStatic() for the degraded mode used when no model
// credential is configured.
func NewExplanation(explainer explain.Explainer, opts ...Option) *Explanation {
	cfg := defaultRelayConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Explanation{explainer: explainer, cfg: cfg}
}

// Backend returns the name of the configured explainer backend.
func (r *Explanation) Backend() string { return r.explainer.Name() }

// Handle runs one explanation operation, emitting envelopes until the
// terminal one. Every non-empty text increment becomes exactly one
// explanation_chunk, so concatenating the chunks reproduces the full
// explanation.
func (r *Explanation) Handle(ctx context.Context, req explain.Request, emit Emitter) Outcome {
	if err := emit(codetutor.ExplanationStart()); err != nil {
		return Outcome{Message: "connection lost"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := r.cfg.inst.StartSpan(ctx, "relay.explain",
		observer.AttrBackend.String(r.explainer.Name()),
	)
	defer span.End()

	start := time.Now()
	ch := make(chan string, 16)
	type streamResult struct {
		full string
		err  error
	}
	resCh := make(chan streamResult, 1)
	go func() {
		full, err := r.explainer.ExplainStream(ctx, req, ch)
		resCh <- streamResult{full, err}
	}()

	emitFailed := false
	for text := range ch {
		if emitFailed || text == "" {
			continue
		}
		if err := emit(codetutor.ExplanationChunk(text)); err != nil {
			r.cfg.logger.Debug("client gone mid-explanation", "err", err)
			emitFailed = true
			cancel()
		}
	}
	res := <-resCh
	elapsed := time.Since(start)

	if emitFailed {
		r.record(ctx, observer.OutcomeFault, elapsed)
		return Outcome{Elapsed: elapsed.Seconds(), Message: "connection lost"}
	}

	if res.err != nil {
		r.cfg.logger.Warn("explanation fault", "backend", r.explainer.Name(), "err", res.err)
		_ = emit(codetutor.ErrorEnvelope(wireMessage(res.err)))
		r.record(ctx, observer.OutcomeFault, elapsed)
		return Outcome{Elapsed: elapsed.Seconds(), Message: wireMessage(res.err)}
	}

	_ = emit(codetutor.ExplanationComplete())
	r.record(ctx, observer.OutcomeOK, elapsed)
	return Outcome{OK: true, Elapsed: elapsed.Seconds()}
}

func (r *Explanation) record(ctx context.Context, outcome string, elapsed time.Duration) {
	r.cfg.inst.RecordExplanation(ctx, r.explainer.Name(), outcome, elapsed)
}
