package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	codetutor "github.com/tutorlab/codetutor"
)

// HTTPRunner executes code by POSTing to a remote sandbox service and
// relaying its captured output as a line-by-line event stream. The
// remote service returns the full result in one response; streaming
// granularity is per line, preserving the order stdout, stderr, error.
type HTTPRunner struct {
	cfg    runnerConfig
	url    string
	client *http.Client
	logger *slog.Logger
}

// compile-time check
var _ Runner = (*HTTPRunner)(nil)

// NewHTTPRunner creates an HTTPRunner that POSTs code to the sandbox
// service at sandboxURL (e.g. "http://sandbox:9000").
func NewHTTPRunner(sandboxURL string, opts ...Option) *HTTPRunner {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPRunner{
		cfg:    cfg,
		url:    strings.TrimRight(sandboxURL, "/"),
		client: &http.Client{},
		logger: logger,
	}
}

// Name implements Runner.
func (r *HTTPRunner) Name() string { return "http" }

// Trusted implements Runner. The remote service owns isolation.
func (r *HTTPRunner) Trusted() bool { return true }

// --- sandbox service wire types ---

type execRequest struct {
	ExecutionID string `json:"execution_id"`
	Code        string `json:"code"`
	Runtime     string `json:"runtime"`
	TimeoutSecs int    `json:"timeout"`
}

type execResponse struct {
	Output   string `json:"output"`
	Logs     string `json:"logs"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Run implements Runner.
func (r *HTTPRunner) Run(ctx context.Context, req Request, ch chan<- Event) error {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	execReq := execRequest{
		ExecutionID: codetutor.NewID(),
		Code:        req.Code,
		Runtime:     req.Language.Runtime(),
		TimeoutSecs: int(r.cfg.timeout.Seconds()),
	}

	resp, err := r.doExecute(ctx, execReq)
	if err != nil {
		return r.classify(ctx, err)
	}

	// Relay captured output line by line, in stream order.
	emitted := 0
	emitted += emitLines(ch, EventStdout, resp.Output, r.cfg.maxOutput-emitted)
	emitted += emitLines(ch, EventStderr, resp.Logs, r.cfg.maxOutput-emitted)
	emitLines(ch, EventError, resp.Error, r.cfg.maxOutput-emitted)

	success := resp.Error == "" && resp.ExitCode == 0
	ch <- Event{Kind: EventResult, Success: success, ExitCode: resp.ExitCode}
	return nil
}

// classify converts a transport failure into a collaborator fault.
func (r *HTTPRunner) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fault(codetutor.FaultTimeout, fmt.Sprintf("sandbox timed out after %s", r.cfg.timeout))
	}
	var herr *codetutor.ErrHTTP
	if errors.As(err, &herr) && herr.Status >= 400 && herr.Status < 500 {
		return fault(codetutor.FaultBadInput, "sandbox rejected request: "+herr.Body)
	}
	r.logger.Warn("sandbox unreachable", "err", err)
	return fault(codetutor.FaultUnavailable, "sandbox service unavailable")
}

// doExecute POSTs the execution request with retry on transient errors.
func (r *HTTPRunner) doExecute(ctx context.Context, execReq execRequest) (execResponse, error) {
	body, err := json.Marshal(execReq)
	if err != nil {
		return execResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	delay := r.cfg.retryDelay

	for attempt := 0; attempt < r.cfg.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return execResponse{}, ctx.Err()
			}
		}

		resp, err := r.doOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			return execResponse{}, err
		}
		lastErr = err
	}

	return execResponse{}, fmt.Errorf("sandbox unreachable after %d attempts: %w", r.cfg.maxRetries, lastErr)
}

// doOnce performs a single POST to /execute.
func (r *HTTPRunner) doOnce(ctx context.Context, body []byte) (execResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return execResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return execResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return execResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return execResponse{}, &codetutor.ErrHTTP{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result execResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return execResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return result, nil
}

// isTransient reports whether err is a transient network/server error
// that should be retried.
func isTransient(err error) bool {
	var herr *codetutor.ErrHTTP
	if errors.As(err, &herr) {
		return herr.Status >= 500
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

// emitLines sends each non-empty line of text as one event of the given
// kind, stopping once budget bytes have been sent. Returns bytes sent.
func emitLines(ch chan<- Event, kind EventKind, text string, budget int) int {
	if text == "" || budget <= 0 {
		return 0
	}
	sent := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if sent+len(line) > budget {
			ch <- Event{Kind: EventStderr, Content: "[output truncated]"}
			return sent
		}
		ch <- Event{Kind: kind, Content: line + "\n"}
		sent += len(line) + 1
	}
	return sent
}
