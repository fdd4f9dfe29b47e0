package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	codetutor "github.com/tutorlab/codetutor"
)

// SubprocessRunner executes code in a local interpreter subprocess
// (python3 or node), streaming stdout and stderr line by line as the
// process produces them.
//
// This backend has NO isolation guarantees: code runs with the service
// process's privileges, restricted only by a minimal environment and
// the execution timeout. It exists so the service stays usable without
// a remote sandbox or Docker daemon; Trusted() returns false so relays
// surface the reduced-trust mode to clients.
type SubprocessRunner struct {
	cfg    runnerConfig
	logger *slog.Logger
}

// compile-time check
var _ Runner = (*SubprocessRunner)(nil)

// NewSubprocessRunner creates a SubprocessRunner using the configured
// interpreter binaries.
func NewSubprocessRunner(opts ...Option) *SubprocessRunner {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SubprocessRunner{cfg: cfg, logger: logger}
}

// Name implements Runner.
func (r *SubprocessRunner) Name() string { return "subprocess" }

// Trusted implements Runner. Subprocess execution is not isolated.
func (r *SubprocessRunner) Trusted() bool { return false }

// Run implements Runner.
func (r *SubprocessRunner) Run(ctx context.Context, req Request, ch chan<- Event) error {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	var bin, ext string
	switch req.Language.Runtime() {
	case "node":
		bin = r.cfg.nodeBin
		ext = "codetutor-*.js"
	default:
		bin = r.cfg.pythonBin
		ext = "codetutor-*.py"
	}

	workDir, err := os.MkdirTemp("", "codetutor-run-")
	if err != nil {
		return fault(codetutor.FaultUnavailable, "create workspace: "+err.Error())
	}
	defer os.RemoveAll(workDir)

	tmpFile, err := os.CreateTemp(workDir, ext)
	if err != nil {
		return fault(codetutor.FaultUnavailable, "create temp file: "+err.Error())
	}
	if _, err := tmpFile.WriteString(req.Code); err != nil {
		tmpFile.Close()
		return fault(codetutor.FaultUnavailable, "write script: "+err.Error())
	}
	tmpFile.Close()

	cmd := exec.CommandContext(ctx, bin, tmpFile.Name())
	cmd.Dir = workDir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
		"LANG=en_US.UTF-8",
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fault(codetutor.FaultUnavailable, "stdout pipe: "+err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fault(codetutor.FaultUnavailable, "stderr pipe: "+err.Error())
	}

	if err := cmd.Start(); err != nil {
		r.logger.Warn("subprocess start failed", "bin", bin, "err", err)
		return fault(codetutor.FaultUnavailable, fmt.Sprintf("interpreter %q not available", bin))
	}

	// Channel sends are safe from both pump goroutines; each stream has
	// its own byte budget so one noisy stream cannot starve the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pumpLines(ch, EventStdout, stdout, r.cfg.maxOutput/2)
	}()
	go func() {
		defer wg.Done()
		pumpLines(ch, EventStderr, stderr, r.cfg.maxOutput/2)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return fault(codetutor.FaultTimeout, fmt.Sprintf("execution timed out after %s", r.cfg.timeout))
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fault(codetutor.FaultUnavailable, waitErr.Error())
		}
	}

	ch <- Event{Kind: EventResult, Success: exitCode == 0, ExitCode: exitCode}
	return nil
}

// pumpLines reads lines from rd and sends them as events of the given
// kind until EOF or the byte budget is exhausted. Beyond the budget the
// remaining output is drained and dropped so the subprocess never
// blocks on a full pipe.
func pumpLines(ch chan<- Event, kind EventKind, rd io.Reader, budget int) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	sent := 0
	truncated := false
	for scanner.Scan() {
		line := scanner.Text()
		if truncated {
			continue
		}
		if sent+len(line) > budget {
			ch <- Event{Kind: EventStderr, Content: "[output truncated]"}
			truncated = true
			continue
		}
		ch <- Event{Kind: kind, Content: line + "\n"}
		sent += len(line) + 1
	}
}
