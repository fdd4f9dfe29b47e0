package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	codetutor "github.com/tutorlab/codetutor"
)

// DockerRunner executes code in a throwaway container: no network,
// bounded memory and pids, removed after the run. The preferred local
// backend when no remote sandbox service is configured.
type DockerRunner struct {
	cfg    runnerConfig
	cli    *client.Client
	logger *slog.Logger
}

// compile-time check
var _ Runner = (*DockerRunner)(nil)

// NewDockerRunner creates a DockerRunner talking to the daemon from the
// environment (DOCKER_HOST etc.). Returns an error when no daemon is
// reachable so callers can fall back to another backend.
func NewDockerRunner(ctx context.Context, opts ...Option) (*DockerRunner, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerRunner{cfg: cfg, cli: cli, logger: logger}, nil
}

// Name implements Runner.
func (r *DockerRunner) Name() string { return "docker" }

// Trusted implements Runner. Container isolation with network disabled.
func (r *DockerRunner) Trusted() bool { return true }

// Close releases the docker client.
func (r *DockerRunner) Close() error { return r.cli.Close() }

// Run implements Runner.
func (r *DockerRunner) Run(ctx context.Context, req Request, ch chan<- Event) error {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	var image string
	var cmd []string
	switch req.Language.Runtime() {
	case "node":
		image = r.cfg.nodeImage
		cmd = []string{"node", "-e", req.Code}
	default:
		image = r.cfg.pythonImage
		cmd = []string{"python3", "-c", req.Code}
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:           image,
			Cmd:             cmd,
			WorkingDir:      "/tmp",
			NetworkDisabled: true,
		},
		&container.HostConfig{
			NetworkMode: "none",
			AutoRemove:  false,
			Resources: container.Resources{
				Memory:    r.cfg.memoryBytes,
				PidsLimit: &r.cfg.pidsLimit,
			},
		},
		nil, nil, "codetutor-"+codetutor.NewID())
	if err != nil {
		r.logger.Warn("container create failed", "image", image, "err", err)
		return fault(codetutor.FaultUnavailable, "sandbox container could not be created")
	}
	id := created.ID
	defer func() {
		// Removal uses a fresh context: the run context may already be done.
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		if err := r.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("container remove failed", "id", id, "err", err)
		}
	}()

	waitCh, waitErrCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fault(codetutor.FaultUnavailable, "sandbox container could not be started")
	}

	logs, err := r.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fault(codetutor.FaultUnavailable, "sandbox logs unavailable")
	}
	defer logs.Close()

	// Demux the multiplexed log stream into per-kind line pumps.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(outW, errW, logs)
		outW.CloseWithError(err)
		errW.CloseWithError(err)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pumpLines(ch, EventStdout, bufio.NewReader(outR), r.cfg.maxOutput/2)
	}()
	go func() {
		defer wg.Done()
		pumpLines(ch, EventStderr, bufio.NewReader(errR), r.cfg.maxOutput/2)
	}()
	wg.Wait()

	select {
	case res := <-waitCh:
		exitCode := int(res.StatusCode)
		ch <- Event{Kind: EventResult, Success: exitCode == 0, ExitCode: exitCode}
		return nil
	case err := <-waitErrCh:
		if ctx.Err() == context.DeadlineExceeded {
			return fault(codetutor.FaultTimeout, fmt.Sprintf("execution timed out after %s", r.cfg.timeout))
		}
		return fault(codetutor.FaultUnavailable, "container wait failed: "+err.Error())
	case <-ctx.Done():
		return fault(codetutor.FaultTimeout, fmt.Sprintf("execution timed out after %s", r.cfg.timeout))
	}
}
