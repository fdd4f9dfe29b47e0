package sandbox

import (
	"log/slog"
	"time"
)

// Option configures a Runner implementation.
type Option func(*runnerConfig)

type runnerConfig struct {
	// Shared options.
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger

	// HTTPRunner options.
	maxRetries int // total attempts (1 = no retry)
	retryDelay time.Duration

	// SubprocessRunner options.
	pythonBin string
	nodeBin   string

	// DockerRunner options.
	pythonImage string
	nodeImage   string
	memoryBytes int64
	pidsLimit   int64
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:     30 * time.Second,
		maxOutput:   512 * 1024, // 512KB
		maxRetries:  2,          // 1 retry
		retryDelay:  500 * time.Millisecond,
		pythonBin:   "python3",
		nodeBin:     "node",
		pythonImage: "python:3.12-alpine",
		nodeImage:   "node:22-alpine",
		memoryBytes: 256 << 20, // 256MB
		pidsLimit:   128,
	}
}

// WithTimeout sets the maximum wall-clock duration for one execution.
// Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the maximum bytes of output relayed per stream.
// Output beyond this limit is dropped with a truncation notice.
// Default: 512KB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *runnerConfig) { c.logger = l }
}

// WithMaxRetries sets the total number of attempts for the sandbox HTTP
// request. 1 means no retry. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *runnerConfig) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial backoff delay between HTTP retries.
// The delay doubles on each subsequent retry. Default: 500ms.
func WithRetryDelay(d time.Duration) Option {
	return func(c *runnerConfig) { c.retryDelay = d }
}

// WithBinaries sets the interpreter binaries for the subprocess runner.
// Defaults: "python3", "node".
func WithBinaries(python, node string) Option {
	return func(c *runnerConfig) {
		if python != "" {
			c.pythonBin = python
		}
		if node != "" {
			c.nodeBin = node
		}
	}
}

// WithImages sets the container images for the Docker runner.
// Defaults: "python:3.12-alpine", "node:22-alpine".
func WithImages(python, node string) Option {
	return func(c *runnerConfig) {
		if python != "" {
			c.pythonImage = python
		}
		if node != "" {
			c.nodeImage = node
		}
	}
}

// WithContainerLimits sets the memory and pids limits for the Docker
// runner. Defaults: 256MB, 128 pids.
func WithContainerLimits(memoryBytes, pids int64) Option {
	return func(c *runnerConfig) {
		if memoryBytes > 0 {
			c.memoryBytes = memoryBytes
		}
		if pids > 0 {
			c.pidsLimit = pids
		}
	}
}
