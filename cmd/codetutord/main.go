// Command codetutord runs the Code Tutor backend: the WebSocket session
// endpoint, REST alternatives, run history, and rendered docs.
//
// Collaborators degrade instead of failing startup: without a sandbox
// URL code runs locally (docker when a daemon answers, subprocess
// otherwise), and without a Gemini key explanations come from the
// static template.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutorlab/codetutor/explain"
	"github.com/tutorlab/codetutor/internal/config"
	"github.com/tutorlab/codetutor/internal/server"
	"github.com/tutorlab/codetutor/observer"
	"github.com/tutorlab/codetutor/relay"
	"github.com/tutorlab/codetutor/sandbox"
	"github.com/tutorlab/codetutor/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (default codetutor.toml)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.Load(*configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			logger.Warn("observer init failed, continuing without telemetry", "err", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	runner := pickRunner(ctx, cfg.Sandbox, logger)
	explainer := pickExplainer(cfg.Explain, logger)

	store := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("history store init failed", "path", cfg.Database.Path, "err", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Execution:      relay.NewExecution(runner, relay.WithLogger(logger), relay.WithInstruments(inst)),
		Explanation:    relay.NewExplanation(explainer, relay.WithLogger(logger), relay.WithInstruments(inst)),
		Store:          store,
		Logger:         logger,
		Instruments:    inst,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  0, // WebSocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  5 * time.Minute,
	}

	go func() {
		logger.Info("listening", "addr", addr, "sandbox", runner.Name(), "explain", explainer.Name())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Warn("shutdown error", "err", err)
	}
	logger.Info("stopped")
}

// pickRunner selects the execution backend. The http backend is the
// trusted path; docker and subprocess are local fallbacks, tried in
// that order under "auto".
func pickRunner(ctx context.Context, cfg config.SandboxConfig, logger *slog.Logger) sandbox.Runner {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	common := []sandbox.Option{
		sandbox.WithTimeout(timeout),
		sandbox.WithLogger(logger),
		sandbox.WithBinaries(cfg.PythonBin, cfg.NodeBin),
		sandbox.WithImages(cfg.PythonImage, cfg.NodeImage),
	}

	switch cfg.Backend {
	case "http":
		return sandbox.NewHTTPRunner(cfg.URL, common...)
	case "subprocess":
		logger.Warn("running code in local subprocesses without isolation")
		return sandbox.NewSubprocessRunner(common...)
	case "docker":
		runner, err := sandbox.NewDockerRunner(ctx, common...)
		if err != nil {
			logger.Warn("docker unavailable, falling back to subprocess", "err", err)
			return sandbox.NewSubprocessRunner(common...)
		}
		return runner
	default: // auto
		if cfg.URL != "" {
			return sandbox.NewHTTPRunner(cfg.URL, common...)
		}
		if runner, err := sandbox.NewDockerRunner(ctx, common...); err == nil {
			logger.Info("no sandbox url configured, using docker")
			return runner
		}
		logger.Warn("no sandbox url and no docker daemon, running code in local subprocesses")
		return sandbox.NewSubprocessRunner(common...)
	}
}

// pickExplainer selects the explanation backend. Without a credential
// the static template answers in fallback mode.
func pickExplainer(cfg config.ExplainConfig, logger *slog.Logger) explain.Explainer {
	if cfg.APIKey == "" {
		logger.Warn("no gemini api key configured, explanations use the static template")
		return explain.NewStatic()
	}
	return explain.NewGemini(cfg.APIKey, cfg.Model,
		explain.WithGeminiTimeout(time.Duration(cfg.TimeoutSecs)*time.Second))
}
