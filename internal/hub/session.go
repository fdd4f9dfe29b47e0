package hub

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/explain"
	"github.com/tutorlab/codetutor/observer"
	"github.com/tutorlab/codetutor/relay"
	"github.com/tutorlab/codetutor/store/sqlite"
)

// Recorder persists completed runs for the history endpoint. A nil
// Recorder disables history.
type Recorder interface {
	RecordRun(ctx context.Context, run sqlite.Run) error
}

// Session runs the envelope loop for one client connection. Inbound
// envelopes dispatch to the relays one at a time; a request arriving
// while an operation is in flight is rejected immediately.
type Session struct {
	clientID string
	conn     *Conn
	exec     *relay.Execution
	expl     *relay.Explanation

	recorder Recorder
	logger   *slog.Logger
	inst     *observer.Instruments

	busy atomic.Bool
}

// SessionConfig wires a session's collaborator relays and ambient
// dependencies.
type SessionConfig struct {
	Execution   *relay.Execution
	Explanation *relay.Explanation
	Recorder    Recorder
	Logger      *slog.Logger
	Instruments *observer.Instruments
}

// NewSession creates the session for one registered connection.
func NewSession(clientID string, conn *Conn, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		clientID: clientID,
		conn:     conn,
		exec:     cfg.Execution,
		expl:     cfg.Explanation,
		recorder: cfg.Recorder,
		logger:   logger.With("client_id", clientID),
		inst:     cfg.Instruments,
	}
}

// Run reads inbound frames until the connection drops. Malformed frames
// are logged and ignored; the connection stays open. Closing the
// connection cancels any in-flight operation context, which cancels the
// collaborator call.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.inst.ConnectionOpened(ctx)
	defer s.inst.ConnectionClosed(ctx)

	s.logger.Info("session started")
	defer s.logger.Info("session ended")

	for {
		data, err := s.conn.Read()
		if err != nil {
			return
		}

		env, err := codetutor.DecodeClientEnvelope(data)
		if err != nil {
			s.logger.Warn("ignoring malformed frame", "err", err)
			continue
		}

		// One operation in flight per connection. The wire protocol has
		// no correlation ids, so overlap cannot be demultiplexed.
		if !s.busy.CompareAndSwap(false, true) {
			if err := s.conn.Send(codetutor.ErrorEnvelope("operation in progress")); err != nil {
				return
			}
			continue
		}

		go func(env codetutor.ClientEnvelope) {
			defer s.busy.Store(false)
			s.dispatch(ctx, env)
		}(env)
	}
}

func (s *Session) dispatch(ctx context.Context, env codetutor.ClientEnvelope) {
	switch env.Action {
	case codetutor.ActionExecute:
		out := s.exec.Handle(ctx, env.Code, codetutor.Language(env.Language), s.conn.Send)
		s.record(ctx, "execute", env.Language, out)
	case codetutor.ActionExplain:
		req := explain.Request{Code: env.Code, Output: env.Output, Error: env.Error}
		out := s.expl.Handle(ctx, req, s.conn.Send)
		s.record(ctx, "explain", "", out)
	}
}

// record persists the run outside the session context so a disconnect
// right after the terminal envelope does not lose the history row.
func (s *Session) record(ctx context.Context, kind, language string, out relay.Outcome) {
	if s.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	run := sqlite.Run{
		ID:       codetutor.NewID(),
		ClientID: s.clientID,
		Kind:     kind,
		Language: language,
		Success:  out.OK,
		Elapsed:  out.Elapsed,
	}
	if err := s.recorder.RecordRun(rctx, run); err != nil {
		s.logger.Warn("history record failed", "err", err)
	}
}
