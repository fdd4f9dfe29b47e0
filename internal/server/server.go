// Package server exposes the HTTP and WebSocket surface: the session
// endpoint, non-streaming REST alternatives, run history, health, and
// rendered documentation.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tutorlab/codetutor/internal/hub"
	"github.com/tutorlab/codetutor/observer"
	"github.com/tutorlab/codetutor/relay"
	"github.com/tutorlab/codetutor/store/sqlite"
)

// Config wires the server's relays and ambient dependencies.
type Config struct {
	Execution   *relay.Execution
	Explanation *relay.Explanation
	Store       *sqlite.Store // nil disables history
	Logger      *slog.Logger
	Instruments *observer.Instruments

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// Empty or ["*"] allows all.
	AllowedOrigins []string
}

// Server is the HTTP handler for the whole service.
type Server struct {
	registry *hub.Registry
	exec     *relay.Execution
	expl     *relay.Explanation
	store    *sqlite.Store
	logger   *slog.Logger
	inst     *observer.Instruments
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		registry: hub.NewRegistry(),
		exec:     cfg.Execution,
		expl:     cfg.Explanation,
		store:    cfg.Store,
		logger:   logger,
		inst:     cfg.Instruments,
		upgrader: makeUpgrader(cfg.AllowedOrigins),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)
	r.HandleFunc("/ws/{clientId}", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/explain", s.handleExplain).Methods(http.MethodPost)
	r.HandleFunc("/api/history/{clientId}", s.handleHistory).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown closes all live WebSocket connections.
func (s *Server) Shutdown() {
	s.registry.CloseAll()
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "codetutor",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sandbox": s.exec.Backend(),
		"explain": s.expl.Backend(),
	})
}
