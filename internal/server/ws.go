package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tutorlab/codetutor/internal/hub"
)

// handleWS upgrades /ws/{clientId} and runs the session loop until the
// connection drops. A second connection under the same client id
// supersedes the first.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client id is required")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "client_id", clientID, "err", err)
		return
	}

	conn := hub.NewConn(ws)
	s.registry.Register(clientID, conn)
	defer func() {
		s.registry.Unregister(clientID, conn)
		conn.Close()
	}()

	sess := hub.NewSession(clientID, conn, hub.SessionConfig{
		Execution:   s.exec,
		Explanation: s.expl,
		Recorder:    s.recorder(),
		Logger:      s.logger,
		Instruments: s.inst,
	})
	sess.Run(r.Context())
}

// recorder returns the history store as a hub.Recorder, keeping the nil
// check in one place. A nil *sqlite.Store must become a nil interface.
func (s *Server) recorder() hub.Recorder {
	if s.store == nil {
		return nil
	}
	return s.store
}
