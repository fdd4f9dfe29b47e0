package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/explain"
	"github.com/tutorlab/codetutor/store/sqlite"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// executeRequest is the parsed body of POST /api/execute.
type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// executeResponse is the collected result of a non-streaming execution.
type executeResponse struct {
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	Error         string  `json:"error"`
	ExecutionTime float64 `json:"execution_time"`
	Language      string  `json:"language"`
}

// explainRequest is the parsed body of POST /api/explain.
type explainRequest struct {
	Code   string `json:"code"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// handleExecute runs code and returns the collected result in one
// response instead of streaming it.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var resp executeResponse
	resp.Success = true
	resp.Language = req.Language

	var output, errText strings.Builder
	out := s.exec.Handle(r.Context(), req.Code, codetutor.Language(req.Language), func(env codetutor.ServerEnvelope) error {
		switch env.Type {
		case codetutor.TypeExecutionOutput:
			if env.Data.Kind == codetutor.OutputStdout {
				output.WriteString(env.Data.Content)
			} else {
				errText.WriteString(env.Data.Content)
			}
		case codetutor.TypeExecutionResult:
			if env.Data.Success != nil {
				resp.Success = *env.Data.Success
			}
		case codetutor.TypeError:
			resp.Success = false
			if errText.Len() > 0 {
				errText.WriteString("\n")
			}
			errText.WriteString(env.Message)
		}
		return nil
	})

	resp.Output = output.String()
	resp.Error = errText.String()
	resp.ExecutionTime = out.Elapsed
	if !out.OK {
		resp.Success = false
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExplain returns the full explanation in one response instead of
// streaming chunks.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var text strings.Builder
	out := s.expl.Handle(r.Context(), explain.Request{Code: req.Code, Output: req.Output, Error: req.Error}, func(env codetutor.ServerEnvelope) error {
		if env.Type == codetutor.TypeExplanationChunk {
			text.WriteString(env.Data.Text)
		}
		return nil
	})
	if !out.OK {
		writeError(w, http.StatusBadGateway, out.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": text.String()})
}

// handleHistory returns the recent runs for a client, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	clientID := mux.Vars(r)["clientId"]

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.store.Recent(r.Context(), clientID, limit)
	if err != nil {
		s.logger.Error("history query failed", "client_id", clientID, "err", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if runs == nil {
		runs = []sqlite.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
