package api

import (
	"errors"
	"io"
	"mime"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/jward/bracefmt"
)

// AnalyzeRequest is the JSON body accepted by POST /v1/analyze.
type AnalyzeRequest struct {
	Code string `json:"code"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleAnalyze accepts {"code": "..."} as application/json or the raw code
// as text/plain and responds with the Analyze result.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			s.writeError(w, http.StatusUnsupportedMediaType, "invalid Content-Type")
			return
		}
		mediaType = mt
	}

	var code string
	switch mediaType {
	case "application/json":
		var req AnalyzeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		code = req.Code
	case "text/plain":
		code = string(body)
	default:
		s.writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or text/plain")
		return
	}

	res := bracefmt.Analyze(code)
	s.logger.Debug("analyzed request", "lines", res.Stats.Lines, "error", res.Error.Kind.Code())
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// writeJSON encodes data before touching headers so an encoding failure can
// still produce a 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(payload, '\n'))
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Message: msg})
}
