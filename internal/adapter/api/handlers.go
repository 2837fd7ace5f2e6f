package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"hydra/internal/domain"
)

type createResponse struct {
	SystemID string `json:"system_id"`
	Endpoint string `json:"endpoint"`
}

type chatRequest struct {
	Query string `json:"query"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type systemResponse struct {
	SystemID  string              `json:"system_id"`
	CreatedAt string              `json:"created_at"`
	Config    domain.SystemConfig `json:"config"`
}

type errorResponse struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Systems.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"systems": ids})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := s.validator.validate(raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: domain.CodeConfiguration})
		return
	}
	var cfg domain.SystemConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error(), Code: domain.CodeConfiguration})
		return
	}

	sys, err := s.deps.Systems.Create(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createResponse{
		SystemID: sys.ID,
		Endpoint: "/api/systems/" + sys.ID + "/chat",
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sys, err := s.deps.Systems.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, systemResponse{
		SystemID:  sys.ID,
		CreatedAt: sys.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Config:    sys.Config.Redacted(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.deps.Systems.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if deleted && s.mcp != nil {
		s.mcp.evict(id)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error(), Code: domain.CodeInvalidInput})
		return
	}

	answer, err := s.deps.Systems.ProcessQuery(r.Context(), r.PathValue("id"), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	sys, err := s.deps.Systems.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mcp.handler(sys).ServeHTTP(w, r)
}

// readBody reads the capped request body, answering 413 or 400 itself.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large (max 1MB)"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body: " + err.Error()})
		return nil, false
	}
	return raw, true
}

// writeError maps err to a status code via its error code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCodeOf(err)
	status := statusFor(code)
	if code == domain.CodeUnknown && errors.Is(err, context.DeadlineExceeded) {
		code, status = domain.CodeTimeout, http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("request failed", "path", r.URL.Path, "code", code, "error", err)
	} else {
		s.deps.Logger.Debug("request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeConfiguration, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeSystemNotFound, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeRouting, domain.CodeProviderError, domain.CodeCircuitOpen:
		return http.StatusBadGateway
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
