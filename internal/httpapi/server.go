package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/chat-search/internal/command"
	"github.com/nhle/chat-search/internal/credential"
	"github.com/nhle/chat-search/internal/model"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the command surface over local HTTP for the UI
// collaborator. It is a thin delivery layer: every route builds a
// command request and hands it to the handler.
type Server struct {
	handler *command.Handler
}

// NewServer creates the HTTP delivery layer around a command handler.
func NewServer(h *command.Handler) *Server {
	return &Server{handler: h}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Post("/commands", s.handleCommand)
	r.Get("/accounts", s.handleAccounts)
	r.Get("/sync/status", s.handleSyncStatus)
	r.Get("/search", s.handleSearch)
	r.Put("/credentials/{service}", s.handleSetCredential)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// handleCommand decodes a generic command request and dispatches it.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, command.Response{Error: "reading body"})
		return
	}

	var req command.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			command.Response{Error: "invalid request: " + err.Error()})
		return
	}

	resp := s.handler.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	resp := s.handler.Handle(r.Context(), command.Request{
		Type: command.TypeGetAccounts,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := s.handler.Handle(r.Context(), command.Request{
		Type: command.TypeGetSyncStatus,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp := s.handler.Handle(r.Context(), command.Request{
		Type:       command.TypeSearch,
		Query:      query.Get("q"),
		AccountIDs: query["account_id"],
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleSetCredential stores the session cookie header the external
// collaborator acquired for a service.
func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	svc := model.Service(chi.URLParam(r, "service"))
	if svc != model.ServiceClaude && svc != model.ServiceChatGPT {
		writeJSON(w, http.StatusBadRequest,
			command.Response{Error: "unknown service"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest,
			command.Response{Error: "credential body is required"})
		return
	}

	if err := credential.Set(svc, string(body)); err != nil {
		writeJSON(w, http.StatusInternalServerError,
			command.Response{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, command.Response{Success: true})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encoding response", "error", err)
	}
}
