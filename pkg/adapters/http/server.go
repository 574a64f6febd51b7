// Package http exposes an Engine as a JSON API on chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is the part of carebot.Engine the API serves.
type Engine interface {
	Send(ctx context.Context, sessionID, text string) (*carebot.Reply, error)
	State(ctx context.Context, sessionID string) (*domain.State, error)
	Reset(ctx context.Context, sessionID string) error
	Conversations(ctx context.Context) ([]string, error)
	Graph() string
	MetricsHandler() http.Handler
}

// MessageRequest is the body of POST /v1/conversations/{id}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the reply to a message.
type MessageResponse struct {
	ConversationID string          `json:"conversation_id"`
	Text           string          `json:"text"`
	Intent         domain.Intent   `json:"intent"`
	Failure        *domain.Failure `json:"failure,omitempty"`
	Steps          []domain.Step   `json:"steps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server holds the handlers.
type Server struct {
	Engine  Engine
	Streams *StreamManager
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler builds the router.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	if h := engine.MetricsHandler(); h != nil {
		r.Method(http.MethodGet, "/metrics", h)
	}

	r.Route("/v1/conversations", func(r chi.Router) {
		r.Get("/", s.ListConversations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.DeleteConversation)
			r.Post("/messages", s.PostMessage)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostMessage runs one turn.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*MaxMessageBytes)).Decode(&body); err != nil {
		s.fail(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	text, err := SanitizeMessage(body.Text)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	reply, err := s.Engine.Send(r.Context(), id, text)
	switch {
	case errors.Is(err, carebot.ErrEmptyMessage):
		s.fail(w, r, http.StatusBadRequest, err.Error(), err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "conversation unavailable", err)
		return
	}

	resp := MessageResponse{
		ConversationID: id,
		Text:           reply.Text,
		Intent:         reply.Intent,
		Failure:        reply.Failure,
		Steps:          reply.Steps,
	}
	if payload, err := json.Marshal(resp); err == nil {
		s.Streams.Broadcast(id, string(payload))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation returns the redacted state snapshot.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.Engine.State(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.fail(w, r, http.StatusNotFound, "conversation not found", err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "conversation unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, state.Snapshot())
}

// DeleteConversation forgets a conversation. Deleting an unknown one is not an error.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Reset(r.Context(), chi.URLParam(r, "id")); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.fail(w, r, http.StatusInternalServerError, "conversation unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Conversations(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "store unavailable", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

// GetGraph returns the routing table as a Mermaid flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.Engine.Graph()))
}

func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "carebot",
		"version": strings.TrimSpace(carebot.Version),
	})
}

// SubscribeEvents streams every reply of a conversation as server-sent events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}
	id := chi.URLParam(r, "id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: subscribed", "session_id", id)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reply\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
