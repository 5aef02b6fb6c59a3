package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/identity"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/session"
	"github.com/ent0n29/speakbot/internal/usage"
)

// UsageReporter reports today's voice usage for a user.
type UsageReporter interface {
	Today(ctx context.Context, userKey string) (usage.Snapshot, error)
}

// Status describes the wiring chosen at startup.
type Status struct {
	StoreMode      string `json:"store_mode"`
	TallyMode      string `json:"tally_mode"`
	LLMProvider    string `json:"llm_provider"`
	SpeechProvider string `json:"speech_provider"`
	Entitlement    string `json:"entitlement"`
	BotUsername    string `json:"bot_username,omitempty"`
}

// ConversationCounter reports how many users hold a conversation window.
type ConversationCounter interface {
	Users() int
}

type Server struct {
	status   Status
	sessions *session.Manager
	usage    UsageReporter
	metrics  *observability.Metrics
	logger   *zap.Logger
	ready    atomic.Bool

	conversations ConversationCounter
}

func New(status Status, sessions *session.Manager, usage UsageReporter, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		status:   status,
		sessions: sessions,
		usage:    usage,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetConversations adds the conversation window count to /readyz.
func (s *Server) SetConversations(c ConversationCounter) {
	s.conversations = c
}

// SetReady flips /readyz once the bot is polling.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/users/{key}/usage", s.handleUserUsage)
	r.Get("/v1/users/{key}/session", s.handleUserSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"wiring": s.status,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "starting",
			"wiring": s.status,
		})
		return
	}
	active, windows := 0, 0
	if s.sessions != nil {
		active = s.sessions.ActiveCount()
	}
	if s.conversations != nil {
		windows = s.conversations.Users()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"wiring":        s.status,
		"active_users":  active,
		"conversations": windows,
	})
}

func (s *Server) handleUserUsage(w http.ResponseWriter, r *http.Request) {
	key, ok := userKeyParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_user_key", "expected a 0x-prefixed user key or a numeric telegram id")
		return
	}
	if s.usage == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "usage counter not configured")
		return
	}
	snap, err := s.usage.Today(r.Context(), key)
	if err != nil {
		s.logger.Warn("usage lookup failed", zap.String("user", key), zap.Error(err))
		respondError(w, http.StatusBadGateway, "usage_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUserSession(w http.ResponseWriter, r *http.Request) {
	key, ok := userKeyParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_user_key", "expected a 0x-prefixed user key or a numeric telegram id")
		return
	}
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session manager not configured")
		return
	}
	sess, found := s.sessions.Get(key)
	if !found {
		respondError(w, http.StatusNotFound, "session_not_found", "no live session for user")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// userKeyParam accepts either a user key or the raw telegram id it hashes.
func userKeyParam(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "key"))
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return identity.Key(id), true
	}
	h, ok := identity.ParseKey(raw)
	if !ok {
		return "", false
	}
	return h.Hex(), true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
