package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mirrorcast/internal/history"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/metrics"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// Backend supplies the data served by the HTTP API.
type Backend interface {
	Status(ctx context.Context) DaemonStatus
	Sessions(ctx context.Context, limit int) ([]history.Record, error)
	Session(ctx context.Context, id string) (*history.Record, error)
}

// RouterOptions wires the HTTP API.
type RouterOptions struct {
	Backend Backend
	Metrics *metrics.Metrics
	Hub     *Hub
	Logger  *slog.Logger
	// Token, when set, is required as a bearer token on every request.
	Token string
	// Gauges refreshes gauge values before each metrics scrape.
	Gauges func()
}

type handlers struct {
	backend Backend
	logger  *slog.Logger
}

// NewRouter builds the chi router for the HTTP API.
func NewRouter(opts RouterOptions) http.Handler {
	h := &handlers{
		backend: opts.Backend,
		logger:  logging.NewComponentLogger(opts.Logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(opts.Logger))
	r.Use(BearerAuth(opts.Token))
	if opts.Metrics != nil {
		r.Use(metrics.RequestMiddleware(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler(opts.Gauges))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/sessions", h.sessions)
		r.Get("/sessions/{id}", h.session)
		if opts.Hub != nil {
			r.Method(http.MethodGet, "/events", opts.Hub)
		}
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.backend.Status(r.Context()))
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxSessionLimit)
	}
	records, err := h.backend.Sessions(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: FromRecords(records)})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	rec, err := h.backend.Session(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.writeJSON(w, http.StatusOK, SessionResponse{Session: FromRecord(rec)})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
