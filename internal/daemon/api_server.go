package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"mirrorcast/internal/api"
	"mirrorcast/internal/config"
	"mirrorcast/internal/history"
	"mirrorcast/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}

	router := api.NewRouter(api.RouterOptions{
		Backend: apiBackend{d: d},
		Metrics: d.metrics,
		Hub:     d.hub.hub,
		Logger:  logger,
		Token:   cfg.API.Token,
	})
	return &apiServer{
		bind:   bind,
		logger: logger,
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.log().Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}

// StartAPI begins serving the HTTP API when it is enabled. It stops when ctx
// is done or the daemon is closed.
func (d *Daemon) StartAPI(ctx context.Context) error {
	return d.api.start(ctx)
}

// APIAddr returns the bound API address, or "" when the API is not serving.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// apiBackend adapts the daemon to the HTTP API.
type apiBackend struct {
	d *Daemon
}

func (b apiBackend) Status(ctx context.Context) api.DaemonStatus {
	return StatusDTO(b.d.Status(ctx))
}

func (b apiBackend) Sessions(ctx context.Context, limit int) ([]history.Record, error) {
	return b.d.History(ctx, limit)
}

func (b apiBackend) Session(ctx context.Context, id string) (*history.Record, error) {
	return b.d.Session(ctx, id)
}

// StatusDTO converts a daemon status into its wire representation.
func StatusDTO(st Status) api.DaemonStatus {
	payload := api.DaemonStatus{
		Running:       st.Running,
		PID:           st.PID,
		HistoryDBPath: st.HistoryDBPath,
		LockFilePath:  st.LockFilePath,
		Session:       api.FromStatus(st.Session),
		LastPollError: st.LastPollError,
		Dependencies:  make([]api.DependencyStatus, 0, len(st.Dependencies)),
	}
	if !st.LastPoll.IsZero() {
		payload.LastPoll = st.LastPoll.UTC().Format(time.RFC3339)
	}
	if len(st.History) > 0 {
		payload.History = make(map[string]int, len(st.History))
		for state, count := range st.History {
			payload.History[string(state)] = count
		}
	}
	for _, dep := range st.Dependencies {
		payload.Dependencies = append(payload.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return payload
}
