// Package ops serves the operator HTTP surface: health, job status and
// manual job triggers.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/sejongpeer/studybuddy/internal/scheduler"
)

// Jobs is the scheduler surface the server needs. Implemented by
// *scheduler.Scheduler.
type Jobs interface {
	Status() []scheduler.JobStatus
	Trigger(ctx context.Context, name string) error
}

// Pinger reports whether a dependency is reachable. Implemented by
// *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// jobView is the JSON form of a scheduler.JobStatus with readable durations.
type jobView struct {
	Name         string     `json:"name"`
	Interval     string     `json:"interval"`
	Running      bool       `json:"running"`
	Runs         int        `json:"runs"`
	Skips        int        `json:"skips"`
	LastStart    *time.Time `json:"last_start,omitempty"`
	LastDuration string     `json:"last_duration"`
	LastError    string     `json:"last_error,omitempty"`
}

// Server routes the ops endpoints.
type Server struct {
	jobs   Jobs
	db     Pinger
	logger *slog.Logger
	router *mux.Router
}

// NewServer builds the router. db may be nil, in which case /healthz only
// reports that the process is up.
func NewServer(jobs Jobs, db Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{jobs: jobs, db: db, logger: logger, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{name}/trigger", s.handleTrigger).Methods(http.MethodPost)
	return s
}

// Handler returns the router wrapped in CORS handling for origins.
// With no origins, cross-origin requests are refused.
func (s *Server) Handler(origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, origins []string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	statuses := s.jobs.Status()
	out := make([]jobView, len(statuses))
	for i, st := range statuses {
		v := jobView{
			Name:         st.Name,
			Interval:     st.Interval.String(),
			Running:      st.Running,
			Runs:         st.Runs,
			Skips:        st.Skips,
			LastDuration: st.LastDuration.String(),
			LastError:    st.LastError,
		}
		if !st.LastStart.IsZero() {
			start := st.LastStart
			v.LastStart = &start
		}
		out[i] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	// A client hanging up must not abort a tick halfway through.
	err := s.jobs.Trigger(context.WithoutCancel(r.Context()), name)
	switch {
	case err == nil:
		s.logger.Info("job triggered manually", "job", name)
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"job": name, "error": err.Error()})
	case errors.Is(err, scheduler.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"job": name, "error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"job": name, "error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write response", "error", err)
	}
}
