// Package control serves the running daemon's pending segments and metrics
// on a local address, so the CLI can work while the daemon holds the
// database
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	maxRequestBody  = 1 << 16
)

// Engine is the part of the decision engine exposed over HTTP.
type Engine interface {
	Pending() ([]*models.PendingSegment, error)
	Confirm(ctx context.Context, key, label, project string) (models.Outcome, error)
	Dismiss(ctx context.Context, key string) (models.Outcome, error)
	Records(start, end time.Time) ([]*models.RegistrationRecord, error)
}

// ConfirmRequest is the body of a confirm call.
type ConfirmRequest struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Project string `json:"project,omitempty"`
}

var errBadRequest = &apperr.Error{
	Message: "invalid request body",
}

type errorResponse struct {
	Error string `json:"error"`
}

type errorHandler func(w http.ResponseWriter, r *http.Request) error

func (h errorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}

	status := statusOf(err)

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(
			r.Context(),
			"control request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	if errors.Is(err, engine.ErrPendingNotFound) {
		return http.StatusNotFound
	}

	var appErr *apperr.Error

	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Kind {
	case apperr.KindUnknown:
		return http.StatusBadRequest
	case apperr.KindRegistration:
		return http.StatusBadGateway
	case apperr.KindCollection, apperr.KindClassification, apperr.KindConfiguration:
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// Server is the control HTTP server.
type Server struct {
	engine Engine
	addr   string
}

// NewServer returns a server for e listening on addr.
func NewServer(addr string, e Engine) *Server {
	return &Server{addr: addr, engine: e}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /pending", errorHandler(s.listPending))
	mux.Handle("POST /pending/confirm", errorHandler(s.confirm))
	mux.Handle("POST /pending/dismiss", errorHandler(s.dismiss))
	mux.Handle("GET /records", errorHandler(s.records))

	return mux
}

func (s *Server) listPending(w http.ResponseWriter, _ *http.Request) error {
	list, err := s.engine.Pending()
	if err != nil {
		return err
	}

	if list == nil {
		list = []*models.PendingSegment{}
	}

	writeJSON(w, http.StatusOK, list)

	return nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*ConfirmRequest, error) {
	var req ConfirmRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		return nil, errBadRequest.Wrap(err)
	}

	return &req, nil
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeRequest(w, r)
	if err != nil {
		return err
	}

	o, err := s.engine.Confirm(r.Context(), req.Key, req.Label, req.Project)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, o)

	return nil
}

func (s *Server) dismiss(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeRequest(w, r)
	if err != nil {
		return err
	}

	o, err := s.engine.Dismiss(r.Context(), req.Key)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, o)

	return nil
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) error {
	var start, end time.Time

	q := r.URL.Query()

	for name, dst := range map[string]*time.Time{"start": &start, "end": &end} {
		v := q.Get(name)
		if v == "" {
			continue
		}

		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return errBadRequest.Wrap(err)
		}

		*dst = t
	}

	if end.IsZero() {
		end = time.Now()
	}

	list, err := s.engine.Records(start, end)
	if err != nil {
		return err
	}

	if list == nil {
		list = []*models.RegistrationRecord{}
	}

	writeJSON(w, http.StatusOK, list)

	return nil
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.InfoContext(ctx, "control server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
