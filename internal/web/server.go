// Package web serves the departure board and its JSON API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/feed"
	"github.com/danpilch/tramboard/internal/monitor"
)

// Board provides the current snapshot and ad hoc lookups.
type Board interface {
	Snapshot() monitor.Snapshot
	Lookup(station string, now time.Time, count int, mode departures.Mode) monitor.Snapshot
	Location() *time.Location
}

// StopFinder lists feed stops.
type StopFinder interface {
	Stops() []feed.Stop
	FindStopsByName(substr string) []feed.Stop
}

type Options struct {
	RefreshInterval time.Duration
	Count           int
	Mode            departures.Mode
}

type Server struct {
	board   Board
	stops   StopFinder
	metrics http.Handler
	opts    Options
	logger  *logrus.Logger
	started time.Time
}

// NewServer creates the dashboard server. metricsHandler may be nil.
func NewServer(board Board, stops StopFinder, metricsHandler http.Handler, opts Options, logger *logrus.Logger) *Server {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Minute
	}
	return &Server{
		board:   board,
		stops:   stops,
		metrics: metricsHandler,
		opts:    opts,
		logger:  logger,
		started: time.Now(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleBoard)
	r.Get("/api/departures", s.handleDepartures)
	r.Get("/api/stops", s.handleStops)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("board server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}
