package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/semmidev/dumpcycle/internal/domain"
	"github.com/semmidev/dumpcycle/internal/infrastructure/scheduler"
)

type healthResponse struct {
	Status  string         `json:"status"`
	Mode    domain.Mode    `json:"mode"`
	NextRun *time.Time     `json:"next_run,omitempty"`
	LastRun *domain.Report `json:"last_run,omitempty"`
}

func (a *App) router(sched *scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp := healthResponse{Status: "ok", Mode: a.mode, LastRun: a.LastReport()}
		if sched != nil {
			if next := sched.Next(); !next.IsZero() {
				resp.NextRun = &next
			}
		}
		if resp.LastRun != nil && resp.LastRun.Status == domain.StatusFailed {
			resp.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	return r
}

// Schedule runs the pipeline on cronSpec until ctx is cancelled and serves
// /healthz and /metrics meanwhile. Runs never overlap.
func (a *App) Schedule(ctx context.Context, cronSpec string) error {
	if cronSpec == "" {
		cronSpec = a.config.Schedule.Cron
	}
	a.metrics.WithRuntimeCollectors()

	sched := scheduler.New(a.logger)
	if err := sched.AddJob(string(a.mode), cronSpec, func(ctx context.Context) error {
		_, err := a.Run(ctx)
		return err
	}); err != nil {
		return configError(fmt.Errorf("failed to schedule %s: %w", a.mode, err))
	}

	srv := &http.Server{
		Addr:              a.config.Metrics.Listen,
		Handler:           a.router(sched),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Infof("Serving /healthz and /metrics on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sched.Start()
	a.logger.Infof("Scheduler started: %s (%s)", a.mode, cronSpec)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("metrics server: %w", err)
		}
	}

	a.logger.Infof("Shutting down scheduler...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warnf("metrics server shutdown: %v", serr)
	}
	return err
}
