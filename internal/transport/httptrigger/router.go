// Package httptrigger exposes a run over HTTP for schedulers and operators.
package httptrigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
)

// Runner performs one invocation unless another is in progress.
type Runner interface {
	TryRun(ctx context.Context) (domain.RunResult, bool)
}

// Options configures the router.
type Options struct {
	Logger  *slog.Logger
	Metrics http.Handler
}

type handler struct {
	runner Runner
	logger *slog.Logger
}

// NewRouter builds the chi router serving /run, /healthz and /metrics.
func NewRouter(runner Runner, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{runner: runner, logger: logger}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		requestLogger(logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/run", h.run)
	r.Get("/run", h.run)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r
}

// run executes synchronously. Overlapping runs are rejected so that two
// runs never select tasks from the same pool at once.
func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	// A disconnecting client must not abort a run halfway through its tasks.
	res, ok := h.runner.TryRun(context.WithoutCancel(r.Context()))
	if !ok {
		logging.From(r.Context(), h.logger).Warn("run rejected, another run in progress")
		writeJSON(w, http.StatusConflict, domain.RunResult{Error: "run already in progress"})
		return
	}

	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				reqLogger = reqLogger.With("request_id", rid)
			}
			r = r.WithContext(logging.Into(r.Context(), reqLogger))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			reqLogger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"dur", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
