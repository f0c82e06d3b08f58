package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/feed"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/llm"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/scraper"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/storage"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/telegram"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/metrics"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/refine"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/usecase"
)

const (
	resultOK    = "ok"
	resultError = "error"
	pushTimeout = 5 * time.Second
)

// Application wires configs to use cases and owns the store connection.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     ports.Storage
	storeErr  error
	scheduler *usecase.Scheduler

	running sync.Mutex
}

// New connects the store and builds the whole pipeline. A store connection
// failure does not abort construction; it is reported by every Run.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.New(ctx, cfg.Store, baseLogger.With("component", "storage"))
	if err != nil {
		baseLogger.Error("store unavailable", "type", cfg.Store.Type, "error", err)
	}
	return build(cfg, baseLogger, store, err)
}

func build(cfg config.Config, baseLogger *slog.Logger, store ports.Storage, storeErr error) *Application {
	m := metrics.New()

	cascade := refine.NewCascade(llm.Steps(cfg.AI), m, baseLogger.With("component", "cascade"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:   feed.NewReader(cfg.Feed, cfg.Scraper.UserAgent, baseLogger.With("component", "feed")),
		Scraper: scraper.New(cfg.Scraper, baseLogger.With("component", "scraper")),
		Refiner: cascade,
		Logger:  baseLogger.With("component", "pipeline"),
	})

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	} else {
		baseLogger.Info("telegram broadcast disabled")
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		metrics:  m,
		store:    store,
		storeErr: storeErr,
	}
	if store != nil {
		a.scheduler = usecase.NewScheduler(usecase.SchedulerDeps{
			Tasks:           store,
			Articles:        store,
			Producer:        pipeline,
			Notifier:        notifier,
			Recorder:        m,
			Logger:          baseLogger.With("component", "scheduler"),
			TasksPerRun:     cfg.Run.TasksPerRun,
			RefillThreshold: cfg.Run.RefillThreshold,
		})
	}
	return a
}

// Metrics exposes the run counters for the trigger server.
func (a *Application) Metrics() *metrics.Metrics {
	return a.metrics
}

// TryRun performs Run unless another run is already in progress, in which
// case it returns false without touching the store.
func (a *Application) TryRun(ctx context.Context) (domain.RunResult, bool) {
	if !a.running.TryLock() {
		return domain.RunResult{}, false
	}
	defer a.running.Unlock()
	return a.Run(ctx), true
}

// Run performs one invocation. It always returns a result and never panics.
func (a *Application) Run(ctx context.Context) (result domain.RunResult) {
	start := time.Now()
	log := a.logger.With("run_id", uuid.NewString())
	ctx = logging.Into(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", "panic", r)
			result = domain.Failed(fmt.Errorf("unexpected failure: %v", r))
		}
		a.finish(ctx, log, result, time.Since(start))
	}()

	if a.storeErr != nil {
		return domain.Failed(fmt.Errorf("connect store: %w", a.storeErr))
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Run.SoftLimit)
	defer cancel()

	log.Info("run started", "soft_limit", a.cfg.Run.SoftLimit)
	stored, err := a.scheduler.RunOnce(runCtx)
	if err != nil {
		log.Error("run failed", "error", err)
		return domain.Failed(err)
	}

	for _, article := range stored {
		if raw, err := json.Marshal(article); err == nil {
			log.Debug("processed article", "article", string(raw))
		}
	}
	return domain.Completed(len(stored))
}

func (a *Application) finish(ctx context.Context, log *slog.Logger, result domain.RunResult, elapsed time.Duration) {
	status := resultOK
	if result.Error != "" {
		status = resultError
	}
	a.metrics.RunFinished(status, elapsed)

	articles := 0
	if result.Articles != nil {
		articles = *result.Articles
	}
	log.Info("run finished", "result", status, "articles", articles, "elapsed", elapsed)

	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := a.metrics.Push(pctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		log.Warn("metrics push failed", "error", err)
	}
}

// Close releases the store connection.
func (a *Application) Close(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Close(ctx)
}
