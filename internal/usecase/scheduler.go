package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

// resetTimeout bounds the refill sweep, which runs even after the run deadline.
const resetTimeout = 10 * time.Second

// ArticleProducer builds a candidate article for one task.
type ArticleProducer interface {
	Process(ctx context.Context, task domain.FeedTask) (domain.Article, error)
}

// Recorder observes task outcomes.
type Recorder interface {
	TaskFinished(outcome domain.TaskOutcome)
}

// SchedulerDeps wires the task state machine.
type SchedulerDeps struct {
	Tasks    ports.TaskRepository
	Articles ports.ArticleRepository
	Producer ArticleProducer
	// Notifier is optional; nil disables broadcasting.
	Notifier ports.Notifier
	Recorder Recorder
	Logger   *slog.Logger

	TasksPerRun     int
	RefillThreshold int

	Rand *rand.Rand
	Now  func() time.Time
}

// Scheduler selects pending feed tasks, runs them through the producer and
// persists accepted articles.
type Scheduler struct {
	tasks           ports.TaskRepository
	articles        ports.ArticleRepository
	producer        ArticleProducer
	notifier        ports.Notifier
	recorder        Recorder
	logger          *slog.Logger
	tasksPerRun     int
	refillThreshold int
	rand            *rand.Rand
	now             func() time.Time
}

// NewScheduler applies defaults for the optional dependencies.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		tasks:           deps.Tasks,
		articles:        deps.Articles,
		producer:        deps.Producer,
		notifier:        deps.Notifier,
		recorder:        deps.Recorder,
		logger:          deps.Logger,
		tasksPerRun:     deps.TasksPerRun,
		refillThreshold: deps.RefillThreshold,
		rand:            deps.Rand,
		now:             deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tasksPerRun < 1 {
		s.tasksPerRun = 2
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RunOnce processes one batch of tasks and returns the stored articles.
// Only a failure to list pending tasks is returned as an error; every
// per-task failure is logged and isolated to that task.
func (s *Scheduler) RunOnce(ctx context.Context) ([]domain.Article, error) {
	log := logging.From(ctx, s.logger)

	pending, err := s.tasks.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}

	selected, refill := s.selectTasks(pending)
	log.Info("tasks selected", "pending", len(pending), "selected", len(selected), "refill", refill)

	var stored []domain.Article
	for i, task := range selected {
		if err := checkBudget(ctx); err != nil {
			log.Warn("time budget exhausted, leaving tasks pending", "remaining", len(selected)-i)
			for range selected[i:] {
				s.record(domain.OutcomeSkipped)
			}
			break
		}

		article, outcome := s.processTask(ctx, task)
		s.record(outcome)
		if outcome == domain.OutcomeStored {
			stored = append(stored, article)
		}
	}

	if refill {
		s.refill(ctx)
	}
	return stored, nil
}

// selectTasks returns every pending task with refill set when the pool is
// nearly exhausted, and a uniform random sample otherwise.
func (s *Scheduler) selectTasks(pending []domain.FeedTask) ([]domain.FeedTask, bool) {
	if len(pending) <= s.refillThreshold {
		return pending, true
	}

	n := s.tasksPerRun
	if n > len(pending) {
		n = len(pending)
	}
	selected := make([]domain.FeedTask, 0, n)
	for _, idx := range s.rand.Perm(len(pending))[:n] {
		selected = append(selected, pending[idx])
	}
	return selected, false
}

func (s *Scheduler) refill(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()

	n, err := s.tasks.ResetAll(ctx)
	if err != nil {
		logging.From(ctx, s.logger).Error("task refill failed", "error", err)
		return
	}
	logging.From(ctx, s.logger).Info("task pool refilled", "reset", n)
}

func (s *Scheduler) processTask(ctx context.Context, task domain.FeedTask) (article domain.Article, outcome domain.TaskOutcome) {
	log := logging.From(ctx, s.logger).With("task_id", task.ID, "feed", task.Name)
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r)
			article, outcome = domain.Article{}, domain.OutcomeNoArticle
		}
	}()

	claimed, err := s.tasks.Claim(ctx, task.ID)
	if err != nil {
		log.Error("claim task failed", "error", err)
		return domain.Article{}, domain.OutcomeStoreError
	}
	if !claimed {
		log.Info("task already claimed by another run")
		return domain.Article{}, domain.OutcomeClaimed
	}

	article, err = s.producer.Process(ctx, task)
	if err != nil {
		if errors.Is(err, domain.ErrTimeBudget) {
			log.Warn("task abandoned on time budget", "error", err)
			return domain.Article{}, domain.OutcomeSkipped
		}
		log.Warn("task produced no article", "error", err)
		return domain.Article{}, domain.OutcomeNoArticle
	}

	now := s.now()
	article.Date = domain.Day(now)

	exists, err := s.articles.ExistsTitleOnDate(ctx, article.Title, article.Date)
	if err != nil {
		log.Error("duplicate check failed", "error", err)
		return domain.Article{}, domain.OutcomeStoreError
	}
	if exists {
		log.Info("duplicate article discarded", "title", article.Title, "date", article.Date)
		return domain.Article{}, domain.OutcomeDuplicate
	}

	article = Normalize(article)
	if err := ValidateArticle(article); err != nil {
		log.Warn("invalid article discarded", "error", err)
		return domain.Article{}, domain.OutcomeInvalid
	}

	article.ID = uuid.NewString()
	article.CreatedAt = now.UTC()

	if err := s.articles.Save(ctx, article); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			log.Info("duplicate article rejected by store", "title", article.Title)
			return domain.Article{}, domain.OutcomeDuplicate
		}
		log.Error("store article failed", "error", err)
		return domain.Article{}, domain.OutcomeStoreError
	}
	log.Info("article stored",
		"article_id", article.ID,
		"title", article.Title,
		"category", article.Category,
		"tags", article.Tags,
		"citation", article.Citations[0],
	)

	s.broadcast(ctx, log, article)
	return article, domain.OutcomeStored
}

func (s *Scheduler) broadcast(ctx context.Context, log *slog.Logger, article domain.Article) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishArticle(ctx, article); err != nil {
		log.Warn("broadcast failed", "article_id", article.ID, "error", err)
		return
	}
	log.Info("article broadcast", "article_id", article.ID)
}

func (s *Scheduler) record(outcome domain.TaskOutcome) {
	if s.recorder != nil {
		s.recorder.TaskFinished(outcome)
	}
}

// Normalize coerces the category into the closed set and re-applies the
// summary and explanation bounds.
func Normalize(a domain.Article) domain.Article {
	a.Category = domain.CoerceCategory(a.Category)
	a.Summary = textutil.Clip(a.Summary, domain.SummaryMax)
	a.FullExplanation = textutil.Truncate(a.FullExplanation, domain.ExplanationMax)
	return a
}

// ValidateArticle checks that every required field is present.
func ValidateArticle(a domain.Article) error {
	var missing []string
	if a.Title == "" {
		missing = append(missing, "title")
	}
	if a.Summary == "" {
		missing = append(missing, "summary")
	}
	if a.FullExplanation == "" {
		missing = append(missing, "full_explanation")
	}
	if len(a.Citations) == 0 || a.Citations[0] == "" {
		missing = append(missing, "citations")
	}
	if a.Source == "" {
		missing = append(missing, "source")
	}
	if a.Date == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArticle, missing)
	}
	return nil
}
