package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/refine"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

// Refiner turns original entry text into a RefinedArticle.
type Refiner interface {
	Refine(ctx context.Context, in refine.Input) (domain.RefinedArticle, error)
}

// PipelineDeps wires all driven adapters into the feed-to-article pipeline.
type PipelineDeps struct {
	Feeds   ports.FeedReader
	Scraper ports.Scraper
	Refiner Refiner
	Logger  *slog.Logger
}

// Pipeline turns one feed task into a candidate article.
type Pipeline struct {
	feeds   ports.FeedReader
	scraper ports.Scraper
	refiner Refiner
	logger  *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		feeds:   deps.Feeds,
		scraper: deps.Scraper,
		refiner: deps.Refiner,
		logger:  logger,
	}
}

// Process fetches the newest entry of the task's feed, scrapes and refines
// it. The returned article has no ID or date yet. Every failure, including
// a panic in a collaborator, comes back as an error.
func (p *Pipeline) Process(ctx context.Context, task domain.FeedTask) (article domain.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			article, err = domain.Article{}, fmt.Errorf("process task %s: panic: %v", task.ID, r)
		}
	}()

	if err := checkBudget(ctx); err != nil {
		return domain.Article{}, err
	}
	log := logging.From(ctx, p.logger).With("task_id", task.ID, "feed", task.Name)

	entry, err := p.feeds.Latest(ctx, task.URL)
	if err != nil {
		return domain.Article{}, fmt.Errorf("fetch feed: %w", err)
	}
	if entry.Link == "" {
		return domain.Article{}, domain.ErrMissingLink
	}

	description := textutil.StripHTML(entry.Description)

	content := p.scraper.Scrape(ctx, entry.Link)
	if content == domain.ScrapeFailed {
		log.Info("scrape failed, using feed description", "link", entry.Link)
		content = description
		if content == "" {
			content = domain.ScrapeNoContent
		}
	}

	in := refine.Input{
		FeedName: task.Name,
		Title:    entry.Title,
		Summary:  textutil.Truncate(description, domain.SummaryMax),
		Content:  content,
	}
	if in.Title == "" {
		in.Title = domain.UnknownTitle
	}

	refined, err := p.refiner.Refine(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Article{}, fmt.Errorf("%w: %v", domain.ErrTimeBudget, err)
		}
		return domain.Article{}, fmt.Errorf("refine %q: %w", in.Title, err)
	}

	return domain.Article{
		Title:           refined.Title,
		Summary:         refined.Summary,
		FullExplanation: refined.FullExplanation,
		Category:        refined.Category,
		Tags:            refined.Tags,
		Citations:       []string{textutil.ShortenURL(entry.Link, domain.CitationMax)},
		Source:          task.Name,
		TaskID:          task.ID,
	}, nil
}

func checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeBudget, err)
	}
	return nil
}
