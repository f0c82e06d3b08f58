// Package refine turns scraped article text into a validated RefinedArticle
// by walking an ordered chain of language model providers.
package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

// Attempt results reported to the Observer.
const (
	ResultOK        = "ok"
	ResultSkipped   = "skipped"
	ResultError     = "error"
	ResultMalformed = "malformed"
	ResultRejected  = "rejected"
)

const rawPreviewLen = 500

// Step is one entry of the provider chain.
type Step struct {
	Provider ports.Completer
	Timeout  time.Duration
}

// Observer receives the outcome of every provider attempt.
type Observer interface {
	ProviderAttempt(provider, result string)
}

// Cascade tries each Step in order and returns the first valid candidate.
type Cascade struct {
	steps    []Step
	observer Observer
	logger   *slog.Logger
}

// NewCascade builds a cascade over steps. observer may be nil.
func NewCascade(steps []Step, observer Observer, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{steps: steps, observer: observer, logger: logger}
}

// Refine returns the first candidate that passes validation, or
// domain.ErrNoRefinement once every step is exhausted.
func (c *Cascade) Refine(ctx context.Context, in Input) (domain.RefinedArticle, error) {
	prompt := BuildPrompt(in)
	log := logging.From(ctx, c.logger).With("title", in.Title)

	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return domain.RefinedArticle{}, fmt.Errorf("refine %q: %w", in.Title, err)
		}

		name := step.Provider.Name()
		article, result, err := c.attempt(ctx, step, prompt, in)
		c.observe(name, result)

		switch {
		case err == nil:
			log.Info("provider accepted", "provider", name, "attempt", i+1)
			return article, nil
		case errors.Is(err, domain.ErrProviderDisabled):
			log.Info("provider skipped: no credential", "provider", name)
		default:
			log.Warn("provider attempt failed", "provider", name, "attempt", i+1, "result", result, "error", err)
		}
	}

	return domain.RefinedArticle{}, domain.ErrNoRefinement
}

func (c *Cascade) attempt(ctx context.Context, step Step, prompt string, in Input) (art domain.RefinedArticle, result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			art, result, err = domain.RefinedArticle{}, ResultError, fmt.Errorf("provider panic: %v", r)
		}
	}()

	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	name := step.Provider.Name()
	start := time.Now()
	raw, err := step.Provider.Complete(ctx, prompt)
	elapsed := time.Since(start)
	if errors.Is(err, domain.ErrProviderDisabled) {
		return domain.RefinedArticle{}, ResultSkipped, err
	}
	log := logging.From(ctx, c.logger)
	log.Info("provider call finished", "provider", name, "elapsed", elapsed, "ok", err == nil)
	if err != nil {
		return domain.RefinedArticle{}, ResultError, fmt.Errorf("%s complete: %w", name, err)
	}
	log.Debug("provider reply", "provider", name, "raw", textutil.Clip(raw, rawPreviewLen))

	rec, err := Recover(StripCodeFences(raw))
	if err != nil {
		return domain.RefinedArticle{}, ResultMalformed, fmt.Errorf("%s reply: %w", name, err)
	}

	art, err = Validate(rec, in)
	if err != nil {
		return domain.RefinedArticle{}, ResultRejected, fmt.Errorf("%s reply: %w", name, err)
	}
	return art, ResultOK, nil
}

func (c *Cascade) observe(provider, result string) {
	if c.observer != nil {
		c.observer.ProviderAttempt(provider, result)
	}
}

// ErrShortExplanation rejects candidates whose explanation misses the minimum length.
var ErrShortExplanation = fmt.Errorf("full_explanation shorter than %d characters", domain.ExplanationMin)

// Validate normalizes a recovered record. The explanation length is a hard
// gate; tags, title and summary fall back to defaults derived from in.
// Category membership is checked later by the scheduler.
func Validate(rec Record, in Input) (domain.RefinedArticle, error) {
	explanation, _ := rec["full_explanation"].(string)
	if textutil.Len(explanation) < domain.ExplanationMin {
		return domain.RefinedArticle{}, ErrShortExplanation
	}

	title, _ := rec["title"].(string)
	if title == "" {
		title = in.Title
	}
	summary, _ := rec["summary"].(string)
	if summary == "" {
		summary = in.Summary
	}
	category, _ := rec["category"].(string)
	if category == "" {
		category = domain.DefaultCategory
	}

	tags, ok := stringList(rec["tags"])
	if !ok || len(tags) < domain.TagsMin || len(tags) > domain.TagsMax {
		tags = domain.DefaultTags(in.FeedName)
	}

	return domain.RefinedArticle{
		Title:           textutil.Clip(title, domain.TitleMax),
		Summary:         textutil.Clip(summary, domain.SummaryMax),
		FullExplanation: explanation,
		Category:        category,
		Tags:            tags,
	}, nil
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
