package ports

import (
	"context"
	"time"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

// FeedReader returns the newest entry of a syndication feed.
type FeedReader interface {
	Latest(ctx context.Context, feedURL string) (domain.RawEntry, error)
}

// Scraper extracts article body text. Failures come back as sentinel strings.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) string
}

// Completer sends one prompt to a language model and returns its raw reply.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// TaskRepository reads and flips feed task completion flags.
type TaskRepository interface {
	ListPending(ctx context.Context) ([]domain.FeedTask, error)
	// Claim marks the task done only if it is still pending and reports
	// whether this call performed the transition.
	Claim(ctx context.Context, id string) (bool, error)
	ResetAll(ctx context.Context) (int, error)
}

// ArticleRepository persists refined articles.
type ArticleRepository interface {
	ExistsTitleOnDate(ctx context.Context, title, date string) (bool, error)
	// Save returns domain.ErrDuplicate when (title, date) is already stored.
	Save(ctx context.Context, article domain.Article) error
}

// Storage is a document store backend serving both collections.
type Storage interface {
	TaskRepository
	ArticleRepository
	Close(ctx context.Context) error
}

// Notifier broadcasts stored articles to a chat channel.
type Notifier interface {
	PublishArticle(ctx context.Context, article domain.Article) error
}

// Scheduler triggers a job periodically.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
