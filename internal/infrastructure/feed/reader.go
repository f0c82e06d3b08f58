// Package feed reads the newest entry of RSS, Atom and JSON feeds.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

// Reader wraps a gofeed parser with a bounded HTTP client.
type Reader struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ ports.FeedReader = (*Reader)(nil)

// NewReader builds a Reader using cfg.Timeout for every fetch.
func NewReader(cfg config.FeedConfig, userAgent string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &Reader{parser: parser, logger: logger}
}

// Latest returns the first entry of the feed document.
func (r *Reader) Latest(ctx context.Context, feedURL string) (domain.RawEntry, error) {
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.RawEntry{}, fmt.Errorf("parse feed %s: %w (%v)", feedURL, domain.ErrNoEntries, err)
	}
	if len(feed.Items) == 0 {
		return domain.RawEntry{}, fmt.Errorf("parse feed %s: %w", feedURL, domain.ErrNoEntries)
	}

	item := feed.Items[0]
	entry := domain.RawEntry{
		Link:        strings.TrimSpace(item.Link),
		Title:       strings.TrimSpace(item.Title),
		Description: item.Description,
	}
	if entry.Description == "" {
		entry.Description = item.Content
	}
	if entry.Link == "" {
		return domain.RawEntry{}, fmt.Errorf("feed %s: %w", feedURL, domain.ErrMissingLink)
	}

	logging.From(ctx, r.logger).Info("feed fetched", "feed", feed.Title, "items", len(feed.Items), "link", entry.Link)
	return entry, nil
}
