// Package scraper extracts best-effort plain text from article pages.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

const blockSelector = "p, article, div"

// Scraper fetches a page once and joins the text of its block elements.
type Scraper struct {
	client      *http.Client
	userAgent   string
	minFragment int
	logger      *slog.Logger
}

var _ ports.Scraper = (*Scraper)(nil)

// New wires an HTTP client bounded by cfg.Timeout.
func New(cfg config.ScraperConfig, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Scraper{
		client:      &http.Client{Timeout: timeout},
		userAgent:   cfg.UserAgent,
		minFragment: cfg.MinFragment,
		logger:      logger,
	}
}

// Scrape returns the article body, domain.ScrapeNoContent when nothing
// qualified, or domain.ScrapeFailed on any fetch error.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) string {
	log := logging.From(ctx, s.logger).With("url", pageURL)
	start := time.Now()

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		log.Warn("scrape failed", "error", err, "elapsed", time.Since(start))
		return domain.ScrapeFailed
	}

	text := s.extract(doc)
	if text == "" {
		log.Info("scrape found no content", "elapsed", time.Since(start))
		return domain.ScrapeNoContent
	}

	log.Info("scraped article", "chars", textutil.Len(text), "elapsed", time.Since(start))
	return text
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *Scraper) extract(doc *goquery.Document) string {
	var fragments []string
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if textutil.Len(text) > s.minFragment {
			fragments = append(fragments, text)
		}
	})
	return textutil.CollapseSpace(strings.Join(fragments, " "))
}
