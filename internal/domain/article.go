package domain

import (
	"strings"
	"time"
)

// Field limits applied to refined and persisted articles, counted in characters.
const (
	TitleMax       = 255
	SummaryMax     = 100
	ExplanationMin = 500
	ExplanationMax = 2000
	TagsMin        = 3
	TagsMax        = 5
	CitationMax    = 250
	MessageMax     = 4096
)

// Sentinel scrape results. The scraper never returns an error.
const (
	ScrapeNoContent = "No content available"
	ScrapeFailed    = "Scraping failed"
)

// UnknownTitle stands in for feed entries that carry no title.
const UnknownTitle = "Unknown Title"

// DateLayout is the day-granular partition used for deduplication.
const DateLayout = "2006-01-02"

// RawEntry is the newest item of a feed, alive for one pipeline invocation.
type RawEntry struct {
	Link        string
	Title       string
	Description string
}

// RefinedArticle is the validated output of the refinement cascade.
type RefinedArticle struct {
	Title           string
	Summary         string
	FullExplanation string
	Category        string
	Tags            []string
}

// Article is the persisted form of a refined feed entry.
type Article struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Summary         string    `json:"summary" bson:"summary"`
	FullExplanation string    `json:"full_explanation" bson:"full_explanation"`
	Citations       []string  `json:"citations" bson:"citations"`
	Date            string    `json:"date" bson:"date"`
	Source          string    `json:"source" bson:"source"`
	Tags            []string  `json:"tags" bson:"tags"`
	Category        string    `json:"category" bson:"category"`
	TaskID          string    `json:"-" bson:"-"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// Day formats t as the article date partition key.
func Day(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DefaultTags builds the fallback tag set for articles of the given feed.
func DefaultTags(feedName string) []string {
	return []string{"خبر", "جهان", strings.ReplaceAll(strings.ToLower(feedName), " ", "_")}
}

// RunResult is the JSON document returned by a single invocation.
type RunResult struct {
	Message  string `json:"message,omitempty"`
	Articles *int   `json:"articles,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CompletedMessage is reported when a run finishes without a top-level failure.
const CompletedMessage = "Processing completed successfully"

// Completed builds the success result for n stored articles.
func Completed(n int) RunResult {
	return RunResult{Message: CompletedMessage, Articles: &n}
}

// Failed builds the error result.
func Failed(err error) RunResult {
	return RunResult{Error: err.Error()}
}
