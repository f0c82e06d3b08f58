package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

const (
	tasksTable    = "scrape_tasks"
	articlesTable = "news_articles"
)

// newsFixture serves feeds, article pages, a Gemini-shaped provider and
// the Telegram bot API from one httptest server.
type newsFixture struct {
	srv        *httptest.Server
	failModel  atomic.Bool
	replies    atomic.Int32
	broadcasts atomic.Int32
}

func newNewsFixture(t *testing.T) *newsFixture {
	t.Helper()

	f := &newsFixture{}
	mux := http.NewServeMux()

	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/feed/")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>%[1]s</title>
<item><title>Story %[1]s</title><link>%[2]s/article/%[1]s</link><description>&lt;p&gt;Lead of %[1]s&lt;/p&gt;</description></item>
</channel></rss>`, name, f.srv.URL)
	})

	mux.HandleFunc("/article/", func(w http.ResponseWriter, _ *http.Request) {
		body := strings.Repeat("The council approved the new transit budget after a long debate. ", 5)
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", body)
	})

	mux.HandleFunc("/gemini/", func(w http.ResponseWriter, _ *http.Request) {
		if f.failModel.Load() {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		n := f.replies.Add(1)
		record, _ := json.Marshal(map[string]any{
			"title":            fmt.Sprintf("خبر شماره %d", n),
			"summary":          "خلاصه کوتاه",
			"full_explanation": strings.Repeat("توضیح کامل خبر. ", 60),
			"category":         "سیاست",
			"tags":             []string{"شهر", "بودجه", "حمل"},
		})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "```json\n" + string(record) + "\n```"}}},
			}},
		})
	})

	mux.HandleFunc("/bottok/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		f.broadcasts.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig(t *testing.T, f *newsFixture) config.Config {
	t.Helper()

	return config.Config{
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
		Run:     config.RunConfig{SoftLimit: 30 * time.Second, TasksPerRun: 2, RefillThreshold: 2},
		Store: config.StoreConfig{
			Type:               config.StoreSQLite,
			URI:                filepath.Join(t.TempDir(), "news.db"),
			TasksCollection:    tasksTable,
			ArticlesCollection: articlesTable,
			Timeout:            5 * time.Second,
		},
		AI: config.AIConfig{
			Gemini:     config.GeminiConfig{Endpoint: f.srv.URL + "/gemini", Model: "test", APIKey: "k", Timeout: 5 * time.Second},
			OpenRouter: config.OpenRouterConfig{Endpoint: f.srv.URL + "/openrouter", Model: "m", Timeout: time.Second},
			AvalAI:     config.AvalAIConfig{Endpoint: f.srv.URL + "/avalai", Model: "m", Timeout: time.Second},
		},
		Scraper: config.ScraperConfig{Timeout: 5 * time.Second, UserAgent: "test-agent", MinFragment: 50},
		Feed:    config.FeedConfig{Timeout: 5 * time.Second},
		Notifications: config.NotificationConfig{Telegram: config.TelegramConfig{
			BotToken: "tok", ChatID: "chat", Endpoint: f.srv.URL, Timeout: 5 * time.Second,
		}},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openDB(t *testing.T, cfg config.Config) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", cfg.Store.URI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *sql.DB, srvURL string, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := db.Exec(
			"INSERT INTO "+tasksTable+" (id, name, url, isdone) VALUES (?, ?, ?, ?)",
			name, "Feed "+name, srvURL+"/feed/"+name, false,
		)
		require.NoError(t, err)
	}
}

func count(t *testing.T, db *sql.DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query).Scan(&n))
	return n
}

func newTestApp(t *testing.T, f *newsFixture) (*Application, *sql.DB) {
	t.Helper()

	cfg := testConfig(t, f)
	a := New(context.Background(), cfg, quietLogger())
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	require.NoError(t, a.storeErr)

	db := openDB(t, cfg)
	seed(t, db, f.srv.URL, "a", "b", "c")
	return a, db
}

func TestRunStoresArticles(t *testing.T) {
	f := newNewsFixture(t)
	a, db := newTestApp(t, f)

	res := a.Run(context.Background())
	require.Empty(t, res.Error)
	require.Equal(t, domain.CompletedMessage, res.Message)
	require.NotNil(t, res.Articles)
	require.Equal(t, 2, *res.Articles)

	require.Equal(t, 2, count(t, db, "SELECT COUNT(*) FROM "+articlesTable))
	require.Equal(t, 2, count(t, db, "SELECT COUNT(*) FROM "+tasksTable+" WHERE isdone"))
	require.Equal(t, int32(2), f.broadcasts.Load())

	var category, citations string
	require.NoError(t, db.QueryRow("SELECT category, citations FROM "+articlesTable+" LIMIT 1").Scan(&category, &citations))
	require.Equal(t, domain.CategoryPolitics, category)
	require.Contains(t, citations, f.srv.URL+"/article/")
}

func TestRunWithFailingProviders(t *testing.T) {
	f := newNewsFixture(t)
	f.failModel.Store(true)
	a, db := newTestApp(t, f)

	res := a.Run(context.Background())
	require.Empty(t, res.Error)
	require.NotNil(t, res.Articles)
	require.Equal(t, 0, *res.Articles)

	require.Equal(t, 0, count(t, db, "SELECT COUNT(*) FROM "+articlesTable))
	require.Equal(t, 2, count(t, db, "SELECT COUNT(*) FROM "+tasksTable+" WHERE isdone"))
	require.Zero(t, f.broadcasts.Load())
}

func TestRunRefillsExhaustedPool(t *testing.T) {
	f := newNewsFixture(t)
	a, db := newTestApp(t, f)

	_, err := db.Exec("UPDATE " + tasksTable + " SET isdone = 1 WHERE id IN ('a', 'b')")
	require.NoError(t, err)

	res := a.Run(context.Background())
	require.Empty(t, res.Error)
	require.Equal(t, 1, *res.Articles)
	require.Zero(t, count(t, db, "SELECT COUNT(*) FROM "+tasksTable+" WHERE isdone"))
}

func TestRunReportsStoreFailure(t *testing.T) {
	f := newNewsFixture(t)
	cfg := testConfig(t, f)

	a := build(cfg, quietLogger(), nil, errors.New("dial tcp: connection refused"))
	res := a.Run(context.Background())
	require.Nil(t, res.Articles)
	require.Contains(t, res.Error, "connect store")
}

type panickingStore struct{ closed bool }

func (p *panickingStore) ListPending(context.Context) ([]domain.FeedTask, error) {
	panic("driver bug")
}
func (p *panickingStore) Claim(context.Context, string) (bool, error) { return false, nil }
func (p *panickingStore) ResetAll(context.Context) (int, error)       { return 0, nil }
func (p *panickingStore) ExistsTitleOnDate(context.Context, string, string) (bool, error) {
	return false, nil
}
func (p *panickingStore) Save(context.Context, domain.Article) error { return nil }
func (p *panickingStore) Close(context.Context) error {
	p.closed = true
	return nil
}

func TestRunRecoversPanic(t *testing.T) {
	f := newNewsFixture(t)
	store := &panickingStore{}

	a := build(testConfig(t, f), quietLogger(), store, nil)
	res := a.Run(context.Background())
	require.Contains(t, res.Error, "driver bug")

	require.NoError(t, a.Close(context.Background()))
	require.True(t, store.closed)
}

func TestTryRunRejectsOverlap(t *testing.T) {
	f := newNewsFixture(t)
	a := build(testConfig(t, f), quietLogger(), nil, errors.New("offline"))

	a.running.Lock()
	_, ok := a.TryRun(context.Background())
	require.False(t, ok)
	a.running.Unlock()

	res, ok := a.TryRun(context.Background())
	require.True(t, ok)
	require.Contains(t, res.Error, "offline")
}

type unreachableStore struct{ panickingStore }

func (unreachableStore) ListPending(context.Context) ([]domain.FeedTask, error) {
	return nil, errors.New("server selection timeout")
}

func TestRunReportsListFailureAsError(t *testing.T) {
	f := newNewsFixture(t)

	a := build(testConfig(t, f), quietLogger(), &unreachableStore{}, nil)
	res := a.Run(context.Background())
	require.Nil(t, res.Articles)
	require.Empty(t, res.Message)
	require.Contains(t, res.Error, "list pending tasks")
	require.Contains(t, res.Error, "server selection timeout")
}
