package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

const pgUniqueViolation = "23505"

// SQL stores tasks and articles in two tables of a relational database.
// Citations and tags are kept as JSON text.
type SQL struct {
	db       *sql.DB
	builder  sq.StatementBuilderType
	tasks    string
	articles string
	timeout  time.Duration
}

var _ ports.Storage = (*SQL)(nil)

// NewSQL opens a postgres or sqlite database and creates missing tables.
func NewSQL(ctx context.Context, cfg config.StoreConfig) (*SQL, error) {
	driver := "postgres"
	var format sq.PlaceholderFormat = sq.Dollar
	if cfg.Type == config.StoreSQLite {
		driver, format = "sqlite", sq.Question
	}

	db, err := sql.Open(driver, cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	s := &SQL{
		db:       db,
		builder:  sq.StatementBuilder.PlaceholderFormat(format),
		tasks:    cfg.TasksCollection,
		articles: cfg.ArticlesCollection,
		timeout:  cfg.Timeout,
	}

	cctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := db.PingContext(cctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := s.migrate(cctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			isdone BOOLEAN NOT NULL DEFAULT FALSE
		)`, s.tasks),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			full_explanation TEXT NOT NULL,
			citations TEXT NOT NULL,
			date TEXT NOT NULL,
			source TEXT NOT NULL,
			tags TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (title, date)
		)`, s.articles),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *SQL) Close(context.Context) error {
	return s.db.Close()
}

// ListPending returns every task whose flag is false.
func (s *SQL) ListPending(ctx context.Context) ([]domain.FeedTask, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query, args, err := s.builder.
		Select("id", "name", "url", "isdone").
		From(s.tasks).
		Where(sq.Eq{"isdone": false}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var tasks []domain.FeedTask
	for rows.Next() {
		var t domain.FeedTask
		if err := rows.Scan(&t.ID, &t.Name, &t.URL, &t.Done); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tasks, nil
}

// Claim flips the flag only when it is still false.
func (s *SQL) Claim(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, s.builder.
		Update(s.tasks).
		Set("isdone", true).
		Where(sq.Eq{"id": id, "isdone": false}))
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", id, err)
	}
	return n == 1, nil
}

// ResetAll sets every task flag back to false.
func (s *SQL) ResetAll(ctx context.Context) (int, error) {
	n, err := s.exec(ctx, s.builder.
		Update(s.tasks).
		Set("isdone", false).
		Where(sq.Eq{"isdone": true}))
	if err != nil {
		return 0, fmt.Errorf("reset tasks: %w", err)
	}
	return int(n), nil
}

// ExistsTitleOnDate reports whether an article with this title is stored for date.
func (s *SQL) ExistsTitleOnDate(ctx context.Context, title, date string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query, args, err := s.builder.
		Select("COUNT(*)").
		From(s.articles).
		Where(sq.Eq{"title": title, "date": date}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("count articles: %w", err)
	}
	return n > 0, nil
}

// Save inserts the article.
func (s *SQL) Save(ctx context.Context, a domain.Article) error {
	citations, err := json.Marshal(a.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.exec(ctx, s.builder.
		Insert(s.articles).
		Columns("id", "title", "summary", "full_explanation", "citations", "date", "source", "tags", "category", "created_at").
		Values(a.ID, a.Title, a.Summary, a.FullExplanation, string(citations), a.Date, a.Source, string(tags), a.Category, a.CreatedAt.UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *SQL) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
