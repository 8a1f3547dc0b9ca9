package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dwatch/displacement-watch/app/item"
)

var _ ItemRepository = (*ItemRepositoryImpl)(nil)

const effectiveAt = "COALESCE(published_at, retrieved_at)"

var itemColumns = []string{
	"id", "canonical_url", "url", "title", "publisher", "domain",
	"published_at", "retrieved_at", "snippet", "full_text", "language",
	"tier", "source_type", "keywords_hit_json", "collection_run_id",
}

// Re-ingesting an identity overwrites every field except full_text and
// language, which keep their stored value when the new row has none.
const upsertItemSQL = `
	INSERT INTO items (
		id, canonical_url, url, title, publisher, domain,
		published_at, retrieved_at, snippet, full_text, language,
		tier, source_type, keywords_hit_json, collection_run_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		canonical_url = excluded.canonical_url,
		url = excluded.url,
		title = excluded.title,
		publisher = excluded.publisher,
		domain = excluded.domain,
		published_at = excluded.published_at,
		retrieved_at = excluded.retrieved_at,
		snippet = excluded.snippet,
		full_text = COALESCE(excluded.full_text, items.full_text),
		language = COALESCE(excluded.language, items.language),
		tier = excluded.tier,
		source_type = excluded.source_type,
		keywords_hit_json = excluded.keywords_hit_json,
		collection_run_id = excluded.collection_run_id`

type ItemRepositoryImpl struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

// UpsertItems writes the batch in one transaction and returns the number of
// rows written. A failure rolls the whole batch back.
func (r *ItemRepositoryImpl) UpsertItems(ctx context.Context, items []item.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertItemSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		keywordsJSON, err := json.Marshal(nonNilStrings(it.KeywordsHit))
		if err != nil {
			return 0, fmt.Errorf("failed to encode keywords for item %s: %w", it.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			it.ID, it.CanonicalURL, it.URL, it.Title, it.Publisher, it.Domain,
			formatTimePtr(it.PublishedAt), formatTime(it.RetrievedAt), it.Snippet,
			nullString(it.FullText), nullString(it.Language),
			string(it.Tier), string(it.SourceType), string(keywordsJSON), it.CollectionRunID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}

	return len(items), nil
}

func (r *ItemRepositoryImpl) GetItem(ctx context.Context, id string) (*item.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}

	it, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return &it, nil
}

func (r *ItemRepositoryImpl) GetItemCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// GetItemsForWindow returns items whose effective timestamp lies in the
// inclusive range [start, end], newest first.
func (r *ItemRepositoryImpl) GetItemsForWindow(ctx context.Context, start, end time.Time) ([]item.Item, error) {
	builder := sq.Select(itemColumns...).
		From("items").
		Where(sq.Expr(effectiveAt+" BETWEEN ? AND ?", formatTime(start), formatTime(end))).
		OrderBy(effectiveAt + " DESC")

	return r.queryItems(ctx, builder)
}

// GetItemsSinceDays returns items whose effective timestamp is at or after
// now minus the given number of days, newest first. There is no upper bound.
func (r *ItemRepositoryImpl) GetItemsSinceDays(ctx context.Context, days int, now time.Time) ([]item.Item, error) {
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	builder := sq.Select(itemColumns...).
		From("items").
		Where(sq.Expr(effectiveAt+" >= ?", formatTime(since))).
		OrderBy(effectiveAt + " DESC")

	return r.queryItems(ctx, builder)
}

func (r *ItemRepositoryImpl) queryItems(ctx context.Context, builder sq.SelectBuilder) ([]item.Item, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem reads the columns of itemColumns, in order, plus any extra
// destinations appended after them.
func scanItem(row rowScanner, extra ...any) (item.Item, error) {
	var (
		it           item.Item
		publishedAt  sql.NullString
		retrievedAt  string
		fullText     sql.NullString
		language     sql.NullString
		tier         string
		sourceType   string
		keywordsJSON string
	)

	dest := []any{
		&it.ID, &it.CanonicalURL, &it.URL, &it.Title, &it.Publisher, &it.Domain,
		&publishedAt, &retrievedAt, &it.Snippet, &fullText, &language,
		&tier, &sourceType, &keywordsJSON, &it.CollectionRunID,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return item.Item{}, err
	}

	if publishedAt.Valid && publishedAt.String != "" {
		t, err := parseTime(publishedAt.String)
		if err != nil {
			return item.Item{}, err
		}
		it.PublishedAt = &t
	}

	t, err := parseTime(retrievedAt)
	if err != nil {
		return item.Item{}, err
	}
	it.RetrievedAt = t

	if fullText.Valid {
		it.FullText = &fullText.String
	}
	if language.Valid {
		it.Language = &language.String
	}

	it.Tier = item.Tier(tier)
	it.SourceType = item.SourceType(sourceType)

	if err := json.Unmarshal([]byte(keywordsJSON), &it.KeywordsHit); err != nil {
		return item.Item{}, fmt.Errorf("failed to decode keywords: %w", err)
	}
	it.KeywordsHit = nonNilStrings(it.KeywordsHit)

	return it, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
