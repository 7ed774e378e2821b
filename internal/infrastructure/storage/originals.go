package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

var _ ports.OriginalRepository = (*Store)(nil)

var originalColumns = []string{
	"o.id", "o.title", "o.excerpt", "o.body", "o.category", "o.published_at",
	"o.source_url", "o.image_url", "o.author", "o.source", "o.scraped_at",
}

// ExistsBySourceURL reports whether an original with this URL is stored.
func (s *Store) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	row, err := s.queryRow(ctx, s.sb.Select("1").From("original_articles").Where(sq.Eq{"source_url": sourceURL}).Limit(1))
	if err != nil {
		return false, err
	}
	var one int
	switch err := row.Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup source url: %w", err)
	}
	return true, nil
}

// InsertOriginal stores the article unless its source URL already exists,
// in which case it returns false without error.
func (s *Store) InsertOriginal(ctx context.Context, a domain.OriginalArticle) (bool, error) {
	insert := s.sb.Insert("original_articles").
		Columns("id", "title", "excerpt", "body", "category", "published_at",
			"source_url", "image_url", "author", "source", "scraped_at").
		Values(a.ID, a.Title, a.Excerpt, a.Body, a.Category, utc(a.PublishedAt),
			a.SourceURL, a.ImageURL, a.Author, a.Source, utc(a.ScrapedAt)).
		Suffix("ON CONFLICT (source_url) DO NOTHING")

	n, err := s.exec(ctx, insert)
	if err != nil {
		return false, fmt.Errorf("insert original: %w", err)
	}
	return n > 0, nil
}

// GetOriginal loads one original by ID.
func (s *Store) GetOriginal(ctx context.Context, id string) (domain.OriginalArticle, error) {
	row, err := s.queryRow(ctx, s.sb.Select(originalColumns...).From("original_articles o").Where(sq.Eq{"o.id": id}))
	if err != nil {
		return domain.OriginalArticle{}, err
	}
	a, err := scanOriginal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OriginalArticle{}, fmt.Errorf("original %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.OriginalArticle{}, fmt.Errorf("get original: %w", err)
	}
	return a, nil
}

// ListUnrewritten returns originals without a rewrite, newest first.
func (s *Store) ListUnrewritten(ctx context.Context, limit int) ([]domain.OriginalArticle, error) {
	q := s.sb.Select(originalColumns...).
		From("original_articles o").
		LeftJoin("rewritten_articles r ON r.original_article_id = o.id").
		Where(sq.Eq{"r.id": nil}).
		OrderBy("o.published_at DESC", "o.scraped_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query unrewritten: %w", err)
	}
	defer rows.Close()

	var out []domain.OriginalArticle
	for rows.Next() {
		a, err := scanOriginal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan original: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOriginal(row rowScanner) (domain.OriginalArticle, error) {
	var a domain.OriginalArticle
	err := row.Scan(&a.ID, &a.Title, &a.Excerpt, &a.Body, &a.Category, &a.PublishedAt,
		&a.SourceURL, &a.ImageURL, &a.Author, &a.Source, &a.ScrapedAt)
	a.PublishedAt = a.PublishedAt.UTC()
	a.ScrapedAt = a.ScrapedAt.UTC()
	return a, err
}
