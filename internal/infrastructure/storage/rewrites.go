package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

var _ ports.RewriteRepository = (*Store)(nil)

var rewriteColumns = []string{
	"id", "original_article_id", "title", "excerpt", "body", "intensity_score",
	"urgency", "category", "tags", "notes", "published", "processed_at",
}

// HasRewrite reports whether the original already has its rewrite.
func (s *Store) HasRewrite(ctx context.Context, originalID string) (bool, error) {
	row, err := s.queryRow(ctx, s.sb.Select("1").From("rewritten_articles").Where(sq.Eq{"original_article_id": originalID}).Limit(1))
	if err != nil {
		return false, err
	}
	var one int
	switch err := row.Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup rewrite: %w", err)
	}
	return true, nil
}

// InsertRewrite stores the rewrite unless the original already has one.
func (s *Store) InsertRewrite(ctx context.Context, a domain.RewrittenArticle) (bool, error) {
	tags, err := json.Marshal(nonNilTags(a.Tags))
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}

	insert := s.sb.Insert("rewritten_articles").
		Columns(rewriteColumns...).
		Values(a.ID, a.OriginalArticleID, a.Title, a.Excerpt, a.Body, a.IntensityScore,
			string(a.Urgency), a.Category, string(tags), a.Notes, a.Published, utc(a.ProcessedAt)).
		Suffix("ON CONFLICT (original_article_id) DO NOTHING")

	n, err := s.exec(ctx, insert)
	if err != nil {
		return false, fmt.Errorf("insert rewrite: %w", err)
	}
	return n > 0, nil
}

// ListUnpublished returns unpublished rewrites, most recently processed first.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]domain.RewrittenArticle, error) {
	q := s.sb.Select(rewriteColumns...).
		From("rewritten_articles").
		Where(sq.Eq{"published": false}).
		OrderBy("processed_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query unpublished: %w", err)
	}
	defer rows.Close()

	var out []domain.RewrittenArticle
	for rows.Next() {
		a, err := scanRewrite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rewrite: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SetPublished flips the visibility flag and returns how many rows changed.
func (s *Store) SetPublished(ctx context.Context, ids []string, published bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.exec(ctx, s.sb.Update("rewritten_articles").
		Set("published", published).
		Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, fmt.Errorf("set published: %w", err)
	}
	return int(n), nil
}

func scanRewrite(row rowScanner) (domain.RewrittenArticle, error) {
	var (
		a       domain.RewrittenArticle
		urgency string
		tags    string
	)
	if err := row.Scan(&a.ID, &a.OriginalArticleID, &a.Title, &a.Excerpt, &a.Body, &a.IntensityScore,
		&urgency, &a.Category, &tags, &a.Notes, &a.Published, &a.ProcessedAt); err != nil {
		return domain.RewrittenArticle{}, err
	}
	a.Urgency = domain.ParseUrgency(urgency)
	a.ProcessedAt = a.ProcessedAt.UTC()
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return domain.RewrittenArticle{}, fmt.Errorf("decode tags: %w", err)
	}
	return a, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
