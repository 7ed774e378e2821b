package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

// StoreOutcome tells whether a candidate produced a new row.
type StoreOutcome string

const (
	OutcomeStored  StoreOutcome = "stored"
	OutcomeSkipped StoreOutcome = "skipped"
)

// StoreWriterOptions labels stored originals.
type StoreWriterOptions struct {
	Categories       map[string]string
	FallbackCategory string
	SourceLabel      string
}

// StoreWriter persists candidates as originals, idempotent by source URL.
type StoreWriter struct {
	repo       ports.OriginalRepository
	categories map[string]string
	fallback   string
	source     string
	newID      func() string
	now        func() time.Time
}

// NewStoreWriter builds a writer; category keys are matched case-insensitively.
func NewStoreWriter(repo ports.OriginalRepository, opts StoreWriterOptions) *StoreWriter {
	categories := make(map[string]string, len(opts.Categories))
	for topic, label := range opts.Categories {
		categories[strings.ToLower(strings.TrimSpace(topic))] = label
	}
	fallback := opts.FallbackCategory
	if fallback == "" {
		fallback = "Geral"
	}
	return &StoreWriter{
		repo:       repo,
		categories: categories,
		fallback:   fallback,
		source:     opts.SourceLabel,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// NormalizeCategory maps a feed topic onto the fixed label set.
func (w *StoreWriter) NormalizeCategory(topic string) string {
	if label, ok := w.categories[strings.ToLower(strings.TrimSpace(topic))]; ok {
		return label
	}
	return w.fallback
}

// Store writes the candidate unless its source URL is already known. A
// duplicate is reported as OutcomeSkipped, never as an error.
func (w *StoreWriter) Store(ctx context.Context, c domain.Candidate) (domain.OriginalArticle, StoreOutcome, error) {
	exists, err := w.repo.ExistsBySourceURL(ctx, c.SourceURL)
	if err != nil {
		return domain.OriginalArticle{}, "", fmt.Errorf("check source url: %w", err)
	}
	if exists {
		return domain.OriginalArticle{}, OutcomeSkipped, nil
	}

	body := strings.TrimSpace(c.Body)
	if body == "" {
		body = c.Excerpt
	}

	article := domain.OriginalArticle{
		ID:          w.newID(),
		Title:       strings.TrimSpace(c.Title),
		Excerpt:     c.Excerpt,
		Body:        body,
		Category:    w.NormalizeCategory(c.Category),
		PublishedAt: c.PublishedAt,
		SourceURL:   c.SourceURL,
		ImageURL:    c.ImageURL,
		Author:      c.Author,
		Source:      w.source,
		ScrapedAt:   w.now().UTC(),
	}

	inserted, err := w.repo.InsertOriginal(ctx, article)
	if err != nil {
		return domain.OriginalArticle{}, "", fmt.Errorf("insert original: %w", err)
	}
	if !inserted {
		return domain.OriginalArticle{}, OutcomeSkipped, nil
	}
	return article, OutcomeStored, nil
}
