package ports

import (
	"context"
	"time"

	"RedCardNews/internal/domain"
)

// ArticleSource pulls candidate articles from the upstream publisher feeds.
type ArticleSource interface {
	CheckConnectivity(ctx context.Context) error
	FetchCandidates(ctx context.Context) ([]domain.Candidate, error)
}

// Extractor recovers body, image and author from a full article page.
// It never fails: an unreachable or unparsable page yields an empty result.
type Extractor interface {
	Extract(ctx context.Context, sourceURL string) domain.Extraction
}

// OriginalRepository persists scraped articles, unique by source URL.
type OriginalRepository interface {
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	// InsertOriginal returns false when the source URL is already stored.
	InsertOriginal(ctx context.Context, article domain.OriginalArticle) (bool, error)
	GetOriginal(ctx context.Context, id string) (domain.OriginalArticle, error)
	ListUnrewritten(ctx context.Context, limit int) ([]domain.OriginalArticle, error)
}

// RewriteRepository persists generated articles, one per original.
type RewriteRepository interface {
	HasRewrite(ctx context.Context, originalID string) (bool, error)
	// InsertRewrite returns false when the original already has a rewrite.
	InsertRewrite(ctx context.Context, article domain.RewrittenArticle) (bool, error)
	ListUnpublished(ctx context.Context, limit int) ([]domain.RewrittenArticle, error)
	SetPublished(ctx context.Context, ids []string, published bool) (int, error)
}

// JobLedger records job runs for status and audit.
type JobLedger interface {
	CreateJob(ctx context.Context, job domain.Job) error
	FinishJob(ctx context.Context, job domain.Job) error
	ListJobs(ctx context.Context, kind domain.JobKind, limit int) ([]domain.Job, error)
}

// Rewriter turns an original article into its rewritten counterpart.
type Rewriter interface {
	Rewrite(ctx context.Context, article domain.OriginalArticle) (domain.RewrittenArticle, error)
}

// PublicationNotifier is told about articles that just became visible.
type PublicationNotifier interface {
	NotifyPublished(ctx context.Context, articles []domain.RewrittenArticle) error
}

// ScheduledEntry describes one active recurring trigger.
type ScheduledEntry struct {
	Name       string
	Expression string
	Running    bool
	Next       time.Time
}

// Scheduler controls when named jobs fire.
type Scheduler interface {
	Schedule(name, expression string, job func()) error
	Unschedule(name string) bool
	UnscheduleAll()
	Entries() []ScheduledEntry
	Start()
	Stop(ctx context.Context) error
}
