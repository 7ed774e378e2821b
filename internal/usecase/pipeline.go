package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

// ErrAlreadyRewritten is returned when a single-article rewrite finds an
// existing rewrite.
var ErrAlreadyRewritten = errors.New("article already rewritten")

// Pipeline stages reported by PipelineError.
const (
	StageScrape    = "scrape"
	StageTransform = "transform"
	StagePublish   = "publish"
)

// PipelineError tells which stage of a full run failed.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s stage: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// PipelineSettings bounds batch sizes and pacing.
type PipelineSettings struct {
	MaxArticles  int
	BatchSize    int
	ItemDelay    time.Duration
	PublishLimit int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.ArticleSource
	Extractor ports.Extractor
	Writer    *StoreWriter
	Originals ports.OriginalRepository
	Rewrites  ports.RewriteRepository
	Jobs      ports.JobLedger
	Rewriter  ports.Rewriter
	Notifiers []ports.PublicationNotifier
	Settings  PipelineSettings
	Logger    *slog.Logger
}

// Pipeline implements scrape, transform and publish, each tracked in the
// job ledger.
type Pipeline struct {
	source    ports.ArticleSource
	extractor ports.Extractor
	writer    *StoreWriter
	originals ports.OriginalRepository
	rewrites  ports.RewriteRepository
	jobs      ports.JobLedger
	rewriter  ports.Rewriter
	notifiers []ports.PublicationNotifier
	settings  PipelineSettings
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// PipelineResult summarises a full run. Transform is nil when the run ended
// after scraping found nothing new.
type PipelineResult struct {
	Scrape    domain.Job
	Transform *domain.Job
	Published []domain.RewrittenArticle
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	settings := deps.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = 10
	}
	if settings.PublishLimit <= 0 {
		settings.PublishLimit = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		source:    deps.Source,
		extractor: deps.Extractor,
		writer:    deps.Writer,
		originals: deps.Originals,
		rewrites:  deps.Rewrites,
		jobs:      deps.Jobs,
		rewriter:  deps.Rewriter,
		notifiers: deps.Notifiers,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		newID:     uuid.NewString,
	}
}

// RunScrapeJob reads the feeds, enriches new candidates and stores them.
// The job fails only when the feeds cannot be reached; per-item problems
// are counted.
func (p *Pipeline) RunScrapeJob(ctx context.Context) (domain.Job, error) {
	job, err := p.startJob(ctx, domain.JobKindScrape, map[string]any{
		"maxArticles": p.settings.MaxArticles,
	})
	if err != nil {
		return job, err
	}
	log := p.logger.With("job_id", job.ID, "job", job.Kind)
	log.Info("scrape job started")

	if err := p.source.CheckConnectivity(ctx); err != nil {
		return p.failJob(ctx, job, fmt.Errorf("connectivity check: %w", err))
	}

	candidates, err := p.source.FetchCandidates(ctx)
	if err != nil {
		return p.failJob(ctx, job, fmt.Errorf("fetch candidates: %w", err))
	}
	job.Result.CandidatesFound = len(candidates)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return p.failJob(ctx, job, err)
		}

		outcome, err := p.scrapeOne(ctx, candidate)
		switch {
		case err != nil:
			job.Result.ItemsFailed++
			log.Warn("store candidate failed", "url", candidate.SourceURL, "error", err)
		case outcome == OutcomeStored:
			job.Result.ArticlesScraped++
		default:
			job.Result.ArticlesSkipped++
		}
	}

	log.Info("scrape job completed",
		"candidates", job.Result.CandidatesFound,
		"scraped", job.Result.ArticlesScraped,
		"skipped", job.Result.ArticlesSkipped,
		"failed", job.Result.ItemsFailed)
	return p.completeJob(ctx, job)
}

// scrapeOne skips known URLs before paying for the page fetch.
func (p *Pipeline) scrapeOne(ctx context.Context, candidate domain.Candidate) (StoreOutcome, error) {
	known, err := p.originals.ExistsBySourceURL(ctx, candidate.SourceURL)
	if err != nil {
		return "", fmt.Errorf("check source url: %w", err)
	}
	if known {
		return OutcomeSkipped, nil
	}

	if p.extractor != nil {
		extraction := p.extractor.Extract(ctx, candidate.SourceURL)
		if extraction.Empty() {
			p.logger.Debug("page extraction recovered nothing, keeping feed fields", "url", candidate.SourceURL)
		}
		extraction.Apply(&candidate)
	}

	_, outcome, err := p.writer.Store(ctx, candidate)
	return outcome, err
}

// RunTransformJob rewrites up to BatchSize originals that have no rewrite,
// newest first, one at a time with ItemDelay between items. Item failures
// are counted and the job still completes.
func (p *Pipeline) RunTransformJob(ctx context.Context) (domain.Job, error) {
	job, err := p.startJob(ctx, domain.JobKindTransform, map[string]any{
		"batchSize": p.settings.BatchSize,
		"itemDelay": p.settings.ItemDelay.String(),
	})
	if err != nil {
		return job, err
	}
	log := p.logger.With("job_id", job.ID, "job", job.Kind)
	log.Info("transform job started")

	pending, err := p.originals.ListUnrewritten(ctx, p.settings.BatchSize)
	if err != nil {
		return p.failJob(ctx, job, fmt.Errorf("list unprocessed: %w", err))
	}
	job.Result.CandidatesFound = len(pending)

	for i, original := range pending {
		if i > 0 {
			if err := p.sleep(ctx, p.settings.ItemDelay); err != nil {
				return p.failJob(ctx, job, err)
			}
		}

		_, stored, err := p.rewriteOne(ctx, original)
		switch {
		case err != nil:
			job.Result.ItemsFailed++
			log.Warn("rewrite failed", "original_id", original.ID, "error", err)
		case stored:
			job.Result.ArticlesProcessed++
		default:
			job.Result.ArticlesSkipped++
		}
	}

	log.Info("transform job completed",
		"pending", job.Result.CandidatesFound,
		"processed", job.Result.ArticlesProcessed,
		"failed", job.Result.ItemsFailed)
	return p.completeJob(ctx, job)
}

// rewriteOne reports stored=false when another run already wrote the rewrite.
func (p *Pipeline) rewriteOne(ctx context.Context, original domain.OriginalArticle) (domain.RewrittenArticle, bool, error) {
	has, err := p.rewrites.HasRewrite(ctx, original.ID)
	if err != nil {
		return domain.RewrittenArticle{}, false, fmt.Errorf("check rewrite: %w", err)
	}
	if has {
		return domain.RewrittenArticle{}, false, nil
	}

	rewritten, err := p.rewriter.Rewrite(ctx, original)
	if err != nil {
		return domain.RewrittenArticle{}, false, err
	}
	rewritten.ID = p.newID()
	rewritten.OriginalArticleID = original.ID
	rewritten.Published = false
	rewritten.ProcessedAt = p.now().UTC()

	inserted, err := p.rewrites.InsertRewrite(ctx, rewritten)
	if err != nil {
		return domain.RewrittenArticle{}, false, fmt.Errorf("insert rewrite: %w", err)
	}
	return rewritten, inserted, nil
}

// RewriteArticle rewrites a single original on demand.
func (p *Pipeline) RewriteArticle(ctx context.Context, originalID string) (domain.RewrittenArticle, error) {
	original, err := p.originals.GetOriginal(ctx, originalID)
	if err != nil {
		return domain.RewrittenArticle{}, fmt.Errorf("load original %s: %w", originalID, err)
	}

	rewritten, stored, err := p.rewriteOne(ctx, original)
	if err != nil {
		return domain.RewrittenArticle{}, err
	}
	if !stored {
		return domain.RewrittenArticle{}, ErrAlreadyRewritten
	}
	return rewritten, nil
}

// Publish makes up to limit of the most recently processed rewrites visible
// and tells the notifiers. Notifier failures are only logged.
func (p *Pipeline) Publish(ctx context.Context, limit int) ([]domain.RewrittenArticle, error) {
	if limit <= 0 {
		limit = p.settings.PublishLimit
	}

	pending, err := p.rewrites.ListUnpublished(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i := range pending {
		ids[i] = pending[i].ID
		pending[i].Published = true
	}
	if _, err := p.rewrites.SetPublished(ctx, ids, true); err != nil {
		return nil, fmt.Errorf("set published: %w", err)
	}

	p.logger.Info("articles published", "count", len(pending))
	p.notify(ctx, pending)
	return pending, nil
}

func (p *Pipeline) notify(ctx context.Context, published []domain.RewrittenArticle) {
	for _, n := range p.notifiers {
		if err := n.NotifyPublished(ctx, published); err != nil {
			p.logger.Warn("publication notifier failed", "notifier", fmt.Sprintf("%T", n), "error", err)
		}
	}
}

// SetPublished flips the visibility of one rewrite.
func (p *Pipeline) SetPublished(ctx context.Context, rewriteID string, published bool) error {
	n, err := p.rewrites.SetPublished(ctx, []string{rewriteID}, published)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rewrite %s: %w", rewriteID, domain.ErrNotFound)
	}
	p.logger.Info("publication changed", "rewrite_id", rewriteID, "published", published)
	return nil
}

// RunFullPipeline runs scrape, then transform and publish when scraping
// stored at least one new article.
func (p *Pipeline) RunFullPipeline(ctx context.Context) (PipelineResult, error) {
	var result PipelineResult

	scrape, err := p.RunScrapeJob(ctx)
	result.Scrape = scrape
	if err != nil {
		return result, &PipelineError{Stage: StageScrape, Err: err}
	}
	if scrape.Result.ArticlesScraped == 0 {
		p.logger.Info("pipeline finished early: no new articles")
		return result, nil
	}

	transform, err := p.RunTransformJob(ctx)
	result.Transform = &transform
	if err != nil {
		return result, &PipelineError{Stage: StageTransform, Err: err}
	}

	published, err := p.Publish(ctx, p.settings.PublishLimit)
	if err != nil {
		return result, &PipelineError{Stage: StagePublish, Err: err}
	}
	result.Published = published
	return result, nil
}

// ListJobs returns the most recent ledger entries.
func (p *Pipeline) ListJobs(ctx context.Context, kind domain.JobKind, limit int) ([]domain.Job, error) {
	return p.jobs.ListJobs(ctx, kind, limit)
}

// startJob records a running job; a job that cannot be recorded is not run.
func (p *Pipeline) startJob(ctx context.Context, kind domain.JobKind, payload map[string]any) (domain.Job, error) {
	job := domain.NewJob(p.newID(), kind, payload)
	job.Start(p.now().UTC())
	if err := p.jobs.CreateJob(ctx, job); err != nil {
		return job, fmt.Errorf("create %s job: %w", kind, err)
	}
	return job, nil
}

func (p *Pipeline) completeJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	job.Complete(p.now().UTC())
	if err := p.jobs.FinishJob(context.WithoutCancel(ctx), job); err != nil {
		return job, fmt.Errorf("finish %s job: %w", job.Kind, err)
	}
	return job, nil
}

// failJob records the failure even when ctx is already cancelled.
func (p *Pipeline) failJob(ctx context.Context, job domain.Job, cause error) (domain.Job, error) {
	job.Fail(p.now().UTC(), cause)
	p.logger.Error("job failed", "job_id", job.ID, "job", job.Kind, "error", cause)
	if err := p.jobs.FinishJob(context.WithoutCancel(ctx), job); err != nil {
		return job, errors.Join(cause, fmt.Errorf("finish %s job: %w", job.Kind, err))
	}
	return job, cause
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
