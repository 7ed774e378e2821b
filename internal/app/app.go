package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
	"RedCardNews/internal/httpapi"
	"RedCardNews/internal/infrastructure/events"
	"RedCardNews/internal/infrastructure/llm"
	"RedCardNews/internal/infrastructure/parser"
	"RedCardNews/internal/infrastructure/scheduler"
	"RedCardNews/internal/infrastructure/storage"
	"RedCardNews/internal/infrastructure/telegram"
	"RedCardNews/internal/logging"
	"RedCardNews/internal/ports"
	"RedCardNews/internal/usecase"
	"RedCardNews/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	closers   []io.Closer
}

// New opens the store and builds every adapter the pipeline needs.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &Application{cfg: cfg, logger: baseLogger, store: store, closers: []io.Closer{store}}

	reader := parser.NewFeedReader(&http.Client{Timeout: cfg.Scraper.FeedTimeout}, cfg.Scraper.UserAgent)
	source := parser.NewTopicSource(reader, cfg.Feeds, cfg.Scraper.MaxArticles, cfg.Scraper.ConnectTimeout,
		baseLogger.With("component", "source"))
	extractor := parser.NewExtractor(nil, parser.ExtractorOptions{
		UserAgent:     cfg.Scraper.UserAgent,
		Timeout:       cfg.Scraper.PageTimeout,
		Interval:      cfg.Scraper.PageInterval,
		RespectRobots: cfg.Scraper.RespectRobots,
		ImageHosts:    cfg.Scraper.ImageHosts,
	}, baseLogger.With("component", "extractor"))

	writer := usecase.NewStoreWriter(store, usecase.StoreWriterOptions{
		Categories:       cfg.Scraper.Categories,
		FallbackCategory: cfg.Scraper.FallbackCategory,
		SourceLabel:      cfg.Scraper.SourceLabel,
	})

	var rewriter ports.Rewriter
	if cfg.LLM.APIKey != "" {
		rewriter = llm.NewRewriter(cfg.LLM, baseLogger.With("component", "llm"))
	} else {
		baseLogger.Warn("llm api key missing, transform jobs will fail every item")
		rewriter = missingRewriter{}
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Extractor: extractor,
		Writer:    writer,
		Originals: store,
		Rewrites:  store,
		Jobs:      store,
		Rewriter:  rewriter,
		Notifiers: a.notifiers(),
		Settings: usecase.PipelineSettings{
			MaxArticles:  cfg.Scraper.MaxArticles,
			BatchSize:    cfg.Pipeline.BatchSize,
			ItemDelay:    cfg.Pipeline.ItemDelay,
			PublishLimit: cfg.Pipeline.PublishLimit,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	cronLogger := logger.New(baseLogger, "cron", slog.LevelDebug)
	driver := scheduler.NewCronScheduler(cfg.Scheduler.Location(), cronLogger)
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, map[string]string{
		usecase.JobPipeline:  cfg.Scheduler.PipelineCron,
		usecase.JobScraping:  cfg.Scheduler.ScrapingCron,
		usecase.JobTransform: cfg.Scheduler.TransformCron,
	}, baseLogger.With("component", "scheduler"))

	return a, nil
}

func (a *Application) notifiers() []ports.PublicationNotifier {
	var out []ports.PublicationNotifier

	tg := a.cfg.Notifications.Telegram
	if n := telegram.NewNotifier(tg.BotToken, tg.ChatID); n.Enabled() {
		out = append(out, n)
	}

	if k := a.cfg.Events.Kafka; len(k.Brokers) > 0 {
		publisher := events.NewPublisher(k.Brokers, k.Topic)
		a.closers = append(a.closers, publisher)
		out = append(out, publisher)
	}
	return out
}

// Serve exposes the control API until ctx is cancelled. With AutoStart the
// configured schedules are registered first.
func (a *Application) Serve(ctx context.Context) error {
	if a.cfg.Scheduler.AutoStart {
		if err := a.scheduler.StartAll(); err != nil {
			return fmt.Errorf("start schedules: %w", err)
		}
	}

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(a.scheduler, a.pipeline, a.store, a.logger.With("component", "http")),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.New(a.logger, "http", slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("control api listening", "addr", a.cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, fmt.Errorf("http server: %w", serveErr))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.scheduler.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// RunOnce runs one named job (pipeline, scraping or transform) and waits.
func (a *Application) RunOnce(ctx context.Context, name string) (usecase.RunReport, error) {
	return a.scheduler.Trigger(ctx, name)
}

// Jobs lists recent job ledger entries.
func (a *Application) Jobs(ctx context.Context, kind domain.JobKind, limit int) ([]domain.Job, error) {
	return a.pipeline.ListJobs(ctx, kind, limit)
}

// Close releases the event publisher and the database.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type missingRewriter struct{}

func (missingRewriter) Rewrite(context.Context, domain.OriginalArticle) (domain.RewrittenArticle, error) {
	return domain.RewrittenArticle{}, errors.New("llm api key is not configured")
}
