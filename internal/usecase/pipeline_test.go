package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
	"RedCardNews/internal/infrastructure/parser"
	"RedCardNews/internal/infrastructure/storage"
	"RedCardNews/internal/ports"
)

var testNow = time.Date(2025, time.November, 8, 21, 0, 0, 0, time.UTC)

type pipelineFixture struct {
	store     *memoryStore
	source    *stubSource
	extractor *stubExtractor
	rewriter  *stubRewriter
	notifier  *recordingNotifier
	sleeps    []time.Duration
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, settings PipelineSettings) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:     newMemoryStore(),
		source:    &stubSource{},
		extractor: &stubExtractor{},
		rewriter:  &stubRewriter{},
		notifier:  &recordingNotifier{},
	}
	writer := newTestWriter(f.store)
	f.pipeline = NewPipeline(PipelineDeps{
		Source:    f.source,
		Extractor: f.extractor,
		Writer:    writer,
		Originals: f.store,
		Rewrites:  f.store,
		Jobs:      f.store,
		Rewriter:  f.rewriter,
		Notifiers: []ports.PublicationNotifier{f.notifier},
		Settings:  settings,
	})
	f.pipeline.now = fixedClock(testNow)
	f.pipeline.newID = sequentialIDs("id")
	f.pipeline.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func (f *pipelineFixture) seedOriginals(n int) {
	for i := 1; i <= n; i++ {
		f.store.originals = append(f.store.originals, domain.OriginalArticle{
			ID:          fmt.Sprintf("o%d", i),
			Title:       fmt.Sprintf("Notícia %d", i),
			Body:        "Corpo",
			Category:    "Futebol",
			SourceURL:   fmt.Sprintf("https://www.abola.pt/n/%d", i),
			PublishedAt: testNow.Add(-time.Duration(i) * time.Hour),
		})
	}
}

func TestRunTransformJobContinuesPastItemFailures(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{BatchSize: 10, ItemDelay: 2 * time.Second})
	f.seedOriginals(5)
	f.rewriter.failIDs = map[string]bool{"o3": true}

	job, err := f.pipeline.RunTransformJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, 5, job.Result.CandidatesFound)
	require.Equal(t, 4, job.Result.ArticlesProcessed)
	require.Equal(t, 1, job.Result.ItemsFailed)
	require.Equal(t, 5, f.rewriter.calls)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, f.sleeps)

	stored := f.store.job(job.ID)
	require.Equal(t, domain.JobCompleted, stored.Status)
	require.Equal(t, 4, stored.Result.ArticlesProcessed)

	for _, r := range f.store.rewrites {
		require.False(t, r.Published)
		require.NotEqual(t, "o3", r.OriginalArticleID)
		require.Equal(t, testNow, r.ProcessedAt)
	}
}

func TestRunTransformJobHonoursBatchSize(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{BatchSize: 2})
	f.seedOriginals(5)

	job, err := f.pipeline.RunTransformJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, job.Result.ArticlesProcessed)

	ids := []string{f.store.rewrites[0].OriginalArticleID, f.store.rewrites[1].OriginalArticleID}
	require.Equal(t, []string{"o1", "o2"}, ids, "newest originals first")
}

func TestRunScrapeJobFailsWhenFeedsUnreachable(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	f.source.connectErr = errors.New("dial tcp: connection refused")

	job, err := f.pipeline.RunScrapeJob(context.Background())
	require.ErrorIs(t, err, f.source.connectErr)
	require.Equal(t, domain.JobFailed, job.Status)
	require.Contains(t, job.Result.Error, "connection refused")
	require.Equal(t, domain.JobFailed, f.store.job(job.ID).Status)
}

func TestRunScrapeJobSkipsKnownURLsWithoutFetching(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	f.seedOriginals(1)
	f.extractor.out = domain.Extraction{Body: "Texto completo da notícia.", Author: "Rui"}
	f.source.candidates = []domain.Candidate{
		{Title: "Já guardada", SourceURL: "https://www.abola.pt/n/1", Category: "futebol"},
		{Title: "Nova", SourceURL: "https://www.abola.pt/n/2", Category: "futebol", Excerpt: "Resumo"},
	}

	job, err := f.pipeline.RunScrapeJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, job.Result.ArticlesScraped)
	require.Equal(t, 1, job.Result.ArticlesSkipped)
	require.Equal(t, []string{"https://www.abola.pt/n/2"}, f.extractor.calls)

	stored, err := f.store.ListUnrewritten(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, o := range stored {
		if o.SourceURL == "https://www.abola.pt/n/2" {
			require.Equal(t, "Texto completo da notícia.", o.Body)
			require.Equal(t, "Rui", o.Author)
		}
	}
}

func TestRunScrapeJobKeepsFeedFieldsWhenPageYieldsNothing(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	var logs bytes.Buffer
	f.pipeline.logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.source.candidates = []domain.Candidate{
		{Title: "Nova", SourceURL: "https://www.abola.pt/n/7", Category: "futebol", Excerpt: "Resumo do feed", Body: "Resumo do feed"},
	}

	job, err := f.pipeline.RunScrapeJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, job.Result.ArticlesScraped)

	stored, err := f.store.ListUnrewritten(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Resumo do feed", stored[0].Body)
	require.Contains(t, logs.String(), "page extraction recovered nothing")
	require.Contains(t, logs.String(), "https://www.abola.pt/n/7")
}

func TestRunFullPipelineEndsEarlyWithoutNewArticles(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})

	result, err := f.pipeline.RunFullPipeline(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, result.Scrape.Status)
	require.Nil(t, result.Transform)
	require.Empty(t, result.Published)
	require.Zero(t, f.rewriter.calls)
}

func TestRunFullPipelineScrapesRewritesAndPublishes(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{PublishLimit: 10})
	f.source.candidates = []domain.Candidate{
		{Title: "A", SourceURL: "https://www.abola.pt/a", Category: "futebol", Excerpt: "a"},
		{Title: "B", SourceURL: "https://www.abola.pt/b", Category: "futebol", Excerpt: "b"},
	}

	result, err := f.pipeline.RunFullPipeline(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Scrape.Result.ArticlesScraped)
	require.NotNil(t, result.Transform)
	require.Equal(t, 2, result.Transform.Result.ArticlesProcessed)
	require.Len(t, result.Published, 2)
	require.Len(t, f.notifier.batches, 1)
	for _, r := range f.store.rewrites {
		require.True(t, r.Published)
	}
}

func TestRunFullPipelineReportsFailingStage(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	f.source.fetchErr = errors.New("feed parse error")

	_, err := f.pipeline.RunFullPipeline(context.Background())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageScrape, perr.Stage)
	require.ErrorIs(t, err, f.source.fetchErr)
}

func TestPublishIgnoresNotifierFailure(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	f.notifier.err = errors.New("telegram down")
	f.store.rewrites = []domain.RewrittenArticle{
		{ID: "r1", OriginalArticleID: "o1", ProcessedAt: testNow.Add(-time.Hour)},
		{ID: "r2", OriginalArticleID: "o2", ProcessedAt: testNow},
		{ID: "r3", OriginalArticleID: "o3", ProcessedAt: testNow.Add(-2 * time.Hour)},
	}

	published, err := f.pipeline.Publish(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, published, 2)
	require.Equal(t, "r2", published[0].ID)
	require.Equal(t, "r1", published[1].ID)
	require.Len(t, f.notifier.batches, 1)

	remaining, err := f.store.ListUnpublished(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "r3", remaining[0].ID)
}

func TestSetPublishedUnknownRewrite(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})

	err := f.pipeline.SetPublished(context.Background(), "missing", true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRewriteArticleOnce(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t, PipelineSettings{})
	f.seedOriginals(1)

	rewritten, err := f.pipeline.RewriteArticle(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, "o1", rewritten.OriginalArticleID)
	require.Equal(t, "Reescrito: Notícia 1", rewritten.Title)

	_, err = f.pipeline.RewriteArticle(context.Background(), "o1")
	require.ErrorIs(t, err, ErrAlreadyRewritten)

	_, err = f.pipeline.RewriteArticle(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

const scrapeFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>A Bola</title>
    <item>
      <title>Porto empata no Dragão</title>
      <link>https://www.abola.pt/futebol/noticias/porto-empata-10</link>
      <description>Golo nos descontos.</description>
      <pubDate>Sat, 08 Nov 2025 19:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Sporting prepara dérbi</title>
      <link>https://www.abola.pt/futebol/noticias/sporting-prepara-11</link>
      <description>Treino à porta fechada.</description>
      <pubDate>Sat, 08 Nov 2025 18:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Sem ligação</title>
      <description>Ignorada.</description>
    </item>
  </channel>
</rss>`

func TestRunScrapeJobAgainstFeedAndSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(scrapeFeed))
	}))
	defer server.Close()

	store, err := storage.Open(ctx, "file:"+filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reader := parser.NewFeedReader(server.Client(), "test-agent/1.0")
	source := parser.NewTopicSource(reader, []config.FeedConfig{{Topic: "futebol", URL: server.URL}}, 20, time.Second, nil)

	p := NewPipeline(PipelineDeps{
		Source:    source,
		Writer:    NewStoreWriter(store, StoreWriterOptions{Categories: map[string]string{"futebol": "Futebol"}, SourceLabel: "abola.pt"}),
		Originals: store,
		Rewrites:  store,
		Jobs:      store,
		Rewriter:  &stubRewriter{},
	})

	job, err := p.RunScrapeJob(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, 2, job.Result.ArticlesScraped)

	again, err := p.RunScrapeJob(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Result.ArticlesScraped)
	require.Equal(t, 2, again.Result.ArticlesSkipped)

	jobs, err := p.ListJobs(ctx, domain.JobKindScrape, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	pending, err := store.ListUnrewritten(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "Porto empata no Dragão", pending[0].Title)
	require.Equal(t, "Futebol", pending[0].Category)
}
