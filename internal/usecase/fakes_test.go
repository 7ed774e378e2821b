package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

type memoryStore struct {
	mu        sync.Mutex
	originals []domain.OriginalArticle
	rewrites  []domain.RewrittenArticle
	jobs      map[string]domain.Job
	insertErr error
}

var (
	_ ports.OriginalRepository = (*memoryStore)(nil)
	_ ports.RewriteRepository  = (*memoryStore)(nil)
	_ ports.JobLedger          = (*memoryStore)(nil)
)

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: map[string]domain.Job{}}
}

func (m *memoryStore) ExistsBySourceURL(_ context.Context, sourceURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.originals {
		if o.SourceURL == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) InsertOriginal(ctx context.Context, a domain.OriginalArticle) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if exists, _ := m.ExistsBySourceURL(ctx, a.SourceURL); exists {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.originals = append(m.originals, a)
	return true, nil
}

func (m *memoryStore) GetOriginal(_ context.Context, id string) (domain.OriginalArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.originals {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.OriginalArticle{}, fmt.Errorf("original %s: %w", id, domain.ErrNotFound)
}

func (m *memoryStore) ListUnrewritten(_ context.Context, limit int) ([]domain.OriginalArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := map[string]bool{}
	for _, r := range m.rewrites {
		done[r.OriginalArticleID] = true
	}
	var out []domain.OriginalArticle
	for _, o := range m.originals {
		if !done[o.ID] {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) HasRewrite(_ context.Context, originalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rewrites {
		if r.OriginalArticleID == originalID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) InsertRewrite(ctx context.Context, a domain.RewrittenArticle) (bool, error) {
	if has, _ := m.HasRewrite(ctx, a.OriginalArticleID); has {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewrites = append(m.rewrites, a)
	return true, nil
}

func (m *memoryStore) ListUnpublished(_ context.Context, limit int) ([]domain.RewrittenArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RewrittenArticle
	for _, r := range m.rewrites {
		if !r.Published {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProcessedAt.After(out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) SetPublished(_ context.Context, ids []string, published bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		for i := range m.rewrites {
			if m.rewrites[i].ID == id {
				m.rewrites[i].Published = published
				n++
			}
		}
	}
	return n, nil
}

func (m *memoryStore) CreateJob(_ context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryStore) FinishJob(_ context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryStore) ListJobs(_ context.Context, kind domain.JobKind, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if kind == "" || j.Kind == kind {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) job(id string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type stubSource struct {
	connectErr error
	fetchErr   error
	candidates []domain.Candidate
}

func (s stubSource) CheckConnectivity(context.Context) error { return s.connectErr }

func (s stubSource) FetchCandidates(context.Context) ([]domain.Candidate, error) {
	return s.candidates, s.fetchErr
}

type stubExtractor struct {
	mu    sync.Mutex
	calls []string
	out   domain.Extraction
}

func (e *stubExtractor) Extract(_ context.Context, url string) domain.Extraction {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, url)
	return e.out
}

type stubRewriter struct {
	mu      sync.Mutex
	calls   int
	failIDs map[string]bool
	block   chan struct{}
}

func (r *stubRewriter) Rewrite(ctx context.Context, a domain.OriginalArticle) (domain.RewrittenArticle, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.RewrittenArticle{}, ctx.Err()
		}
	}
	if r.failIDs[a.ID] {
		return domain.RewrittenArticle{}, errors.New("model unavailable")
	}
	return domain.RewrittenArticle{
		Title:          "Reescrito: " + a.Title,
		Body:           a.Body,
		IntensityScore: 7,
		Urgency:        domain.UrgencyHigh,
		Category:       a.Category,
	}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]domain.RewrittenArticle
	err     error
}

func (n *recordingNotifier) NotifyPublished(_ context.Context, articles []domain.RewrittenArticle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, articles)
	return n.err
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
