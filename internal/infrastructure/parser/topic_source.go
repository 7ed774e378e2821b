package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

// TopicSource implements ArticleSource over the configured topic feeds.
type TopicSource struct {
	reader         *FeedReader
	feeds          []config.FeedConfig
	maxArticles    int
	connectTimeout time.Duration
	logger         *slog.Logger
}

var _ ports.ArticleSource = (*TopicSource)(nil)

// NewTopicSource wires the feed reader with config-defined topics.
func NewTopicSource(reader *FeedReader, feeds []config.FeedConfig, maxArticles int, connectTimeout time.Duration, log *slog.Logger) *TopicSource {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &TopicSource{
		reader:         reader,
		feeds:          feeds,
		maxArticles:    maxArticles,
		connectTimeout: connectTimeout,
		logger:         log,
	}
}

// CheckConnectivity pings the first configured feed.
func (s *TopicSource) CheckConnectivity(ctx context.Context) error {
	if len(s.feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	feed := s.feeds[0]
	if err := s.reader.Ping(ctx, feed.URL); err != nil {
		return fmt.Errorf("unable to reach feed %s: %w", feed.URL, err)
	}
	return nil
}

// FetchCandidates reads every topic, newest first, truncated to maxArticles.
// A failing topic is logged and contributes nothing.
func (s *TopicSource) FetchCandidates(ctx context.Context) ([]domain.Candidate, error) {
	s.debug("fetch candidates", "feeds", len(s.feeds))

	var aggregated []domain.Candidate
	seen := map[string]struct{}{}
	for _, feed := range s.feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := s.reader.Read(ctx, feed.Topic, feed.URL)
		if err != nil {
			s.warn("feed failed", "topic", feed.Topic, "url", feed.URL, "error", err)
			continue
		}

		for _, candidate := range results {
			if _, ok := seen[candidate.SourceURL]; ok {
				continue
			}
			seen[candidate.SourceURL] = struct{}{}
			aggregated = append(aggregated, candidate)
		}
		s.debug("topic produced candidates", "topic", feed.Topic, "count", len(results))
	}

	sort.SliceStable(aggregated, func(i, j int) bool {
		return aggregated[i].PublishedAt.After(aggregated[j].PublishedAt)
	})
	if s.maxArticles > 0 && len(aggregated) > s.maxArticles {
		aggregated = aggregated[:s.maxArticles]
	}

	s.debug("topic source done", "total_candidates", len(aggregated))
	return aggregated, nil
}

func (s *TopicSource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *TopicSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
