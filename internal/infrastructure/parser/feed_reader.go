package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"RedCardNews/internal/domain"
)

const (
	feedAccept   = "application/rss+xml, application/xml, text/xml"
	maxFeedBytes = 4 << 20
)

// ErrNotAFeed is returned by Ping when the response is not RSS or Atom.
var ErrNotAFeed = errors.New("response does not look like an RSS or Atom feed")

// FeedReader fetches a topic feed and maps its entries to candidates.
type FeedReader struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

// NewFeedReader wires an HTTP client; a nil client gets a 15s timeout.
func NewFeedReader(client *http.Client, userAgent string) *FeedReader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &FeedReader{client: client, userAgent: userAgent, now: time.Now}
}

// Read returns the valid entries of one topic feed. Entries without a title
// or a link are dropped.
func (f *FeedReader) Read(ctx context.Context, topic, feedURL string) ([]domain.Candidate, error) {
	raw, err := f.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidate := f.toCandidate(item, topic)
		if !candidate.Valid() {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// Ping checks that the feed answers and looks like a syndication document.
func (f *FeedReader) Ping(ctx context.Context, feedURL string) error {
	raw, err := f.fetch(ctx, feedURL)
	if err != nil {
		return err
	}
	head := strings.ToLower(string(raw[:min(len(raw), 4096)]))
	if !strings.Contains(head, "<rss") && !strings.Contains(head, "<feed") {
		return ErrNotAFeed
	}
	return nil
}

func (f *FeedReader) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", feedAccept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return raw, nil
}

func (f *FeedReader) toCandidate(item *gofeed.Item, topic string) domain.Candidate {
	excerpt := plainText(item.Description)
	if excerpt == "" {
		excerpt = plainText(item.Content)
	}

	published := f.now().UTC()
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	return domain.Candidate{
		Title:       strings.TrimSpace(item.Title),
		Excerpt:     excerpt,
		Category:    topic,
		PublishedAt: published,
		SourceURL:   strings.TrimSpace(item.Link),
		ImageURL:    itemImage(item),
		Author:      itemAuthor(item),
	}
}

func itemImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "image/") {
			return strings.TrimSpace(enc.URL)
		}
	}
	if item.Image != nil {
		return strings.TrimSpace(item.Image.URL)
	}
	return ""
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			if c := strings.TrimSpace(creator); c != "" {
				return c
			}
		}
	}
	return ""
}
