package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
	"RedCardNews/internal/scanner"
)

const (
	pageAccept   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	maxPageBytes = 8 << 20
	robotsAgent  = "RedCardNews"
)

// page is the input shared by every extraction strategy.
type page struct {
	doc *goquery.Document
	url *url.URL
	raw []byte
}

// ExtractorOptions tunes the page fetcher.
type ExtractorOptions struct {
	UserAgent     string
	Timeout       time.Duration
	Interval      time.Duration
	RespectRobots bool
	ImageHosts    []string
}

// Extractor fetches full article pages and runs the body, image and author chains.
type Extractor struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	robots    *robotsPolicy
	body      *scanner.Chain[*page, string]
	image     *scanner.Chain[*page, string]
	author    *scanner.Chain[*page, string]
	logger    *slog.Logger
}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor builds an extractor; a nil client gets opts.Timeout (default 20s).
func NewExtractor(client *http.Client, opts ExtractorOptions, log *slog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	e := &Extractor{
		client:    client,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		body:      scanner.NewChain(bodyStrategies()...),
		image:     scanner.NewChain(imageRules{hosts: opts.ImageHosts}.strategies()...),
		author:    scanner.NewChain(authorStrategies()...),
		logger:    log,
	}
	if opts.RespectRobots {
		e.robots = newRobotsPolicy(client, opts.UserAgent, robotsAgent)
	}
	return e
}

// Extract never fails: any fetch or parse problem is logged and yields an
// empty extraction, leaving the caller to fall back to the feed excerpt.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) domain.Extraction {
	pageURL, err := url.Parse(sourceURL)
	if err != nil || pageURL.Host == "" {
		e.warn("invalid article url", "url", sourceURL, "error", err)
		return domain.Extraction{}
	}

	if e.robots != nil && !e.robots.Allowed(ctx, pageURL) {
		e.warn("robots.txt disallows article", "url", sourceURL)
		return domain.Extraction{}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.warn("rate limiter aborted", "url", sourceURL, "error", err)
		return domain.Extraction{}
	}

	raw, err := e.fetch(ctx, sourceURL)
	if err != nil {
		e.warn("fetch article failed", "url", sourceURL, "error", err)
		return domain.Extraction{}
	}

	result, err := e.extractPage(raw, pageURL)
	if err != nil {
		e.warn("parse article failed", "url", sourceURL, "error", err)
		return domain.Extraction{}
	}
	return result
}

// extractPage runs the chains over an already fetched document. Author and
// image run before boilerplate is stripped, bylines and hero images often
// live in header elements.
func (e *Extractor) extractPage(raw []byte, pageURL *url.URL) (domain.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse document: %w", err)
	}
	pg := &page{doc: doc, url: pageURL, raw: raw}

	var result domain.Extraction
	var via string

	result.Author, via, _ = e.author.Resolve(pg)
	e.debug("author strategy", "url", pageURL.String(), "strategy", via)

	result.ImageURL, via, _ = e.image.Resolve(pg)
	e.debug("image strategy", "url", pageURL.String(), "strategy", via)

	stripBoilerplate(doc)
	result.Body, via, _ = e.body.Resolve(pg)
	e.debug("body strategy", "url", pageURL.String(), "strategy", via, "length", len(result.Body))

	return result, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", pageAccept)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	return raw, nil
}

func (e *Extractor) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Extractor) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
