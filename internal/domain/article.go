package domain

import (
	"strings"
	"time"
)

// Candidate is a feed entry before it is persisted; the extractor fills Body
// and may replace ImageURL and Author.
type Candidate struct {
	Title       string
	Excerpt     string
	Body        string
	Category    string
	PublishedAt time.Time
	SourceURL   string
	ImageURL    string
	Author      string
}

// Valid reports whether the candidate carries the two fields every stored
// article needs.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.Title) != "" && strings.TrimSpace(c.SourceURL) != ""
}

// Extraction is the partial result recovered from a full article page.
// Empty fields mean the corresponding heuristic chain found nothing.
type Extraction struct {
	Body     string
	ImageURL string
	Author   string
}

// Empty reports whether nothing at all was recovered.
func (e Extraction) Empty() bool {
	return e.Body == "" && e.ImageURL == "" && e.Author == ""
}

// Apply merges the extraction into the candidate. Extracted values win over
// the feed values when present.
func (e Extraction) Apply(c *Candidate) {
	if e.Body != "" {
		c.Body = e.Body
	}
	if e.ImageURL != "" {
		c.ImageURL = e.ImageURL
	}
	if e.Author != "" {
		c.Author = e.Author
	}
}

// OriginalArticle is the stored, deduplicated copy of a scraped article.
type OriginalArticle struct {
	ID          string
	Title       string
	Excerpt     string
	Body        string
	Category    string
	PublishedAt time.Time
	SourceURL   string
	ImageURL    string
	Author      string
	Source      string
	ScrapedAt   time.Time
}

// RewrittenArticle is the generated counterpart of exactly one original.
type RewrittenArticle struct {
	ID                string    `json:"id"`
	OriginalArticleID string    `json:"originalArticleId"`
	Title             string    `json:"title"`
	Excerpt           string    `json:"excerpt"`
	Body              string    `json:"body"`
	IntensityScore    int       `json:"intensityScore"`
	Urgency           Urgency   `json:"urgency"`
	Category          string    `json:"category"`
	Tags              []string  `json:"tags"`
	Notes             string    `json:"notes,omitempty"`
	Published         bool      `json:"published"`
	ProcessedAt       time.Time `json:"processedAt"`
}

// Urgency grades how pressing a rewritten article is presented.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyBreaking Urgency = "breaking"
)

// ParseUrgency maps free text onto the fixed set, defaulting to medium.
func ParseUrgency(raw string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(raw))) {
	case UrgencyLow:
		return UrgencyLow
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyBreaking:
		return UrgencyBreaking
	default:
		return UrgencyMedium
	}
}

const (
	MinIntensity     = 1
	MaxIntensity     = 10
	DefaultIntensity = 5
)

// ClampIntensity forces a model-reported score into [MinIntensity, MaxIntensity].
func ClampIntensity(score int) int {
	return max(MinIntensity, min(MaxIntensity, score))
}
