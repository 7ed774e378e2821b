package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublishedEvent is the message value emitted for every published article.
type PublishedEvent struct {
	ArticleID         string    `json:"articleId"`
	OriginalArticleID string    `json:"originalArticleId"`
	Title             string    `json:"title"`
	Excerpt           string    `json:"excerpt"`
	Category          string    `json:"category"`
	IntensityScore    int       `json:"intensityScore"`
	Urgency           string    `json:"urgency"`
	Tags              []string  `json:"tags"`
	PublishedAt       time.Time `json:"publishedAt"`
}

// Publisher emits one Kafka message per published article, keyed by the
// article ID so repeated events for one article land on the same partition.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

var _ ports.PublicationNotifier = (*Publisher)(nil)

// NewPublisher builds a Kafka writer for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, now: time.Now}
}

// NotifyPublished writes the batch in one call.
func (p *Publisher) NotifyPublished(ctx context.Context, articles []domain.RewrittenArticle) error {
	if len(articles) == 0 {
		return nil
	}

	at := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(articles))
	for _, a := range articles {
		value, err := json.Marshal(PublishedEvent{
			ArticleID:         a.ID,
			OriginalArticleID: a.OriginalArticleID,
			Title:             a.Title,
			Excerpt:           a.Excerpt,
			Category:          a.Category,
			IntensityScore:    a.IntensityScore,
			Urgency:           string(a.Urgency),
			Tags:              a.Tags,
			PublishedAt:       at,
		})
		if err != nil {
			return fmt.Errorf("encode event %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.ID),
			Value: value,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte("article.published")},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
