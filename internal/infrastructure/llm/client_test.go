package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
)

const modelReply = `{"title":"Águias voam em Braga","excerpt":"Vitória sofrida.","body":"O **Benfica** ganhou.","intensityScore":8,"urgency":"high","category":"Futebol","tags":["Benfica","Braga"]}`

func completionJSON(content string) string {
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
}

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestRewriter(t *testing.T, url string) (*Rewriter, *recordedSleeps) {
	t.Helper()
	rw := NewRewriter(config.LLMConfig{
		Endpoint:    url + "/api/v1",
		Model:       "test-model",
		APIKey:      "secret",
		Referer:     "https://redcardnews.test",
		AppTitle:    "RedCardNews",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		Temperature: 0.8,
		MaxTokens:   1000,
	}, nil)
	rec := &recordedSleeps{}
	rw.sleep = rec.sleep
	return rw, rec
}

var sampleOriginal = domain.OriginalArticle{
	ID:       "orig-1",
	Title:    "Benfica vence em Braga",
	Excerpt:  "Triunfo no Minho.",
	Body:     "O Benfica venceu o Braga por 2-1.",
	Category: "Futebol",
}

func TestRewriteRetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			writeAPIError(w, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(modelReply))
	}))
	defer server.Close()

	rw, rec := newTestRewriter(t, server.URL)
	got, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.NoError(t, err)

	require.EqualValues(t, 3, calls.Load())
	require.Len(t, rec.waits, 2)
	require.GreaterOrEqual(t, rec.waits[1], 2*rec.waits[0])
	require.Equal(t, 2*time.Second, rec.waits[0])

	require.Equal(t, "orig-1", got.OriginalArticleID)
	require.Equal(t, "Águias voam em Braga", got.Title)
	require.Equal(t, 8, got.IntensityScore)
	require.Equal(t, domain.UrgencyHigh, got.Urgency)
	require.False(t, got.Published)
}

func TestRewriteRateLimitExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests)
	}))
	defer server.Close()

	rw, _ := newTestRewriter(t, server.URL)
	_, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRateLimited)

	var rewriteErr *RewriteError
	require.True(t, errors.As(err, &rewriteErr))
	require.Equal(t, 3, rewriteErr.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestRewriteDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusBadRequest)
	}))
	defer server.Close()

	rw, rec := newTestRewriter(t, server.URL)
	_, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRateLimited)
	require.EqualValues(t, 1, calls.Load())
	require.Empty(t, rec.waits)
}

func TestRewriteRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeAPIError(w, http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(modelReply))
	}))
	defer server.Close()

	rw, _ := newTestRewriter(t, server.URL)
	_, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestRewriteSendsAttributionAndJSONMode(t *testing.T) {
	t.Parallel()

	type captured struct {
		headers http.Header
		body    map[string]any
	}
	seen := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		seen <- c
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(modelReply))
	}))
	defer server.Close()

	rw, _ := newTestRewriter(t, server.URL)
	_, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.NoError(t, err)

	c := <-seen
	headers, body := c.headers, c.body

	require.Equal(t, "https://redcardnews.test", headers.Get("HTTP-Referer"))
	require.Equal(t, "RedCardNews", headers.Get("X-Title"))
	require.Equal(t, "Bearer secret", headers.Get("Authorization"))
	require.Equal(t, "test-model", body["model"])
	require.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestRewriteDegradesOnGarbage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("desculpe, não consigo"))
	}))
	defer server.Close()

	rw, _ := newTestRewriter(t, server.URL)
	got, err := rw.Rewrite(context.Background(), sampleOriginal)
	require.NoError(t, err)
	require.Equal(t, sampleOriginal.Title, got.Title)
	require.Equal(t, sampleOriginal.Body, got.Body)
	require.Equal(t, domain.DefaultIntensity, got.IntensityScore)
	require.Equal(t, degradedNote, got.Notes)
}
