package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
	"RedCardNews/internal/scanner"
)

// ErrRateLimited matches a RewriteError whose last attempt was answered with 429.
var ErrRateLimited = errors.New("generation api rate limited")

// RewriteError is returned when the generation API could not produce a reply.
type RewriteError struct {
	Attempts    int
	RateLimited bool
	Err         error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) see through the wrapper.
func (e *RewriteError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}

// Rewriter implements ports.Rewriter against an OpenAI-compatible chat API.
type Rewriter struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
	timeout      time.Duration
	maxAttempts  int
	backoffBase  time.Duration
	replies      *scanner.Chain[reply, draft]
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger
}

var _ ports.Rewriter = (*Rewriter)(nil)

// NewRewriter builds a client from configuration. The endpoint is the API
// base URL (for OpenRouter https://openrouter.ai/api/v1).
func NewRewriter(cfg config.LLMConfig, log *slog.Logger) *Rewriter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": cfg.Referer,
				"X-Title":      cfg.AppTitle,
			},
		},
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Rewriter{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		timeout:      timeout,
		maxAttempts:  max(1, cfg.MaxAttempts),
		backoffBase:  cfg.BackoffBase,
		replies:      replyParsers(),
		sleep:        sleepContext,
		logger:       log,
	}
}

// Rewrite sends the article to the model and turns whatever comes back into a
// valid, unpublished RewrittenArticle. Only transport-level failures are
// returned as errors; an unusable reply degrades to the original text.
func (r *Rewriter) Rewrite(ctx context.Context, article domain.OriginalArticle) (domain.RewrittenArticle, error) {
	content, err := r.complete(ctx, userPrompt(article))
	if err != nil {
		return domain.RewrittenArticle{}, err
	}

	d, via, _ := r.replies.Resolve(reply{raw: content, original: article})
	if via != tierStrict {
		r.warn("model reply needed fallback parsing", "article_id", article.ID, "parser", via)
	}

	return d.finalize(article), nil
}

// complete runs the retry loop. Before attempt k>1 it waits 2^(k-1) * base.
func (r *Rewriter) complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	rateLimited := false
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := r.backoffBase << (attempt - 1)
			r.warn("retrying generation request", "attempt", attempt, "wait", wait, "error", lastErr)
			if err := r.sleep(ctx, wait); err != nil {
				return "", &RewriteError{Attempts: attempt - 1, RateLimited: rateLimited, Err: err}
			}
		}

		content, err := r.call(ctx, req)
		if err == nil {
			r.debug("generation request succeeded", "attempt", attempt, "length", len(content))
			return content, nil
		}

		lastErr = err
		status := statusCode(err)
		rateLimited = status == http.StatusTooManyRequests
		if ctx.Err() != nil || !retryable(status) {
			return "", &RewriteError{Attempts: attempt, RateLimited: rateLimited, Err: err}
		}
	}
	return "", &RewriteError{Attempts: r.maxAttempts, RateLimited: rateLimited, Err: lastErr}
}

func (r *Rewriter) call(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

var errEmptyReply = errors.New("generation api returned no choices")

// statusCode extracts the HTTP status of a failed call; 0 means the request
// never got an HTTP answer.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	if errors.Is(err, errEmptyReply) {
		return http.StatusOK
	}
	return 0
}

func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
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

// headerTransport adds the attribution headers OpenRouter expects.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func (r *Rewriter) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Rewriter) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
