package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier posts a digest of freshly published articles to a Telegram chat.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.PublicationNotifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether both credentials are configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// NotifyPublished sends one message listing the articles.
func (n *Notifier) NotifyPublished(ctx context.Context, articles []domain.RewrittenArticle) error {
	if len(articles) == 0 {
		return nil
	}
	if !n.Enabled() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", digest(articles))
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func digest(articles []domain.RewrittenArticle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>RedCardNews: %d nova(s) publicação(ões)</b>\n", len(articles))
	for _, a := range articles {
		fmt.Fprintf(&b, "\n🔥 %d/10 · %s\n<b>%s</b>\n", a.IntensityScore, html.EscapeString(a.Category), html.EscapeString(a.Title))
		if a.Excerpt != "" {
			fmt.Fprintf(&b, "%s\n", html.EscapeString(a.Excerpt))
		}
	}
	return b.String()
}
