package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

// headroom keeps a re-truncated message safely under the cap.
const headroom = 50

// Notifier sends articles to a Telegram chat via bot API.
type Notifier struct {
	endpoint string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	return &Notifier{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// PublishArticle posts the HTML-formatted article.
func (n *Notifier) PublishArticle(ctx context.Context, article domain.Article) error {
	if n.botToken == "" || n.chatID == "" {
		return errors.New("telegram notifier misconfigured")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.chatID,
		Text:      FormatMessage(article),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram error %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}
	return nil
}

// FormatMessage renders the article as Telegram HTML. When the result would
// exceed domain.MessageMax characters the explanation is truncated to fit.
func FormatMessage(a domain.Article) string {
	title := html.EscapeString(a.Title)
	tags := html.EscapeString(strings.Join(a.Tags, ", "))
	summary := html.EscapeString(a.Summary)
	explanation := html.EscapeString(a.FullExplanation)

	var link string
	if len(a.Citations) > 0 && a.Citations[0] != "" {
		link = fmt.Sprintf("<a href='%s'>بیشتر بخوانید</a>", html.EscapeString(a.Citations[0]))
	}

	head := "<b>عنوان خبر:</b> " + title + "\n\n" +
		"<b>برچسب‌ها:</b> " + tags + "\n\n" +
		"<b>خلاصه خبر:</b> " + summary + "\n\n" +
		"<b>جزئیات کامل:</b> "

	msg := head + explanation + "\n\n" + link
	if textutil.Len(msg) <= domain.MessageMax {
		return msg
	}

	remaining := domain.MessageMax - textutil.Len(head+link) - headroom
	return head + textutil.Truncate(explanation, remaining) + "\n\n" + link
}
