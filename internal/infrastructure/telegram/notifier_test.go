package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/textutil"
)

func article(explanation string) domain.Article {
	return domain.Article{
		Title:           "A <b> & B",
		Summary:         "خلاصه",
		FullExplanation: explanation,
		Tags:            []string{"x", "y", "z"},
		Citations:       []string{"https://example.com/a?b=1&c=2"},
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	msg := FormatMessage(article("متن کامل"))
	require.True(t, strings.HasPrefix(msg, "<b>عنوان خبر:</b> A &lt;b&gt; &amp; B\n\n"))
	require.Contains(t, msg, "<b>برچسب‌ها:</b> x, y, z\n\n")
	require.Contains(t, msg, "<b>جزئیات کامل:</b> متن کامل\n\n")
	require.True(t, strings.HasSuffix(msg, "<a href='https://example.com/a?b=1&amp;c=2'>بیشتر بخوانید</a>"))
}

func TestFormatMessageCapsLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("جمله کوتاه است. ", 400)
	msg := FormatMessage(article(long))
	require.LessOrEqual(t, textutil.Len(msg), domain.MessageMax)
	require.Contains(t, msg, "بیشتر بخوانید")
}

func TestFormatMessageWithoutCitation(t *testing.T) {
	t.Parallel()

	a := article("body")
	a.Citations = nil
	require.NotContains(t, FormatMessage(a), "<a href")
}

func TestPublishArticle(t *testing.T) {
	t.Parallel()

	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{Endpoint: srv.URL, BotToken: "token", ChatID: "@news", Timeout: time.Second})
	require.NoError(t, n.PublishArticle(context.Background(), article("body")))
	require.Equal(t, "@news", got.ChatID)
	require.Equal(t, "HTML", got.ParseMode)
	require.Contains(t, got.Text, "body")
}

func TestPublishArticleErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{Endpoint: srv.URL, BotToken: "t", ChatID: "c", Timeout: time.Second})
	require.ErrorContains(t, n.PublishArticle(context.Background(), article("b")), "chat not found")

	require.Error(t, NewNotifier(config.TelegramConfig{}).PublishArticle(context.Background(), article("b")))
}
