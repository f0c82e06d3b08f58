package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

func TestGeminiComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "prompt" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":"},{"text":"\"x\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(config.GeminiConfig{Endpoint: srv.URL + "/models", Model: "gemini-1.5-flash", APIKey: "g-key", Timeout: time.Second})
	got, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, `{"title":"x"}`, got)
}

func TestGeminiErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/m/quota:generateContent":
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		case "/m/blocked:generateContent":
			_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
		default:
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}
	}))
	defer srv.Close()

	for model, want := range map[string]string{"quota": "429", "blocked": "SAFETY", "empty": "empty candidate"} {
		c := NewGeminiClient(config.GeminiConfig{Endpoint: srv.URL + "/m/", Model: model, APIKey: "k", Timeout: time.Second})
		_, err := c.Complete(context.Background(), "p")
		require.ErrorContains(t, err, want)
	}

	disabled := NewGeminiClient(config.GeminiConfig{Endpoint: srv.URL})
	_, err := disabled.Complete(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrProviderDisabled)
}

func TestChatClientComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer or-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "m" || req.Messages[0].Role != "user" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient("openrouter-1", srv.URL, "m", "or-key", nil)
	got, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "answer", got)
}

func TestChatClientAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewChatClient("avalai", srv.URL, "m", "k", nil).Complete(context.Background(), "p")
	require.ErrorContains(t, err, "rate limited")

	_, err = NewChatClient("avalai", srv.URL, "m", "", nil).Complete(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrProviderDisabled)
}

func TestStepsOrder(t *testing.T) {
	t.Parallel()

	steps := Steps(config.AIConfig{
		Gemini:     config.GeminiConfig{Timeout: 10 * time.Second},
		OpenRouter: config.OpenRouterConfig{Key1: "a", Key3: "c", Timeout: 5 * time.Second},
		AvalAI:     config.AvalAIConfig{APIKey: "z", Timeout: 10 * time.Second},
	})

	var names []string
	for _, s := range steps {
		names = append(names, s.Provider.Name())
	}
	require.Equal(t, []string{"gemini", "openrouter-1", "openrouter-2", "openrouter-3", "avalai"}, names)
	require.Equal(t, 5*time.Second, steps[1].Timeout)
	require.Equal(t, 10*time.Second, steps[4].Timeout)
}
