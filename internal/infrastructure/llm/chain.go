package llm

import (
	"fmt"
	"net/http"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/refine"
)

// Steps builds the provider chain in its fixed order: Gemini, OpenRouter
// once per key, then AvalAI. Providers without a credential stay in the
// chain and report themselves disabled.
func Steps(cfg config.AIConfig) []refine.Step {
	steps := []refine.Step{{Provider: NewGeminiClient(cfg.Gemini), Timeout: cfg.Gemini.Timeout}}

	for i, key := range cfg.OpenRouter.APIKeys() {
		client := NewChatClient(
			fmt.Sprintf("openrouter-%d", i+1),
			cfg.OpenRouter.Endpoint,
			cfg.OpenRouter.Model,
			key,
			&http.Client{Timeout: cfg.OpenRouter.Timeout},
		)
		steps = append(steps, refine.Step{Provider: client, Timeout: cfg.OpenRouter.Timeout})
	}

	avalai := NewChatClient("avalai", cfg.AvalAI.Endpoint, cfg.AvalAI.Model, cfg.AvalAI.APIKey, &http.Client{Timeout: cfg.AvalAI.Timeout})
	return append(steps, refine.Step{Provider: avalai, Timeout: cfg.AvalAI.Timeout})
}
