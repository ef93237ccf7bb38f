package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/dyike/RightOfWay/config"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
)

// NewChatModel builds the configured provider's chat model.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case ProviderDeepSeek, "":
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("DEEPSEEK_API_KEY is not set")
		}
		dsCfg := &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: EvaluationMaxTokens,
		}
		if cfg.LLMBaseURL != "" {
			dsCfg.BaseURL = cfg.LLMBaseURL
		}
		cm, err := deepseek.NewChatModel(ctx, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("create deepseek model: %w", err)
		}
		return cm, nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		maxTokens := EvaluationMaxTokens
		temperature := float32(cfg.LLMTemperature)
		oaCfg := &openai.ChatModelConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     cfg.LLMTimeout(),
		}
		cm, err := openai.NewChatModel(ctx, oaCfg)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// NewProposer wires the configured model into a ChatProposer. Without
// credentials it returns an offline proposer so negotiations still run on
// their fallback values.
func NewProposer(ctx context.Context, cfg *config.Config) Proposer {
	cm, err := NewChatModel(ctx, cfg)
	if err != nil {
		log.Printf("[Proposer] %v; running offline with fallback values", err)
		return Offline()
	}
	return NewChatProposer(cm,
		WithTimeout(cfg.LLMTimeout()),
		WithHandler(NewLogHandler(cfg.Debug)),
	)
}

// Offline returns a proposer that always answers with empty text.
func Offline() Proposer {
	return ProposerFunc(func(context.Context, string) (string, error) {
		return "", nil
	})
}
