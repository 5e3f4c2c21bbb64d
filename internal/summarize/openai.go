package summarize

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"homecare-ai/internal/ai"
	"homecare-ai/internal/stage"
)

// OpenAI calls any OpenAI-compatible chat completions endpoint, including a
// local Ollama server.
type OpenAI struct {
	client *ai.OpenAICompatibleClient
	cfg    ai.ChatConfig
	logger *slog.Logger
}

func NewOpenAI(client *ai.OpenAICompatibleClient, cfg ai.ChatConfig, logger *slog.Logger) *OpenAI {
	return &OpenAI{client: client, cfg: cfg, logger: logger}
}

func (o *OpenAI) Summarize(ctx context.Context, transcript string) (string, error) {
	if o.cfg.BaseURL == "" || o.cfg.APIKey == "" || o.cfg.Model == "" {
		return "", stage.New(stage.Summarize, stage.KindConfiguration, "llm base_url, api_key and model are required")
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(transcript)},
	}

	o.logger.Info("requesting summary", "provider", "openai", "model", o.cfg.Model, "transcript_chars", len(transcript))
	out, err := o.client.Complete(ctx, o.cfg, messages)
	if err != nil {
		if errors.Is(err, ai.ErrMalformedResponse) {
			return "", stage.Wrap(stage.Summarize, stage.KindSummarizationParse, "unexpected llm response shape", err)
		}
		return "", stage.Wrap(stage.Summarize, stage.KindSummarizationTransport, "llm request failed", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", stage.New(stage.Summarize, stage.KindSummarizationParse, "llm returned empty content")
	}
	return out, nil
}
