package transcribe

import (
	"context"
	"log/slog"
	"strings"

	"homecare-ai/internal/ai"
	"homecare-ai/internal/stage"
)

// OpenAI sends the audio to a hosted OpenAI-compatible speech-to-text endpoint.
type OpenAI struct {
	client   *ai.OpenAICompatibleClient
	cfg      ai.ChatConfig
	language string
	logger   *slog.Logger
}

func NewOpenAI(client *ai.OpenAICompatibleClient, cfg ai.ChatConfig, language string, logger *slog.Logger) *OpenAI {
	return &OpenAI{client: client, cfg: cfg, language: language, logger: logger}
}

func (o *OpenAI) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if o.cfg.BaseURL == "" || o.cfg.APIKey == "" || o.cfg.Model == "" {
		return "", stage.New(stage.Transcribe, stage.KindConfiguration, "transcriber base_url, api_key and model are required")
	}

	text, err := o.client.TranscribeFile(ctx, o.cfg, wavPath, o.language)
	if err != nil {
		return "", stage.Wrap(stage.Transcribe, stage.KindTranscription, "hosted transcription failed", err)
	}

	text = strings.TrimSpace(text)
	o.logger.Info("transcription completed", "path", wavPath, "chars", len(text))
	return text, nil
}
