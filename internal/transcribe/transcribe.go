// Package transcribe turns normalized 16 kHz mono WAV files into text.
//
// Supported backends:
//   - whisper_cpp: the whisper.cpp CLI run as a subprocess (default)
//   - openai: an OpenAI-compatible /audio/transcriptions endpoint
package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"homecare-ai/internal/ai"
	"homecare-ai/internal/config"
	"homecare-ai/internal/pkg/executor"
)

// Transcriber converts a normalized audio file to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// New picks the backend named by cfg.Provider.
func New(cfg config.TranscriberConfig, exec executor.Executor, logger *slog.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case "whisper_cpp", "":
		return NewWhisperCPP(exec, cfg.BinaryPath, cfg.ModelPath, cfg.Language, cfg.Threads, logger), nil
	case "openai":
		return NewOpenAI(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}, cfg.Language, logger), nil
	default:
		return nil, fmt.Errorf("transcribe: unknown provider %q (supported: whisper_cpp, openai)", cfg.Provider)
	}
}
