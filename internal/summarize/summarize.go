// Package summarize turns a caregiver transcript into a structured care log
// using a hosted language model.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"homecare-ai/internal/ai"
	"homecare-ai/internal/config"
)

// Summarizer produces care-log text from a transcript. Any non-empty reply is valid.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

const systemPrompt = "You are a documentation assistant for a home-care agency. " +
	"You write concise, objective care logs for clinical records."

const promptTemplate = `Summarize this caregiver voice note into a professional, clear care log.

Organize the log under these headings:
Patient Status:
Observations:
Actions Taken:
Follow-up:

Use plain, objective language. Do not add details that are not in the note. If a section has nothing to report, write "None noted."

Caregiver voice note:
---
%s
---`

// BuildPrompt embeds the transcript in the fixed care-documentation instruction.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(transcript))
}

// New picks the backend named by cfg.Provider. Credentials are checked per
// call so a missing key surfaces as a configuration failure of the stage.
func New(cfg config.LLMConfig, logger *slog.Logger) (Summarizer, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(cfg.APIKey, cfg.Model, cfg.BaseURL, nil, logger), nil
	case "openai":
		return NewOpenAI(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}, logger), nil
	default:
		return nil, fmt.Errorf("summarize: unknown provider %q (supported: gemini, openai)", cfg.Provider)
	}
}
