package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"homecare-ai/internal/stage"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini generateContent API.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGemini builds a Gemini summarizer. baseURL and httpClient may be empty to use the defaults.
func NewGemini(apiKey, model, baseURL string, httpClient *http.Client, logger *slog.Logger) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (g *Gemini) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", stage.New(stage.Summarize, stage.KindConfiguration, "gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return "", stage.Wrap(stage.Summarize, stage.KindConfiguration, "create gemini client failed", err)
	}

	g.logger.Info("requesting summary", "provider", "gemini", "model", g.model, "transcript_chars", len(transcript))
	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(transcript)), nil)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", stage.New(stage.Summarize, stage.KindSummarizationParse, "gemini response has no candidates")
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", stage.New(stage.Summarize, stage.KindSummarizationParse, "gemini response has no text")
	}
	return text.String(), nil
}

// classifyGeminiError separates a 2xx body that is not valid JSON from
// failures to reach the API or non-2xx replies.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return stage.Wrap(stage.Summarize, stage.KindSummarizationTransport,
			fmt.Sprintf("gemini returned http %d", apiErr.Code), err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return stage.Wrap(stage.Summarize, stage.KindSummarizationParse, "gemini response is malformed", err)
	}
	return stage.Wrap(stage.Summarize, stage.KindSummarizationTransport, "gemini request failed", err)
}
