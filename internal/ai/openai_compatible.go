package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMalformedResponse marks a 2xx reply whose payload lacks the expected fields.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for non-2xx replies.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response status %d: %s", e.StatusCode, e.Body)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// NewOpenAICompatibleClientWithHTTP lets callers supply their own transport.
func NewOpenAICompatibleClientWithHTTP(httpClient *http.Client) *OpenAICompatibleClient {
	if httpClient == nil {
		return NewOpenAICompatibleClient()
	}
	return &OpenAICompatibleClient{httpClient: httpClient}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}

	var parsed struct {
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices: %w", ErrMalformedResponse)
	}
	msg := parsed.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", fmt.Errorf("llm choice has no message content: %w", ErrMalformedResponse)
	}
	return *msg.Content, nil
}

// TranscribeFile uploads an audio file to an OpenAI-compatible /audio/transcriptions endpoint.
func (c *OpenAICompatibleClient) TranscribeFile(ctx context.Context, cfg ChatConfig, path, language string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio failed: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build transcription form failed: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy audio into form failed: %w", err)
	}
	_ = form.WriteField("model", cfg.Model)
	_ = form.WriteField("response_format", "json")
	if language != "" {
		_ = form.WriteField("language", language)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close transcription form failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request failed: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	var parsed struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse transcription json failed: %w: %v", ErrMalformedResponse, err)
	}
	if parsed.Text == nil {
		return "", fmt.Errorf("transcription has no text field: %w", ErrMalformedResponse)
	}
	return *parsed.Text, nil
}

func (c *OpenAICompatibleClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
