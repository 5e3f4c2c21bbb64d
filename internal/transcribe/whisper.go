package transcribe

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"homecare-ai/internal/pkg/executor"
	"homecare-ai/internal/stage"
)

// WhisperCPP shells out to the whisper.cpp CLI. The model is loaded by the
// subprocess on every call.
type WhisperCPP struct {
	exec       executor.Executor
	binaryPath string
	modelPath  string
	language   string
	threads    int
	logger     *slog.Logger
}

func NewWhisperCPP(exec executor.Executor, binaryPath, modelPath, language string, threads int, logger *slog.Logger) *WhisperCPP {
	if language == "" {
		language = "en"
	}
	if threads <= 0 {
		threads = 4
	}
	return &WhisperCPP{
		exec:       exec,
		binaryPath: binaryPath,
		modelPath:  modelPath,
		language:   language,
		threads:    threads,
		logger:     logger,
	}
}

func (w *WhisperCPP) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if w.binaryPath == "" || w.modelPath == "" {
		return "", stage.New(stage.Transcribe, stage.KindConfiguration, "whisper binary and model path are required")
	}

	// whisper.cpp appends .txt to the output prefix.
	outputPrefix := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	txtPath := outputPrefix + ".txt"
	defer os.Remove(txtPath)

	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", w.language,
		"-t", strconv.Itoa(w.threads),
		"-otxt",
		"-of", outputPrefix,
		"-np",
	}

	w.logger.Info("transcribing audio", "path", wavPath, "model", filepath.Base(w.modelPath))
	if _, err := w.exec.Execute(ctx, w.binaryPath, args...); err != nil {
		return "", stage.Wrap(stage.Transcribe, stage.KindTranscription, "whisper failed", err)
	}

	raw, err := os.ReadFile(txtPath)
	if err != nil {
		return "", stage.Wrap(stage.Transcribe, stage.KindTranscription, "read whisper output failed", err)
	}

	text := normalizeTranscript(string(raw))
	w.logger.Info("transcription completed", "path", wavPath, "chars", len(text))
	return text, nil
}

// normalizeTranscript joins whisper's per-segment lines and drops its
// non-speech markers such as [BLANK_AUDIO].
func normalizeTranscript(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isMarker(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

func isMarker(line string) bool {
	return (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) ||
		(strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")"))
}

var _ Transcriber = (*WhisperCPP)(nil)
