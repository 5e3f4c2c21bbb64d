// Package audio converts uploaded voice memos into the 16 kHz mono PCM WAV
// the transcription engines expect.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"homecare-ai/internal/pkg/executor"
	"homecare-ai/internal/stage"
)

const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// Clip is a normalized temporary WAV file. Close removes it.
type Clip struct {
	Path       string
	SampleRate int
	Channels   int
	Duration   time.Duration

	once sync.Once
	err  error
}

// Close deletes the temporary file. Safe to call more than once.
func (c *Clip) Close() error {
	c.once.Do(func() {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			c.err = err
		}
	})
	return c.err
}

type Normalizer struct {
	exec       executor.Executor
	ffmpegPath string
	tempDir    string
	logger     *slog.Logger
}

func NewNormalizer(exec executor.Executor, ffmpegPath, tempDir string, logger *slog.Logger) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{
		exec:       exec,
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// Normalize converts src into a temporary mono 16 kHz PCM WAV. On error no
// temporary file is left behind; on success the caller owns the Clip and must Close it.
func (n *Normalizer) Normalize(ctx context.Context, src string) (*Clip, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, stage.Wrap(stage.Normalize, stage.KindConversion, "source audio not readable", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, stage.New(stage.Normalize, stage.KindConversion, "source audio is empty")
	}

	tmp, err := os.CreateTemp(n.tempDir, "memo-*.wav")
	if err != nil {
		return nil, stage.Wrap(stage.Normalize, stage.KindConversion, "allocate temp file failed", err)
	}
	_ = tmp.Close()
	clip := &Clip{Path: tmp.Name()}

	// -vn drops any cover art stream that m4a files sometimes carry.
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y",
		clip.Path,
	}

	n.logger.Debug("normalizing audio", "src", src, "dst", clip.Path)
	if _, err := n.exec.Execute(ctx, n.ffmpegPath, args...); err != nil {
		_ = clip.Close()
		return nil, stage.Wrap(stage.Normalize, stage.KindConversion, "ffmpeg conversion failed", err)
	}

	if err := inspect(clip); err != nil {
		_ = clip.Close()
		return nil, stage.Wrap(stage.Normalize, stage.KindConversion, "converted audio rejected", err)
	}

	n.logger.Info("audio normalized", "src", src, "duration", clip.Duration)
	return clip, nil
}

// With normalizes src, hands the clip to fn, and removes the temporary file on
// every exit path of fn.
func (n *Normalizer) With(ctx context.Context, src string, fn func(*Clip) error) error {
	clip, err := n.Normalize(ctx, src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := clip.Close(); cerr != nil {
			n.logger.Warn("remove normalized audio failed", "path", clip.Path, "error", cerr)
		}
	}()
	return fn(clip)
}

func inspect(clip *Clip) error {
	f, err := os.Open(clip.Path)
	if err != nil {
		return fmt.Errorf("open converted audio: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return fmt.Errorf("converted audio is not a valid wav file")
	}
	if int(d.SampleRate) != SampleRate {
		return fmt.Errorf("sample rate %d, want %d", d.SampleRate, SampleRate)
	}
	if int(d.NumChans) != Channels {
		return fmt.Errorf("channel count %d, want %d", d.NumChans, Channels)
	}

	clip.SampleRate = int(d.SampleRate)
	clip.Channels = int(d.NumChans)
	if err := d.FwdToPCM(); err != nil {
		return fmt.Errorf("locate pcm data: %w", err)
	}
	bytesPerSecond := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth) / 8
	if bytesPerSecond > 0 {
		clip.Duration = time.Duration(d.PCMLen() * int64(time.Second) / bytesPerSecond)
	}
	return nil
}
