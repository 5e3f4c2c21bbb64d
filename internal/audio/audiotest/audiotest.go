// Package audiotest provides WAV fixtures and a fake ffmpeg for tests.
package audiotest

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"homecare-ai/internal/pkg/executor"
)

// WriteWAV writes seconds of silence as 16-bit PCM.
func WriteWAV(path string, sampleRate, channels int, seconds float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frames := int(float64(sampleRate) * seconds)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// MustWriteWAV is WriteWAV that fails the test on error.
func MustWriteWAV(t testing.TB, path string, sampleRate, channels int, seconds float64) {
	t.Helper()
	if err := WriteWAV(path, sampleRate, channels, seconds); err != nil {
		t.Fatalf("write wav fixture: %v", err)
	}
}

// FakeFFmpeg stands in for ffmpeg: it writes a silent WAV to the last argument.
type FakeFFmpeg struct {
	SampleRate int
	Channels   int
	Seconds    float64
	// Err, when set, is returned after the output file has been created, the way
	// a real ffmpeg leaves a partial file behind on a decode failure.
	Err error

	mu     sync.Mutex
	Calls  [][]string
	Output string
}

var _ executor.Executor = (*FakeFFmpeg)(nil)

func NewFakeFFmpeg() *FakeFFmpeg {
	return &FakeFFmpeg{SampleRate: 16000, Channels: 1, Seconds: 1}
}

func (f *FakeFFmpeg) Execute(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, append([]string{name}, args...))
	if len(args) == 0 {
		return "", errors.New("no output path")
	}
	f.Output = args[len(args)-1]

	if f.Err != nil {
		_ = os.WriteFile(f.Output, []byte("partial"), 0644)
		return "", f.Err
	}
	if err := WriteWAV(f.Output, f.SampleRate, f.Channels, f.Seconds); err != nil {
		return "", err
	}
	return "", nil
}

// LastOutput returns the path ffmpeg was asked to write most recently.
func (f *FakeFFmpeg) LastOutput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Output
}
