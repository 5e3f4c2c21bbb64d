package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"homecare-ai/internal/audio"
	"homecare-ai/internal/audio/audiotest"
	"homecare-ai/internal/export"
	applog "homecare-ai/internal/logger"
	"homecare-ai/internal/model"
	"homecare-ai/internal/notify"
	"homecare-ai/internal/platform/rabbitmq"
	"homecare-ai/internal/repository"
	"homecare-ai/internal/stage"
)

var fixedNow = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

type fakeTranscriber struct {
	text  string
	err   error
	paths []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wavPath string) (string, error) {
	f.paths = append(f.paths, wavPath)
	if _, err := os.Stat(wavPath); err != nil {
		return "", err
	}
	return f.text, f.err
}

type fakeSummarizer struct {
	text  string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeMailer struct {
	sent []notify.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, email notify.Email) error {
	f.sent = append(f.sent, email)
	return f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []rabbitmq.CareLogEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event rabbitmq.CareLogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type failingStore struct {
	*repository.CareLogRepository
}

func (failingStore) Create(context.Context, *model.CareLog) error {
	return errors.New("database is locked")
}

type pipelineEnv struct {
	svc         *CareLogService
	root        string
	ffmpeg      *audiotest.FakeFFmpeg
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	repo        *repository.CareLogRepository
	mailer      *fakeMailer
	publisher   *fakePublisher
}

func newPipelineEnv(t *testing.T, configure ...func(*CareLogServiceDeps)) *pipelineEnv {
	t.Helper()
	root := t.TempDir()

	db, err := gorm.Open(sqlite.Open(filepath.Join(root, "test.db")), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewCareLogRepository(db)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	env := &pipelineEnv{
		root:        root,
		ffmpeg:      audiotest.NewFakeFFmpeg(),
		transcriber: &fakeTranscriber{text: "Mrs. Lee ate breakfast and took her medication."},
		summarizer:  &fakeSummarizer{text: "Patient Status: stable."},
		repo:        repo,
		mailer:      &fakeMailer{},
		publisher:   &fakePublisher{},
	}
	tmp := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		t.Fatal(err)
	}

	deps := CareLogServiceDeps{
		Normalizer:        audio.NewNormalizer(env.ffmpeg, "ffmpeg", tmp, applog.Discard()),
		Transcriber:       env.transcriber,
		Summarizer:        env.summarizer,
		Exporter:          export.NewExporter(filepath.Join(root, "summaries"), applog.Discard()),
		Store:             repo,
		Mailer:            env.mailer,
		Publisher:         env.publisher,
		UploadsDir:        filepath.Join(root, "audio_uploads"),
		AllowedExtensions: []string{".wav", ".mp3", ".m4a"},
		Logger:            applog.Discard(),
		Now:               func() time.Time { return fixedNow },
	}
	for _, fn := range configure {
		fn(&deps)
	}
	env.svc = NewCareLogService(deps)
	return env
}

func (e *pipelineEnv) process(t *testing.T, filename string) (*ProcessResult, error) {
	t.Helper()
	return e.svc.Process(context.Background(), Session{Username: "nurse1"}, Upload{
		Filename: filename,
		Content:  strings.NewReader("fake m4a bytes"),
	})
}

func (e *pipelineEnv) summaryFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.root, "summaries"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *pipelineEnv) recordCount(t *testing.T) int {
	t.Helper()
	logs, err := e.repo.ListByUsername(context.Background(), "nurse1", 0)
	if err != nil {
		t.Fatal(err)
	}
	return len(logs)
}

func TestProcessHappyPath(t *testing.T) {
	env := newPipelineEnv(t)

	result, err := env.process(t, "morning visit.m4a")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Saved || result.Record == nil || result.Record.ID == 0 {
		t.Fatalf("result not saved: %+v", result)
	}

	rec := result.Record
	if rec.Username != "nurse1" || rec.OriginalFilename != "morning visit.m4a" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Summary != "Patient Status: stable." {
		t.Errorf("summary = %q", rec.Summary)
	}
	if rec.Transcript != env.transcriber.text {
		t.Errorf("transcript = %q", rec.Transcript)
	}

	wantAudio := filepath.Join(env.root, "audio_uploads", "20240501_093000_morning_visit.m4a")
	if result.AudioPath != wantAudio {
		t.Errorf("audio path = %q, want %q", result.AudioPath, wantAudio)
	}
	if _, err := os.Stat(wantAudio); err != nil {
		t.Errorf("raw upload missing: %v", err)
	}

	if filepath.Base(rec.TxtPath) != "care_log_20240501_093000.txt" {
		t.Errorf("txt path = %q", rec.TxtPath)
	}
	txt, err := os.ReadFile(rec.TxtPath)
	if err != nil || string(txt) != "Patient Status: stable." {
		t.Errorf("txt content = %q, %v", txt, err)
	}
	if pages, err := export.PageCount(rec.PdfPath); err != nil || pages < 1 {
		t.Errorf("pdf pages = %d, %v", pages, err)
	}

	if _, err := os.Stat(env.ffmpeg.LastOutput()); !os.IsNotExist(err) {
		t.Errorf("normalized temp file still present: %v", err)
	}
	if len(env.transcriber.paths) != 1 || env.transcriber.paths[0] != env.ffmpeg.LastOutput() {
		t.Errorf("transcriber saw %v", env.transcriber.paths)
	}

	if len(env.publisher.events) != 1 || env.publisher.events[0].ID != rec.ID {
		t.Errorf("events = %+v", env.publisher.events)
	}
}

func TestProcessRejectsUnsupportedFormat(t *testing.T) {
	env := newPipelineEnv(t)

	result, err := env.process(t, "notes.txt")
	if !stage.Is(err, stage.KindUnsupportedFormat) {
		t.Fatalf("error = %v, want UnsupportedFormatError", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if len(env.ffmpeg.Calls) != 0 {
		t.Error("ffmpeg ran for a rejected upload")
	}
	if _, err := os.Stat(filepath.Join(env.root, "audio_uploads")); !os.IsNotExist(err) {
		t.Error("rejected upload was saved")
	}
}

func TestProcessAcceptsUppercaseExtension(t *testing.T) {
	env := newPipelineEnv(t)
	if _, err := env.process(t, "VISIT.WAV"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
}

func TestProcessStageFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*testing.T, *CareLogServiceDeps)
		setup     func(*pipelineEnv)
		wantStage stage.Stage
		wantKind  stage.Kind
		wantFiles int
	}{
		{
			name:      "conversion",
			setup:     func(e *pipelineEnv) { e.ffmpeg.Err = errors.New("exit status 1") },
			wantStage: stage.Normalize,
			wantKind:  stage.KindConversion,
		},
		{
			name: "transcription",
			setup: func(e *pipelineEnv) {
				e.transcriber.err = stage.New(stage.Transcribe, stage.KindTranscription, "whisper failed")
			},
			wantStage: stage.Transcribe,
			wantKind:  stage.KindTranscription,
		},
		{
			name: "summarization transport",
			setup: func(e *pipelineEnv) {
				e.summarizer.err = stage.New(stage.Summarize, stage.KindSummarizationTransport, "http 500")
			},
			wantStage: stage.Summarize,
			wantKind:  stage.KindSummarizationTransport,
		},
		{
			name: "missing llm key",
			setup: func(e *pipelineEnv) {
				e.summarizer.err = stage.New(stage.Summarize, stage.KindConfiguration, "no key")
			},
			wantStage: stage.Summarize,
			wantKind:  stage.KindConfiguration,
		},
		{
			name:      "plain transcriber error",
			setup:     func(e *pipelineEnv) { e.transcriber.err = errors.New("model file missing") },
			wantStage: stage.Transcribe,
			wantKind:  stage.KindTranscription,
		},
		{
			name:      "plain summarizer error",
			setup:     func(e *pipelineEnv) { e.summarizer.err = errors.New("local model crashed") },
			wantStage: stage.Summarize,
			wantKind:  stage.KindSummarizationTransport,
		},
		{
			name: "export",
			configure: func(t *testing.T, d *CareLogServiceDeps) {
				blocker := filepath.Join(filepath.Dir(d.UploadsDir), "blocker")
				if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
					t.Fatal(err)
				}
				d.Exporter = export.NewExporter(filepath.Join(blocker, "summaries"), applog.Discard())
			},
			wantStage: stage.Export,
			wantKind:  stage.KindExport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var configure []func(*CareLogServiceDeps)
			if tt.configure != nil {
				configure = append(configure, func(d *CareLogServiceDeps) { tt.configure(t, d) })
			}
			env := newPipelineEnv(t, configure...)
			if tt.setup != nil {
				tt.setup(env)
			}

			result, err := env.process(t, "memo.wav")
			if !stage.Is(err, tt.wantKind) {
				t.Fatalf("error = %v, want %s", err, tt.wantKind)
			}
			if st, _ := stage.StageOf(err); st != tt.wantStage {
				t.Errorf("stage = %q, want %q", st, tt.wantStage)
			}
			if result != nil {
				t.Errorf("result = %+v, want nil", result)
			}
			if n := env.recordCount(t); n != 0 {
				t.Errorf("records = %d, want 0", n)
			}
			if files := env.summaryFiles(t); len(files) != 0 {
				t.Errorf("summary files = %v, want none", files)
			}
			if out := env.ffmpeg.LastOutput(); out != "" {
				if _, err := os.Stat(out); !os.IsNotExist(err) {
					t.Errorf("normalized temp file left behind: %v", err)
				}
			}
		})
	}
}

func TestProcessSameSecondUploadsKeepSeparateArtifacts(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	run := func(username, summary string) *ProcessResult {
		t.Helper()
		env.summarizer.text = summary
		result, err := env.svc.Process(ctx, Session{Username: username}, Upload{
			Filename: "memo.wav",
			Content:  strings.NewReader("audio from " + username),
		})
		if err != nil {
			t.Fatalf("Process(%s) error = %v", username, err)
		}
		return result
	}
	first := run("nurse1", "Patient A: stable.")
	second := run("nurse2", "Patient B: fall risk.")

	if first.TxtPath == second.TxtPath || first.PdfPath == second.PdfPath || first.AudioPath == second.AudioPath {
		t.Fatalf("runs share files: %+v / %+v", first, second)
	}
	if got := filepath.Base(second.PdfPath); got != "care_log_20240501_093000_2.pdf" {
		t.Errorf("second pdf = %q", got)
	}
	if got := filepath.Base(second.AudioPath); got != "20240501_093000_2_memo.wav" {
		t.Errorf("second upload = %q", got)
	}

	for _, r := range []*ProcessResult{first, second} {
		stored, err := env.repo.GetByIDAndUsername(ctx, r.Record.ID, r.Record.Username)
		if err != nil || stored == nil {
			t.Fatalf("lookup %d: %+v, %v", r.Record.ID, stored, err)
		}
		txt, err := os.ReadFile(stored.TxtPath)
		if err != nil || string(txt) != stored.Summary {
			t.Errorf("record %d txt = %q, summary %q (%v)", stored.ID, txt, stored.Summary, err)
		}
		raw, _ := os.ReadFile(r.AudioPath)
		if string(raw) != "audio from "+stored.Username {
			t.Errorf("record %d upload = %q", stored.ID, raw)
		}
	}
}

func TestProcessConversionFailureSkipsLaterStages(t *testing.T) {
	env := newPipelineEnv(t)
	env.ffmpeg.Err = errors.New("invalid data found when processing input")

	if _, err := env.process(t, "memo.mp3"); err == nil {
		t.Fatal("expected error")
	}
	if len(env.transcriber.paths) != 0 || env.summarizer.calls != 0 {
		t.Errorf("later stages ran: transcribe=%d summarize=%d", len(env.transcriber.paths), env.summarizer.calls)
	}
}

func TestProcessPersistenceFailureKeepsArtifacts(t *testing.T) {
	env := newPipelineEnv(t, func(d *CareLogServiceDeps) {
		d.Store = failingStore{}
	})

	result, err := env.process(t, "memo.wav")
	if !stage.Is(err, stage.KindPersistence) {
		t.Fatalf("error = %v, want PersistenceError", err)
	}
	if result == nil || result.Saved || result.Record != nil {
		t.Fatalf("result = %+v, want unsaved result", result)
	}
	if _, err := os.Stat(result.PdfPath); err != nil {
		t.Errorf("pdf should remain on disk: %v", err)
	}
	if result.Summary != "Patient Status: stable." {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(env.publisher.events) != 0 {
		t.Error("event published for unsaved record")
	}
}

func TestProcessPublishFailureDoesNotFailPipeline(t *testing.T) {
	env := newPipelineEnv(t)
	env.publisher.err = errors.New("channel closed")

	result, err := env.process(t, "memo.wav")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Saved {
		t.Error("record not saved")
	}
}

func TestProcessWithoutPublisher(t *testing.T) {
	env := newPipelineEnv(t, func(d *CareLogServiceDeps) { d.Publisher = nil })
	if _, err := env.process(t, "memo.wav"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
}

func TestProcessRequiresSession(t *testing.T) {
	env := newPipelineEnv(t)
	_, err := env.svc.Process(context.Background(), Session{}, Upload{Filename: "a.wav", Content: strings.NewReader("x")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestSendEmail(t *testing.T) {
	env := newPipelineEnv(t)
	result, err := env.process(t, "memo.m4a")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := env.svc.SendEmail(ctx, Session{Username: "nurse1"}, result.Record.ID, "family@example.com"); err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(env.mailer.sent))
	}
	got := env.mailer.sent[0]
	if got.Subject != "Care Log Summary - care_log_20240501_093000" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.Body != "Please find attached the care log summary for memo.m4a." {
		t.Errorf("body = %q", got.Body)
	}
	if got.AttachmentPath != result.PdfPath || got.To != "family@example.com" {
		t.Errorf("email = %+v", got)
	}
}

func TestSendEmailErrors(t *testing.T) {
	env := newPipelineEnv(t)
	result, err := env.process(t, "memo.m4a")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := env.svc.SendEmail(ctx, Session{Username: "nurse2"}, result.Record.ID, "a@example.com"); !errors.Is(err, ErrCareLogNotFound) {
		t.Errorf("other user: error = %v, want ErrCareLogNotFound", err)
	}
	if err := env.svc.SendEmail(ctx, Session{Username: "nurse1"}, result.Record.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank recipient: error = %v, want ErrInvalidInput", err)
	}

	env.mailer.err = stage.New(stage.Notify, stage.KindConfiguration, "smtp credentials missing")
	if err := env.svc.SendEmail(ctx, Session{Username: "nurse1"}, result.Record.ID, "a@example.com"); !stage.Is(err, stage.KindConfiguration) {
		t.Errorf("mailer failure: error = %v, want ConfigurationError", err)
	}
}

func TestListAndGet(t *testing.T) {
	env := newPipelineEnv(t)
	first, err := env.process(t, "one.wav")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.process(t, "two.wav"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	logs, err := env.svc.List(ctx, Session{Username: "nurse1"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].OriginalFilename != "two.wav" {
		t.Errorf("logs = %+v", logs)
	}

	got, err := env.svc.Get(ctx, Session{Username: "nurse1"}, first.Record.ID)
	if err != nil || got.OriginalFilename != "one.wav" {
		t.Errorf("Get() = %+v, %v", got, err)
	}
	if _, err := env.svc.Get(ctx, Session{Username: "nurse1"}, 9999); !errors.Is(err, ErrCareLogNotFound) {
		t.Errorf("missing id: error = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"memo.m4a":             "memo.m4a",
		"morning visit.wav":    "morning_visit.wav",
		"../../etc/passwd.mp3": "passwd.mp3",
		`C:\Users\a\rec.wav`:   "rec.wav",
		"Mme Pérez.mp3":        "Mme_P_rez.mp3",
		".wav":                 "upload.wav",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
