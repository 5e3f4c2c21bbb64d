package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"homecare-ai/internal/audio"
	"homecare-ai/internal/model"
	"homecare-ai/internal/notify"
	"homecare-ai/internal/platform/rabbitmq"
	"homecare-ai/internal/stage"
	"homecare-ai/internal/summarize"
	"homecare-ai/internal/transcribe"
)

var ErrCareLogNotFound = errors.New("care log not found")

const (
	timestampLayout = "20060102_150405"
	maxNameAttempts = 100
)

// Session identifies the authenticated caregiver a request runs on behalf of.
type Session struct {
	Username string
}

type Upload struct {
	Filename string
	Content  io.Reader
}

// ProcessResult carries every artifact produced by a pipeline run. Record is
// nil and Saved is false when the final insert failed.
type ProcessResult struct {
	Record     *model.CareLog
	Saved      bool
	AudioPath  string
	Transcript string
	Summary    string
	TxtPath    string
	PdfPath    string
}

type AudioNormalizer interface {
	With(ctx context.Context, src string, fn func(*audio.Clip) error) error
}

type DocumentExporter interface {
	WriteText(text, baseName string) (string, error)
	Export(text, baseName string) (string, error)
}

type CareLogStore interface {
	Create(ctx context.Context, record *model.CareLog) error
	ListByUsername(ctx context.Context, username string, limit int) ([]model.CareLog, error)
	GetByIDAndUsername(ctx context.Context, id uint, username string) (*model.CareLog, error)
}

type EmailSender interface {
	Send(ctx context.Context, email notify.Email) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event rabbitmq.CareLogEvent) error
}

type CareLogServiceDeps struct {
	Normalizer        AudioNormalizer
	Transcriber       transcribe.Transcriber
	Summarizer        summarize.Summarizer
	Exporter          DocumentExporter
	Store             CareLogStore
	Mailer            EmailSender
	Publisher         EventPublisher
	UploadsDir        string
	AllowedExtensions []string
	Logger            *slog.Logger
	Now               func() time.Time
}

type CareLogService struct {
	normalizer  AudioNormalizer
	transcriber transcribe.Transcriber
	summarizer  summarize.Summarizer
	exporter    DocumentExporter
	store       CareLogStore
	mailer      EmailSender
	publisher   EventPublisher
	uploadsDir  string
	allowed     map[string]struct{}
	logger      *slog.Logger
	now         func() time.Time
}

func NewCareLogService(deps CareLogServiceDeps) *CareLogService {
	allowed := make(map[string]struct{}, len(deps.AllowedExtensions))
	for _, ext := range deps.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CareLogService{
		normalizer:  deps.Normalizer,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		exporter:    deps.Exporter,
		store:       deps.Store,
		mailer:      deps.Mailer,
		publisher:   deps.Publisher,
		uploadsDir:  deps.UploadsDir,
		allowed:     allowed,
		logger:      deps.Logger,
		now:         now,
	}
}

// Process runs one upload through normalize, transcribe, summarize, export and
// persist, stopping at the first failing stage. Artifacts written before a
// failure are left in place.
func (s *CareLogService) Process(ctx context.Context, session Session, upload Upload) (*ProcessResult, error) {
	if strings.TrimSpace(session.Username) == "" {
		return nil, ErrInvalidInput
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if _, ok := s.allowed[ext]; !ok {
		return nil, stage.New(stage.Upload, stage.KindUnsupportedFormat,
			fmt.Sprintf("file type %q is not accepted", ext))
	}

	ts := s.now().Format(timestampLayout)
	logger := s.logger.With("username", session.Username, "upload", upload.Filename, "run", ts)
	result := &ProcessResult{}

	audioPath, err := s.saveUpload(ts, upload)
	if err != nil {
		return nil, err
	}
	result.AudioPath = audioPath
	logger.Info("upload saved", "path", audioPath)

	err = s.normalizer.With(ctx, audioPath, func(clip *audio.Clip) error {
		logger.Info("audio normalized", "duration", clip.Duration)
		transcript, err := s.transcriber.Transcribe(ctx, clip.Path)
		if err != nil {
			return tagged(err, stage.Transcribe, stage.KindTranscription, "transcription failed")
		}
		result.Transcript = transcript
		return nil
	})
	if err != nil {
		err = tagged(err, stage.Normalize, stage.KindConversion, "audio conversion failed")
		logger.Error("pipeline failed", "error", err)
		return nil, err
	}

	summary, err := s.summarizer.Summarize(ctx, result.Transcript)
	if err != nil {
		err = tagged(err, stage.Summarize, stage.KindSummarizationTransport, "summarization failed")
		logger.Error("pipeline failed", "error", err)
		return nil, err
	}
	result.Summary = summary

	if result.TxtPath, result.PdfPath, err = s.exportArtifacts(ts, summary); err != nil {
		logger.Error("pipeline failed", "error", err)
		return nil, err
	}

	record := &model.CareLog{
		Username:         session.Username,
		OriginalFilename: upload.Filename,
		Transcript:       result.Transcript,
		Summary:          result.Summary,
		TxtPath:          result.TxtPath,
		PdfPath:          result.PdfPath,
	}
	if err := s.store.Create(ctx, record); err != nil {
		logger.Error("care log not saved", "error", err, "pdf", result.PdfPath)
		return result, stage.Wrap(stage.Persist, stage.KindPersistence, "save care log failed", err)
	}
	result.Record = record
	result.Saved = true
	logger.Info("care log saved", "id", record.ID, "pdf", result.PdfPath)

	s.publishCreated(ctx, logger, record)
	return result, nil
}

func (s *CareLogService) publishCreated(ctx context.Context, logger *slog.Logger, record *model.CareLog) {
	if s.publisher == nil {
		return
	}
	event := rabbitmq.CareLogEvent{
		ID:               record.ID,
		Username:         record.Username,
		OriginalFilename: record.OriginalFilename,
		TxtPath:          record.TxtPath,
		PdfPath:          record.PdfPath,
		CreatedAt:        record.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("publish care log event failed", "id", record.ID, "error", err)
	}
}

// exportArtifacts writes the txt and PDF under the first free
// care_log_<ts>[_n] name so concurrent runs never share files.
func (s *CareLogService) exportArtifacts(ts, summary string) (string, string, error) {
	for n := 1; n <= maxNameAttempts; n++ {
		baseName := numberedName("care_log_"+ts, n)
		txtPath, err := s.exporter.WriteText(summary, baseName)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", tagged(err, stage.Export, stage.KindExport, "write text failed")
		}
		pdfPath, err := s.exporter.Export(summary, baseName)
		if errors.Is(err, os.ErrExist) {
			os.Remove(txtPath)
			continue
		}
		if err != nil {
			return txtPath, "", tagged(err, stage.Export, stage.KindExport, "export pdf failed")
		}
		return txtPath, pdfPath, nil
	}
	return "", "", stage.New(stage.Export, stage.KindExport,
		fmt.Sprintf("no free file name for care_log_%s after %d attempts", ts, maxNameAttempts))
}

func (s *CareLogService) saveUpload(ts string, upload Upload) (string, error) {
	if upload.Content == nil {
		return "", stage.New(stage.Upload, stage.KindConversion, "upload has no content")
	}
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", stage.Wrap(stage.Upload, stage.KindConversion, "create uploads dir failed", err)
	}

	name := sanitizeFilename(upload.Filename)
	var (
		path string
		f    *os.File
		err  error
	)
	for n := 1; n <= maxNameAttempts; n++ {
		path = filepath.Join(s.uploadsDir, numberedName(ts, n)+"_"+name)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", stage.Wrap(stage.Upload, stage.KindConversion, "save upload failed", err)
	}
	if _, err := io.Copy(f, upload.Content); err != nil {
		f.Close()
		return "", stage.Wrap(stage.Upload, stage.KindConversion, "save upload failed", err)
	}
	if err := f.Close(); err != nil {
		return "", stage.Wrap(stage.Upload, stage.KindConversion, "save upload failed", err)
	}
	return path, nil
}

func numberedName(base string, n int) string {
	if n == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

// tagged leaves stage errors alone and attributes anything else to st.
func tagged(err error, st stage.Stage, kind stage.Kind, message string) error {
	if _, ok := stage.KindOf(err); ok {
		return err
	}
	return stage.Wrap(st, kind, message, err)
}

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if !strings.Contains(out, ".") {
		out = "upload" + strings.ToLower(filepath.Ext(name))
	}
	return out
}

// SendEmail mails the PDF of an existing care log owned by the session user.
func (s *CareLogService) SendEmail(ctx context.Context, session Session, id uint, to string) error {
	to = strings.TrimSpace(to)
	if to == "" || id == 0 {
		return ErrInvalidInput
	}
	record, err := s.Get(ctx, session, id)
	if err != nil {
		return err
	}

	baseName := strings.TrimSuffix(filepath.Base(record.PdfPath), filepath.Ext(record.PdfPath))
	email := notify.Email{
		To:             to,
		Subject:        "Care Log Summary - " + baseName,
		Body:           fmt.Sprintf("Please find attached the care log summary for %s.", record.OriginalFilename),
		AttachmentPath: record.PdfPath,
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		s.logger.Error("email failed", "id", id, "username", session.Username, "error", err)
		return err
	}
	s.logger.Info("care log emailed", "id", id, "username", session.Username)
	return nil
}

func (s *CareLogService) List(ctx context.Context, session Session, limit int) ([]model.CareLog, error) {
	if strings.TrimSpace(session.Username) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByUsername(ctx, session.Username, limit)
}

func (s *CareLogService) Get(ctx context.Context, session Session, id uint) (*model.CareLog, error) {
	if strings.TrimSpace(session.Username) == "" || id == 0 {
		return nil, ErrInvalidInput
	}
	record, err := s.store.GetByIDAndUsername(ctx, id, session.Username)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrCareLogNotFound
	}
	return record, nil
}
