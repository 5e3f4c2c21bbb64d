// Package export renders care-log summaries to the files handed to staff:
// a paginated PDF and a plain-text copy.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"homecare-ai/internal/pkg/pdfextract"
	"homecare-ai/internal/stage"
)

const (
	fontFamily = "Helvetica"
	fontSize   = 12
	lineHeight = 10
)

// creationDate is stamped into every document so identical text renders identically.
var creationDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type Exporter struct {
	dir    string
	logger *slog.Logger
}

func NewExporter(dir string, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// Export renders text onto A4 pages and writes <dir>/<baseName>.pdf.
// An existing file with the same name is never replaced; the returned error
// then matches os.ErrExist.
func (e *Exporter) Export(text, baseName string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "create output dir failed", err)
	}
	target := filepath.Join(e.dir, baseName+".pdf")

	doc := render(text)
	tmp, err := os.CreateTemp(e.dir, "."+baseName+"-*.pdf")
	if err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "create temp pdf failed", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := doc.Output(tmp); err != nil {
		tmp.Close()
		return "", stage.Wrap(stage.Export, stage.KindExport, "render pdf failed", err)
	}
	if err := tmp.Close(); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "write pdf failed", err)
	}

	pages, err := pdfextract.PageCount(tmpPath)
	if err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "rendered pdf is unreadable", err)
	}
	if pages < 1 {
		return "", stage.New(stage.Export, stage.KindExport, "rendered pdf has no pages")
	}

	if err := place(tmpPath, target); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "move pdf into place failed", err)
	}
	e.logger.Info("pdf exported", "path", target, "pages", pages)
	return target, nil
}

// WriteText writes text verbatim to <dir>/<baseName>.txt. Like Export it
// refuses to replace an existing file.
func (e *Exporter) WriteText(text, baseName string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "create output dir failed", err)
	}
	target := filepath.Join(e.dir, baseName+".txt")

	tmp, err := os.CreateTemp(e.dir, "."+baseName+"-*.txt")
	if err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "create temp text failed", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", stage.Wrap(stage.Export, stage.KindExport, "write text failed", err)
	}
	if err := tmp.Close(); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "write text failed", err)
	}
	if err := place(tmpPath, target); err != nil {
		return "", stage.Wrap(stage.Export, stage.KindExport, "move text into place failed", err)
	}
	return target, nil
}

// place publishes a finished temp file under its final name. Link fails with
// EEXIST instead of overwriting, and the caller's deferred Remove drops the
// temp name either way.
func place(tmpPath, target string) error {
	return os.Link(tmpPath, target)
}

// PageCount reports how many pages an exported PDF has.
func PageCount(path string) (int, error) {
	n, err := pdfextract.PageCount(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

func render(text string) *fpdf.Fpdf {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(creationDate)
	doc.SetModificationDate(creationDate)
	doc.SetCatalogSort(true)
	doc.SetAutoPageBreak(true, 15)
	doc.SetFont(fontFamily, "", fontSize)
	doc.AddPage()

	// Core fonts only cover cp1252; the translator maps anything outside it to '.'.
	tr := doc.UnicodeTranslatorFromDescriptor("")
	body := strings.ReplaceAll(text, "\r\n", "\n")
	doc.MultiCell(0, lineHeight, tr(body), "", "L", false)
	return doc
}
