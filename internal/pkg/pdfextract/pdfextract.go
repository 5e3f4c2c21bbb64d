package pdfextract

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageCount opens the PDF at path and returns the number of pages it declares.
// A file that does not parse as a PDF is an error.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf failed: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
