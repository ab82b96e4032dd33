package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docchat/internal/util"

	"github.com/ledongthuc/pdf"
)

// LoadDocument extracts sanitized plain text from a document on disk.
// PDF and plain-text files are supported.
func LoadDocument(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".txt", ".md":
		text, err = readTextFile(path)
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrLoadFailed, filepath.Ext(path))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	text = util.SanitizeText(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}

func readTextFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(b), nil
}
