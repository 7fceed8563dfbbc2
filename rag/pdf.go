package rag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/google/uuid"
)

// IngestPDF extracts the plain text of a PDF (typically the CV) and ingests
// it as a single document.
func (s *Service) IngestPDF(ctx context.Context, title, path, docType, sourceID string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read pdf: %w", err)
	}

	text, err := ExtractPDFText(data)
	if err != nil {
		return uuid.Nil, err
	}
	if strings.TrimSpace(text) == "" {
		return uuid.Nil, fmt.Errorf("pdf contains no extractable text")
	}

	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return s.Ingest(ctx, title, text, docType, sourceID)
}

// ExtractPDFText pulls the plain text out of a PDF byte payload.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizePlainText(buf.String()), nil
}

func normalizePlainText(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n")
}
