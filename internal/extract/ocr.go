package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Tesseract recognizes text in scanned images.
type Tesseract struct {
	Binary  string
	Timeout time.Duration
}

func NewTesseract(binary string, timeout time.Duration) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Tesseract{Binary: binary, Timeout: timeout}
}

// Recognize returns the text tesseract reads from the image at path.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Binary, path, "stdout")
	text, stderr, err := runLimited(cmd, maxPageBytes)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("tesseract: %w", ctx.Err())
		}
		if stderr != "" {
			return "", fmt.Errorf("tesseract failed: %s", truncate(stderr, 200))
		}
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// RenderTextPDF writes text to a single-column A4 PDF at outPath.
func RenderTextPDF(title, text, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure pdf directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.SetAuthor("Astra", false)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)

	// The core fonts are cp1252; fold what they cannot show.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	body := strings.TrimSpace(text)
	if body == "" {
		body = "(no text recognized)"
	}
	for _, para := range strings.Split(body, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 6, tr(para), "", "L", false)
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
