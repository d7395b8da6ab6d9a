// Package extract wraps the external tools that read documents: poppler for
// PDF page counts and text, tesseract for scanned images.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Poppler runs pdfinfo and pdftotext.
type Poppler struct {
	PDFInfo   string
	PDFToText string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

func NewPoppler(pdfinfo, pdftotext string, timeout time.Duration, log zerolog.Logger) *Poppler {
	if pdfinfo == "" {
		pdfinfo = "pdfinfo"
	}
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poppler{PDFInfo: pdfinfo, PDFToText: pdftotext, Timeout: timeout, Logger: log}
}

var pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// Cap output to 10 MiB per page.
const maxPageBytes = 10<<20 + 1

// PageCount returns the number of pages reported by pdfinfo.
func (p *Poppler) PageCount(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.PDFInfo, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, p.classify(ctx, "pdfinfo", err, stderr.String(), 0)
	}
	return parsePages(stdout.String())
}

// TextForPage returns the text of one 1-based page.
func (p *Poppler) TextForPage(ctx context.Context, path string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("invalid page number: %d (must be >= 1)", page)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		p.PDFToText,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-layout",
		"-nopgbrk",
		"-enc", "UTF-8",
		path,
		"-",
	)
	text, stderr, err := runLimited(cmd, maxPageBytes)
	if err != nil {
		return "", p.classify(ctx, "pdftotext", err, stderr, page)
	}
	return text, nil
}

// Pages returns the text of every page in order. Pages with no text layer
// come back as empty strings.
func (p *Poppler) Pages(ctx context.Context, path string) ([]string, error) {
	n, err := p.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}
	pages := make([]string, n)
	for i := range pages {
		text, err := p.TextForPage(ctx, path, i+1)
		if err != nil {
			return nil, err
		}
		pages[i] = text
	}
	return pages, nil
}

func parsePages(out string) (int, error) {
	if m := pageCountRegex.FindStringSubmatch(out); len(m) == 2 {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}

	// Some poppler builds pad or lowercase the field.
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(strings.ToLower(line), "pages:") {
			continue
		}
		fields := strings.Fields(line[len("pages:"):])
		if len(fields) == 0 {
			break
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}
	return 0, errors.New("pdfinfo: pages field not found in output")
}

func validatePages(n int) (int, error) {
	if n <= 0 || n > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count: %d", n)
	}
	return n, nil
}

// runLimited runs cmd capturing at most maxBytes of stdout.
func runLimited(cmd *exec.Cmd, maxBytes int64) (string, string, error) {
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}

	out, readErr := io.ReadAll(io.LimitReader(pipe, maxBytes))
	waitErr := cmd.Wait()
	stderrText := strings.TrimSpace(stderr.String())

	switch {
	case readErr != nil:
		return "", stderrText, fmt.Errorf("read stdout: %w", readErr)
	case int64(len(out)) >= maxBytes:
		return "", stderrText, errors.New("output exceeds limit")
	case waitErr != nil:
		return "", stderrText, waitErr
	}
	return string(out), stderrText, nil
}

func (p *Poppler) classify(ctx context.Context, tool string, err error, stderr string, page int) error {
	where := tool
	if page > 0 {
		where = fmt.Sprintf("%s page %d", tool, page)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timeout: %w", where, ctx.Err())
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s canceled: %w", where, ctx.Err())
	}

	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s failed: %w", where, err)
	}
	p.Logger.Warn().Str("tool", tool).Int("page", page).Str("stderr", truncate(stderr, 500)).Msg("poppler error")

	switch {
	case containsAny(stderr, "Incorrect password"):
		return errors.New("PDF is password protected")
	case containsAny(stderr, "PDF file is damaged", "Syntax Error", "Couldn't find trailer dictionary", "May not be a PDF file"):
		return errors.New("PDF appears to be damaged or invalid")
	case strings.Contains(stderr, "I/O Error") && strings.Contains(stderr, "Couldn't open file"):
		return errors.New("unable to open PDF")
	}
	return fmt.Errorf("%s failed: %s", where, truncate(stderr, 200))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
