// Package extract turns files on disk into document.Text. Plain text and
// HTML are handled here; PDF and word-processor formats must be converted
// to text by an external tool first.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/contractsort/pkg/document"
)

// MaxFileSize bounds how much of a single file is read.
const MaxFileSize = 32 * 1024 * 1024

// DefaultSegmentLines is used when Options.SegmentLines is zero.
const DefaultSegmentLines = 60

var (
	// ErrUnsupported is returned for file types with no extractor.
	ErrUnsupported = errors.New("extract: unsupported file type")
	// ErrTooLarge is returned when a file exceeds MaxFileSize.
	ErrTooLarge = errors.New("extract: file too large")
)

// Options controls how raw text is segmented.
type Options struct {
	// SegmentLines groups lines into segments when the text carries no
	// form-feed page breaks.
	SegmentLines int
	// OCR marks the produced segments as recognized text.
	OCR bool
}

func (o Options) source() document.Source {
	if o.OCR {
		return document.SourceOCR
	}
	return document.SourceNative
}

func (o Options) lines() int {
	if o.SegmentLines == 0 {
		return DefaultSegmentLines
	}
	return o.SegmentLines
}

// Supported reports whether path has an extension File can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md", ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// File reads path and returns its text, dispatching on the extension.
func File(ctx context.Context, path string, opts Options) (document.Text, error) {
	if err := ctx.Err(); err != nil {
		return document.Text{}, err
	}
	if !Supported(path) {
		return document.Text{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	body, err := readLimited(path)
	if err != nil {
		return document.Text{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		abs, _ := filepath.Abs(path)
		return HTML(bytes.NewReader(body), &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, opts)
	default:
		return Plain(string(body), opts), nil
	}
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, path, MaxFileSize)
	}
	return body, nil
}

// Plain segments raw text on form feeds, or on fixed line blocks.
func Plain(raw string, opts Options) document.Text {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return document.Split(raw, opts.source(), opts.lines())
}

var (
	reHidden = regexp.MustCompile(`(?si)<(script|style|noscript|template)\b[^>]*>.*?</(script|style|noscript|template)>`)
	reBreak  = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// SanitizeHTML removes non-content elements and turns <br> into newlines so
// signature blocks laid out with line breaks keep their shape.
func SanitizeHTML(content []byte) []byte {
	cleaned := reHidden.ReplaceAll(content, []byte{})
	cleaned = reBreak.ReplaceAll(cleaned, []byte("\n"))
	return cleaned
}

// HTML extracts the readable text of an HTML document.
func HTML(r io.Reader, pageURL *url.URL, opts Options) (document.Text, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return document.Text{}, err
	}
	if len(body) > MaxFileSize {
		return document.Text{}, ErrTooLarge
	}
	article, err := readability.FromReader(bytes.NewReader(SanitizeHTML(body)), pageURL)
	if err != nil {
		return document.Text{}, fmt.Errorf("extract html: %w", err)
	}
	text := article.TextContent
	if strings.TrimSpace(article.Title) != "" && !strings.Contains(text, article.Title) {
		text = article.Title + "\n" + text
	}
	return Plain(text, opts), nil
}
