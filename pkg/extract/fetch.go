package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/japaniel/contractsort/pkg/document"
)

// MaxBodySize bounds a fetched page.
const MaxBodySize = 10 * 1024 * 1024

// DefaultClient is used by URL when no client is given.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// URL fetches an online agreement, such as published terms of service, and
// extracts its text. HTML is run through readability; text/plain is
// segmented as is.
func URL(ctx context.Context, client *http.Client, rawURL string, opts Options) (document.Text, error) {
	if client == nil {
		client = DefaultClient
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return document.Text{}, fmt.Errorf("extract: parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return document.Text{}, fmt.Errorf("extract: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; contractsort)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return document.Text{}, fmt.Errorf("extract: failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return document.Text{}, fmt.Errorf("extract: fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodySize {
		return document.Text{}, fmt.Errorf("%w: content-length %d exceeds %d bytes", ErrTooLarge, resp.ContentLength, MaxBodySize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return document.Text{}, fmt.Errorf("extract: failed to read response body: %w", err)
	}
	if len(body) > MaxBodySize {
		return document.Text{}, fmt.Errorf("%w: response exceeds %d bytes", ErrTooLarge, MaxBodySize)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/plain":
		return Plain(string(body), opts), nil
	case mediaType == "text/html", mediaType == "application/xhtml+xml", mediaType == "":
		return HTML(bytes.NewReader(body), pageURL, opts)
	case strings.HasPrefix(mediaType, "text/"):
		return Plain(string(body), opts), nil
	}
	return document.Text{}, fmt.Errorf("%w: %s", ErrUnsupported, mediaType)
}
