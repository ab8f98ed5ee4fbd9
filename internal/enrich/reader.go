// Package enrich fills missing article bodies from the article's own page.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "trustwire-enrich/1.0"
)

// Page is the readable content extracted from one article page.
type Page struct {
	Text     string
	ImageURL string
}

// FetchOptions controls HTTP behavior for page extraction.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Reader fetches pages and extracts their readable text.
type Reader struct {
	opts   FetchOptions
	policy *bluemonday.Policy
}

func NewReader(opts FetchOptions) *Reader {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.BodyByteLimit <= 0 {
		opts.BodyByteLimit = DefaultBodyByteLimit
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Reader{opts: opts, policy: bluemonday.StrictPolicy()}
}

// Fetch retrieves pageURL and extracts its text and og:image.
func (r *Reader) Fetch(ctx context.Context, pageURL string) (Page, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return Page{}, fmt.Errorf("page URL is required")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.7")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.BodyByteLimit))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		return Page{Text: CleanText(string(body))}, nil
	}

	parsedURL, err := url.Parse(page)
	if err != nil {
		return Page{}, fmt.Errorf("parse page url: %w", err)
	}

	out := Page{ImageURL: ogImage(body, parsedURL)}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return Page{}, fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return Page{}, fmt.Errorf("render readability text: %w", err)
	}

	out.Text = r.sanitize(rendered.String())
	if out.Text == "" {
		out.Text = r.sanitize(article.Excerpt())
	}
	if out.Text == "" {
		return Page{}, fmt.Errorf("reader extracted empty content")
	}
	return out, nil
}

// sanitize drops any markup that survived extraction and normalizes whitespace.
func (r *Reader) sanitize(raw string) string {
	return CleanText(html.UnescapeString(r.policy.Sanitize(raw)))
}

// ogImage returns the absolute og:image (or twitter:image) URL of an HTML document.
func ogImage(body []byte, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	raw := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", ""))
	if raw == "" {
		raw = strings.TrimSpace(doc.Find(`meta[name="twitter:image"]`).First().AttrOr("content", ""))
	}
	if raw == "" {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
