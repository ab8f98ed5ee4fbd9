package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultPublisherCacheSize = 4096

	maxPublisherHops = 3
)

var (
	jsonURLPattern  = regexp.MustCompile(`"url"\s*:\s*"(https?:(?:\\/|/){2}[^"]+)"`)
	plainURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// PublisherResolver turns an aggregator link (Google News RSS) into the publisher's
// own article URL by reading the aggregator page.
type PublisherResolver struct {
	opts  FetchOptions
	cache *lru.Cache[string, string]
}

func NewPublisherResolver(opts FetchOptions, cacheSize int) (*PublisherResolver, error) {
	reader := NewReader(opts)
	if cacheSize <= 0 {
		cacheSize = DefaultPublisherCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create publisher cache: %w", err)
	}
	return &PublisherResolver{opts: reader.opts, cache: cache}, nil
}

// Resolve returns the publisher URL behind link. ok is false when no non-Google URL
// could be found; failures are cached like successes.
func (r *PublisherResolver) Resolve(ctx context.Context, link string) (string, bool) {
	if r == nil {
		return "", false
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}
	if cached, ok := r.cache.Get(link); ok {
		return cached, cached != ""
	}

	resolved := r.resolve(ctx, link, make(map[string]struct{}), 0)
	if ctx.Err() == nil {
		r.cache.Add(link, resolved)
	}
	return resolved, resolved != ""
}

func (r *PublisherResolver) resolve(ctx context.Context, link string, visited map[string]struct{}, depth int) string {
	if depth > maxPublisherHops {
		return ""
	}
	if _, seen := visited[link]; seen {
		return ""
	}
	visited[link] = struct{}{}

	body, base, err := r.fetch(ctx, link)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	if picked := pickPublisherURL(doc.Find(`meta[property="og:url"]`).First().AttrOr("content", "")); picked != "" {
		return picked
	}
	if picked := pickPublisherURL(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", "")); picked != "" {
		return picked
	}

	var picked string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		picked = pickPublisherURL(a.AttrOr("href", ""))
		return picked == ""
	})
	if picked != "" {
		return picked
	}

	if picked := pickFromPatterns(string(body)); picked != "" {
		return picked
	}

	// Interstitial pages link to another aggregator page under ./articles/.
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, "./articles/") && !strings.HasPrefix(href, "/articles/") {
			return true
		}
		picked = r.resolve(ctx, absoluteURL(base, href), visited, depth+1)
		return picked == ""
	})
	return picked
}

func (r *PublisherResolver) fetch(ctx context.Context, link string) ([]byte, *url.URL, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, link, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ko-KR;q=0.8,ko;q=0.7")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.BodyByteLimit))
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Request.URL, nil
}

func pickFromPatterns(text string) string {
	for _, match := range jsonURLPattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.NewReplacer(`\/`, "/", `\u0026`, "&").Replace(match[1])
		if picked := pickPublisherURL(candidate); picked != "" {
			return picked
		}
	}
	for _, match := range plainURLPattern.FindAllString(text, -1) {
		if picked := pickPublisherURL(match); picked != "" {
			return picked
		}
	}
	return ""
}

// pickPublisherURL accepts an absolute http(s) URL whose host is not Google's.
func pickPublisherURL(candidate string) string {
	u := strings.TrimSpace(strings.ReplaceAll(candidate, "&amp;", "&"))
	if u == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(u); err == nil {
		u = decoded
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ""
	}
	host := Host(u)
	if host == "" || isGoogleHost(host) {
		return ""
	}
	return u
}

func isGoogleHost(host string) bool {
	return strings.Contains(host, "google.") ||
		strings.Contains(host, "gstatic.") ||
		strings.Contains(host, "googleusercontent.")
}

func absoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String()
}

// Host returns the lowercased host of rawURL, or "" when it has none.
func Host(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
