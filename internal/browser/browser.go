// Package browser is the web retrieval collaborator: a DuckDuckGo HTML
// search for the first result link and a page fetcher that reduces HTML to
// readable text.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// DefaultSearchURL is DuckDuckGo's no-JavaScript endpoint.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Options configures a Browser. Zero values fall back to defaults.
type Options struct {
	SearchURL      string
	MaxResults     int
	FetchTimeout   time.Duration
	MaxBodyBytes   int64
	SearchInterval time.Duration // minimum spacing between searches
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Browser searches and fetches over HTTP.
type Browser struct {
	client     *http.Client
	searchURL  string
	maxResults int
	maxBody    int64
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New builds a Browser.
func New(opts Options) *Browser {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.SearchInterval > 0 {
		limit = rate.Every(opts.SearchInterval)
	}
	return &Browser{
		client:     opts.HTTPClient,
		searchURL:  opts.SearchURL,
		maxResults: opts.MaxResults,
		maxBody:    opts.MaxBodyBytes,
		timeout:    opts.FetchTimeout,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger,
	}
}

// Search returns the result links for query, at most MaxResults of them.
func (b *Browser) Search(ctx context.Context, query string) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search throttle: %w", err)
	}

	u, err := url.Parse(b.searchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	body, _, err := b.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	links, err := parseResultLinks(body, b.maxResults)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	b.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(links)))
	return links, nil
}

// FirstLink returns the first result link for query, or "" when there is
// none.
func (b *Browser) FirstLink(ctx context.Context, query string) (string, error) {
	links, err := b.Search(ctx, query)
	if err != nil || len(links) == 0 {
		return "", err
	}
	return links[0], nil
}

// Fetch downloads pageURL and returns its visible text, space separated.
// Plain-text responses are returned trimmed.
func (b *Browser) Fetch(ctx context.Context, pageURL string) (string, error) {
	body, contentType, err := b.get(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if strings.HasPrefix(contentType, "text/plain") {
		return strings.TrimSpace(body), nil
	}
	text, err := extractText(body)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return text, nil
}

func (b *Browser) get(ctx context.Context, target string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody))
	if err != nil {
		return "", "", fmt.Errorf("read response: %w", err)
	}
	return string(data), resp.Header.Get("Content-Type"), nil
}

// parseResultLinks collects result__a hrefs in document order, unwrapping
// DuckDuckGo redirect links.
func parseResultLinks(page string, limit int) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(links) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && strings.Contains(attr(n, "class"), "result__a") {
			if href := unwrapRedirect(attr(n, "href")); href != "" {
				links = append(links, href)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<escaped>&rut=... into the
// escaped target.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && u.Path == "/l/" {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

// extractText joins the trimmed text nodes of page with single spaces,
// skipping script and style content.
func extractText(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " "), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
