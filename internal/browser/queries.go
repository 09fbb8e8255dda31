package browser

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Page is one query's retrieval result. A query without a usable link maps
// to {Link: nil, Content: ""}.
type Page struct {
	Link    *string `json:"link"`
	Content string  `json:"content"`
}

// Results maps a normalized query to its page.
type Results map[string]Page

// Retriever is what SearchQueries needs from a browser.
type Retriever interface {
	FirstLink(ctx context.Context, query string) (string, error)
	Fetch(ctx context.Context, url string) (string, error)
}

// SearchQueries resolves each query to its first result's text. Queries are
// trimmed and lowercased before use, and blank ones are skipped. Search or
// fetch failures are logged and recorded as empty pages; only context
// cancellation is returned. At most concurrency queries run at once; below 1
// means one at a time.
func SearchQueries(ctx context.Context, r Retriever, queries []string, concurrency int, logger *zap.Logger) (Results, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make(Results, len(queries))
	var mu sync.Mutex
	set := func(q string, p Page) {
		mu.Lock()
		results[q] = p
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, raw := range queries {
		query := strings.ToLower(strings.TrimSpace(raw))
		if query == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set(query, resolve(gctx, r, query, logger))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func resolve(ctx context.Context, r Retriever, query string, logger *zap.Logger) Page {
	log := logger.With(zap.String("query", query))

	link, err := r.FirstLink(ctx, query)
	if err != nil {
		log.Warn("search failed", zap.Error(err))
		return Page{}
	}
	if link == "" {
		log.Info("no search results")
		return Page{}
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		log.Info("ignoring non-http result link", zap.String("link", link))
		return Page{}
	}

	text, err := r.Fetch(ctx, link)
	if err != nil {
		log.Warn("fetch failed", zap.String("link", link), zap.Error(err))
		return Page{}
	}
	return Page{Link: &link, Content: strings.TrimSpace(text)}
}
