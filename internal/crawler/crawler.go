// Package crawler walks a single website depth-first and collects cleaned
// paragraphs with their source URL and remaining depth.
package crawler

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"siterag/internal/domain"
	"siterag/internal/logging"
	"siterag/internal/metrics"
	"siterag/internal/textclean"
)

// Traversal is the visited set of one crawl run. It is shared by every
// branch of the recursion.
type Traversal struct {
	visited map[string]struct{}
	order   []string
}

func NewTraversal() *Traversal {
	return &Traversal{visited: make(map[string]struct{})}
}

// Visit marks url as visited and reports whether it was new.
func (t *Traversal) Visit(url string) bool {
	if _, ok := t.visited[url]; ok {
		return false
	}
	t.visited[url] = struct{}{}
	t.order = append(t.order, url)
	return true
}

// Seen reports whether url was already visited.
func (t *Traversal) Seen(url string) bool {
	_, ok := t.visited[url]
	return ok
}

// Visited returns the visited URLs in visit order.
func (t *Traversal) Visited() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Traversal) Len() int { return len(t.order) }

// Config configures a Crawler.
type Config struct {
	// BaseDomain is the URL prefix the crawl is restricted to.
	BaseDomain string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Crawler recursively fetches pages inside BaseDomain.
type Crawler struct {
	fetcher Fetcher
	prefix  string
	root    string
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(fetcher Fetcher, cfg Config) *Crawler {
	return &Crawler{
		fetcher: fetcher,
		prefix:  cfg.BaseDomain,
		root:    strings.TrimRight(cfg.BaseDomain, "/"),
		log:     logging.OrNop(cfg.Logger),
		metrics: cfg.Metrics,
	}
}

// Crawl walks from startURL with a hop budget of maxDepth using a fresh
// traversal. The traversal is returned for inspection.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth int) ([]domain.Paragraph, *Traversal) {
	t := NewTraversal()
	out := c.Walk(ctx, t, startURL, maxDepth)
	c.log.Info("crawl finished",
		zap.String("start_url", startURL),
		zap.Int("max_depth", maxDepth),
		zap.Int("pages_visited", t.Len()),
		zap.Int("paragraphs", len(out)))
	return out, t
}

// Walk crawls pageURL with the given remaining depth, recording visits in t.
// The result is this page's paragraphs followed by each child's results in
// link order. Fetch failures end the branch silently.
func (c *Crawler) Walk(ctx context.Context, t *Traversal, pageURL string, depth int) []domain.Paragraph {
	if depth < 1 || ctx.Err() != nil || !strings.HasPrefix(pageURL, c.prefix) {
		return nil
	}
	if !t.Visit(pageURL) {
		return nil
	}

	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.metrics.FetchFailed()
		c.log.Debug("fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	page, err := Extract(bytes.NewReader(body))
	if err != nil {
		c.metrics.FetchFailed()
		c.log.Debug("extract failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	c.metrics.PageCrawled()
	c.log.Debug("page crawled",
		zap.String("url", pageURL),
		zap.Int("depth", depth),
		zap.Int("paragraphs", len(page.Paragraphs)),
		zap.Int("links", len(page.Links)))

	var out []domain.Paragraph
	for _, raw := range page.Paragraphs {
		if text := textclean.Clean(raw); text != "" {
			out = append(out, domain.Paragraph{Text: text, SourceURL: pageURL, Depth: depth})
		}
	}
	for _, href := range page.Links {
		next, ok := c.resolve(href)
		if !ok {
			continue
		}
		out = append(out, c.Walk(ctx, t, next, depth-1)...)
	}
	return out
}

// resolve turns root-relative links into absolute ones and rejects links
// outside the base domain.
func (c *Crawler) resolve(href string) (string, bool) {
	if strings.HasPrefix(href, "/") {
		href = c.root + href
	}
	if !strings.HasPrefix(href, c.prefix) {
		return "", false
	}
	return href, true
}
