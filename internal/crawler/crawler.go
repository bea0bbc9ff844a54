// Package crawler walks a website and cuts each page's visible text into
// overlapping chunks ready for ingestion.
package crawler

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Config holds crawl limits and chunking settings.
type Config struct {
	MaxDepth       int // 1 fetches only the start page
	Parallelism    int
	Delay          time.Duration
	ChunkSize      int
	ChunkOverlap   int
	UserAgent      string
	AllowedDomains []string // empty keeps the crawl on the start URL's host
}

// Chunk is one piece of a crawled page.
type Chunk struct {
	URL     string `json:"URL"`
	Title   string `json:"Title"`
	Content string `json:"Content"`
}

// Crawler fetches pages with colly and extracts their text with goquery.
type Crawler struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a crawler.
func New(cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	return &Crawler{cfg: cfg, logger: logger.Named("crawler")}
}

// Crawl visits startURL and the pages it links to, up to MaxDepth, and returns
// the chunks of every page in URL order. Failing pages are logged and skipped;
// the crawl fails only when nothing could be fetched.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]Chunk, error) {
	start, err := url.Parse(startURL)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("start url %q must be an absolute http(s) url: %w", startURL, domain.ErrInvalidArgument)
	}
	domains := c.cfg.AllowedDomains
	if len(domains) == 0 {
		domains = []string{start.Hostname()}
	}

	opts := []colly.CollectorOption{
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.Async(true),
		colly.AllowedDomains(domains...),
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(c.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       max(c.cfg.Delay, 0),
	}); err != nil {
		return nil, fmt.Errorf("crawl limits: %w", err)
	}

	var (
		mu       sync.Mutex
		chunks   []Chunk
		pages    int
		firstErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		c.logger.Debug("Visiting", zap.String("url", r.URL.String()), zap.Int("depth", r.Depth))
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		page := e.Request.URL.String()
		title := strings.TrimSpace(e.ChildText("head > title"))
		parts := Split(FullText(e.DOM.Find("body")), c.cfg.ChunkSize, c.cfg.ChunkOverlap)

		mu.Lock()
		defer mu.Unlock()
		pages++
		for _, part := range parts {
			chunks = append(chunks, Chunk{URL: page, Title: title, Content: part})
		}
		c.logger.Debug("Page chunked", zap.String("url", page), zap.Int("chunks", len(parts)))
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		// Visited, off-site and too-deep links are refused here.
		if err := e.Request.Visit(e.Attr("href")); err != nil {
			c.logger.Debug("Link skipped", zap.String("href", e.Attr("href")), zap.Error(err))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("Page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err),
		)
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	})

	if err := collector.Visit(start.String()); err != nil {
		return nil, fmt.Errorf("visit %s: %w", start, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", start, err)
	}
	if pages == 0 && firstErr != nil {
		return nil, fmt.Errorf("crawl %s: %w", start, firstErr)
	}

	// Pages finish in any order; chunks of one page stay together and in sequence.
	slices.SortStableFunc(chunks, func(a, b Chunk) int { return cmp.Compare(a.URL, b.URL) })

	c.logger.Info("Crawl finished",
		zap.String("start", start.String()),
		zap.Int("pages", pages),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

