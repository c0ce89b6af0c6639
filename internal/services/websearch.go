package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// WebSearchService fetches current external information by scraping the
// DuckDuckGo HTML endpoint. No API key needed.
type WebSearchService struct {
	collector   *colly.Collector
	config      config.WebSearchConfig
	logger      *logger.Logger
	rateLimiter chan struct{}

	mu         sync.Mutex
	userAgents []string
	uaIndex    int
}

var _ agents.WebSearcher = (*WebSearchService)(nil)

func NewWebSearchService(cfg config.WebSearchConfig, log *logger.Logger) (*WebSearchService, error) {
	collector := colly.NewCollector()
	collector.SetRequestTimeout(cfg.RequestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxConcurrency,
		Delay:       500 * time.Millisecond,
	}); err != nil {
		return nil, fmt.Errorf("configure web search limits: %w", err)
	}

	service := &WebSearchService{
		collector:   collector,
		config:      cfg,
		logger:      log,
		rateLimiter: make(chan struct{}, cfg.MaxConcurrency),
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/120.0",
		},
	}

	log.Info("Web search service initialized",
		"base_url", cfg.BaseURL,
		"max_results", cfg.MaxResults)

	return service, nil
}

func (s *WebSearchService) Fetch(ctx context.Context, query string) ([]agents.WebHit, error) {
	startTime := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("EMPTY_QUERY", "web search query cannot be empty")
	}

	select {
	case s.rateLimiter <- struct{}{}:
		defer func() { <-s.rateLimiter }()
	case <-ctx.Done():
		return nil, models.NewTimeoutError("WEBSEARCH_TIMEOUT", "web search rate limiter wait cancelled").WithCause(ctx.Err())
	}

	c := s.collector.Clone()

	var hits []agents.WebHit
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", s.nextUserAgent())
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(hits) >= s.config.MaxResults {
			return
		}
		if hit, ok := extractHit(e.DOM); ok {
			hits = append(hits, hit)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("search request failed (HTTP %d): %w", status, err)
	})

	searchURL := fmt.Sprintf("%s?q=%s", s.config.BaseURL, url.QueryEscape(query))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(searchURL); err != nil && fetchErr == nil {
			fetchErr = err
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, models.NewTimeoutError("WEBSEARCH_TIMEOUT", "web search cancelled").WithCause(ctx.Err())
	}

	if fetchErr != nil {
		s.logger.LogService("websearch", "fetch", time.Since(startTime), logger.Fields{
			"query": query,
		}, fetchErr)
		return nil, models.NewExternalError("WEBSEARCH_FAILED", "web search failed").WithCause(fetchErr)
	}

	s.logger.LogService("websearch", "fetch", time.Since(startTime), logger.Fields{
		"query": query,
		"hits":  len(hits),
	}, nil)

	return hits, nil
}

func (s *WebSearchService) nextUserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ua := s.userAgents[s.uaIndex]
	s.uaIndex = (s.uaIndex + 1) % len(s.userAgents)
	return ua
}

// extractHit pulls title, snippet and destination URL out of one result node.
func extractHit(sel *goquery.Selection) (agents.WebHit, bool) {
	link := sel.Find("a.result__a").First()
	title := strings.TrimSpace(link.Text())
	snippet := strings.TrimSpace(sel.Find("a.result__snippet").First().Text())
	if title == "" && snippet == "" {
		return agents.WebHit{}, false
	}

	href, _ := link.Attr("href")
	return agents.WebHit{
		Title: title,
		Text:  snippet,
		URL:   resolveResultURL(href),
	}, true
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=<encoded>)
// to the destination URL.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

func (s *WebSearchService) HealthCheck(_ context.Context) error {
	if s.collector == nil {
		return fmt.Errorf("web search collector not initialized")
	}
	return nil
}
