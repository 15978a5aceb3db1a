package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/models"
	"golang.org/x/time/rate"
)

const searchEndpoint = "https://html.duckduckgo.com/html/"

// WebSearchService performs keyword web searches against the DuckDuckGo
// HTML endpoint. Searches are rate limited and the service is disabled by
// default; chat context assembly only consults it when enabled per request.
type WebSearchService struct {
	config  *common.SearchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewWebSearchService creates a web search service from configuration
func NewWebSearchService(config *common.SearchConfig, logger arbor.ILogger) *WebSearchService {
	interval := config.RateLimit
	if interval <= 0 {
		interval = 1
	}
	return &WebSearchService{
		config:  config,
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Enabled reports whether outbound search is configured on
func (s *WebSearchService) Enabled() bool {
	return s.config.Enabled
}

// Search runs a query and returns up to MaxResults results. A disabled
// service returns no results without error so callers need no special case.
func (s *WebSearchService) Search(ctx context.Context, query string) ([]models.WebSearchResult, error) {
	if !s.config.Enabled {
		return nil, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit wait: %w", err)
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := s.parseResults(doc)

	s.logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Web search completed")

	return results, nil
}

// parseResults extracts result entries from the DuckDuckGo HTML layout
func (s *WebSearchService) parseResults(doc *goquery.Document) []models.WebSearchResult {
	var results []models.WebSearchResult

	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(results) >= s.config.MaxResults {
			return false
		}

		link := sel.Find(".result__a")
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		title := strings.TrimSpace(link.Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" {
			return true
		}

		results = append(results, models.WebSearchResult{
			Title:   title,
			URL:     cleanResultURL(href),
			Snippet: snippet,
		})
		return true
	})

	return results
}

// cleanResultURL unwraps the redirect the HTML endpoint puts around result
// links (/l/?uddg=<encoded target>).
func cleanResultURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if parsed.Scheme == "" {
		return "https:" + href
	}
	return href
}
