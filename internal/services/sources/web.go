package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/models"
	"golang.org/x/time/rate"
)

// WebProvider fetches a page over HTTP and converts the article content to
// markdown. Pages are fetched as served, without script execution.
type WebProvider struct {
	client    *http.Client
	converter *md.Converter
	limiter   *rate.Limiter
	userAgent string
	logger    arbor.ILogger
}

// NewWebProvider creates a web source provider
func NewWebProvider(userAgent string, timeout time.Duration, logger arbor.ILogger) *WebProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebProvider{
		client:    &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 2),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Compile-time interface assertion
var _ Provider = (*WebProvider)(nil)

// GetContent fetches the source URL and returns its content as markdown,
// falling back to stripped plain text when conversion yields nothing.
func (p *WebProvider) GetContent(ctx context.Context, source *models.Source) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("fetch %s: %v: %w", source.Location, err, models.ErrSourceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.Location, nil)
	if err != nil {
		return "", fmt.Errorf("request %s: %v: %w", source.Location, err, models.ErrSourceUnavailable)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %v: %w", source.Location, err, models.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d: %w", source.Location, resp.StatusCode, models.ErrSourceUnavailable)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %v: %w", source.Location, err, models.ErrSourceUnavailable)
	}

	// Strip chrome before conversion so navigation noise never reaches
	// the chunker
	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render %s: %v: %w", source.Location, err, models.ErrSourceUnavailable)
	}

	markdown, err := p.converter.ConvertString(html)
	if err != nil || strings.TrimSpace(markdown) == "" {
		// Some pages defeat the converter; fall back to bare text
		text := strings.TrimSpace(doc.Text())
		if text == "" {
			return "", fmt.Errorf("page %s has no extractable content: %w", source.Location, models.ErrSourceUnavailable)
		}
		p.logger.Debug().
			Str("url", source.Location).
			Msg("Markdown conversion empty, using stripped text")
		return normalizeWhitespace(text), nil
	}

	p.logger.Debug().
		Str("url", source.Location).
		Int("chars", len(markdown)).
		Msg("Page content converted to markdown")

	return strings.TrimSpace(markdown), nil
}

// normalizeWhitespace collapses runs of blank lines and trims each line so
// stripped page text forms usable paragraphs.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
