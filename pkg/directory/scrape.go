package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	DefaultSection    = "qualifications"
	maxScrapedContent = 4000
)

// ErrSectionNotFound is returned when a page has no element carrying the
// configured section marker.
var ErrSectionNotFound = errors.New("section not found")

// ScraperConfig configures a Scraper.
type ScraperConfig struct {
	// Section is matched against each element's id and class tokens.
	Section   string
	Timeout   time.Duration
	UserAgent string
}

// Scraper extracts free text from one marked section of a profile page.
type Scraper struct {
	config     ScraperConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewScraper creates a Scraper.
func NewScraper(config ScraperConfig, logger *zap.Logger) *Scraper {
	if config.Section == "" {
		config.Section = DefaultSection
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &Scraper{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Scrape fetches pageURL and returns the text of its marked section.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		return "", errors.New("empty profile url")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("profile page returned %d", resp.StatusCode)
	}

	text, err := ExtractSection(io.LimitReader(resp.Body, maxResponseBody), s.config.Section)
	if err != nil {
		return "", fmt.Errorf("scrape %s: %w", pageURL, err)
	}

	s.logger.Debug("scraped profile page",
		zap.String("url", pageURL),
		zap.Int("chars", len(text)),
	)

	return truncate(text, maxScrapedContent), nil
}

// ExtractSection parses an HTML document and returns the whitespace
// normalized text inside the first element whose id equals marker or whose
// class list contains it. Script and style content is skipped.
func ExtractSection(r io.Reader, marker string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	section := findMarked(doc, marker)
	if section == nil {
		return "", ErrSectionNotFound
	}

	var parts []string
	collectText(section, &parts)
	return strings.Join(parts, " "), nil
}

func findMarked(n *html.Node, marker string) *html.Node {
	if n.Type == html.ElementNode && hasMarker(n, marker) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findMarked(c, marker); found != nil {
			return found
		}
	}
	return nil
}

func hasMarker(n *html.Node, marker string) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id":
			if attr.Val == marker {
				return true
			}
		case "class":
			for _, class := range strings.Fields(attr.Val) {
				if class == marker {
					return true
				}
			}
		}
	}
	return false
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			*parts = append(*parts, text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
