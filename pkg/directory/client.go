// Package directory talks to the third-party therapist directory: it runs
// filtered searches against the directory's results endpoint and scrapes
// free text from individual profile pages.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultURL       = "https://www.psychologytoday.com/ca/therapists/results"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "TheraMatch/1.0"
	defaultSeed      = "default_seed"
	maxResponseBody  = 10 << 20
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Location identifies the directory region a search is scoped to.
type Location struct {
	ID         int    `json:"id" jsonschema:"description=Directory location id"`
	Type       string `json:"type" jsonschema:"description=Location type such as City"`
	RegionCode string `json:"regionCode" jsonschema:"description=Province or state code"`
}

// DefaultLocation is used when a search does not name one (Toronto, ON).
var DefaultLocation = Location{ID: 68684, Type: "City", RegionCode: "ON"}

// SearchRequest selects directory listings.
type SearchRequest struct {
	AttributeIDs []int
	Location     *Location
	// Limit is the number of profiles to return; 0 asks for the total only.
	Limit int
}

// SearchResult is the directory's "data" object.
type SearchResult struct {
	Total    int       `json:"total"`
	Profiles []Profile `json:"profiles,omitempty"`

	// Raw is the undecoded "data" object as returned by the directory.
	Raw json.RawMessage `json:"-"`
}

type searchPayload struct {
	AttributeIDs        []int    `json:"attributeIds"`
	CostFilter          *string  `json:"costFilter"`
	PsychiatristsFilter *string  `json:"psychiatristsFilter"`
	NameSearch          string   `json:"nameSearch"`
	ListingSearchChar   string   `json:"listingSearchChar"`
	From                int      `json:"from"`
	Limit               int      `json:"limit"`
	Seed                string   `json:"seed"`
	Location            Location `json:"location"`
}

// Client queries the directory search endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. Every request is bounded by config.Timeout.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Timeout returns the bound applied to each directory request.
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

// Search runs a directory search and returns its data object.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	payload := searchPayload{
		AttributeIDs: req.AttributeIDs,
		Limit:        req.Limit,
		Seed:         defaultSeed,
		Location:     resolveLocation(req.Location),
	}
	if payload.AttributeIDs == nil {
		payload.AttributeIDs = []int{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug("querying directory",
		zap.Ints("attribute_ids", payload.AttributeIDs),
		zap.Int("location_id", payload.Location.ID),
		zap.Int("limit", payload.Limit),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read directory response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("directory returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	result := &SearchResult{Raw: envelope.Data}
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return nil, fmt.Errorf("decode directory data: %w", err)
		}
	} else {
		result.Raw = json.RawMessage("{}")
	}

	c.logger.Debug("directory responded",
		zap.Int("status", resp.StatusCode),
		zap.Int("total", result.Total),
		zap.Int("profiles", len(result.Profiles)),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// MatchSummary is the count-only view of a search.
type MatchSummary struct {
	MatchCount     int      `json:"match_count"`
	FiltersApplied []int    `json:"filters_applied"`
	Location       Location `json:"location"`
	Message        string   `json:"message"`
	Error          bool     `json:"error,omitempty"`
}

// Count returns the number of listings matching the filters. Failures are
// reported in the summary itself (MatchCount 0, Error true) rather than as
// an error, so callers always have a result to show.
func (c *Client) Count(ctx context.Context, attributeIDs []int, location *Location) MatchSummary {
	result, err := c.Search(ctx, SearchRequest{AttributeIDs: attributeIDs, Location: location})
	if err != nil {
		c.logger.Warn("directory count failed", zap.Error(err))
		return FailedSummary(attributeIDs, location, err)
	}

	summary := newSummary(attributeIDs, location)
	summary.MatchCount = result.Total
	summary.Message = fmt.Sprintf("%d matching therapists", result.Total)
	return summary
}

// FailedSummary is the zero-count summary reported when a search fails.
func FailedSummary(attributeIDs []int, location *Location, err error) MatchSummary {
	summary := newSummary(attributeIDs, location)
	summary.Message = fmt.Sprintf("Error fetching therapist data: %s", err)
	summary.Error = true
	return summary
}

func newSummary(attributeIDs []int, location *Location) MatchSummary {
	if attributeIDs == nil {
		attributeIDs = []int{}
	}
	return MatchSummary{
		FiltersApplied: attributeIDs,
		Location:       resolveLocation(location),
	}
}

func resolveLocation(loc *Location) Location {
	if loc == nil || loc.ID == 0 {
		return DefaultLocation
	}
	return *loc
}

// truncate shortens s to at most maxLen bytes plus an ellipsis, backing off
// to a rune boundary so the result stays valid UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
